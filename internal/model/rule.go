package model

import "github.com/shopspring/decimal"

// DefaultRulePriority is used when a rule does not set one.
const DefaultRulePriority = 100

// Rule is a categorization rule: predicates plus the overrides applied when
// every configured predicate matches. Lower Priority is evaluated first.
type Rule struct {
	ID             string
	OrganizationID string
	Name           string
	Keywords       []string // lower-cased substrings; empty matches anything
	Regex          string   // case-insensitive; "" = no regex predicate
	MinAmount      *decimal.Decimal
	MaxAmount      *decimal.Decimal
	DirectionHint  Direction // "" = keep current direction
	Category       Ref
	MerchantSet    string // "" = keep current merchant
	Account        Ref    // scope filter; zero = every account
	Priority       int
	Active         bool
}
