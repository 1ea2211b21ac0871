package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one normalized, classified and categorized import row.
type Transaction struct {
	AccountID             string
	Source                string
	ExternalID            string // content hash, see id.ExternalID
	Date                  string // as provided by the source, trimmed
	Description           string // trimmed original text
	NormalizedDescription string
	RawAmount             decimal.Decimal // signed; expenses negative
	Amount                decimal.Decimal // |RawAmount|
	Direction             Direction
	Merchant              string // "" = unset
	Category              Ref
	RuleIDApplied         string // "" = no rule matched
	ImportedAt            time.Time
	Raw                   RawMeta
}

// RawMeta keeps source data that is stored but never drives classification.
type RawMeta struct {
	CSVCategory string
	CSVRow      []string
}

// Scope identifies the (account, source) pair an import batch belongs to.
type Scope struct {
	AccountID string
	Source    string
}
