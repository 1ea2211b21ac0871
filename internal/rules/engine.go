package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/tally/internal/model"
)

// Input is the part of a transaction the rule predicates look at, plus the
// fields a matching rule may override.
type Input struct {
	AccountID             string
	AccountName           string
	NormalizedDescription string
	Amount                decimal.Decimal // absolute value
	Direction             model.Direction
	Merchant              string
}

// Outcome is the result of applying a rule set to one Input.
type Outcome struct {
	Direction model.Direction
	Category  model.Ref
	Merchant  string
	RuleID    string // "" = no rule matched
}

// Anomaly records a rule that can never match because its regex failed to
// compile.
type Anomaly struct {
	RuleID string
	Err    error
}

func (a Anomaly) Error() string {
	return fmt.Sprintf("rule %s: %v", a.RuleID, a.Err)
}

type compiledRule struct {
	model.Rule
	re      *regexp.Regexp
	invalid bool
}

// Set is an immutable, priority-ordered, precompiled rule list. It is safe
// for concurrent use.
type Set struct {
	rules []compiledRule
}

// Compile orders rules by ascending priority (ties keep input order) and
// compiles each regex once. Inactive rules are dropped. Rules whose regex
// does not compile are kept but never match; they are reported as anomalies.
func Compile(rules []model.Rule) (*Set, []Anomaly) {
	ordered := make([]model.Rule, 0, len(rules))
	for _, r := range rules {
		if r.Active {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	var anomalies []Anomaly
	set := &Set{rules: make([]compiledRule, len(ordered))}
	for i, r := range ordered {
		cr := compiledRule{Rule: r}
		if r.Regex != "" {
			re, err := regexp.Compile("(?i)" + r.Regex)
			if err != nil {
				cr.invalid = true
				anomalies = append(anomalies, Anomaly{RuleID: r.ID, Err: err})
			} else {
				cr.re = re
			}
		}
		set.rules[i] = cr
	}
	return set, anomalies
}

// Len returns the number of active rules in the set.
func (s *Set) Len() int { return len(s.rules) }

// Apply evaluates the set against in and applies the first matching rule's
// overrides. Later rules are not evaluated.
func (s *Set) Apply(in Input) Outcome {
	out := Outcome{Direction: in.Direction, Merchant: in.Merchant}
	if s == nil {
		return out
	}
	for i := range s.rules {
		r := &s.rules[i]
		if !r.matches(in) {
			continue
		}
		if r.DirectionHint != "" {
			out.Direction = r.DirectionHint
		}
		out.Category = r.Category
		if r.MerchantSet != "" {
			out.Merchant = r.MerchantSet
		}
		out.RuleID = r.ID
		return out
	}
	return out
}

// Match returns the first rule that matches in, if any.
func (s *Set) Match(in Input) (model.Rule, bool) {
	if s == nil {
		return model.Rule{}, false
	}
	for i := range s.rules {
		if s.rules[i].matches(in) {
			return s.rules[i].Rule, true
		}
	}
	return model.Rule{}, false
}

// Apply compiles rules and applies them to a single input.
func Apply(in Input, rules []model.Rule) Outcome {
	set, _ := Compile(rules)
	return set.Apply(in)
}

func (r *compiledRule) matches(in Input) bool {
	if r.invalid {
		return false
	}
	return r.inScope(in) &&
		r.keywordMatch(in.NormalizedDescription) &&
		r.regexMatch(in.NormalizedDescription) &&
		r.amountMatch(in.Amount)
}

func (r *compiledRule) inScope(in Input) bool {
	switch r.Account.Kind {
	case model.RefSelected:
		return r.Account.Value == in.AccountID
	case model.RefFreeText:
		return strings.EqualFold(strings.TrimSpace(r.Account.Value), strings.TrimSpace(in.AccountName))
	}
	return true
}

func (r *compiledRule) keywordMatch(desc string) bool {
	if len(r.Keywords) == 0 {
		return true
	}
	for _, kw := range r.Keywords {
		if strings.Contains(desc, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func (r *compiledRule) regexMatch(desc string) bool {
	if r.re == nil {
		return true
	}
	return r.re.MatchString(desc)
}

func (r *compiledRule) amountMatch(amount decimal.Decimal) bool {
	if r.MinAmount != nil && amount.LessThan(*r.MinAmount) {
		return false
	}
	if r.MaxAmount != nil && amount.GreaterThan(*r.MaxAmount) {
		return false
	}
	return true
}

// ForOrganization returns the rules that belong to org, in input order.
func ForOrganization(rules []model.Rule, org string) []model.Rule {
	var result []model.Rule
	for _, r := range rules {
		if r.OrganizationID == org {
			result = append(result, r)
		}
	}
	return result
}
