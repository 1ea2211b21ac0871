package rules

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/cleared-dev/tally/internal/model"
)

// File is the on-disk shape of rules/categorization-rules.yaml.
type File struct {
	Rules []FileRule `yaml:"rules"`
}

// FileRule is one rule as written in YAML. category_id/category_other and
// account_id/account_other are mutually exclusive.
type FileRule struct {
	ID            string   `yaml:"id"`
	Organization  string   `yaml:"organization"`
	Name          string   `yaml:"name,omitempty"`
	Keywords      []string `yaml:"keywords,omitempty"`
	Regex         string   `yaml:"regex,omitempty"`
	MinAmount     string   `yaml:"min_amount,omitempty"`
	MaxAmount     string   `yaml:"max_amount,omitempty"`
	DirectionHint string   `yaml:"direction_hint,omitempty"`
	CategoryID    string   `yaml:"category_id,omitempty"`
	CategoryOther string   `yaml:"category_other,omitempty"`
	MerchantSet   string   `yaml:"merchant_set,omitempty"`
	AccountID     string   `yaml:"account_id,omitempty"`
	AccountOther  string   `yaml:"account_other,omitempty"`
	Priority      *int     `yaml:"priority,omitempty"`
	Active        *bool    `yaml:"active,omitempty"`
}

// Load reads and validates a rule file.
func Load(path string) ([]model.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates rule file contents.
func Parse(data []byte) ([]model.Rule, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing rules: %w", err)
	}

	seen := make(map[string]bool, len(f.Rules))
	result := make([]model.Rule, 0, len(f.Rules))
	for i, fr := range f.Rules {
		r, err := fr.Rule()
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("rule %d: duplicate id %q", i+1, r.ID)
		}
		seen[r.ID] = true
		result = append(result, r)
	}
	return result, nil
}

// Save writes rules to path, replacing its contents.
func Save(path string, rules []model.Rule) error {
	f := File{Rules: make([]FileRule, len(rules))}
	for i, r := range rules {
		f.Rules[i] = fromRule(r)
	}
	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("marshaling rules: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing rules: %w", err)
	}
	return nil
}

// Rule validates fr and converts it to a model.Rule with defaults applied.
func (fr FileRule) Rule() (model.Rule, error) {
	if strings.TrimSpace(fr.ID) == "" {
		return model.Rule{}, errors.New("missing id")
	}
	r := model.Rule{
		ID:             fr.ID,
		OrganizationID: fr.Organization,
		Name:           fr.Name,
		Keywords:       NormalizeKeywords(fr.Keywords),
		Regex:          fr.Regex,
		MerchantSet:    strings.TrimSpace(fr.MerchantSet),
		Priority:       model.DefaultRulePriority,
		Active:         true,
	}
	if fr.Priority != nil {
		r.Priority = *fr.Priority
	}
	if fr.Active != nil {
		r.Active = *fr.Active
	}

	var err error
	if r.MinAmount, err = parseBound(fr.MinAmount); err != nil {
		return model.Rule{}, fmt.Errorf("min_amount: %w", err)
	}
	if r.MaxAmount, err = parseBound(fr.MaxAmount); err != nil {
		return model.Rule{}, fmt.Errorf("max_amount: %w", err)
	}
	if r.MinAmount != nil && r.MaxAmount != nil && r.MinAmount.GreaterThan(*r.MaxAmount) {
		return model.Rule{}, fmt.Errorf("min_amount %s exceeds max_amount %s", r.MinAmount, r.MaxAmount)
	}

	if fr.DirectionHint != "" {
		if r.DirectionHint, err = model.ParseDirection(fr.DirectionHint); err != nil {
			return model.Rule{}, fmt.Errorf("direction_hint: %w", err)
		}
	}

	if r.Category, err = pickRef(fr.CategoryID, fr.CategoryOther); err != nil {
		return model.Rule{}, fmt.Errorf("category: %w", err)
	}
	if r.Account, err = pickRef(fr.AccountID, fr.AccountOther); err != nil {
		return model.Rule{}, fmt.Errorf("account: %w", err)
	}
	return r, nil
}

func fromRule(r model.Rule) FileRule {
	fr := FileRule{
		ID:            r.ID,
		Organization:  r.OrganizationID,
		Name:          r.Name,
		Keywords:      r.Keywords,
		Regex:         r.Regex,
		DirectionHint: string(r.DirectionHint),
		MerchantSet:   r.MerchantSet,
	}
	if r.MinAmount != nil {
		fr.MinAmount = r.MinAmount.String()
	}
	if r.MaxAmount != nil {
		fr.MaxAmount = r.MaxAmount.String()
	}
	switch r.Category.Kind {
	case model.RefSelected:
		fr.CategoryID = r.Category.Value
	case model.RefFreeText:
		fr.CategoryOther = r.Category.Value
	}
	switch r.Account.Kind {
	case model.RefSelected:
		fr.AccountID = r.Account.Value
	case model.RefFreeText:
		fr.AccountOther = r.Account.Value
	}
	if r.Priority != model.DefaultRulePriority {
		p := r.Priority
		fr.Priority = &p
	}
	if !r.Active {
		active := false
		fr.Active = &active
	}
	return fr
}

// NormalizeKeywords trims and lower-cases keywords, dropping blanks.
func NormalizeKeywords(keywords []string) []string {
	var result []string
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			result = append(result, kw)
		}
	}
	return result
}

func parseBound(s string) (*decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %w", s, err)
	}
	return &d, nil
}

func pickRef(id, other string) (model.Ref, error) {
	id, other = strings.TrimSpace(id), strings.TrimSpace(other)
	switch {
	case id != "" && other != "":
		return model.Ref{}, errors.New("set either an id or an other value, not both")
	case id != "":
		return model.Selected(id), nil
	case other != "":
		return model.FreeText(other), nil
	}
	return model.Ref{}, nil
}
