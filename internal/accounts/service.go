package accounts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cleared-dev/tally/internal/model"
)

// ErrNotFound is returned by Resolve when no account matches.
var ErrNotFound = errors.New("account not found")

// Service provides in-memory lookup over the account registry.
type Service struct {
	accounts []model.Account
	byID     map[string]model.Account
}

// NewService creates a Service from a slice of accounts.
func NewService(accounts []model.Account) *Service {
	byID := make(map[string]model.Account, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}
	return &Service{accounts: accounts, byID: byID}
}

// Path returns the registry file location under a workspace root.
func Path(root string) string {
	return filepath.Join(root, "accounts", "accounts.csv")
}

// Load reads accounts/accounts.csv from a workspace root and returns a Service.
func Load(root string) (*Service, error) {
	f, err := os.Open(Path(root))
	if err != nil {
		return nil, fmt.Errorf("opening accounts: %w", err)
	}
	defer f.Close()

	accts, err := ReadAccounts(f)
	if err != nil {
		return nil, fmt.Errorf("reading accounts: %w", err)
	}
	return NewService(accts), nil
}

// All returns all accounts.
func (s *Service) All() []model.Account {
	return s.accounts
}

// Get returns an account by ID.
func (s *Service) Get(id string) (model.Account, bool) {
	a, ok := s.byID[id]
	return a, ok
}

// Resolve finds an account by ID, falling back to a case-insensitive name
// match. The account must belong to an organization.
func (s *Service) Resolve(ref string) (model.Account, error) {
	ref = strings.TrimSpace(ref)
	acct, ok := s.byID[ref]
	if !ok {
		for _, a := range s.accounts {
			if strings.EqualFold(a.Name, ref) {
				acct, ok = a, true
				break
			}
		}
	}
	if !ok {
		return model.Account{}, fmt.Errorf("%w: %q", ErrNotFound, ref)
	}
	if acct.OrganizationID == "" {
		return model.Account{}, fmt.Errorf("account %s has no organization", acct.ID)
	}
	return acct, nil
}

// Organizations returns the distinct organization IDs in registry order.
func (s *Service) Organizations() []string {
	seen := make(map[string]bool)
	var orgs []string
	for _, a := range s.accounts {
		if a.OrganizationID == "" || seen[a.OrganizationID] {
			continue
		}
		seen[a.OrganizationID] = true
		orgs = append(orgs, a.OrganizationID)
	}
	return orgs
}

// Save writes the registry to accounts/accounts.csv.
func (s *Service) Save(root string) error {
	path := Path(root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating accounts dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating accounts file: %w", err)
	}
	defer f.Close()

	if err := WriteAccounts(f, s.accounts); err != nil {
		return fmt.Errorf("writing accounts: %w", err)
	}
	return nil
}
