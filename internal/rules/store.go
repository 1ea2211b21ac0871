package rules

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cleared-dev/tally/internal/model"
)

// Store lists and saves an organization's rules.
type Store interface {
	ListRules(ctx context.Context, org string) ([]model.Rule, error)
	SaveRules(ctx context.Context, rules []model.Rule) error
}

// FileStore is a Store over a YAML rule file. Rules that name no
// organization belong to DefaultOrg.
type FileStore struct {
	Path       string
	DefaultOrg string
}

// ListRules returns org's rules in file order. A missing file has no rules.
func (s *FileStore) ListRules(_ context.Context, org string) ([]model.Rule, error) {
	all, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].OrganizationID == "" {
			all[i].OrganizationID = s.DefaultOrg
		}
	}
	return ForOrganization(all, org), nil
}

// SaveRules replaces rules with matching ids in place and appends the rest.
func (s *FileStore) SaveRules(_ context.Context, rules []model.Rule) error {
	all, err := s.load()
	if err != nil {
		return err
	}
	index := make(map[string]int, len(all))
	for i, r := range all {
		index[r.ID] = i
	}
	for _, r := range rules {
		if i, ok := index[r.ID]; ok {
			all[i] = r
			continue
		}
		index[r.ID] = len(all)
		all = append(all, r)
	}

	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("creating rules dir: %w", err)
	}
	return Save(s.Path, all)
}

func (s *FileStore) load() ([]model.Rule, error) {
	all, err := Load(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return all, nil
}
