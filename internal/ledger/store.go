package ledger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cleared-dev/tally/internal/model"
)

// Store keeps one CSV file per account under <root>/ledger and upserts
// batches into it. It implements the importer's Gateway.
type Store struct {
	root string
	mu   sync.Mutex
}

// NewStore creates a Store rooted at a workspace directory.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Upsert merges batch into the account's ledger file. Rows whose
// (source, external id) already exist are replaced in place; new rows are
// appended in batch order. The file is rewritten atomically, so a failed
// call leaves the previous contents intact.
func (s *Store) Upsert(ctx context.Context, scope model.Scope, batch []model.Transaction) error {
	if len(batch) == 0 {
		return nil
	}
	if verrs := ValidateBatch(scope, batch); len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for i, ve := range verrs {
			msgs[i] = ve.Error()
		}
		return fmt.Errorf("validation failed: %s", strings.Join(msgs, "; "))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.Read(scope.AccountID)
	if err != nil {
		return err
	}

	index := make(map[string]int, len(existing))
	for i, txn := range existing {
		index[key(txn.Source, txn.ExternalID)] = i
	}
	merged := existing
	for _, txn := range batch {
		k := key(txn.Source, txn.ExternalID)
		if i, ok := index[k]; ok {
			merged[i] = txn
			continue
		}
		index[k] = len(merged)
		merged = append(merged, txn)
	}

	return s.write(scope.AccountID, merged)
}

// Read returns every record in the account's ledger, in file order. A
// missing file is an empty ledger.
func (s *Store) Read(accountID string) ([]model.Transaction, error) {
	path := s.Path(accountID)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening ledger %s: %w", path, err)
	}
	defer f.Close()

	txns, err := ReadRecords(f, accountID)
	if err != nil {
		return nil, fmt.Errorf("reading ledger %s: %w", path, err)
	}
	return txns, nil
}

// Path returns the ledger file for an account.
func (s *Store) Path(accountID string) string {
	return filepath.Join(s.root, "ledger", sanitize(accountID)+".csv")
}

func (s *Store) write(accountID string, txns []model.Transaction) error {
	path := s.Path(accountID)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating ledger dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ledger-*.csv")
	if err != nil {
		return fmt.Errorf("creating temp ledger: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteRecords(tmp, txns); err != nil {
		tmp.Close()
		return fmt.Errorf("writing ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp ledger: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing ledger %s: %w", path, err)
	}
	return nil
}

func key(source, externalID string) string {
	return source + "\x00" + externalID
}

// sanitize maps an account ID to a safe file name.
func sanitize(accountID string) string {
	var b strings.Builder
	for _, r := range accountID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), ".")
	if name == "" {
		return "_"
	}
	return name
}
