package commands

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/cleared-dev/tally/internal/accounts"
	"github.com/cleared-dev/tally/internal/config"
	"github.com/cleared-dev/tally/internal/gitops"
	"github.com/cleared-dev/tally/internal/importer"
	"github.com/cleared-dev/tally/internal/ledger"
	"github.com/cleared-dev/tally/internal/logging"
	"github.com/cleared-dev/tally/internal/postgres"
	"github.com/cleared-dev/tally/internal/rules"
)

// workspace is everything a command needs from a tally directory. The
// database handle, when there is one, is opened once and shared by the
// gateway and the rule store.
type workspace struct {
	root     string
	cfg      *config.Config
	logger   *logrus.Logger
	accounts *accounts.Service
	db       *sql.DB
}

func openWorkspace(ctx context.Context, dir, logLevel string) (*workspace, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	cfg, err := config.LoadWorkspace(root)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger, err := logging.Setup(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	accts, err := accounts.Load(root)
	if err != nil {
		return nil, err
	}

	ws := &workspace{root: root, cfg: cfg, logger: logger, accounts: accts}
	if cfg.Store.Driver == config.DriverPostgres {
		ws.db, err = postgres.Open(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
	}
	return ws, nil
}

func (w *workspace) Close() error {
	if w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *workspace) gateway(dryRun bool) importer.Gateway {
	switch {
	case dryRun:
		return importer.Preview{}
	case w.db != nil:
		return postgres.NewGateway(w.db)
	}
	return ledger.NewStore(w.root)
}

func (w *workspace) ruleStore() rules.Store {
	if w.db != nil {
		return postgres.NewRuleStore(w.db)
	}
	return &rules.FileStore{
		Path:       w.cfg.RulesPath(w.root),
		DefaultOrg: w.cfg.Workspace.Organization,
	}
}

func (w *workspace) importer(workers int, dryRun bool) *importer.Importer {
	if workers <= 0 {
		workers = w.cfg.Import.Workers
	}
	return importer.New(w.gateway(dryRun), w.logger, importer.WithWorkers(workers))
}

// commit records workspace changes when auto-commit is on and the workspace
// is a git repository. It returns "" when nothing was committed.
func (w *workspace) commit(ctx context.Context, message string) (string, error) {
	if !w.cfg.Git.AutoCommit || !gitops.IsRepo(w.root) {
		return "", nil
	}
	author := gitops.Author{Name: w.cfg.Git.AuthorName, Email: w.cfg.Git.AuthorEmail}
	hash, err := gitops.CommitIfChanged(ctx, w.root, message, author)
	if err != nil {
		return "", fmt.Errorf("committing workspace: %w", err)
	}
	return hash, nil
}
