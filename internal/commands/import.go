package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/tally/internal/importer"
	"github.com/cleared-dev/tally/internal/importlog"
	"github.com/cleared-dev/tally/internal/model"
)

type importOptions struct {
	account string
	source  string
	decoder string
	workers int
	dryRun  bool
}

func newImportCommand(g *globalOptions) *cobra.Command {
	opts := importOptions{}

	cmd := &cobra.Command{
		Use:   "import [file...]",
		Short: "Import bank CSV exports",
		Long: "Import bank CSV exports into the configured store. With no files, every\n" +
			"CSV in import/ is imported and moved to import/processed/.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd.Context(), g.repo, g.logLevel)
			if err != nil {
				return err
			}
			defer ws.Close()
			return runImport(cmd.Context(), cmd.OutOrStdout(), ws, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.account, "account", "", "account id or name (default import.default_account)")
	cmd.Flags().StringVar(&opts.source, "source", "", "source tag (default import.source)")
	cmd.Flags().StringVar(&opts.decoder, "decoder", "", "decoder format (default import.decoder)")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "row workers (default import.workers)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "classify without writing anything")

	return cmd
}

type importJob struct {
	name      string
	path      string
	fromQueue bool
}

func runImport(ctx context.Context, out io.Writer, ws *workspace, args []string, opts importOptions) error {
	accountRef := firstNonEmpty(opts.account, ws.cfg.Import.DefaultAccount)
	if accountRef == "" {
		return errors.New("no account: pass --account or set import.default_account")
	}
	acct, err := ws.accounts.Resolve(accountRef)
	if err != nil {
		return err
	}
	source := firstNonEmpty(opts.source, ws.cfg.Import.Source)
	format := firstNonEmpty(opts.decoder, ws.cfg.Import.Decoder)
	dec := importer.DefaultRegistry().Get(format)
	if dec == nil {
		return fmt.Errorf("unknown decoder %q", format)
	}

	jobs, err := importJobs(ws.root, args)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No CSV files in import/")
		return nil
	}

	orgRules, err := ws.ruleStore().ListRules(ctx, acct.OrganizationID)
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}

	im := ws.importer(opts.workers, opts.dryRun)
	var entries []importlog.Entry
	var failed int
	for _, job := range jobs {
		entry := importlog.Entry{
			Timestamp: time.Now().UTC(),
			AccountID: acct.ID,
			Source:    source,
			File:      job.name,
			Status:    importlog.StatusOK,
		}
		if opts.dryRun {
			entry.Status = importlog.StatusDryRun
		}

		res, err := importFile(ctx, im, dec, job.path, importer.Request{
			Account: acct,
			Source:  source,
			Rules:   orgRules,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			failed++
			entry.Status = importlog.StatusFailed
			entry.Error = err.Error()
			entries = append(entries, entry)
			fmt.Fprintf(out, "%s: error: %v\n", job.name, err)
			continue
		}

		entry.RunID = res.RunID
		entry.Imported = res.Imported
		entry.Skipped = res.Skipped
		entries = append(entries, entry)
		fmt.Fprintf(out, "%s: imported=%d skipped=%d\n", job.name, res.Imported, res.Skipped)
		if opts.dryRun {
			printPreview(out, res.Records)
			continue
		}

		if job.fromQueue {
			if err := importer.MarkProcessed(ws.root, job.name); err != nil {
				return err
			}
		}
	}

	if opts.dryRun {
		return importSummary(failed, len(jobs))
	}

	if err := importlog.Append(ws.root, entries); err != nil {
		return err
	}
	hash, err := ws.commit(ctx, fmt.Sprintf("import: %s (%d file(s))", acct.ID, len(jobs)))
	if err != nil {
		return err
	}
	if hash != "" {
		fmt.Fprintf(out, "Committed %s\n", hash)
	}
	return importSummary(failed, len(jobs))
}

func importFile(ctx context.Context, im *importer.Importer, dec importer.Decoder, path string, req importer.Request) (*importer.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return im.ImportReader(ctx, dec, f, req)
}

func importJobs(root string, args []string) ([]importJob, error) {
	if len(args) == 0 {
		files, err := importer.Scan(root)
		if err != nil {
			return nil, err
		}
		jobs := make([]importJob, len(files))
		for i, f := range files {
			jobs[i] = importJob{name: f.Name, path: f.Path, fromQueue: true}
		}
		return jobs, nil
	}

	jobs := make([]importJob, len(args))
	for i, a := range args {
		abs, err := filepath.Abs(a)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", a, err)
		}
		jobs[i] = importJob{name: filepath.Base(abs), path: abs}
	}
	return jobs, nil
}

func printPreview(out io.Writer, records []model.Transaction) {
	for _, r := range records {
		fmt.Fprintf(out, "  %s  %10s  %-8s  %-24s  %s\n",
			r.Date, r.Amount.StringFixed(2), r.Direction, r.Category, r.Description)
	}
}

func importSummary(failed, total int) error {
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d import(s) failed", failed, total)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
