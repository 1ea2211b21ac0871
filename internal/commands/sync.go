package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/tally/internal/importer"
	"github.com/cleared-dev/tally/internal/importlog"
	"github.com/cleared-dev/tally/internal/sheets"
)

func newSyncCommand(g *globalOptions) *cobra.Command {
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull transactions from remote sources",
	}
	syncCmd.AddCommand(newSyncSheetsCommand(g))
	return syncCmd
}

type sheetsOptions struct {
	account     string
	spreadsheet string
	readRange   string
	credentials string
	workers     int
	dryRun      bool
}

func newSyncSheetsCommand(g *globalOptions) *cobra.Command {
	opts := sheetsOptions{}

	cmd := &cobra.Command{
		Use:   "sheets",
		Short: "Import a Google Sheets range through the CSV pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd.Context(), g.repo, g.logLevel)
			if err != nil {
				return err
			}
			defer ws.Close()

			sc := ws.cfg.Sheets
			opts.account = firstNonEmpty(opts.account, sc.Account, ws.cfg.Import.DefaultAccount)
			opts.spreadsheet = firstNonEmpty(opts.spreadsheet, sc.SpreadsheetID)
			opts.readRange = firstNonEmpty(opts.readRange, sc.Range)
			opts.credentials = firstNonEmpty(opts.credentials, sc.CredentialsFile)
			if opts.spreadsheet == "" {
				return errors.New("no spreadsheet: pass --spreadsheet or set sheets.spreadsheet_id")
			}
			if opts.readRange == "" {
				return errors.New("no range: pass --range or set sheets.range")
			}

			client, err := sheets.NewClient(cmd.Context(), opts.credentials)
			if err != nil {
				return err
			}
			return runSyncSheets(cmd.Context(), cmd.OutOrStdout(), ws, client, opts)
		},
	}

	cmd.Flags().StringVar(&opts.account, "account", "", "account id or name (default sheets.account)")
	cmd.Flags().StringVar(&opts.spreadsheet, "spreadsheet", "", "spreadsheet id (default sheets.spreadsheet_id)")
	cmd.Flags().StringVar(&opts.readRange, "range", "", "A1 range including the header row (default sheets.range)")
	cmd.Flags().StringVar(&opts.credentials, "credentials", "", "service account credentials file (default sheets.credentials_file)")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "row workers (default import.workers)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "classify without writing anything")

	return cmd
}

func runSyncSheets(ctx context.Context, out io.Writer, ws *workspace, reader sheets.ValuesReader, opts sheetsOptions) error {
	if opts.account == "" {
		return errors.New("no account: pass --account or set sheets.account")
	}
	acct, err := ws.accounts.Resolve(opts.account)
	if err != nil {
		return err
	}

	table, err := sheets.FetchTable(ctx, reader, opts.spreadsheet, opts.readRange)
	if err != nil {
		return err
	}

	orgRules, err := ws.ruleStore().ListRules(ctx, acct.OrganizationID)
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}

	label := fmt.Sprintf("%s!%s", opts.spreadsheet, opts.readRange)
	res, err := ws.importer(opts.workers, opts.dryRun).Import(ctx, importer.Request{
		Account: acct,
		Source:  sheets.Source,
		Table:   table,
		Rules:   orgRules,
	})
	if err != nil {
		if !opts.dryRun {
			logErr := importlog.Append(ws.root, []importlog.Entry{{
				Timestamp: time.Now().UTC(),
				AccountID: acct.ID,
				Source:    sheets.Source,
				File:      label,
				Status:    importlog.StatusFailed,
				Error:     err.Error(),
			}})
			return errors.Join(err, logErr)
		}
		return err
	}

	fmt.Fprintf(out, "%s: imported=%d skipped=%d\n", label, res.Imported, res.Skipped)
	if opts.dryRun {
		printPreview(out, res.Records)
		return nil
	}

	if err := importlog.Append(ws.root, []importlog.Entry{{
		Timestamp: time.Now().UTC(),
		RunID:     res.RunID,
		AccountID: acct.ID,
		Source:    sheets.Source,
		File:      label,
		Imported:  res.Imported,
		Skipped:   res.Skipped,
		Status:    importlog.StatusOK,
	}}); err != nil {
		return err
	}
	hash, err := ws.commit(ctx, fmt.Sprintf("sync: %s from sheets", acct.ID))
	if err != nil {
		return err
	}
	if hash != "" {
		fmt.Fprintf(out, "Committed %s\n", hash)
	}
	return nil
}
