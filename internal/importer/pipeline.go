package importer

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/cleared-dev/tally/internal/id"
	"github.com/cleared-dev/tally/internal/logging"
	"github.com/cleared-dev/tally/internal/model"
	"github.com/cleared-dev/tally/internal/rules"
)

// Gateway persists a batch with insert-or-update semantics keyed by
// (account, source, external id). An empty batch is a no-op. A failed call
// means none of the batch may be assumed durable.
type Gateway interface {
	Upsert(ctx context.Context, scope model.Scope, batch []model.Transaction) error
}

// Request is one import run.
type Request struct {
	Account model.Account
	Source  string
	Table   *Table
	// Rules is the organization's full rule list, active and inactive.
	Rules []model.Rule
}

// Result reports what an import run did.
type Result struct {
	RunID    string
	Imported int
	Skipped  int
	Records  []model.Transaction
	Skips    []Skip
}

// Importer runs the decode → normalize → classify → rules → upsert
// pipeline.
type Importer struct {
	gateway Gateway
	logger  *logrus.Logger
	workers int
	now     func() time.Time
}

// Option configures an Importer.
type Option func(*Importer)

// WithWorkers processes rows on n goroutines. n < 2 means sequential.
func WithWorkers(n int) Option {
	return func(im *Importer) { im.workers = n }
}

// WithClock overrides the ImportedAt timestamp source.
func WithClock(now func() time.Time) Option {
	return func(im *Importer) { im.now = now }
}

// New creates an Importer writing through gateway.
func New(gateway Gateway, logger *logrus.Logger, opts ...Option) *Importer {
	im := &Importer{
		gateway: gateway,
		logger:  logger,
		workers: 1,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(im)
	}
	if im.logger == nil {
		im.logger = logging.Discard()
	}
	return im
}

// ImportReader decodes r with dec and imports the resulting table.
func (im *Importer) ImportReader(ctx context.Context, dec Decoder, r io.Reader, req Request) (*Result, error) {
	table, err := dec.Decode(r)
	if err != nil {
		return nil, err
	}
	req.Table = table
	return im.Import(ctx, req)
}

type rowOutcome struct {
	txn  model.Transaction
	skip SkipReason
}

// Import runs the pipeline over req.Table and hands the batch to the
// gateway. Row problems are counted in the result; only validation,
// cancellation and gateway failures are returned as errors.
func (im *Importer) Import(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	cols, err := req.Table.Columns()
	if err != nil {
		return nil, err
	}

	runID := id.NewRunID()
	logData := logging.NewLogData(im.logger)
	logData.AddData("run_id", runID)
	logData.AddData("account", req.Account.ID)
	logData.AddData("source", req.Source)

	set, anomalies := rules.Compile(req.Rules)
	for _, a := range anomalies {
		im.logger.WithFields(logrus.Fields{
			"run_id": runID,
			"rule":   a.RuleID,
		}).WithError(a.Err).Warn("import.rule_regex_invalid")
	}
	logData.AddData("rules", set.Len())

	importedAt := im.now().UTC()
	endProcess := logData.AddTiming("process_ms")
	outcomes, err := im.processRows(ctx, req, cols, set, importedAt)
	endProcess()
	if err != nil {
		return nil, fmt.Errorf("import cancelled: %w", err)
	}

	res := &Result{RunID: runID}
	for i, out := range outcomes {
		if out.skip != "" {
			skip := Skip{Line: req.Table.Rows[i].Line, Reason: out.skip}
			res.Skips = append(res.Skips, skip)
			im.logger.WithFields(logrus.Fields{
				"run_id": runID,
				"line":   skip.Line,
				"reason": skip.Reason,
			}).Debug("import.row_skipped")
			continue
		}
		res.Records = append(res.Records, out.txn)
	}
	res.Skipped = len(res.Skips)

	if len(res.Records) > 0 {
		endUpsert := logData.AddTiming("upsert_ms")
		err := im.gateway.Upsert(ctx, model.Scope{AccountID: req.Account.ID, Source: req.Source}, res.Records)
		endUpsert()
		if err != nil {
			logData.Log().WithError(err).Error("import.upsert_failed")
			return nil, &PersistenceError{Err: err}
		}
	}
	res.Imported = len(res.Records)

	logData.AddData("imported", res.Imported)
	logData.AddData("skipped", res.Skipped)
	logData.Log().Info("import.complete")
	return res, nil
}

func (req Request) validate() error {
	if strings.TrimSpace(req.Account.ID) == "" {
		return invalid("missing account")
	}
	if strings.TrimSpace(req.Account.OrganizationID) == "" {
		return invalid(fmt.Sprintf("account %s has no organization", req.Account.ID))
	}
	if strings.TrimSpace(req.Source) == "" {
		return invalid("missing source tag")
	}
	if req.Table == nil {
		return invalid("CSV is empty")
	}
	return nil
}

func (im *Importer) processRows(ctx context.Context, req Request, cols Columns, set *rules.Set, importedAt time.Time) ([]rowOutcome, error) {
	rows := req.Table.Rows
	outcomes := make([]rowOutcome, len(rows))

	if im.workers < 2 {
		for i, row := range rows {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			outcomes[i] = processRow(row, cols, req, set, importedAt)
		}
		return outcomes, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.workers)
	for i, row := range rows {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = processRow(row, cols, req, set, importedAt)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func processRow(row RawRow, cols Columns, req Request, set *rules.Set, importedAt time.Time) rowOutcome {
	draft, skip := Normalize(row, cols, req.Source)
	if skip != "" {
		return rowOutcome{skip: skip}
	}

	applied := set.Apply(rules.Input{
		AccountID:             req.Account.ID,
		AccountName:           req.Account.Name,
		NormalizedDescription: draft.NormalizedDescription,
		Amount:                draft.Amount,
		Direction:             ClassifyDirection(draft.RawAmount, draft.NormalizedDescription),
	})

	return rowOutcome{txn: model.Transaction{
		AccountID:             req.Account.ID,
		Source:                req.Source,
		ExternalID:            draft.ExternalID,
		Date:                  draft.Date,
		Description:           draft.Description,
		NormalizedDescription: draft.NormalizedDescription,
		RawAmount:             draft.RawAmount,
		Amount:                draft.Amount,
		Direction:             applied.Direction,
		Merchant:              applied.Merchant,
		Category:              applied.Category,
		RuleIDApplied:         applied.RuleID,
		ImportedAt:            importedAt,
		Raw: model.RawMeta{
			CSVCategory: draft.CSVCategory,
			CSVRow:      draft.Cells,
		},
	}}
}

// Preview is a Gateway that accepts every batch and writes nothing.
type Preview struct{}

// Upsert discards the batch.
func (Preview) Upsert(context.Context, model.Scope, []model.Transaction) error { return nil }
