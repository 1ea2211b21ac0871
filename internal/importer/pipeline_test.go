package importer

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/tally/internal/model"
)

// memGateway keys rows by (account, source, external id) like a real store.
type memGateway struct {
	mu    sync.Mutex
	rows  map[string]model.Transaction
	calls int
	err   error
}

func newMemGateway() *memGateway {
	return &memGateway{rows: make(map[string]model.Transaction)}
}

func (g *memGateway) Upsert(_ context.Context, scope model.Scope, batch []model.Transaction) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return g.err
	}
	for _, txn := range batch {
		g.rows[scope.AccountID+"|"+scope.Source+"|"+txn.ExternalID] = txn
	}
	return nil
}

var (
	checking = model.Account{ID: "acct-1", Name: "Business Checking", OrganizationID: "org-1"}
	fixedNow = time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC)
)

func newImporter(gw Gateway, opts ...Option) *Importer {
	logger, _ := test.NewNullLogger()
	return New(gw, logger, append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)...)
}

func decodeFile(t *testing.T, path string) *Table {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	table, err := (&CSVDecoder{}).Decode(f)
	require.NoError(t, err)
	return table
}

func starbucksRule() model.Rule {
	return model.Rule{
		ID:             "rule-sbux",
		OrganizationID: "org-1",
		Keywords:       []string{"starbucks"},
		Category:       model.Selected("cat-food"),
		Priority:       1,
		Active:         true,
	}
}

func TestImport_Scenario(t *testing.T) {
	gw := newMemGateway()
	im := newImporter(gw)

	res, err := im.Import(context.Background(), Request{
		Account: checking,
		Source:  "csv",
		Table:   decodeFile(t, "testdata/scenario.csv"),
		Rules:   []model.Rule{starbucksRule()},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)
	assert.Equal(t, 0, res.Skipped)
	assert.NotEmpty(t, res.RunID)
	require.Len(t, res.Records, 3)

	sbux := res.Records[0]
	assert.Equal(t, "7.85", sbux.Amount.StringFixed(2))
	assert.Equal(t, model.DirectionExpense, sbux.Direction)
	assert.Equal(t, model.Selected("cat-food"), sbux.Category)
	assert.Equal(t, "rule-sbux", sbux.RuleIDApplied)
	assert.Equal(t, "Food & Drink", sbux.Raw.CSVCategory)
	assert.Equal(t, []string{"2025-11-01", "STARBUCKS #123", "Food & Drink", "-7.85"}, sbux.Raw.CSVRow)
	assert.Equal(t, fixedNow, sbux.ImportedAt)
	assert.Equal(t, "acct-1", sbux.AccountID)
	assert.Equal(t, "csv", sbux.Source)

	client := res.Records[1]
	assert.Equal(t, "250.00", client.Amount.StringFixed(2))
	assert.Equal(t, model.DirectionIncome, client.Direction)
	assert.True(t, client.Category.IsZero())
	assert.Empty(t, client.RuleIDApplied)

	zelle := res.Records[2]
	assert.Equal(t, "100.00", zelle.Amount.StringFixed(2))
	assert.Equal(t, model.DirectionTransfer, zelle.Direction)
	assert.True(t, zelle.Category.IsZero())

	assert.Equal(t, 1, gw.calls)
	assert.Len(t, gw.rows, 3)
}

func TestImport_SkipAccounting(t *testing.T) {
	data := strings.Join([]string{
		"Date,Description,Amount",
		"2025-01-01,coffee,-3.00",
		"2025-01-02,zero row,0",
		"2025-01-03,,-9.00",
		"2025-01-04,lunch,-12.50",
		"2025-01-05,invoice,900",
	}, "\n")

	im := newImporter(newMemGateway())
	res, err := im.ImportReader(context.Background(), &CSVDecoder{}, strings.NewReader(data), Request{
		Account: checking,
		Source:  "csv",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, []Skip{
		{Line: 3, Reason: SkipZeroAmount},
		{Line: 4, Reason: SkipMissingDescription},
	}, res.Skips)
}

func TestImport_MalformedRowsAreCounted(t *testing.T) {
	data := strings.Join([]string{
		"Date,Description,Amount",
		`2025-11-01,"BIG SALE,-7.85`,
		"2025-11-02,coffee,-3.00",
		"2025-11-03,huge,1e50000000",
		`2025-11-04,"LUNCH, DOWNTOWN",-12.50`,
		"2025-11-05,invoice,900",
	}, "\n")

	gw := newMemGateway()
	res, err := newImporter(gw).ImportReader(context.Background(), &CSVDecoder{}, strings.NewReader(data), Request{
		Account: checking,
		Source:  "csv",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, []Skip{
		{Line: 2, Reason: SkipBadAmount},
		{Line: 4, Reason: SkipBadAmount},
	}, res.Skips)
	assert.Len(t, gw.rows, 3)
}

func TestImport_BankExport(t *testing.T) {
	im := newImporter(newMemGateway())
	res, err := im.Import(context.Background(), Request{
		Account: checking,
		Source:  "csv",
		Table:   decodeFile(t, "testdata/bank_export.csv"),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Imported)
	assert.Equal(t, 2, res.Skipped)

	byDesc := make(map[string]model.Transaction)
	for _, r := range res.Records {
		byDesc[r.NormalizedDescription] = r
	}
	assert.Equal(t, "1250.1", byDesc["aws marketplace"].Amount.String())
	assert.Equal(t, model.DirectionExpense, byDesc["aws marketplace"].Direction)
	assert.Equal(t, "3500", byDesc["acme consulting invoice 1042"].Amount.String())
	assert.Equal(t, model.DirectionIncome, byDesc["acme consulting invoice 1042"].Direction)
	assert.Equal(t, model.DirectionRefund, byDesc["amazon refund"].Direction)
}

func TestImport_Idempotent(t *testing.T) {
	gw := newMemGateway()
	im := newImporter(gw)
	req := Request{Account: checking, Source: "csv", Table: decodeFile(t, "testdata/scenario.csv")}

	first, err := im.Import(context.Background(), req)
	require.NoError(t, err)
	second, err := im.Import(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Imported, second.Imported)
	assert.Len(t, gw.rows, 3, "second run updates in place")
	for i := range first.Records {
		assert.Equal(t, first.Records[i].ExternalID, second.Records[i].ExternalID)
	}
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestImport_RulePriority(t *testing.T) {
	r1 := model.Rule{ID: "r1", Priority: 10, Active: true, Category: model.Selected("cat-a")}
	r2 := model.Rule{ID: "r2", Priority: 5, Active: true, Category: model.Selected("cat-b"), DirectionHint: model.DirectionExpense}

	im := newImporter(newMemGateway())
	res, err := im.Import(context.Background(), Request{
		Account: checking,
		Source:  "csv",
		Table:   decodeFile(t, "testdata/scenario.csv"),
		Rules:   []model.Rule{r1, r2},
	})
	require.NoError(t, err)
	for _, r := range res.Records {
		assert.Equal(t, "r2", r.RuleIDApplied)
		assert.Equal(t, model.Selected("cat-b"), r.Category)
		assert.Equal(t, model.DirectionExpense, r.Direction)
	}
}

func TestImport_InvalidRegexIsLoggedNotFatal(t *testing.T) {
	logger, hook := test.NewNullLogger()
	bad := model.Rule{ID: "bad", Regex: "([", Priority: 1, Active: true, Category: model.Selected("cat-bad")}

	im := New(newMemGateway(), logger)
	res, err := im.Import(context.Background(), Request{
		Account: checking,
		Source:  "csv",
		Table:   decodeFile(t, "testdata/scenario.csv"),
		Rules:   []model.Rule{bad, starbucksRule()},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)
	assert.Equal(t, "rule-sbux", res.Records[0].RuleIDApplied)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "import.rule_regex_invalid" {
			warned = true
			assert.Equal(t, "bad", e.Data["rule"])
		}
	}
	assert.True(t, warned)
}

func TestImport_AccountScopedRule(t *testing.T) {
	other := starbucksRule()
	other.Account = model.Selected("acct-2")
	byName := model.Rule{ID: "by-name", Priority: 2, Active: true, Account: model.FreeText("business checking"), Category: model.FreeText("Coffee")}

	im := newImporter(newMemGateway())
	res, err := im.Import(context.Background(), Request{
		Account: checking,
		Source:  "csv",
		Table:   decodeFile(t, "testdata/scenario.csv"),
		Rules:   []model.Rule{other, byName},
	})
	require.NoError(t, err)
	assert.Equal(t, "by-name", res.Records[0].RuleIDApplied)
	assert.Equal(t, model.FreeText("Coffee"), res.Records[0].Category)
}

func TestImport_Validation(t *testing.T) {
	table := decodeFile(t, "testdata/scenario.csv")
	tests := []struct {
		name    string
		req     Request
		wantErr string
	}{
		{"no account", Request{Source: "csv", Table: table}, "missing account"},
		{"no organization", Request{Account: model.Account{ID: "acct-9"}, Source: "csv", Table: table}, "account acct-9 has no organization"},
		{"no source", Request{Account: checking, Table: table}, "missing source tag"},
		{"no table", Request{Account: checking, Source: "csv"}, "CSV is empty"},
		{"missing headers", Request{Account: checking, Source: "csv", Table: NewTable([]string{"when", "what"}, [][]string{{"a", "b"}})}, "CSV must include Date, Description, Amount headers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newMemGateway()
			_, err := newImporter(gw).Import(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Zero(t, gw.calls, "nothing written")
		})
	}
}

func TestImport_AllRowsSkippedDoesNotCallGateway(t *testing.T) {
	gw := newMemGateway()
	table := NewTable([]string{"Date", "Description", "Amount"}, [][]string{{"2025-01-01", "x", "0"}})

	res, err := newImporter(gw).Import(context.Background(), Request{Account: checking, Source: "csv", Table: table})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Imported)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, gw.calls)
}

func TestImport_PersistenceError(t *testing.T) {
	gw := newMemGateway()
	gw.err = errors.New("connection refused")

	res, err := newImporter(gw).Import(context.Background(), Request{
		Account: checking,
		Source:  "csv",
		Table:   decodeFile(t, "testdata/scenario.csv"),
	})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, "connection refused", err.Error())

	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
}

func TestImport_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gw := newMemGateway()
	_, err := newImporter(gw).Import(ctx, Request{
		Account: checking,
		Source:  "csv",
		Table:   decodeFile(t, "testdata/scenario.csv"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, gw.calls)
}

func TestImport_WorkersPreserveOrder(t *testing.T) {
	var rows [][]string
	for i := 1; i <= 200; i++ {
		day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
		rows = append(rows, []string{day.Format("2006-01-02"), "starbucks", "-" + day.Format("2")})
	}
	table := NewTable([]string{"Date", "Description", "Amount"}, rows)
	req := Request{Account: checking, Source: "csv", Table: table, Rules: []model.Rule{starbucksRule()}}

	seq, err := newImporter(newMemGateway()).Import(context.Background(), req)
	require.NoError(t, err)
	par, err := newImporter(newMemGateway(), WithWorkers(8)).Import(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, seq.Imported, par.Imported)
	for i := range seq.Records {
		assert.Equal(t, seq.Records[i].ExternalID, par.Records[i].ExternalID)
		assert.Equal(t, "rule-sbux", par.Records[i].RuleIDApplied)
	}
}

func TestPreview_WritesNothing(t *testing.T) {
	im := New(Preview{}, nil)
	res, err := im.Import(context.Background(), Request{
		Account: checking,
		Source:  "csv",
		Table:   decodeFile(t, "testdata/scenario.csv"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)
}
