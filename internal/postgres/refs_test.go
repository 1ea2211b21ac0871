package postgres

import (
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/tally/internal/model"
)

func TestRefColumns(t *testing.T) {
	for _, ref := range []model.Ref{{}, model.Selected("cat-food"), model.FreeText("Coffee")} {
		id, other := refColumns(ref)
		assert.Equal(t, ref, refFromColumns(id, other), "ref %q", ref)
	}

	id, other := refColumns(model.Selected("cat-food"))
	assert.Equal(t, sql.NullString{String: "cat-food", Valid: true}, id)
	assert.False(t, other.Valid)
}

func TestRefFromColumns_IDWins(t *testing.T) {
	ref := refFromColumns(
		sql.NullString{String: "cat-1", Valid: true},
		sql.NullString{String: "Other", Valid: true},
	)
	assert.Equal(t, model.Selected("cat-1"), ref)
}

func TestTransactionArgs(t *testing.T) {
	txn := model.Transaction{
		AccountID:  "checking",
		Source:     "csv",
		ExternalID: "abc",
		Amount:     decimal.RequireFromString("7.85"),
		Direction:  model.DirectionExpense,
		Category:   model.FreeText("Coffee"),
		Raw:        model.RawMeta{CSVRow: []string{"2025-11-01", "STARBUCKS", "-7.85"}},
	}
	args, err := transactionArgs(txn)
	require.NoError(t, err)
	require.Len(t, args, 16)
	assert.Equal(t, "expense", args[8])
	assert.False(t, args[10].(sql.NullString).Valid)
	assert.Equal(t, "Coffee", args[11].(sql.NullString).String)
	assert.Equal(t, `["2025-11-01","STARBUCKS","-7.85"]`, args[14])

	txn.Raw.CSVRow = nil
	args, err = transactionArgs(txn)
	require.NoError(t, err)
	assert.Nil(t, args[14])
}

func TestNullDecimal(t *testing.T) {
	assert.False(t, nullDecimal(nil).Valid)
	d := decimal.RequireFromString("10")
	assert.True(t, nullDecimal(&d).Valid)
}

func TestDirectionHint(t *testing.T) {
	tests := []struct {
		col     sql.NullString
		want    model.Direction
		wantErr bool
	}{
		{sql.NullString{}, "", false},
		{sql.NullString{String: "", Valid: true}, "", false},
		{sql.NullString{String: "transfer", Valid: true}, model.DirectionTransfer, false},
		{sql.NullString{String: "sideways", Valid: true}, "", true},
	}
	for _, tt := range tests {
		got, err := directionHint(tt.col)
		if tt.wantErr {
			assert.Error(t, err, "hint %q", tt.col.String)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
