package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/cleared-dev/tally/internal/model"
)

const upsertTransaction = `
INSERT INTO transactions (
    account_id, source, external_id, date, description, normalized_description,
    raw_amount, amount, direction, merchant, category_id, category_other,
    rule_id_applied, csv_category, raw_row, imported_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
ON CONFLICT (account_id, source, external_id) DO UPDATE SET
    date                   = EXCLUDED.date,
    description            = EXCLUDED.description,
    normalized_description = EXCLUDED.normalized_description,
    raw_amount             = EXCLUDED.raw_amount,
    amount                 = EXCLUDED.amount,
    direction              = EXCLUDED.direction,
    merchant               = EXCLUDED.merchant,
    category_id            = EXCLUDED.category_id,
    category_other         = EXCLUDED.category_other,
    rule_id_applied        = EXCLUDED.rule_id_applied,
    csv_category           = EXCLUDED.csv_category,
    raw_row                = EXCLUDED.raw_row,
    imported_at            = EXCLUDED.imported_at,
    updated_at             = now()`

// Gateway upserts import batches into the transactions table. One Gateway
// is built per process around a shared *sql.DB.
type Gateway struct {
	db *sql.DB
}

// NewGateway wraps an open database handle.
func NewGateway(db *sql.DB) *Gateway {
	return &Gateway{db: db}
}

// Upsert writes batch in a single transaction. Either every row lands or
// none does.
func (g *Gateway) Upsert(ctx context.Context, scope model.Scope, batch []model.Transaction) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertTransaction)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for i, txn := range batch {
		if txn.AccountID != scope.AccountID || txn.Source != scope.Source {
			return fmt.Errorf("record %d: outside scope %s/%s", i, scope.AccountID, scope.Source)
		}
		args, err := transactionArgs(txn)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("upserting %s: %w", txn.ExternalID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing upsert: %w", err)
	}
	return nil
}

// ListTransactions returns an account's rows ordered by date then insertion.
func (g *Gateway) ListTransactions(ctx context.Context, accountID string) ([]model.Transaction, error) {
	rows, err := g.db.QueryContext(ctx, `
SELECT account_id, source, external_id, date, description, normalized_description,
       raw_amount, amount, direction, merchant, category_id, category_other,
       rule_id_applied, csv_category, raw_row, imported_at
FROM transactions
WHERE account_id = $1
ORDER BY date, id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	var txns []model.Transaction
	for rows.Next() {
		var (
			txn                                       model.Transaction
			direction                                 string
			merchant, catID, catOther, ruleID, csvCat sql.NullString
			rawRow                                    []byte
		)
		if err := rows.Scan(
			&txn.AccountID, &txn.Source, &txn.ExternalID, &txn.Date, &txn.Description, &txn.NormalizedDescription,
			&txn.RawAmount, &txn.Amount, &direction, &merchant, &catID, &catOther,
			&ruleID, &csvCat, &rawRow, &txn.ImportedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		txn.Direction = model.Direction(direction)
		txn.Merchant = merchant.String
		txn.Category = refFromColumns(catID, catOther)
		txn.RuleIDApplied = ruleID.String
		txn.Raw.CSVCategory = csvCat.String
		if len(rawRow) > 0 {
			if err := json.Unmarshal(rawRow, &txn.Raw.CSVRow); err != nil {
				return nil, fmt.Errorf("decoding raw_row for %s: %w", txn.ExternalID, err)
			}
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

func transactionArgs(txn model.Transaction) ([]any, error) {
	var rawRow any
	if len(txn.Raw.CSVRow) > 0 {
		b, err := json.Marshal(txn.Raw.CSVRow)
		if err != nil {
			return nil, fmt.Errorf("encoding raw_row: %w", err)
		}
		rawRow = string(b)
	}
	catID, catOther := refColumns(txn.Category)
	return []any{
		txn.AccountID,
		txn.Source,
		txn.ExternalID,
		txn.Date,
		txn.Description,
		txn.NormalizedDescription,
		txn.RawAmount,
		txn.Amount,
		string(txn.Direction),
		nullString(txn.Merchant),
		catID,
		catOther,
		nullString(txn.RuleIDApplied),
		nullString(txn.Raw.CSVCategory),
		rawRow,
		txn.ImportedAt,
	}, nil
}
