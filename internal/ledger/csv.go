package ledger

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/tally/internal/model"
)

// Header is the CSV header of a ledger file.
const Header = "external_id,source,date,description,normalized_description,raw_amount,amount,direction,merchant,category,rule_id,csv_category,csv_row,imported_at"

const (
	numFields   = 14
	colExtID    = 0
	colSource   = 1
	colDate     = 2
	colDesc     = 3
	colNormDesc = 4
	colRaw      = 5
	colAmount   = 6
	colDir      = 7
	colMerchant = 8
	colCategory = 9
	colRule     = 10
	colCSVCat   = 11
	colCSVRow   = 12
	colImported = 13
)

// ReadRecords reads every row of a ledger file. accountID is stamped on each
// record since the file itself is per account.
func ReadRecords(r io.Reader, accountID string) ([]model.Transaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading ledger CSV: %w", err)
	}

	if len(records) == 0 {
		return nil, nil
	}

	var txns []model.Transaction
	for i, rec := range records[1:] {
		txn, err := UnmarshalRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		txn.AccountID = accountID
		txns = append(txns, txn)
	}
	return txns, nil
}

// WriteRecords writes a full ledger file including the header.
func WriteRecords(w io.Writer, txns []model.Transaction) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, txn := range txns {
		if err := cw.Write(MarshalRecord(txn)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalRecord converts a Transaction to a ledger row.
func MarshalRecord(txn model.Transaction) []string {
	row := make([]string, numFields)
	row[colExtID] = txn.ExternalID
	row[colSource] = txn.Source
	row[colDate] = txn.Date
	row[colDesc] = txn.Description
	row[colNormDesc] = txn.NormalizedDescription
	row[colRaw] = formatAmount(txn.RawAmount)
	row[colAmount] = formatAmount(txn.Amount)
	row[colDir] = string(txn.Direction)
	row[colMerchant] = txn.Merchant
	row[colCategory] = txn.Category.String()
	row[colRule] = txn.RuleIDApplied
	row[colCSVCat] = txn.Raw.CSVCategory
	if len(txn.Raw.CSVRow) > 0 {
		// Marshaling a []string cannot fail.
		b, _ := json.Marshal(txn.Raw.CSVRow)
		row[colCSVRow] = string(b)
	}
	if !txn.ImportedAt.IsZero() {
		row[colImported] = txn.ImportedAt.UTC().Format(time.RFC3339)
	}
	return row
}

// UnmarshalRecord converts a ledger row to a Transaction.
func UnmarshalRecord(record []string) (model.Transaction, error) {
	if len(record) != numFields {
		return model.Transaction{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	raw, err := decimal.NewFromString(record[colRaw])
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parsing raw_amount %q: %w", record[colRaw], err)
	}
	amount, err := decimal.NewFromString(record[colAmount])
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parsing amount %q: %w", record[colAmount], err)
	}
	dir, err := model.ParseDirection(record[colDir])
	if err != nil {
		return model.Transaction{}, err
	}
	category, err := model.ParseRef(record[colCategory])
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parsing category: %w", err)
	}

	var csvRow []string
	if record[colCSVRow] != "" {
		if err := json.Unmarshal([]byte(record[colCSVRow]), &csvRow); err != nil {
			return model.Transaction{}, fmt.Errorf("parsing csv_row: %w", err)
		}
	}

	var importedAt time.Time
	if record[colImported] != "" {
		importedAt, err = time.Parse(time.RFC3339, record[colImported])
		if err != nil {
			return model.Transaction{}, fmt.Errorf("parsing imported_at %q: %w", record[colImported], err)
		}
	}

	return model.Transaction{
		Source:                record[colSource],
		ExternalID:            record[colExtID],
		Date:                  record[colDate],
		Description:           record[colDesc],
		NormalizedDescription: record[colNormDesc],
		RawAmount:             raw,
		Amount:                amount,
		Direction:             dir,
		Merchant:              record[colMerchant],
		Category:              category,
		RuleIDApplied:         record[colRule],
		ImportedAt:            importedAt,
		Raw:                   model.RawMeta{CSVCategory: record[colCSVCat], CSVRow: csvRow},
	}, nil
}

// formatAmount keeps two places for cent amounts and never drops precision.
func formatAmount(d decimal.Decimal) string {
	if d.Exponent() >= -2 {
		return d.StringFixed(2)
	}
	return d.String()
}
