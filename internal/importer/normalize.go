package importer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/tally/internal/id"
)

// Draft is a row after normalization and before classification.
type Draft struct {
	Line                  int
	Date                  string
	Description           string
	NormalizedDescription string
	CSVCategory           string
	RawAmount             decimal.Decimal
	Amount                decimal.Decimal
	ExternalID            string
	Cells                 []string
}

var (
	amountNoise = strings.NewReplacer("$", "", ",", "")
	plainAmount = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)
)

// ParseAmount strips currency symbols and thousands separators and parses
// the remainder as a signed decimal. Only plain decimal notation is
// accepted; exponents are rejected.
func ParseAmount(s string) (decimal.Decimal, error) {
	text := strings.TrimSpace(amountNoise.Replace(s))
	if !plainAmount.MatchString(text) {
		return decimal.Decimal{}, fmt.Errorf("amount %q is not a plain decimal", s)
	}
	return decimal.NewFromString(text)
}

// NormalizeDescription lower-cases s and collapses whitespace runs to a
// single space. It is idempotent.
func NormalizeDescription(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Normalize turns a raw row into a Draft. A non-empty SkipReason means the
// row is not a business transaction and must be counted, not imported.
func Normalize(row RawRow, cols Columns, source string) (Draft, SkipReason) {
	date := row.Cell(cols.Date)
	desc := row.Cell(cols.Description)
	if date == "" {
		return Draft{}, SkipMissingDate
	}
	if desc == "" {
		return Draft{}, SkipMissingDescription
	}

	raw, err := ParseAmount(row.Cell(cols.Amount))
	if err != nil {
		return Draft{}, SkipBadAmount
	}
	if raw.IsZero() {
		return Draft{}, SkipZeroAmount
	}

	amount := raw.Abs()
	norm := NormalizeDescription(desc)

	cells := make([]string, len(row.Cells))
	for i, c := range row.Cells {
		cells[i] = strings.TrimSpace(c)
	}

	return Draft{
		Line:                  row.Line,
		Date:                  date,
		Description:           desc,
		NormalizedDescription: norm,
		CSVCategory:           row.Cell(cols.Category),
		RawAmount:             raw,
		Amount:                amount,
		ExternalID:            id.ExternalID(date, amount, norm, source),
		Cells:                 cells,
	}, ""
}
