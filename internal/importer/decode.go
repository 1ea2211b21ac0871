package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Logical column names looked up in the header row.
const (
	ColumnDate        = "date"
	ColumnDescription = "description"
	ColumnAmount      = "amount"
	ColumnCategory    = "category"
)

// Table is a decoded export: a lower-cased header and its data rows.
type Table struct {
	Header []string
	Rows   []RawRow
}

// RawRow is one data row. Line is the 1-based line in the source.
type RawRow struct {
	Line  int
	Cells []string
}

// Columns holds header positions of the logical columns; -1 = absent.
type Columns struct {
	Date        int
	Description int
	Amount      int
	Category    int
}

// NewTable builds a Table from a header and data rows. Rows whose cells are
// all blank are dropped. Line numbers assume the header is line 1.
func NewTable(header []string, rows [][]string) *Table {
	t := &Table{Header: make([]string, len(header))}
	for i, h := range header {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		t.Header[i] = strings.ToLower(h)
	}
	for i, cells := range rows {
		if blank(cells) {
			continue
		}
		t.Rows = append(t.Rows, RawRow{Line: i + 2, Cells: cells})
	}
	return t
}

// Index returns the first header containing name (case-insensitive), or -1.
// A header "Transaction Date" matches "date".
func (t *Table) Index(name string) int {
	name = strings.ToLower(name)
	for i, h := range t.Header {
		if strings.Contains(h, name) {
			return i
		}
	}
	return -1
}

// Columns resolves the logical columns. It fails when a required column is
// missing or there are no data rows.
func (t *Table) Columns() (Columns, error) {
	if t == nil || len(t.Header) == 0 {
		return Columns{}, invalid("CSV is empty")
	}
	cols := Columns{
		Date:        t.Index(ColumnDate),
		Description: t.Index(ColumnDescription),
		Amount:      t.Index(ColumnAmount),
		Category:    t.Index(ColumnCategory),
	}
	var missing []string
	if cols.Date < 0 {
		missing = append(missing, "Date")
	}
	if cols.Description < 0 {
		missing = append(missing, "Description")
	}
	if cols.Amount < 0 {
		missing = append(missing, "Amount")
	}
	if len(missing) > 0 {
		return Columns{}, invalid(fmt.Sprintf("CSV must include Date, Description, Amount headers (missing %s)", strings.Join(missing, ", ")))
	}
	if len(t.Rows) == 0 {
		return Columns{}, invalid("CSV has no data rows")
	}
	return cols, nil
}

// Cell returns the trimmed cell at i, or "" when the row is short or i < 0.
func (r RawRow) Cell(i int) string {
	if i < 0 || i >= len(r.Cells) {
		return ""
	}
	return strings.TrimSpace(r.Cells[i])
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// CSVDecoder is the canonical decoder. Lines are split on CR/LF first, then
// each line is parsed on its own so double-quoted fields may hold commas and
// escaped quotes. A malformed line only affects its own row.
type CSVDecoder struct{}

// Format returns the decoder name.
func (d *CSVDecoder) Format() string { return "csv" }

// Decode reads the whole export.
func (d *CSVDecoder) Decode(r io.Reader) (*Table, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, err
	}

	var t *Table
	for _, l := range lines {
		cells := splitQuoted(l.text)
		if t == nil {
			t = NewTable(cells, nil)
			continue
		}
		if blank(cells) {
			continue
		}
		t.Rows = append(t.Rows, RawRow{Line: l.number, Cells: cells})
	}
	if t == nil {
		return nil, invalid("CSV is empty")
	}
	return t, nil
}

// splitQuoted parses one line as a CSV record. A line the reader rejects is
// kept as a single cell so the row is skipped downstream instead of lost.
func splitQuoted(text string) []string {
	cr := csv.NewReader(strings.NewReader(text))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	rec, err := cr.Read()
	if err != nil {
		return []string{text}
	}
	return rec
}

type textLine struct {
	number int
	text   string
}

// readLines splits r on CRLF, LF or CR and drops blank lines. Numbers are
// physical, 1-based.
func readLines(r io.Reader) ([]textLine, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	text := strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(string(data))

	var lines []textLine
	for i, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, textLine{number: i + 1, text: l})
	}
	return lines, nil
}

// SimpleDecoder splits lines on CR/LF and cells on every comma. It does not
// understand quoting and exists for plain exports that never quote.
type SimpleDecoder struct{}

// Format returns the decoder name.
func (d *SimpleDecoder) Format() string { return "simple" }

// Decode reads the whole export.
func (d *SimpleDecoder) Decode(r io.Reader) (*Table, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, err
	}

	var t *Table
	for _, l := range lines {
		cells := strings.Split(l.text, ",")
		if t == nil {
			t = NewTable(cells, nil)
			continue
		}
		if blank(cells) {
			continue
		}
		t.Rows = append(t.Rows, RawRow{Line: l.number, Cells: cells})
	}
	if t == nil {
		return nil, invalid("CSV is empty")
	}
	return t, nil
}
