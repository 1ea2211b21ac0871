package sheets

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/cleared-dev/tally/internal/importer"
)

// Source is the source tag for rows pulled from a spreadsheet.
const Source = "sheets"

// ValuesReader reads a range of cell values from a spreadsheet.
type ValuesReader interface {
	ReadValues(ctx context.Context, spreadsheetID, readRange string) ([][]interface{}, error)
}

// Client is the ValuesReader backed by the Google Sheets API.
type Client struct {
	svc *sheets.Service
}

// NewClient builds a read-only Sheets client. An empty credentialsFile uses
// application default credentials.
func NewClient(ctx context.Context, credentialsFile string) (*Client, error) {
	opts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsReadonlyScope)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// ReadValues returns the formatted values of readRange.
func (c *Client) ReadValues(ctx context.Context, spreadsheetID, readRange string) ([][]interface{}, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(spreadsheetID, readRange).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("ReadValues: %w", err)
	}
	return resp.Values, nil
}

// FetchTable reads a range and converts it to an importer table. The first
// row of the range is the header.
func FetchTable(ctx context.Context, r ValuesReader, spreadsheetID, readRange string) (*importer.Table, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("missing spreadsheet id")
	}
	values, err := r.ReadValues(ctx, spreadsheetID, readRange)
	if err != nil {
		return nil, err
	}
	return ToTable(values), nil
}

// ToTable converts sheet values to a Table. Line numbers are sheet row
// numbers relative to the start of the range.
func ToTable(values [][]interface{}) *importer.Table {
	if len(values) == 0 {
		return importer.NewTable(nil, nil)
	}
	rows := make([][]string, 0, len(values)-1)
	for _, v := range values[1:] {
		rows = append(rows, cells(v))
	}
	return importer.NewTable(cells(values[0]), rows)
}

func cells(row []interface{}) []string {
	out := make([]string, len(row))
	for i, v := range row {
		if v == nil {
			continue
		}
		out[i] = fmt.Sprint(v)
	}
	return out
}
