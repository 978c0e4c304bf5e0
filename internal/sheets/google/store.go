package google

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"payadvice/internal"
)

type Store struct {
	service *sheets.Service
}

func NewStore(ctx context.Context, opts ...option.ClientOption) (*Store, error) {
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Store{service: svc}, nil
}

func (s *Store) ReadRange(ctx context.Context, ref internal.TableRef) ([][]string, error) {
	resp, err := s.service.Spreadsheets.Values.Get(ref.SpreadsheetID, ref.Range).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	out := make([][]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprint(v)
		}
		out = append(out, cells)
	}
	return out, nil
}

// WriteHeader clears the first row and writes columns from A1.
func (s *Store) WriteHeader(ctx context.Context, ref internal.TableRef, columns []string) error {
	sheet := QuoteSheet(ref.SheetName())
	if _, err := s.service.Spreadsheets.Values.Clear(ref.SpreadsheetID, sheet+"!1:1", &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear header: %w", err)
	}
	if len(columns) == 0 {
		return nil
	}
	lastCol, err := excelize.ColumnNumberToName(len(columns))
	if err != nil {
		return err
	}
	row := make([]any, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	_, err = s.service.Spreadsheets.Values.
		Update(ref.SpreadsheetID, fmt.Sprintf("%s!A1:%s1", sheet, lastCol), &sheets.ValueRange{Values: [][]any{row}}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

func (s *Store) AppendRows(ctx context.Context, ref internal.TableRef, rows [][]any) error {
	_, err := s.service.Spreadsheets.Values.
		Append(ref.SpreadsheetID, ref.Range, &sheets.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

// QuoteSheet quotes a sheet name for A1 notation when it needs it.
func QuoteSheet(name string) string {
	if name == "" || strings.IndexFunc(name, func(r rune) bool {
		return !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	}) < 0 {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
