package sheets

import (
	"context"
	"fmt"
	"strings"

	"payadvice/internal"
	"payadvice/internal/logger"
	"payadvice/internal/retry"
)

// TableStore is a spreadsheet-like store whose first row is the header.
type TableStore interface {
	ReadRange(ctx context.Context, ref internal.TableRef) ([][]string, error)
	WriteHeader(ctx context.Context, ref internal.TableRef, columns []string) error
	AppendRows(ctx context.Context, ref internal.TableRef, rows [][]any) error
}

// HeaderSpec is the column set a table must carry. Deprecated maps an old
// column to the column that replaced it.
type HeaderSpec struct {
	Required   []string
	KeyColumn  string
	Deprecated map[string]string
}

type Sink struct {
	store  TableStore
	table  internal.TableRef
	policy retry.Policy
}

func NewSink(store TableStore, table internal.TableRef, policy retry.Policy) *Sink {
	return &Sink{store: store, table: table, policy: policy}
}

func (s *Sink) Table() internal.TableRef { return s.table }

func (s *Sink) header(ctx context.Context) ([]string, [][]string, error) {
	rows, err := s.store.ReadRange(ctx, s.table)
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, nil
	}
	header := make([]string, 0, len(rows[0]))
	for _, cell := range rows[0] {
		header = append(header, strings.TrimSpace(cell))
	}
	for len(header) > 0 && header[len(header)-1] == "" {
		header = header[:len(header)-1]
	}
	return header, rows[1:], nil
}

// ReconcileHeader makes the stored header carry every required column,
// drops deprecated columns whose replacement is present and removes
// duplicates. It rewrites the header only when something changed, so
// applying it twice is the same as applying it once.
func (s *Sink) ReconcileHeader(ctx context.Context, spec HeaderSpec) ([]string, error) {
	log := logger.FromContext(ctx)

	current, _, err := s.header(ctx)
	if err != nil {
		return nil, fmt.Errorf("read header %s: %w", s.table.Range, err)
	}
	if len(current) == 0 {
		header := ReconcileColumns(nil, spec)
		if err := s.store.WriteHeader(ctx, s.table, header); err != nil {
			return nil, fmt.Errorf("write header %s: %w", s.table.Range, err)
		}
		log.Info().Str("table", s.table.SheetName()).Msg("created header")
		return header, nil
	}

	next := ReconcileColumns(current, spec)
	if equal(current, next) {
		return current, nil
	}
	if err := s.store.WriteHeader(ctx, s.table, next); err != nil {
		return nil, fmt.Errorf("write header %s: %w", s.table.Range, err)
	}
	log.Info().Strs("from", current).Strs("to", next).Str("table", s.table.SheetName()).Msg("migrated header")
	return next, nil
}

// ReconcileColumns is the pure part of ReconcileHeader.
func ReconcileColumns(current []string, spec HeaderSpec) []string {
	next := Dedupe(current)
	present := map[string]bool{}
	for _, c := range next {
		present[c] = true
	}

	required := append([]string{}, spec.Required...)
	if spec.KeyColumn != "" {
		required = append(required, spec.KeyColumn)
	}
	for _, c := range required {
		if c != "" && !present[c] {
			next = append(next, c)
			present[c] = true
		}
	}

	out := next[:0:0]
	for _, c := range next {
		if replacement, ok := spec.Deprecated[c]; ok && present[replacement] {
			continue
		}
		out = append(out, c)
	}
	return out
}

// ExistingKeys returns the non-empty values of keyColumn below the header.
func (s *Sink) ExistingKeys(ctx context.Context, keyColumn string) (map[string]struct{}, error) {
	header, rows, err := s.header(ctx)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.table.Range, err)
	}
	keys := map[string]struct{}{}
	idx := indexOf(header, keyColumn)
	if idx < 0 {
		return keys, nil
	}
	for _, row := range rows {
		if idx >= len(row) {
			continue
		}
		if v := strings.TrimSpace(row[idx]); v != "" {
			keys[v] = struct{}{}
		}
	}
	return keys, nil
}

// Append lays each record out against header and appends them in one call,
// retrying per the sink's policy.
func (s *Sink) Append(ctx context.Context, header []string, records []internal.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, Layout(header, rec))
	}
	err := s.policy.Do(ctx, "append "+s.table.SheetName(), func(ctx context.Context) error {
		return s.store.AppendRows(ctx, s.table, rows)
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Layout renders rec as a positional row aligned to header; missing fields
// are empty strings.
func Layout(header []string, rec internal.Record) []any {
	values := rec.Values()
	row := make([]any, len(header))
	for i, col := range header {
		v, ok := values[col]
		if !ok || v == nil {
			row[i] = ""
			continue
		}
		row[i] = v
	}
	return row
}

func Dedupe(columns []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func indexOf(columns []string, name string) int {
	for i, c := range columns {
		if c == name {
			return i
		}
	}
	return -1
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
