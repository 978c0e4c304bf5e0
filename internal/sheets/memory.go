package sheets

import (
	"context"
	"fmt"
	"sync"

	"payadvice/internal"
)

// Memory is an in-process TableStore. Cells are stored as the strings a
// spreadsheet would hand back.
type Memory struct {
	// FailAppends makes the next n AppendRows calls fail.
	FailAppends int

	mu      sync.Mutex
	tables  map[string][][]string
	appends int
}

func NewMemory() *Memory {
	return &Memory{tables: map[string][][]string{}}
}

func key(ref internal.TableRef) string {
	return ref.SpreadsheetID + "/" + ref.SheetName()
}

func (m *Memory) ReadRange(_ context.Context, ref internal.TableRef) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.tables[key(ref)]
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out, nil
}

func (m *Memory) WriteHeader(_ context.Context, ref internal.TableRef, columns []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(ref)
	header := append([]string(nil), columns...)
	if len(m.tables[k]) == 0 {
		m.tables[k] = [][]string{header}
		return nil
	}
	m.tables[k][0] = header
	return nil
}

func (m *Memory) AppendRows(_ context.Context, ref internal.TableRef, rows [][]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appends++
	if m.FailAppends > 0 {
		m.FailAppends--
		return fmt.Errorf("append %s: service unavailable", ref.Range)
	}
	k := key(ref)
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprint(v)
		}
		m.tables[k] = append(m.tables[k], cells)
	}
	return nil
}

// Rows returns the data rows below the header.
func (m *Memory) Rows(ref internal.TableRef) [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.tables[key(ref)]
	if len(rows) <= 1 {
		return nil
	}
	return rows[1:]
}

// AppendCalls counts AppendRows calls including failed ones.
func (m *Memory) AppendCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appends
}
