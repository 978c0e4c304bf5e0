// Package xlsx keeps tables in a local workbook, one worksheet per table.
package xlsx

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/xuri/excelize/v2"

	"payadvice/internal"
)

type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) open() (*excelize.File, error) {
	f, err := excelize.OpenFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return excelize.NewFile(), nil
	}
	return f, err
}

func (s *Store) save(f *excelize.File) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return f.SaveAs(s.path)
}

func ensureSheet(f *excelize.File, name string) error {
	idx, err := f.GetSheetIndex(name)
	if err != nil {
		return err
	}
	if idx >= 0 {
		return nil
	}
	// A fresh workbook carries an unused default sheet; rename it instead of
	// leaving an empty tab behind.
	if sheets := f.GetSheetList(); len(sheets) == 1 {
		if rows, _ := f.GetRows(sheets[0]); len(rows) == 0 && sheets[0] == "Sheet1" {
			return f.SetSheetName(sheets[0], name)
		}
	}
	_, err = f.NewSheet(name)
	return err
}

func (s *Store) ReadRange(_ context.Context, ref internal.TableRef) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	idx, err := f.GetSheetIndex(ref.SheetName())
	if err != nil {
		return nil, err
	}
	if idx < 0 {
		return nil, nil
	}
	return f.GetRows(ref.SheetName())
}

func (s *Store) WriteHeader(_ context.Context, ref internal.TableRef, columns []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open()
	if err != nil {
		return err
	}
	defer f.Close()

	sheet := ref.SheetName()
	if err := ensureSheet(f, sheet); err != nil {
		return err
	}

	if rows, err := f.GetRows(sheet); err == nil && len(rows) > 0 {
		if err := f.RemoveRow(sheet, 1); err != nil {
			return err
		}
		if err := f.InsertRows(sheet, 1, 1); err != nil {
			return err
		}
	}
	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	return s.save(f)
}

func (s *Store) AppendRows(_ context.Context, ref internal.TableRef, rows [][]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open()
	if err != nil {
		return err
	}
	defer f.Close()

	sheet := ref.SheetName()
	if err := ensureSheet(f, sheet); err != nil {
		return err
	}
	existing, err := f.GetRows(sheet)
	if err != nil {
		return err
	}

	next := len(existing) + 1
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, next+i)
		values := row
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	return s.save(f)
}
