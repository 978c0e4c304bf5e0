package xlsx

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"

	"payadvice/internal"
	"payadvice/internal/retry"
	"payadvice/internal/sheets"
)

type row map[string]any

func (r row) Values() map[string]any { return r }

func TestStoreBacksSink(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out", "advice.xlsx")
	store := NewStore(path)
	ref := internal.TableRef{Range: "payment_advice!A:S"}
	sink := sheets.NewSink(store, ref, retry.Fixed(1, 0))

	spec := sheets.HeaderSpec{Required: []string{"utr_number", "bill_amount", "source_file_name"}, KeyColumn: "source_file_name"}
	header, err := sink.ReconcileHeader(ctx, spec)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sink.Append(ctx, header, []internal.Record{
		row{"utr_number": "UTR1", "bill_amount": 100.5, "source_file_name": "m1_a.pdf"},
		row{"utr_number": "UTR1", "source_file_name": "m1_a.pdf"},
	}); err != nil {
		t.Fatal(err)
	}

	keys, err := sink.ExistingKeys(ctx, "source_file_name")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := keys["m1_a.pdf"]; !ok || len(keys) != 1 {
		t.Fatalf("keys=%v", keys)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if got := f.GetSheetList(); !reflect.DeepEqual(got, []string{"payment_advice"}) {
		t.Fatalf("sheets=%v", got)
	}
	rows, _ := f.GetRows("payment_advice")
	if len(rows) != 3 || rows[1][1] != "100.5" {
		t.Fatalf("rows=%v", rows)
	}
}

func TestWriteHeaderShrinks(t *testing.T) {
	ctx := context.Background()
	store := NewStore(filepath.Join(t.TempDir(), "t.xlsx"))
	ref := internal.TableRef{Range: "logs"}

	if err := store.WriteHeader(ctx, ref, []string{"a", "source_file", "b"}); err != nil {
		t.Fatal(err)
	}
	if err := store.WriteHeader(ctx, ref, []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	rows, err := store.ReadRange(ctx, ref)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(rows[0], []string{"a", "b"}) {
		t.Fatalf("header=%v", rows[0])
	}
}

func TestReadRangeMissingWorkbook(t *testing.T) {
	rows, err := NewStore(filepath.Join(t.TempDir(), "none.xlsx")).ReadRange(context.Background(), internal.TableRef{Range: "x"})
	if err != nil || len(rows) != 0 {
		t.Fatalf("rows=%v err=%v", rows, err)
	}
}
