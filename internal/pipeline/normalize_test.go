package pipeline

import (
	"encoding/json"
	"testing"
	"time"

	"payadvice/internal"
)

var testSource = internal.SourceIdentity{StorageFilename: "18c2f_advice.pdf", StorageID: "blob-9"}
var testNow = time.Date(2025, 12, 3, 14, 5, 6, 0, time.UTC)

func decode(t *testing.T, js string) internal.RawExtraction {
	t.Helper()
	var raw internal.RawExtraction
	if err := json.Unmarshal([]byte(js), &raw); err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestNormalizeEmitsDocumentPlusLineItems(t *testing.T) {
	raw := decode(t, `{
		"document_info": {"date": 45992, "clearing_document_number": "CLR-1", "utr": "UTR77"},
		"bill_details": [
			{"bill_reference_number": "B1", "bill_document_date": 45990, "bill_amount": 100, "deduction_tds": 2, "net_amount": 98},
			"garbage",
			{"reference_number": "B2", "date": "28-Nov-2025", "amount": "1,250.50", "tds": "bad", "net_amount": 1250.5}
		],
		"payment_mode_details": [{"mode": "NEFT"}, {"mode": "NEFT", "amount": 1348.5}, {"amount": 5}]
	}`)

	got, err := Normalize(raw, testSource, testNow)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(got.Records()); n != 3 {
		t.Fatalf("expected 1+2 rows, got %d", n)
	}

	doc := got.Document
	if doc.DocumentDate != "1-Dec-2025" || doc.ClearingDocumentNumber != "CLR-1" || doc.UTRNumber != "UTR77" {
		t.Fatalf("doc keys: %+v", doc)
	}
	if doc.TotalBillAmount != 1350.5 || doc.TotalNetAmount != 1348.5 || doc.TotalTDSAmount != 2 {
		t.Fatalf("aggregates: %+v", doc)
	}
	if doc.TotalPaymentAmount != 1348.5 {
		t.Fatalf("total payment=%v", doc.TotalPaymentAmount)
	}
	if doc.PaymentCount != 2 || doc.SourceFileName != "18c2f_advice.pdf" || doc.DriveFileID != "blob-9" {
		t.Fatalf("doc: %+v", doc)
	}
	if doc.ProcessedDate != "2025-12-03 14:05:06" {
		t.Fatalf("processed=%s", doc.ProcessedDate)
	}

	for i, item := range got.Items {
		if item.DocumentDate != doc.DocumentDate || item.ClearingDocumentNumber != doc.ClearingDocumentNumber || item.UTRNumber != doc.UTRNumber {
			t.Fatalf("item %d does not share document keys: %+v", i, item)
		}
		if item.BillSequence != i+1 || item.TotalBills != 2 {
			t.Fatalf("item %d sequence: %+v", i, item)
		}
	}
	if got.Items[0].BillDocumentDate != "29-Nov-2025" {
		t.Fatalf("bill date=%v", got.Items[0].BillDocumentDate)
	}
	second := got.Items[1]
	if second.BillReferenceNumber != "B2" || second.BillDocumentDate != "28-Nov-2025" || second.BillAmount != "1,250.50" || second.DeductionTDS != "bad" {
		t.Fatalf("aliases not resolved: %+v", second)
	}
}

func TestNormalizeNonNumericAmountsCountAsZero(t *testing.T) {
	raw := internal.RawExtraction{
		"bills": []any{
			map[string]any{"bill_amount": 100},
			map[string]any{"bill_amount": "bad"},
			map[string]any{"bill_amount": 50},
		},
	}
	got, err := Normalize(raw, testSource, testNow)
	if err != nil {
		t.Fatal(err)
	}
	if got.Document.TotalBillAmount != 150 {
		t.Fatalf("total bill=%v", got.Document.TotalBillAmount)
	}
}

func TestNormalizeDotDecimalAmounts(t *testing.T) {
	raw := internal.RawExtraction{
		"bill_details": []any{
			map[string]any{"bill_amount": "100.500", "net_amount": "1.250", "deduction_tds": "0.750"},
		},
	}
	got, err := Normalize(raw, testSource, testNow)
	if err != nil {
		t.Fatal(err)
	}
	doc := got.Document
	if doc.TotalBillAmount != 100.5 || doc.TotalNetAmount != 1.25 || doc.TotalTDSAmount != 0.75 {
		t.Fatalf("aggregates: bill=%v net=%v tds=%v", doc.TotalBillAmount, doc.TotalNetAmount, doc.TotalTDSAmount)
	}
}

func TestNormalizeRootAsDocument(t *testing.T) {
	raw := internal.RawExtraction{
		"utr_number": "UTR1",
		"date":       "1-Dec-2025",
		"items":      []map[string]any{{"amount": 10}},
	}
	got, err := Normalize(raw, testSource, testNow)
	if err != nil {
		t.Fatal(err)
	}
	if got.Document.UTRNumber != "UTR1" || got.Document.DocumentDate != "1-Dec-2025" {
		t.Fatalf("doc=%+v", got.Document)
	}
	if len(got.Items) != 1 || got.Document.TotalBillAmount != 10 {
		t.Fatalf("items=%+v", got.Items)
	}
}

func TestNormalizeSectionPriority(t *testing.T) {
	raw := internal.RawExtraction{
		"document":      map[string]any{"utr_number": "LOW"},
		"document_info": map[string]any{"utr_number": "HIGH"},
		"data":          "not a mapping",
		"line_items":    []any{map[string]any{}},
		"bill_details":  []any{},
	}
	got, err := Normalize(raw, testSource, testNow)
	if err != nil {
		t.Fatal(err)
	}
	if got.Document.UTRNumber != "HIGH" {
		t.Fatalf("utr=%v", got.Document.UTRNumber)
	}
	if len(got.Items) != 0 {
		t.Fatalf("first list key must win even when empty, got %d items", len(got.Items))
	}
}

func TestNormalizeDegradesGracefully(t *testing.T) {
	got, err := Normalize(internal.RawExtraction{"unrelated": true}, testSource, testNow)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Records()) != 1 {
		t.Fatalf("rows=%d", len(got.Records()))
	}
	doc := got.Document
	if doc.DocumentDate != "" || doc.UTRNumber != "" || doc.TotalPaymentAmount != 0 || doc.TotalBillAmount != 0 || doc.PaymentCount != 0 {
		t.Fatalf("doc=%+v", doc)
	}

	if _, err := Normalize(nil, testSource, testNow); err == nil {
		t.Fatal("nil extraction must fail")
	}
}

func TestRecordsLayoutColumns(t *testing.T) {
	got, _ := Normalize(internal.RawExtraction{"bills": []any{map[string]any{"bill_amount": 1}}}, testSource, testNow)
	recs := got.Records()
	if _, ok := recs[0].Values()["bill_sequence"]; ok {
		t.Fatal("document row must not carry line item columns")
	}
	if recs[1].Values()["bill_sequence"] != 1 {
		t.Fatalf("item values=%v", recs[1].Values())
	}
	for _, col := range AdviceColumns {
		_, inDoc := recs[0].Values()[col]
		_, inItem := recs[1].Values()[col]
		if !inDoc && !inItem {
			t.Fatalf("column %s produced by neither row type", col)
		}
	}
}
