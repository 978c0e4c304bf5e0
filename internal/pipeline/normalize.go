package pipeline

import (
	"errors"
	"math"
	"time"

	"payadvice/internal"
	"payadvice/internal/util"
)

const processedDateLayout = "2006-01-02 15:04:05"

var ErrEmptyExtraction = errors.New("extraction returned no data")

// Producer schemas vary, so every logical field is an ordered list of
// synonyms; the first present key wins.
var (
	documentSectionKeys = []string{"document_info", "data", "payment_advice", "document"}
	lineItemSectionKeys = []string{"bill_details", "bills", "items", "line_items"}
	paymentSectionKeys  = []string{"payment_mode_details", "payment_details", "payment"}
	rootDocumentHints   = []string{"date", "clearing_document_number", "utr_number"}

	documentDateKeys     = []string{"date", "document_date"}
	clearingNumberKeys   = []string{"clearing_document_number"}
	utrKeys              = []string{"utr_number", "utr"}
	paymentAmountKeys    = []string{"amount"}
	billAmountKeys       = []string{"bill_amount", "amount"}
	netAmountKeys        = []string{"net_amount"}
	tdsKeys              = []string{"deduction_tds", "tds"}
	billReferenceKeys    = []string{"bill_reference_number", "reference_number"}
	accountingNumberKeys = []string{"accounting_document_number", "accounting_number"}
	billDateKeys         = []string{"bill_document_date", "date"}
)

// Normalized is the row set produced for one source document.
type Normalized struct {
	Document internal.DocumentRow
	Items    []internal.LineItemRow
}

// Records returns the document row followed by its line items.
func (n Normalized) Records() []internal.Record {
	out := make([]internal.Record, 0, 1+len(n.Items))
	out = append(out, n.Document)
	for _, item := range n.Items {
		out = append(out, item)
	}
	return out
}

// Normalize flattens a raw extraction into one document row plus one row per
// recognized line item. Missing sections degrade to zero values.
func Normalize(raw internal.RawExtraction, src internal.SourceIdentity, now time.Time) (Normalized, error) {
	if raw == nil {
		return Normalized{}, ErrEmptyExtraction
	}
	data := map[string]any(raw)

	doc, ok := firstMap(data, documentSectionKeys)
	if !ok && hasAny(data, rootDocumentHints) {
		doc = data
	}
	items := mappings(firstList(data, lineItemSectionKeys))
	payments := firstList(data, paymentSectionKeys)

	var totalPayment any = 0
	for _, p := range payments {
		if m, ok := asMap(p); ok {
			if v, ok := lookup(m, paymentAmountKeys); ok {
				totalPayment = v
				break
			}
		}
	}

	var totalBill, totalNet, totalTDS float64
	for _, item := range items {
		totalBill += amount(item, billAmountKeys)
		totalNet += amount(item, netAmountKeys)
		totalTDS += amount(item, tdsKeys)
	}

	processed := now.Format(processedDateLayout)
	docDate := util.ToCanonical(valueOr(doc, documentDateKeys, ""))
	clearing := valueOr(doc, clearingNumberKeys, "")
	utr := valueOr(doc, utrKeys, "")

	out := Normalized{
		Document: internal.DocumentRow{
			DocumentDate:           docDate,
			ClearingDocumentNumber: clearing,
			UTRNumber:              utr,
			TotalPaymentAmount:     totalPayment,
			TotalBillAmount:        totalBill,
			TotalNetAmount:         totalNet,
			TotalTDSAmount:         totalTDS,
			PaymentCount:           len(items),
			SourceFileName:         src.StorageFilename,
			ProcessedDate:          processed,
			DriveFileID:            src.StorageID,
		},
		Items: make([]internal.LineItemRow, 0, len(items)),
	}

	for i, item := range items {
		out.Items = append(out.Items, internal.LineItemRow{
			DocumentDate:             docDate,
			ClearingDocumentNumber:   clearing,
			UTRNumber:                utr,
			BillReferenceNumber:      valueOr(item, billReferenceKeys, ""),
			AccountingDocumentNumber: valueOr(item, accountingNumberKeys, ""),
			BillDocumentDate:         util.ToCanonical(valueOr(item, billDateKeys, "")),
			BillAmount:               valueOr(item, billAmountKeys, 0),
			DeductionTDS:             valueOr(item, tdsKeys, 0),
			NetAmount:                valueOr(item, netAmountKeys, 0),
			BillSequence:             i + 1,
			TotalBills:               len(items),
			TotalPaymentAmount:       totalPayment,
			SourceFileName:           src.StorageFilename,
			ProcessedDate:            processed,
			DriveFileID:              src.StorageID,
		})
	}
	return out, nil
}

// lookup returns the value of the first alias present with a non-nil value.
func lookup(m map[string]any, aliases []string) (any, bool) {
	for _, key := range aliases {
		if v, ok := m[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func valueOr(m map[string]any, aliases []string, fallback any) any {
	if m == nil {
		return fallback
	}
	if v, ok := lookup(m, aliases); ok {
		return v
	}
	return fallback
}

// amount is the numeric value of a field; anything unparseable counts as 0.
func amount(m map[string]any, aliases []string) float64 {
	v, ok := lookup(m, aliases)
	if !ok {
		return 0
	}
	f, ok := util.ParseAmount(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func firstMap(data map[string]any, keys []string) (map[string]any, bool) {
	for _, key := range keys {
		if m, ok := asMap(data[key]); ok {
			return m, true
		}
	}
	return nil, false
}

func firstList(data map[string]any, keys []string) []any {
	for _, key := range keys {
		if list, ok := asList(data[key]); ok {
			return list
		}
	}
	return nil
}

func hasAny(data map[string]any, keys []string) bool {
	for _, key := range keys {
		if _, ok := data[key]; ok {
			return true
		}
	}
	return false
}

func mappings(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, v := range list {
		if m, ok := asMap(v); ok {
			out = append(out, m)
		}
	}
	return out
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case internal.RawExtraction:
		return map[string]any(t), true
	default:
		return nil, false
	}
}

func asList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []map[string]any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = m
		}
		return out, true
	default:
		return nil, false
	}
}
