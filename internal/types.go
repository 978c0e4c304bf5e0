package internal

import (
	"strings"
	"time"
)

type SearchCriteria struct {
	Sender     string
	SearchTerm string
	DaysBack   int
	MaxResults int
}

// Keywords splits a comma-separated search term into OR-ed keywords.
func (c SearchCriteria) Keywords() []string {
	term := strings.TrimSpace(c.SearchTerm)
	if term == "" {
		return nil
	}
	if !strings.Contains(term, ",") {
		return []string{term}
	}
	out := []string{}
	for _, k := range strings.Split(term, ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

type MessageMeta struct {
	ID      string
	Sender  string
	Subject string
	Date    string
}

// Part is one node of a message's MIME tree. Multipart nodes carry Parts;
// leaves carry a filename and an attachment id when they are retrievable.
type Part struct {
	PartID       string
	MimeType     string
	Filename     string
	AttachmentID string
	Parts        []Part
}

type AttachmentRecord struct {
	MessageID         string
	OriginalFilename  string
	SanitizedFilename string
	StorageFilename   string
	FolderID          string
	BlobID            string
	AlreadyStored     bool
}

type BlobFile struct {
	ID          string
	Name        string
	MimeType    string
	CreatedTime time.Time
}

// RawExtraction is the producer-defined result for one document.
type RawExtraction map[string]any

// SourceIdentity names the stored blob a document was extracted from.
type SourceIdentity struct {
	StorageFilename string
	StorageID       string
}

type DocumentRow struct {
	DocumentDate           any
	ClearingDocumentNumber any
	UTRNumber              any
	TotalPaymentAmount     any
	TotalBillAmount        float64
	TotalNetAmount         float64
	TotalTDSAmount         float64
	PaymentCount           int
	SourceFileName         string
	ProcessedDate          string
	DriveFileID            string
}

func (r DocumentRow) Values() map[string]any {
	return map[string]any{
		"document_date":            r.DocumentDate,
		"clearing_document_number": r.ClearingDocumentNumber,
		"utr_number":               r.UTRNumber,
		"total_payment_amount":     r.TotalPaymentAmount,
		"total_bill_amount":        r.TotalBillAmount,
		"total_net_amount":         r.TotalNetAmount,
		"total_tds_amount":         r.TotalTDSAmount,
		"payment_count":            r.PaymentCount,
		"source_file_name":         r.SourceFileName,
		"processed_date":           r.ProcessedDate,
		"drive_file_id":            r.DriveFileID,
	}
}

type LineItemRow struct {
	DocumentDate             any
	ClearingDocumentNumber   any
	UTRNumber                any
	BillReferenceNumber      any
	AccountingDocumentNumber any
	BillDocumentDate         any
	BillAmount               any
	DeductionTDS             any
	NetAmount                any
	BillSequence             int
	TotalBills               int
	TotalPaymentAmount       any
	SourceFileName           string
	ProcessedDate            string
	DriveFileID              string
}

func (r LineItemRow) Values() map[string]any {
	return map[string]any{
		"document_date":              r.DocumentDate,
		"clearing_document_number":   r.ClearingDocumentNumber,
		"utr_number":                 r.UTRNumber,
		"bill_reference_number":      r.BillReferenceNumber,
		"accounting_document_number": r.AccountingDocumentNumber,
		"bill_document_date":         r.BillDocumentDate,
		"bill_amount":                r.BillAmount,
		"deduction_tds":              r.DeductionTDS,
		"net_amount":                 r.NetAmount,
		"bill_sequence":              r.BillSequence,
		"total_bills":                r.TotalBills,
		"total_payment_amount":       r.TotalPaymentAmount,
		"source_file_name":           r.SourceFileName,
		"processed_date":             r.ProcessedDate,
		"drive_file_id":              r.DriveFileID,
	}
}

// Record is anything that can be laid out against a table header.
type Record interface {
	Values() map[string]any
}

// TableRef points at a range inside a spreadsheet-like store, e.g. "payment_advice"
// or "payment_advice!A:S".
type TableRef struct {
	SpreadsheetID string
	Range         string
}

func (r TableRef) SheetName() string {
	if idx := strings.Index(r.Range, "!"); idx >= 0 {
		return r.Range[:idx]
	}
	return r.Range
}

type HarvestResult struct {
	TotalEmails      int
	ProcessedEmails  int
	TotalAttachments int
	Failed           int
	Attachments      []AttachmentRecord
}

type RunStatus string

const (
	RunSuccess RunStatus = "Success"
	RunPartial RunStatus = "Partial"
	RunFailed  RunStatus = "Failed"
)

type RunStats struct {
	Label       string
	Workflow    string
	StartedAt   time.Time
	EndedAt     time.Time
	Found       int
	Processed   int
	Skipped     int
	Failed      int
	RowsWritten int
	LineItems   int
	Status      RunStatus
	Err         string
}

func (s RunStats) Elapsed() time.Duration {
	if s.EndedAt.IsZero() {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// Progress is reported synchronously after each unit of work.
type Progress struct {
	Stage   string
	Current int
	Total   int
	Message string
}

func (p Progress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	return p.Current * 100 / p.Total
}

type ProgressFunc func(Progress)
