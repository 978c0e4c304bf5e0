package harvest

import (
	"context"
	"errors"
	"testing"
	"time"

	"payadvice/internal"
	"payadvice/internal/blobstore"
	"payadvice/internal/connectors"
)

type fakeSource struct {
	ids         []string
	searchErr   error
	trees       map[string]internal.Part
	fullErr     map[string]error
	attachments map[string][]byte
	queries     []connectors.Query
}

func (f *fakeSource) Search(_ context.Context, q connectors.Query, max int) ([]string, error) {
	f.queries = append(f.queries, q)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	ids := f.ids
	if max > 0 && len(ids) > max {
		ids = ids[:max]
	}
	return ids, nil
}

func (f *fakeSource) Metadata(_ context.Context, id string) (internal.MessageMeta, error) {
	return internal.MessageMeta{ID: id, Subject: "Payment Advice " + id}, nil
}

func (f *fakeSource) Full(_ context.Context, id string) (internal.Part, error) {
	if err := f.fullErr[id]; err != nil {
		return internal.Part{}, err
	}
	return f.trees[id], nil
}

func (f *fakeSource) AttachmentBytes(_ context.Context, id, attID string) ([]byte, error) {
	data, ok := f.attachments[id+"/"+attID]
	if !ok {
		return nil, errors.New("attachment gone")
	}
	return data, nil
}

func pdfLeaf(name, att string) internal.Part {
	return internal.Part{MimeType: "application/pdf", Filename: name, AttachmentID: att}
}

func twoMessageSource() *fakeSource {
	return &fakeSource{
		ids: []string{"A", "B"},
		trees: map[string]internal.Part{
			"A": {MimeType: "multipart/mixed", Parts: []internal.Part{
				{MimeType: "text/plain"},
				{MimeType: "multipart/mixed", Parts: []internal.Part{pdfLeaf("advice.pdf", "a1")}},
			}},
			"B": {MimeType: "multipart/mixed", Parts: []internal.Part{
				{MimeType: "image/png", Filename: "logo.png", AttachmentID: "b1"},
			}},
		},
		attachments: map[string][]byte{"A/a1": []byte("%PDF-1.4")},
	}
}

type ledgerFunc func(internal.AttachmentRecord) error

func (f ledgerFunc) RecordAttachment(rec internal.AttachmentRecord) error { return f(rec) }

func TestHarvestCountsMessagesWithAttachments(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemory()
	var recorded []internal.AttachmentRecord
	var progress []internal.Progress

	h := New(twoMessageSource(), store,
		WithLedger(ledgerFunc(func(rec internal.AttachmentRecord) error {
			recorded = append(recorded, rec)
			return nil
		})),
		WithProgress(func(p internal.Progress) { progress = append(progress, p) }),
	)

	result, err := h.Harvest(ctx, internal.SearchCriteria{DaysBack: 7, MaxResults: 10}, "base")
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalEmails != 2 || result.ProcessedEmails != 1 || result.TotalAttachments != 1 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if got := result.Attachments[0].StorageFilename; got != "A_advice.pdf" {
		t.Fatalf("storage filename=%s", got)
	}
	if len(recorded) != 1 {
		t.Fatalf("ledger got %d records", len(recorded))
	}
	if len(progress) != 2 || progress[1].Percent() != 100 {
		t.Fatalf("progress=%+v", progress)
	}

	folder, err := TargetFolder(ctx, store, "base")
	if err != nil {
		t.Fatal(err)
	}
	if files := store.Files(folder); len(files) != 1 || files[0] != "A_advice.pdf" {
		t.Fatalf("stored=%v", files)
	}
}

func TestHarvestTwiceStoresOnce(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemory()
	source := twoMessageSource()
	h := New(source, store)

	for i := 0; i < 2; i++ {
		result, err := h.Harvest(ctx, internal.SearchCriteria{DaysBack: 1}, "base")
		if err != nil {
			t.Fatal(err)
		}
		if result.TotalAttachments != 1 {
			t.Fatalf("run %d: attachments=%d", i, result.TotalAttachments)
		}
		if i == 1 && !result.Attachments[0].AlreadyStored {
			t.Fatal("second run should find the blob already stored")
		}
	}
	folder, _ := TargetFolder(ctx, store, "base")
	if files := store.Files(folder); len(files) != 1 {
		t.Fatalf("stored=%v", files)
	}
}

func TestHarvestIsolatesMessageFailures(t *testing.T) {
	source := twoMessageSource()
	source.ids = []string{"X", "A", "Y"}
	source.fullErr = map[string]error{"X": errors.New("timeout")}
	source.trees["Y"] = internal.Part{Parts: []internal.Part{pdfLeaf("missing.pdf", "y1")}}

	result, err := New(source, blobstore.NewMemory()).Harvest(context.Background(), internal.SearchCriteria{}, "base")
	if err != nil {
		t.Fatal(err)
	}
	if result.Failed != 2 || result.ProcessedEmails != 1 || result.TotalAttachments != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestHarvestSearchFailureYieldsEmptyResult(t *testing.T) {
	source := &fakeSource{searchErr: errors.New("quota exceeded")}
	result, err := New(source, blobstore.NewMemory()).Harvest(context.Background(), internal.SearchCriteria{}, "base")
	if err != nil {
		t.Fatalf("search failure must not propagate: %v", err)
	}
	if result.TotalEmails != 0 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestHarvestUsesLookbackWindow(t *testing.T) {
	source := &fakeSource{}
	now := time.Date(2025, 12, 10, 12, 0, 0, 0, time.UTC)
	h := New(source, blobstore.NewMemory(), WithClock(func() time.Time { return now }))
	if _, err := h.Harvest(context.Background(), internal.SearchCriteria{Sender: "erp@example.com", DaysBack: 3}, "base"); err != nil {
		t.Fatal(err)
	}
	if len(source.queries) != 1 {
		t.Fatalf("queries=%d", len(source.queries))
	}
	if got := source.queries[0].Gmail(); got != `has:attachment from:"erp@example.com" after:2025/12/07` {
		t.Fatalf("query=%s", got)
	}
}

func TestQualifyingParts(t *testing.T) {
	root := internal.Part{Parts: []internal.Part{
		pdfLeaf("a.PDF", "1"),
		pdfLeaf("b.pdf", ""),
		{Filename: "c.pdf.exe", AttachmentID: "3"},
		{Parts: []internal.Part{{Parts: []internal.Part{pdfLeaf("deep.pdf", "4")}}}},
	}}
	got := QualifyingParts(root, ".pdf")
	if len(got) != 2 || got[0].AttachmentID != "1" || got[1].AttachmentID != "4" {
		t.Fatalf("got %+v", got)
	}
}
