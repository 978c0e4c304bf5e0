package drive

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/option"

	"payadvice/internal/blobstore"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func newTestStore(t *testing.T, rt roundTripFunc) *Store {
	t.Helper()
	store, err := NewStore(context.Background(),
		option.WithHTTPClient(&http.Client{Transport: rt}),
		option.WithEndpoint("https://drive.test/drive/v3/"),
	)
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestListPaginatesAndFilters(t *testing.T) {
	var queries []string
	store := newTestStore(t, func(req *http.Request) (*http.Response, error) {
		queries = append(queries, req.URL.Query().Get("q"))
		if req.URL.Query().Get("pageToken") == "" {
			return jsonResponse(`{"nextPageToken":"p2","files":[{"id":"1","name":"m1_a.pdf","mimeType":"application/pdf","createdTime":"2025-12-02T10:00:00Z"}]}`), nil
		}
		return jsonResponse(`{"files":[{"id":"2","name":"m0_b.pdf","mimeType":"application/pdf","createdTime":"2025-12-01T10:00:00Z"}]}`), nil
	})

	since := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	files, err := store.List(context.Background(), "folder'1", since, blobstore.PDFFilter)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || files[0].ID != "1" || files[1].ID != "2" {
		t.Fatalf("unexpected files: %+v", files)
	}
	if files[0].CreatedTime.IsZero() {
		t.Fatal("created time not parsed")
	}
	want := `'folder\'1' in parents and trashed = false and createdTime >= '2025-12-01T00:00:00Z' and (mimeType = 'application/pdf' or name contains '.pdf')`
	if len(queries) != 2 || queries[0] != want {
		t.Fatalf("query=%q", queries)
	}
}

func TestFindByNameEscapesQuotes(t *testing.T) {
	var q string
	store := newTestStore(t, func(req *http.Request) (*http.Response, error) {
		q = req.URL.Query().Get("q")
		return jsonResponse(`{"files":[{"id":"abc","name":"x"}]}`), nil
	})
	ids, err := store.FindByName(context.Background(), `it's.pdf`, "f")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "abc" {
		t.Fatalf("ids=%v", ids)
	}
	if !strings.Contains(q, `name = 'it\'s.pdf'`) {
		t.Fatalf("query not escaped: %s", q)
	}
}
