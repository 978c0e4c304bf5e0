package google

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"google.golang.org/api/option"

	"payadvice/internal"
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

func TestWriteHeaderClearsThenUpdates(t *testing.T) {
	var paths []string
	var update map[string]any
	store, err := NewStore(context.Background(),
		option.WithHTTPClient(&http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			paths = append(paths, r.Method+" "+r.URL.Path)
			if r.Method == http.MethodPut {
				_ = json.NewDecoder(r.Body).Decode(&update)
			}
			return jsonResponse(`{}`), nil
		})}),
		option.WithEndpoint("https://sheets.test/"),
	)
	if err != nil {
		t.Fatal(err)
	}

	ref := internal.TableRef{SpreadsheetID: "sid", Range: "payment advice!A:S"}
	if err := store.WriteHeader(context.Background(), ref, []string{"a", "b", "c"}); err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 {
		t.Fatalf("calls=%v", paths)
	}
	if paths[0] != "POST /v4/spreadsheets/sid/values/'payment advice'!1:1:clear" {
		t.Fatalf("clear call=%s", paths[0])
	}
	if paths[1] != "PUT /v4/spreadsheets/sid/values/'payment advice'!A1:C1" {
		t.Fatalf("update call=%s", paths[1])
	}
	values := update["values"].([]any)[0].([]any)
	if len(values) != 3 || values[2] != "c" {
		t.Fatalf("values=%v", values)
	}
}

func TestReadRangeStringifies(t *testing.T) {
	store, err := NewStore(context.Background(),
		option.WithHTTPClient(&http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return jsonResponse(`{"range":"payment_advice!A1:B2","values":[["source_file_name","bill_amount"],["m1_a.pdf",100]]}`), nil
		})}),
		option.WithEndpoint("https://sheets.test/"),
	)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := store.ReadRange(context.Background(), internal.TableRef{SpreadsheetID: "sid", Range: "payment_advice"})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1][0] != "m1_a.pdf" || rows[1][1] != "100" {
		t.Fatalf("rows=%v", rows)
	}
}

func TestQuoteSheet(t *testing.T) {
	cases := map[string]string{
		"payment_advice": "payment_advice",
		"Sheet 1":        "'Sheet 1'",
		"it's":           "'it''s'",
	}
	for in, want := range cases {
		if got := QuoteSheet(in); got != want {
			t.Fatalf("QuoteSheet(%q)=%q want %q", in, got, want)
		}
	}
}
