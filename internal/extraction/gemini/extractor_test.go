package gemini

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCleanModelJSON(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```":      `{"a":1}`,
		"Here you go: {\"a\":1} thanks": `{"a":1}`,
		"  {\"a\":{\"b\":2}}  ":         `{"a":{"b":2}}`,
	}
	for in, want := range cases {
		if got := cleanModelJSON(in); got != want {
			t.Fatalf("cleanModelJSON(%q)=%q want %q", in, got, want)
		}
	}
}

func TestExtractParsesModelOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}

	var sent []byte
	e := &Extractor{model: "test", generate: func(_ context.Context, pdf []byte) (string, error) {
		sent = pdf
		return "```json\n{\"document_info\":{\"utr_number\":\"UTR1\"},\"bill_details\":[]}\n```", nil
	}}
	raw, err := e.Extract(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if string(sent) != "%PDF-1.4" {
		t.Fatalf("sent=%q", sent)
	}
	doc := raw["document_info"].(map[string]any)
	if doc["utr_number"] != "UTR1" {
		t.Fatalf("raw=%v", raw)
	}
}

func TestExtractErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.pdf")
	_ = os.WriteFile(path, []byte("%PDF"), 0o644)

	e := &Extractor{generate: func(context.Context, []byte) (string, error) { return "", errors.New("unavailable") }}
	if _, err := e.Extract(context.Background(), path); err == nil {
		t.Fatal("expected transport error")
	}
	e.generate = func(context.Context, []byte) (string, error) { return "not json", nil }
	if _, err := e.Extract(context.Background(), path); err == nil {
		t.Fatal("expected decode error")
	}
	if err := e.Prepare(context.Background()); err != nil {
		t.Fatalf("prepare without client: %v", err)
	}
}
