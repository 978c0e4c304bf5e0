package logger

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Msg("test message")

	if !strings.Contains(buf.String(), "test message") {
		t.Errorf("Expected output to contain 'test message', got: %s", buf.String())
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	retrieved := FromContext(ctx)
	retrieved.Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("Expected log output from retrieved logger")
	}
}

func TestFromContext_DefaultLogger(t *testing.T) {
	log := FromContext(context.Background())
	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected default logger to be enabled")
	}
}

func TestRunLoggerFeedsRing(t *testing.T) {
	ring := NewRing(10)
	log := NewRunLogger(io.Discard, ring)

	log.Info().Msg("searching")
	log.Error().Err(io.EOF).Msg("download failed")

	entries := ring.Entries()
	if len(entries) != 2 {
		t.Fatalf("len=%d", len(entries))
	}
	if entries[0].Level != "INFO" || entries[0].Message != "searching" {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Level != "ERROR" || entries[1].Message != "download failed: EOF" {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
}
