package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/grcplatform/grc/internal/config"
	"github.com/grcplatform/grc/internal/tenantctx"
)

func TestAsyncCloserIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	l, closer := NewWithWriter(config.Logging{Level: "info", Service: "grc-test", Async: true}, &buf)
	l.Info("queued before shutdown")
	closer.Close()
	closer.Close()

	assert.Equal(t, "queued before shutdown", decodeLine(t, &buf)["msg"])
}

func TestParseLevelAcceptsAliases(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"Error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	} {
		assert.Equal(t, want, parseLevel(in), "level %q", in)
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	assert.Empty(t, RequestID(context.Background()))
	assert.Equal(t, "7f3c", RequestID(WithRequestID(context.Background(), "7f3c")))
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return m
}

func TestContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	l, closer := NewWithWriter(config.Logging{Level: "info", Service: "grc-test"}, &buf)
	defer closer.Close()

	ctx := WithRequestID(context.Background(), "req-9")
	ctx = tenantctx.WithTenant(ctx, 42)
	l.InfoContext(ctx, "hello")

	m := decodeLine(t, &buf)
	if m["service"] != "grc-test" {
		t.Errorf("service = %v", m["service"])
	}
	if m["request_id"] != "req-9" {
		t.Errorf("request_id = %v", m["request_id"])
	}
	if m["tenant_id"] != float64(42) {
		t.Errorf("tenant_id = %v", m["tenant_id"])
	}
}

func TestContextAttributesAbsent(t *testing.T) {
	var buf bytes.Buffer
	l, closer := NewWithWriter(config.Logging{Level: "info", Service: "grc-test"}, &buf)
	defer closer.Close()

	l.InfoContext(context.Background(), "hello")

	m := decodeLine(t, &buf)
	if _, ok := m["tenant_id"]; ok {
		t.Error("tenant_id must be absent without a bound tenant")
	}
	if _, ok := m["request_id"]; ok {
		t.Error("request_id must be absent without a request")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, closer := NewWithWriter(config.Logging{Level: "warn", Service: "s"}, &buf)
	defer closer.Close()

	l.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info must be filtered at warn level, got %q", buf.String())
	}
	l.Warn("kept")
	if buf.Len() == 0 {
		t.Fatal("warn must be written")
	}
}
