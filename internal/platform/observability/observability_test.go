package observability

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func newCapture() (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	handler := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(handler), buf
}

func TestSetup_DisabledSuppressesInstrumentation(t *testing.T) {
	logger, buf := newCapture()
	shutdown, err := Setup(context.Background(), Config{Enabled: false}, logger)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer shutdown(context.Background())

	if Enabled() {
		t.Fatalf("Enabled() should be false")
	}

	_, end := StartSpan(context.Background(), "http.server", "/api/status")
	end(nil)
	RecordMetric(context.Background(), "http.requests", 1, nil)

	out := buf.String()
	if !strings.Contains(out, "observability hooks disabled") {
		t.Errorf("setup line missing: %q", out)
	}
	if strings.Contains(out, "span start") || strings.Contains(out, "metric") {
		t.Errorf("disabled instrumentation must not emit records: %q", out)
	}
}

func TestStartSpan_PairsStartAndEnd(t *testing.T) {
	logger, buf := newCapture()
	if _, err := Setup(context.Background(), Config{Enabled: true}, logger); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if !Enabled() {
		t.Fatalf("Enabled() should be true")
	}

	_, end := StartSpan(context.Background(), "transport.gateway", "handle")
	end(nil)

	out := buf.String()
	if !strings.Contains(out, "span start") || !strings.Contains(out, "span end") {
		t.Fatalf("span records missing: %q", out)
	}

	var startID, endID uint64
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if strings.Contains(line, "span start") {
			fmt.Sscanf(extractAttr(line, "span"), "%d", &startID)
		}
		if strings.Contains(line, "span end") {
			fmt.Sscanf(extractAttr(line, "span"), "%d", &endID)
		}
	}
	if startID == 0 || startID != endID {
		t.Errorf("start and end must share a span id: start=%d end=%d", startID, endID)
	}
}

func TestStartSpan_ErrorEndsAtErrorLevel(t *testing.T) {
	logger, buf := newCapture()
	if _, err := Setup(context.Background(), Config{Enabled: true}, logger); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	_, end := StartSpan(context.Background(), "http.server", "/api/commit")
	end(fmt.Errorf("relay is closed"))

	out := buf.String()
	if !strings.Contains(out, "level=ERROR") {
		t.Errorf("failed span should end at error level: %q", out)
	}
	if !strings.Contains(out, "relay is closed") {
		t.Errorf("span end should carry the error: %q", out)
	}
}

func TestRecordMetric_WritesLabels(t *testing.T) {
	logger, buf := newCapture()
	if _, err := Setup(context.Background(), Config{Enabled: true}, logger); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	RecordMetric(context.Background(), "gateway.connection.opened", 1, map[string]string{
		"component": "transport.gateway",
		"client_id": "client-1",
	})

	out := buf.String()
	for _, want := range []string{"metric=gateway.connection.opened", "value=1", "client_id=client-1"} {
		if !strings.Contains(out, want) {
			t.Errorf("metric record missing %q: %q", want, out)
		}
	}
}

func extractAttr(line, key string) string {
	for _, field := range strings.Fields(line) {
		if strings.HasPrefix(field, key+"=") {
			return strings.TrimPrefix(field, key+"=")
		}
	}
	return ""
}
