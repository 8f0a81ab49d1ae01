package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
)

func TestInfoWritesJSONFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stdout) })

	Info("scan.phase", map[string]any{"scan_job_id": "job-1", "error": errors.New("boom")})

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode log json: %v", err)
	}
	if payload["msg"] != "scan.phase" {
		t.Fatalf("unexpected msg: %v", payload["msg"])
	}
	if payload["scan_job_id"] != "job-1" {
		t.Fatalf("unexpected scan_job_id: %v", payload["scan_job_id"])
	}
	if payload["error"] != "boom" {
		t.Fatalf("expected error string, got %v", payload["error"])
	}
	if payload["level"] != "INFO" {
		t.Fatalf("unexpected level: %v", payload["level"])
	}
}

func TestDetachKeepsRequestID(t *testing.T) {
	ctx, cancel := context.WithCancel(WithRequestID(context.Background(), "req-1"))
	cancel()

	detached := Detach(ctx)
	if detached.Err() != nil {
		t.Fatalf("expected detached context to be live")
	}
	if got := RequestID(detached); got != "req-1" {
		t.Fatalf("expected req-1, got %q", got)
	}
}
