package telemetry

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestInfoWritesFields(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	Info("generation.completed", map[string]any{"generationId": "g1", "durationMs": 42})

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("invalid json log line: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "generation.completed" {
		t.Fatalf("unexpected msg: %v", entry["msg"])
	}
	if entry["level"] != "INFO" {
		t.Fatalf("unexpected level: %v", entry["level"])
	}
	if entry["generationId"] != "g1" {
		t.Fatalf("missing field generationId: %v", entry)
	}
}

func TestWarnAndErrorLevels(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	Warn("credits.consume_failed", nil)
	Error("generation.failed", map[string]any{"error": "boom"})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var first, second map[string]any
	_ = json.Unmarshal(lines[0], &first)
	_ = json.Unmarshal(lines[1], &second)
	if first["level"] != "WARN" || second["level"] != "ERROR" {
		t.Fatalf("unexpected levels: %v %v", first["level"], second["level"])
	}
}
