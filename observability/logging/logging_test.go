package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRenamesStandardKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "vaultrisk", "test", slog.LevelInfo)
	logger.Debug("dropped")
	logger.Info("accrued", slog.String("vault", "0xa0"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	for key, want := range map[string]string{
		"message":  "accrued",
		"severity": "INFO",
		"service":  "vaultrisk",
		"env":      "test",
		"vault":    "0xa0",
	} {
		if got, _ := record[key].(string); got != want {
			t.Fatalf("%s = %q, want %q", key, got, want)
		}
	}
	if _, ok := record["timestamp"]; !ok {
		t.Fatalf("timestamp missing from %v", record)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for raw, want := range cases {
		if got := ParseLevel(raw); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestMaskFieldsHidesHeaderValues(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "vaultrisk", "", slog.LevelInfo)
	logger.Info("telemetry", MaskFields("headers", map[string]string{
		"authorization": "Bearer secret",
		"vault":         "0xa0",
		"empty":         "",
	}))

	var record struct {
		Headers map[string]string `json:"headers"`
	}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record.Headers["authorization"] != RedactedValue {
		t.Fatalf("authorization leaked: %q", record.Headers["authorization"])
	}
	if record.Headers["vault"] != "0xa0" || record.Headers["empty"] != "" {
		t.Fatalf("unexpected headers %v", record.Headers)
	}
}

func TestFileWriterCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "riskctl.log")
	w, err := FileWriter(path, 0, 0)
	if err != nil {
		t.Fatalf("file writer: %v", err)
	}
	New(w, "vaultrisk", "", slog.LevelInfo).Info("opened")
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"message":"opened"`) {
		t.Fatalf("unexpected log contents %q", data)
	}
	if _, err := FileWriter("  ", 1, 1); err == nil {
		t.Fatalf("expected empty path to be rejected")
	}
}
