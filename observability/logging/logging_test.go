package logging

import (
	"bytes"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func restoreDefaults(t *testing.T) {
	t.Helper()
	previous := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(previous)
		log.SetOutput(os.Stderr)
	})
}

func TestSetupWritesStructuredJSON(t *testing.T) {
	restoreDefaults(t)
	var buf bytes.Buffer
	logger, closer := SetupWithOptions(Options{Service: "dex-audit", Environment: "test", Level: "debug", Stdout: &buf})
	defer closer.Close()

	logger.Debug("pool audited", slog.String("pool", "usdc"))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	for key, want := range map[string]string{
		"service":  "dex-audit",
		"env":      "test",
		"severity": "DEBUG",
		"message":  "pool audited",
		"pool":     "usdc",
	} {
		if line[key] != want {
			t.Fatalf("%s: got %v want %s", key, line[key], want)
		}
	}
	if _, ok := line["timestamp"]; !ok {
		t.Fatalf("timestamp missing: %v", line)
	}
}

func TestLevelFiltersAndTextFormat(t *testing.T) {
	restoreDefaults(t)
	var buf bytes.Buffer
	logger, closer := SetupWithOptions(Options{Service: "svc", Level: "warn", Format: "text", Stdout: &buf})
	defer closer.Close()

	logger.Info("dropped")
	logger.Warn("kept")
	out := buf.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, "message=kept") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRotatedFileReceivesLines(t *testing.T) {
	restoreDefaults(t)
	path := filepath.Join(t.TempDir(), "dex.log")
	var buf bytes.Buffer
	logger, closer := SetupWithOptions(Options{Service: "svc", File: path, MaxSizeMB: 1, Stdout: &buf})
	logger.Info("to both")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "to both") || !strings.Contains(buf.String(), "to both") {
		t.Fatalf("line missing from a sink: file=%q stdout=%q", data, buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{"": slog.LevelInfo, "DEBUG": slog.LevelDebug, "warning": slog.LevelWarn, "error": slog.LevelError}
	for raw, want := range cases {
		if got := ParseLevel(raw); got != want {
			t.Fatalf("%q: got %v want %v", raw, got, want)
		}
	}
}

func TestHeadersMasksSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("telemetry", Headers("headers", map[string]string{
		"Authorization": "Bearer secret",
		"Content-Type":  "application/x-protobuf",
		"x-empty":       "",
	}))
	out := buf.String()
	if strings.Contains(out, "secret") {
		t.Fatalf("secret leaked: %s", out)
	}
	if !strings.Contains(out, `"Authorization":"[REDACTED]"`) || !strings.Contains(out, "application/x-protobuf") {
		t.Fatalf("unexpected rendering: %s", out)
	}
	if MaskValue(" ") != " " {
		t.Fatalf("blank values should pass through")
	}
}
