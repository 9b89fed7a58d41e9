package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"earthexchange/native/dex"
	"earthexchange/services/journal"
)

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := fmt.Sprintf(`DataDir = %q

[log]
Level = "warn"

[dex]
HubAsset = "erth"
Manager = "gov"
Custody = "vault"
%s`, filepath.Join(dir, "data"), extra)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRunAuditsFreshLedger(t *testing.T) {
	path := writeConfig(t, "")
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-config", path, "-init"}, &stdout, &stderr); code != exitOK {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}
	var report dex.AuditReport
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		t.Fatalf("decode %q: %v", stdout.String(), err)
	}
	if !report.Healthy() || len(report.Pools) != 0 || report.HubBurned != "0" {
		t.Fatalf("unexpected report %+v", report)
	}

	stdout.Reset()
	if code := run([]string{"-config", path, "-format", "yaml"}, &stdout, &stderr); code != exitOK {
		t.Fatalf("yaml exit %d: %s", code, stderr.String())
	}
	var decoded dex.AuditReport
	if err := yaml.Unmarshal(stdout.Bytes(), &decoded); err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if decoded.PendingReward != "0" {
		t.Fatalf("unexpected yaml report %+v", decoded)
	}
}

func TestRunFailsOnUninitializedLedger(t *testing.T) {
	path := writeConfig(t, "")
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-config", path}, &stdout, &stderr); code != exitError {
		t.Fatalf("expected failure, got %d", code)
	}
	if stdout.Len() != 0 {
		t.Fatalf("no report expected, got %q", stdout.String())
	}
}

func TestRunRejectsUnknownFormat(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-format", "xml"}, &stdout, &stderr); code != exitError {
		t.Fatalf("expected failure, got %d", code)
	}
	if !strings.Contains(stderr.String(), "unknown format") {
		t.Fatalf("missing diagnostic: %q", stderr.String())
	}
}

func TestRunIncludesJournalCounts(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "journal.db")
	db, err := journal.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	outcome := &dex.Outcome{Intent: "swap", Events: []dex.Event{{Type: dex.EventSwap}, {Type: dex.EventSwap}}}
	if err := journal.New(db).Record(context.Background(), time.Now(), outcome); err != nil {
		t.Fatalf("record: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	path := writeConfig(t, fmt.Sprintf("\n[journal]\nDriver = \"sqlite\"\nDSN = %q\n", dsn))
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-config", path, "-init"}, &stdout, &stderr); code != exitOK {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}
	var out struct {
		Journal []journal.EventCount `json:"journal"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Journal) != 1 || out.Journal[0].Type != dex.EventSwap || out.Journal[0].Count != 2 {
		t.Fatalf("unexpected journal section %+v", out.Journal)
	}
}
