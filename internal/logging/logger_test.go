package logging

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"pongarena/server/internal/config"
)

func fileLogger(t *testing.T, level string) (*Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.log")
	logger, err := New(config.LoggingConfig{Level: level, Path: path, MaxSizeMB: 10})
	if err != nil {
		t.Fatalf("construct logger: %v", err)
	}
	return logger, path
}

func readEntries(t *testing.T, path string) []map[string]any {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log file: %v", err)
	}
	defer file.Close()
	var entries []map[string]any
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("decode log line %q: %v", scanner.Text(), err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLoggerWritesStructuredJSON(t *testing.T) {
	logger, path := fileLogger(t, "info")
	logger.Info("lobby opened", String("lobby_id", "abc123"), Int("players", 2))
	if err := logger.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	entries := readEntries(t, path)
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry["level"] != "info" || entry["message"] != "lobby opened" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["lobby_id"] != "abc123" || entry["players"] != float64(2) {
		t.Fatalf("fields missing from entry: %v", entry)
	}
	if entry["timestamp"] == "" {
		t.Fatalf("entry lacks a timestamp: %v", entry)
	}
}

func TestLoggerFiltersBelowConfiguredLevel(t *testing.T) {
	logger, path := fileLogger(t, "warn")
	logger.Debug("invisible")
	logger.Info("also invisible")
	logger.Warn("visible")
	logger.Sync()

	entries := readEntries(t, path)
	if len(entries) != 1 || entries[0]["message"] != "visible" {
		t.Fatalf("level filter failed: %v", entries)
	}
}

func TestWithAttachesFieldsToEveryEntry(t *testing.T) {
	logger, path := fileLogger(t, "info")
	scoped := logger.With(String("component", "session"))
	scoped.Info("tick observed")
	scoped.Info("tick observed again")
	logger.Sync()

	for _, entry := range readEntries(t, path) {
		if entry["component"] != "session" {
			t.Fatalf("scoped field missing: %v", entry)
		}
	}
}

func TestErrorFieldRendersMessage(t *testing.T) {
	logger, path := fileLogger(t, "info")
	logger.Error("lookup failed", Error(errors.New("no such user")))
	logger.Sync()

	entries := readEntries(t, path)
	if len(entries) != 1 || entries[0]["error"] != "no such user" {
		t.Fatalf("error field not flattened: %v", entries)
	}
}

func TestParseLevelRejectsUnknown(t *testing.T) {
	if _, err := parseLevel("shouting"); err == nil {
		t.Fatal("unknown level must be rejected")
	}
	for raw, want := range map[string]Level{
		"":        InfoLevel,
		"debug":   DebugLevel,
		"WARNING": WarnLevel,
		" error ": ErrorLevel,
	} {
		level, err := parseLevel(raw)
		if err != nil || level != want {
			t.Fatalf("parseLevel(%q) = %v, %v", raw, level, err)
		}
	}
}

func TestNewRejectsBlankPath(t *testing.T) {
	if _, err := New(config.LoggingConfig{Level: "info"}); err == nil {
		t.Fatal("blank path must be rejected")
	}
}

func TestGlobalFallbackIsAlwaysUsable(t *testing.T) {
	//1.- L never returns nil, even before ReplaceGlobals runs.
	if L() == nil {
		t.Fatal("global logger must never be nil")
	}
	var nilLogger *Logger
	nilLogger.Info("must not panic")
}
