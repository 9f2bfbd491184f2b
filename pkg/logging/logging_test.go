package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "todovault.log")
	logger, closer, err := New(Options{Prefix: "[test] ", File: path, Quiet: true})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Printf("Warning: sync skipped: %v", "busy")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	line := string(data)
	if !strings.HasPrefix(line, "[test] ") || !strings.Contains(line, "sync skipped: busy") {
		t.Errorf("Unexpected log content %q", line)
	}
}

func TestNewWithoutFile(t *testing.T) {
	logger, closer, err := New(Options{Quiet: true})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Println("discarded")
	if err := closer.Close(); err != nil {
		t.Errorf("Close of a file-less logger failed: %v", err)
	}
}
