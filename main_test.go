package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harrisonrobin/todovault/pkg/config"
	"github.com/harrisonrobin/todovault/pkg/engine"
)

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	if err := report(&buf, engine.Result{Op: "sync", Success: true, DryRun: true, Message: "created 1"}); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if got := buf.String(); got != "[dry run] sync: created 1\n" {
		t.Errorf("Unexpected output %q", got)
	}

	buf.Reset()
	if err := report(&buf, engine.Result{Op: "pull", Message: "remote unreachable"}); err == nil {
		t.Errorf("Expected failed result to return an error")
	}
}

func TestConfigSetCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--config", path, "config", "set", "scope_tag", "todo"})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		configPath = ""
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("config set failed: %v", err)
	}
	if !strings.Contains(out.String(), "scope_tag set") {
		t.Errorf("Unexpected output %q", out.String())
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ScopeTag != "todo" {
		t.Errorf("Expected scope_tag saved, got %q", cfg.ScopeTag)
	}
}
