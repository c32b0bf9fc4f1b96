package config

import (
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.State.Backend != "badger" {
		t.Errorf("State.Backend = %q, want badger", cfg.State.Backend)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.Observability.LogLevel)
	}
	if cfg.Observability.MetricsAddr != ":9090" {
		t.Errorf("MetricsAddr = %q, want :9090", cfg.Observability.MetricsAddr)
	}
	if cfg.Labels.MaxRunes != 64 {
		t.Errorf("Labels.MaxRunes = %d, want 64", cfg.Labels.MaxRunes)
	}
	if !cfg.Journal.Enabled {
		t.Error("Journal.Enabled = false, want true")
	}
	if cfg.DataDir == "" {
		t.Error("DataDir is empty")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TREE_STATE_BACKEND", "sqlite")
	t.Setenv("TREE_OBSERVABILITY_LOG_LEVEL", "debug")

	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.State.Backend != "sqlite" {
		t.Errorf("State.Backend = %q, want sqlite", cfg.State.Backend)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.Observability.LogLevel)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(viper.New(), filepath.Join(t.TempDir(), "absent.hcl")); err == nil {
		t.Error("Load accepted a missing explicit config file")
	}
}

func TestJournalPath(t *testing.T) {
	cfg := Config{DataDir: "/var/lib/tree"}
	if got := cfg.JournalPath(); got != filepath.Join("/var/lib/tree", "events.jsonl") {
		t.Errorf("JournalPath = %q", got)
	}

	cfg.Journal.Path = "/tmp/j.jsonl"
	if got := cfg.JournalPath(); got != "/tmp/j.jsonl" {
		t.Errorf("JournalPath override = %q", got)
	}
}
