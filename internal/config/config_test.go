package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("listen addr = %q", cfg.ListenAddr)
	}
	if !cfg.Settings.AutoSync || !cfg.Settings.AutoDraft {
		t.Fatalf("settings defaults = %+v", cfg.Settings)
	}
	if cfg.Settings.DedupCapacity != 1000 {
		t.Fatalf("dedup capacity = %d", cfg.Settings.DedupCapacity)
	}
	if cfg.Settings.SyncIntervalSec != 60 {
		t.Fatalf("sync interval = %d", cfg.Settings.SyncIntervalSec)
	}
	if cfg.Provider.Name != "google" {
		t.Fatalf("provider = %q", cfg.Provider.Name)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
listen_addr: ":9090"
provider:
  name: microsoft
settings:
  auto_sync: false
  default_tone: casual
  max_messages_per_sync: 25
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Fatalf("listen addr = %q", cfg.ListenAddr)
	}
	if cfg.Provider.Name != "microsoft" {
		t.Fatalf("provider = %q", cfg.Provider.Name)
	}
	if cfg.Settings.AutoSync {
		t.Fatal("auto_sync override lost")
	}
	if cfg.Settings.DefaultTone != "casual" || cfg.Settings.MaxMessagesPerSync != 25 {
		t.Fatalf("settings = %+v", cfg.Settings)
	}
	// Untouched keys keep their defaults.
	if !cfg.Settings.AutoApplyLabels || cfg.Settings.DedupCapacity != 1000 {
		t.Fatalf("defaults lost in partial config: %+v", cfg.Settings)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: [unclosed"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}
