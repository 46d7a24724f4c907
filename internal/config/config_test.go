package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default(t.TempDir())
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Embedding.Provider != "hash" {
		t.Fatalf("expected hash provider by default, got %q", cfg.Embedding.Provider)
	}
	if cfg.Index.Collection != "memories" {
		t.Fatalf("unexpected collection: %q", cfg.Index.Collection)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Default(dir)
	cfg.Search.NResults = 25
	cfg.Search.Threshold = 0.7
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Search.NResults != 25 {
		t.Fatalf("expected n_results=25, got %d", loaded.Search.NResults)
	}
	if loaded.Search.Threshold != 0.7 {
		t.Fatalf("expected threshold=0.7, got %f", loaded.Search.Threshold)
	}
	if loaded.Store.Path != cfg.Store.Path {
		t.Fatalf("store path mismatch: %q vs %q", loaded.Store.Path, cfg.Store.Path)
	}
}

func TestSaveKeepsBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	first := Default(dir)
	if err := Save(path, first); err != nil {
		t.Fatalf("first save: %v", err)
	}
	second := first
	second.Search.Limit = 99
	if err := Save(path, second); err != nil {
		t.Fatalf("second save: %v", err)
	}

	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Fatalf("expected backup file: %v", err)
	}
	backup, err := Load(path + ".bak")
	if err != nil {
		t.Fatalf("load backup: %v", err)
	}
	if backup.Search.Limit != first.Search.Limit {
		t.Fatalf("expected backup to hold previous config, got limit=%d", backup.Search.Limit)
	}
}

func TestLoadOrDefaultFallsBack(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOrDefault(filepath.Join(dir, DefaultDir, "config.json"))
	if err != nil {
		t.Fatalf("load or default: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("fallback config invalid: %v", err)
	}
	if cfg.Store.Path != filepath.Join(dir, DefaultDir, "memories.db") {
		t.Fatalf("expected paths rooted next to config, got %q", cfg.Store.Path)
	}
}

func TestLoadNormalizesZeroValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"store":{"path":"m.db","key_file":"m.key"},"index":{"path":"v.db"}}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Search.Limit != 50 || cfg.Search.NResults != 10 {
		t.Fatalf("expected search defaults, got %+v", cfg.Search)
	}
	if cfg.Search.Threshold != 0.5 {
		t.Fatalf("expected threshold default, got %f", cfg.Search.Threshold)
	}
	if cfg.Embedding.Provider != "hash" {
		t.Fatalf("expected provider default, got %q", cfg.Embedding.Provider)
	}
}

func TestValidateRejectsBadProvider(t *testing.T) {
	cfg := Default(t.TempDir())
	cfg.Embedding.Provider = "quantum"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown provider")
	}

	cfg = Default(t.TempDir())
	cfg.Embedding.Provider = "openai"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for openai without base_url and model")
	}
	cfg.Embedding.BaseURL = "https://api.openai.com/v1"
	cfg.Embedding.Model = "text-embedding-3-small"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid openai config, got %v", err)
	}
}
