package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Version != CurrentVersion {
		t.Errorf("Version = %d, want %d", cfg.Version, CurrentVersion)
	}
	if cfg.Parser.MaxFileSizeBytes != 256*1024 {
		t.Errorf("MaxFileSizeBytes = %d, want 262144", cfg.Parser.MaxFileSizeBytes)
	}
	if cfg.Parser.MaxDepth != 512 {
		t.Errorf("MaxDepth = %d, want 512", cfg.Parser.MaxDepth)
	}
	if cfg.Discovery.CacheTtlSeconds != 30 {
		t.Errorf("CacheTtlSeconds = %d, want 30", cfg.Discovery.CacheTtlSeconds)
	}
	if cfg.Index.DebounceMs != 750 {
		t.Errorf("DebounceMs = %d, want 750", cfg.Index.DebounceMs)
	}
	if !cfg.Exclusions.RespectGitignore {
		t.Error("RespectGitignore should default to true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad version", func(c *Config) { c.Version = 99 }, "version"},
		{"zero size limit", func(c *Config) { c.Parser.MaxFileSizeBytes = 0 }, "parser.maxFileSizeBytes"},
		{"zero depth", func(c *Config) { c.Parser.MaxDepth = 0 }, "parser.maxDepth"},
		{"unknown language", func(c *Config) { c.Parser.Languages = []string{"cobol"} }, "parser.languages"},
		{"unknown category", func(c *Config) { c.Exclusions.Categories = []string{"nope"} }, "exclusions.categories"},
		{"no workers", func(c *Config) { c.Index.Workers = 0 }, "index.workers"},
		{"negative debounce", func(c *Config) { c.Index.DebounceMs = -1 }, "index.debounceMs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			cerr, ok := err.(*ConfigError)
			if !ok {
				t.Fatalf("expected *ConfigError, got %T", err)
			}
			if cerr.Field != tt.wantErr {
				t.Errorf("Field = %q, want %q", cerr.Field, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Index.Workers != DefaultConfig().Index.Workers {
		t.Errorf("Workers = %d, want default", cfg.Index.Workers)
	}
}

func TestLoadConfig_PartialFile(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, ".codekb")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	data := `{"version": 1, "index": {"bulkThreshold": 7}}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(root)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Index.BulkThreshold != 7 {
		t.Errorf("BulkThreshold = %d, want 7", cfg.Index.BulkThreshold)
	}
	if cfg.Index.DebounceMs != 750 {
		t.Errorf("DebounceMs = %d, want default 750", cfg.Index.DebounceMs)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("CODEKB_INDEX_WORKERS", "9")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Index.Workers != 9 {
		t.Errorf("Workers = %d, want 9", cfg.Index.Workers)
	}
}

func TestLoadConfig_ExclusionsFile(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, ".codekb")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	toml := "[exclusions]\nalways = [\"fixtures\"]\nnever = [\"build\"]\n"
	if err := os.WriteFile(filepath.Join(dir, "exclusions.toml"), []byte(toml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(root)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(cfg.Exclusions.Always) != 1 || cfg.Exclusions.Always[0] != "fixtures" {
		t.Errorf("Always = %v, want [fixtures]", cfg.Exclusions.Always)
	}
	if len(cfg.Exclusions.Never) != 1 || cfg.Exclusions.Never[0] != "build" {
		t.Errorf("Never = %v, want [build]", cfg.Exclusions.Never)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.Index.RebuildOnSave = true

	if err := cfg.Save(root); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := LoadConfig(root)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !loaded.Index.RebuildOnSave {
		t.Error("RebuildOnSave lost on round trip")
	}
}
