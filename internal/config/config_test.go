package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DOCREAD_CONFIG", "")
	t.Setenv("PORT", "")
	t.Setenv("WORKER_COUNT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8090" {
		t.Errorf("expected port %q, got %q", "8090", cfg.Port)
	}
	if cfg.WorkerCount != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.WorkerCount)
	}
	if cfg.CHMExtractor != "7z" {
		t.Errorf("expected chm extractor %q, got %q", "7z", cfg.CHMExtractor)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docread.yaml")
	data := "port: \"9000\"\nworker_count: 2\njob_ttl: 10m\nchm_extractor: /usr/bin/7z\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DOCREAD_CONFIG", path)
	t.Setenv("PORT", "9100")
	t.Setenv("WORKER_COUNT", "")
	t.Setenv("JOB_TTL", "")
	t.Setenv("CHM_EXTRACTOR", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "9100" {
		t.Errorf("env should win over file: expected %q, got %q", "9100", cfg.Port)
	}
	if cfg.WorkerCount != 2 {
		t.Errorf("expected 2 workers from file, got %d", cfg.WorkerCount)
	}
	if cfg.JobTTL != 10*time.Minute {
		t.Errorf("expected job ttl 10m, got %v", cfg.JobTTL)
	}
	if cfg.CHMExtractor != "/usr/bin/7z" {
		t.Errorf("expected extractor from file, got %q", cfg.CHMExtractor)
	}
}

func TestLoad_PdftotextFallback(t *testing.T) {
	tests := []struct {
		env  string
		want bool
	}{
		{"", true},
		{"false", false},
		{"0", false},
		{"true", true},
		{"maybe", true},
	}
	for _, tt := range tests {
		t.Run("env="+tt.env, func(t *testing.T) {
			t.Setenv("DOCREAD_CONFIG", "")
			t.Setenv("PDF_FALLBACK_PDFTOTEXT", tt.env)
			cfg, err := Load()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.PDFFallbackPdftotext != tt.want {
				t.Errorf("expected %v, got %v", tt.want, cfg.PDFFallbackPdftotext)
			}
		})
	}
}

func TestLoad_BadFile(t *testing.T) {
	t.Setenv("DOCREAD_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.WorkerCount = 0 }},
		{"zero queue", func(c *Config) { c.MaxQueueSize = 0 }},
		{"zero upload", func(c *Config) { c.MaxUploadBytes = 0 }},
		{"negative ttl", func(c *Config) { c.DocumentTTL = -time.Second }},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
		{"empty port", func(c *Config) { c.Port = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if level != slog.LevelDebug {
		t.Errorf("expected debug, got %v", level)
	}
}
