package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Ingestion.Intervals.News.Std() != 30*time.Minute {
		t.Errorf("expected news interval 30m, got %s", cfg.Ingestion.Intervals.News.Std())
	}
	if cfg.Chunking.Window != 1000 || cfg.Chunking.Stride != 900 {
		t.Errorf("unexpected chunking defaults: %+v", cfg.Chunking)
	}
	if len(cfg.Sources.News.Feeds) == 0 {
		t.Error("expected feeds to be populated")
	}
	// The connector appends only query parameters, so the default must
	// name the list endpoint itself, not the API root.
	if cfg.Sources.Disclosures.BaseURL != "https://opendart.fss.or.kr/api/list.json" {
		t.Errorf("unexpected disclosure base URL %q", cfg.Sources.Disclosures.BaseURL)
	}
	if cfg.AI.EmbeddingModel != "embeddinggemma" {
		t.Errorf("expected embedding model 'embeddinggemma', got %q", cfg.AI.EmbeddingModel)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
server:
  port: 9000
retrieval:
  top_k: 12
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Retrieval.TopK != 12 {
		t.Errorf("expected top_k 12, got %d", cfg.Retrieval.TopK)
	}
	// Defaults should still be set for unspecified fields
	if cfg.AI.EmbeddingHost != "http://localhost:11434/v1" {
		t.Errorf("expected default embedding host, got %q", cfg.AI.EmbeddingHost)
	}
	if cfg.Ingestion.Intervals.Disclosure.Std() != 6*time.Hour {
		t.Errorf("expected default disclosure interval, got %s", cfg.Ingestion.Intervals.Disclosure.Std())
	}
}

func TestParseDurations(t *testing.T) {
	cfg, err := parse([]byte(`
ingestion:
  intervals:
    news: 5m
retrieval:
  half_life: 168h
`))
	if err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}
	if cfg.Ingestion.Intervals.News.Std() != 5*time.Minute {
		t.Errorf("expected 5m, got %s", cfg.Ingestion.Intervals.News.Std())
	}
	if cfg.Retrieval.HalfLife.Std() != 7*24*time.Hour {
		t.Errorf("expected 168h, got %s", cfg.Retrieval.HalfLife.Std())
	}

	if _, err := parse([]byte("server:\n  request_timeout: soon\n")); err == nil {
		t.Error("expected error for malformed duration")
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad port", "server:\n  port: 70000\n", "server.port"},
		{"zero concurrency", "ingestion:\n  concurrency: 0\n", "ingestion.concurrency"},
		{"stride above window", "chunking:\n  window: 100\n  stride: 200\n", "chunking.stride"},
		{"negative min score", "retrieval:\n  min_score: -0.5\n", "retrieval.min_score"},
		{"bad log level", "logging:\n  level: verbose\n", "logging.level"},
		{"duplicate company", "companies:\n  - code: \"005930\"\n    name: A\n  - code: \"005930\"\n    name: B\n", "duplicate company"},
		{"feed missing url", "sources:\n  news:\n    feeds:\n      - company_code: \"005930\"\n", "sources.news.feeds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %q", tt.want, err)
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Storage.Path != "hegemon.db" {
		t.Errorf("expected storage path 'hegemon.db', got %q", cfg.Storage.Path)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestRoster(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("failed to load default config: %v", err)
	}

	roster := cfg.Roster()
	if len(roster) == 0 {
		t.Fatal("expected built-in roster when companies list is empty")
	}

	cfg.Companies = []Company{{Code: "005380", Name: "Hyundai Motor", Industry: "automotive"}}
	roster = cfg.Roster()
	if len(roster) != 1 || roster[0].Code != "005380" {
		t.Errorf("expected configured roster override, got %+v", roster)
	}
}
