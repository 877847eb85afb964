// Package config loads and validates the YAML runtime configuration.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/poiesic/hegemon/core"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// Duration is a time.Duration that unmarshals from YAML strings like
// "30m" or "6h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the config duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Storage   Storage   `yaml:"storage"`
	Server    Server    `yaml:"server"`
	AI        AI        `yaml:"ai"`
	Ingestion Ingestion `yaml:"ingestion"`
	Chunking  Chunking  `yaml:"chunking"`
	Retrieval Retrieval `yaml:"retrieval"`
	Sources   Sources   `yaml:"sources"`
	Companies []Company `yaml:"companies"`
	Logging   Logging   `yaml:"logging"`
}

type Storage struct {
	Path string `yaml:"path"`
}

type Server struct {
	Port           int      `yaml:"port"`
	RequestTimeout Duration `yaml:"request_timeout"`
}

type AI struct {
	EmbeddingHost  string `yaml:"embedding_host"`
	GeneratorHost  string `yaml:"generator_host"`
	EmbeddingModel string `yaml:"embedding_model"`
	GeneratorModel string `yaml:"generator_model"`
}

type Ingestion struct {
	Concurrency   int       `yaml:"concurrency"`
	RetryAttempts int       `yaml:"retry_attempts"`
	RetryBase     Duration  `yaml:"retry_base"`
	Intervals     Intervals `yaml:"intervals"`
}

type Intervals struct {
	Disclosure Duration `yaml:"disclosure"`
	News       Duration `yaml:"news"`
	Market     Duration `yaml:"market"`
}

type Chunking struct {
	Window int `yaml:"window"`
	Stride int `yaml:"stride"`
}

type Retrieval struct {
	TopK      int      `yaml:"top_k"`
	OverFetch int      `yaml:"over_fetch"`
	HalfLife  Duration `yaml:"half_life"`
	MinScore  float64  `yaml:"min_score"`
}

type Sources struct {
	Disclosures Disclosures `yaml:"disclosures"`
	News        News        `yaml:"news"`
	Market      Market      `yaml:"market"`
}

type Disclosures struct {
	Enabled   bool   `yaml:"enabled"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type News struct {
	Enabled bool   `yaml:"enabled"`
	Feeds   []Feed `yaml:"feeds"`
}

type Feed struct {
	CompanyCode string `yaml:"company_code"`
	URL         string `yaml:"url"`
}

type Market struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
}

type Company struct {
	Code     string `yaml:"code"`
	Name     string `yaml:"name"`
	Industry string `yaml:"industry"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// Load reads, parses, and validates a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the embedded default configuration.
func Default() (*Config, error) {
	return parse(DefaultConfigYAML)
}

// parse parses YAML bytes into a Config, applying defaults for
// unspecified fields, then validates the result.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Storage: Storage{Path: "hegemon.db"},
		Server: Server{
			Port:           8080,
			RequestTimeout: Duration(60 * time.Second),
		},
		AI: AI{
			EmbeddingHost:  "http://localhost:11434/v1",
			GeneratorHost:  "http://localhost:11434/v1",
			EmbeddingModel: "embeddinggemma",
			GeneratorModel: "qwen2.5:3b",
		},
		Ingestion: Ingestion{
			Concurrency:   2,
			RetryAttempts: 3,
			RetryBase:     Duration(500 * time.Millisecond),
			Intervals: Intervals{
				Disclosure: Duration(6 * time.Hour),
				News:       Duration(30 * time.Minute),
				Market:     Duration(time.Hour),
			},
		},
		Chunking: Chunking{Window: 1000, Stride: 900},
		Retrieval: Retrieval{
			TopK:      8,
			OverFetch: 4,
			HalfLife:  Duration(30 * 24 * time.Hour),
		},
		Sources: Sources{
			Disclosures: Disclosures{
				Enabled:   true,
				BaseURL:   "https://opendart.fss.or.kr/api",
				APIKeyEnv: "DART_API_KEY",
			},
			News:   News{Enabled: true},
			Market: Market{Enabled: false},
		},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the config for values the runtime cannot work with.
func (c *Config) Validate() error {
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path must not be empty")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be positive")
	}
	if c.Ingestion.Concurrency < 1 {
		return fmt.Errorf("ingestion.concurrency must be at least 1, got %d", c.Ingestion.Concurrency)
	}
	if c.Ingestion.RetryAttempts < 1 {
		return fmt.Errorf("ingestion.retry_attempts must be at least 1, got %d", c.Ingestion.RetryAttempts)
	}
	for name, interval := range map[string]Duration{
		"ingestion.intervals.disclosure": c.Ingestion.Intervals.Disclosure,
		"ingestion.intervals.news":       c.Ingestion.Intervals.News,
		"ingestion.intervals.market":     c.Ingestion.Intervals.Market,
	} {
		if interval <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Chunking.Window < 1 {
		return fmt.Errorf("chunking.window must be at least 1, got %d", c.Chunking.Window)
	}
	if c.Chunking.Stride < 1 || c.Chunking.Stride >= c.Chunking.Window {
		return fmt.Errorf("chunking.stride must be between 1 and chunking.window-1, got %d", c.Chunking.Stride)
	}
	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("retrieval.top_k must be at least 1, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.OverFetch < 1 {
		return fmt.Errorf("retrieval.over_fetch must be at least 1, got %d", c.Retrieval.OverFetch)
	}
	if c.Retrieval.HalfLife <= 0 {
		return fmt.Errorf("retrieval.half_life must be positive")
	}
	if c.Retrieval.MinScore < 0 || c.Retrieval.MinScore > 1 {
		return fmt.Errorf("retrieval.min_score must be between 0 and 1, got %g", c.Retrieval.MinScore)
	}
	seen := make(map[string]bool, len(c.Companies))
	for _, company := range c.Companies {
		if company.Code == "" || company.Name == "" {
			return fmt.Errorf("companies entries need both code and name")
		}
		if seen[company.Code] {
			return fmt.Errorf("duplicate company code %q", company.Code)
		}
		seen[company.Code] = true
	}
	for _, feed := range c.Sources.News.Feeds {
		if feed.CompanyCode == "" || feed.URL == "" {
			return fmt.Errorf("sources.news.feeds entries need both company_code and url")
		}
	}
	switch c.Logging.Level {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("logging.level must be one of DEBUG, INFO, WARN, ERROR, got %q", c.Logging.Level)
	}
	return nil
}

// Roster converts the configured company list into registry entries,
// falling back to the built-in roster when none are configured.
func (c *Config) Roster() []core.Company {
	if len(c.Companies) == 0 {
		return core.DefaultRoster()
	}
	roster := make([]core.Company, len(c.Companies))
	for i, company := range c.Companies {
		roster[i] = core.Company{
			Code:     company.Code,
			Name:     company.Name,
			Industry: company.Industry,
		}
	}
	return roster
}
