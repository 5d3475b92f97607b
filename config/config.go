// Package config loads runtime configuration from BRANDMESH_* environment
// variables and an optional YAML agents file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/brandmesh/model"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config holds all runtime configuration.
type Config struct {
	StoreBackend string // "memory", "sqlite" or "postgres"
	SQLitePath   string
	DatabaseURL  string

	AnthropicAPIKey string
	OpenAIAPIKey    string
	ToolModel       string // Model serving tool-calling requests.
	ReasoningModel  string // Model serving requests without tools.
	Effort          string

	MaxConcurrentInvocations int
	ActTimeout               time.Duration
	SettingsTTL              time.Duration

	JWTPrivateKeyPath string // Path to Ed25519 private key PEM file.
	JWTPublicKeyPath  string // Path to Ed25519 public key PEM file.
	JWTExpiration     time.Duration

	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	LogLevel  string
	LogFormat string

	ScraperConcurrency int
	PriceTieBand       float64
	MaxURLs            int
	SearchURL          string // JSON search endpoint backing search_web.

	AgentsFile string
	Agents     map[string]AgentConfig
}

// AgentConfig overrides the defaults of one agent.
type AgentConfig struct {
	Model         string `yaml:"model"`
	MaxIterations int    `yaml:"max_iterations"`
	Effort        string `yaml:"effort"`
	Instructions  string `yaml:"instructions"`
	Disabled      bool   `yaml:"disabled"`
}

// File is the layout of the YAML file named by BRANDMESH_CONFIG.
type File struct {
	Agents   map[string]AgentConfig `yaml:"agents"`
	Pipeline *PipelineFile          `yaml:"pipeline"`
}

// PipelineFile overrides pipeline defaults.
type PipelineFile struct {
	ScraperConcurrency int     `yaml:"scraper_concurrency"`
	TieBand            float64 `yaml:"tie_band"`
	MaxURLs            int     `yaml:"max_urls"`
}

// Load reads the environment, overlays the agents file if one is named and
// validates the result.
func Load() (Config, error) {
	var errs []error

	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := Config{
		StoreBackend:      envStr("BRANDMESH_STORE", StoreMemory),
		SQLitePath:        envStr("BRANDMESH_SQLITE_PATH", "brandmesh.db"),
		DatabaseURL:       envStr("DATABASE_URL", ""),
		AnthropicAPIKey:   envStr("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:      envStr("OPENAI_API_KEY", ""),
		ToolModel:         envStr("BRANDMESH_TOOL_MODEL", "gpt-4o-mini"),
		ReasoningModel:    envStr("BRANDMESH_REASONING_MODEL", "claude-sonnet-4-5"),
		Effort:            envStr("BRANDMESH_REASONING_EFFORT", ""),
		JWTPrivateKeyPath: envStr("BRANDMESH_JWT_PRIVATE_KEY", ""),
		JWTPublicKeyPath:  envStr("BRANDMESH_JWT_PUBLIC_KEY", ""),
		OTELEndpoint:      envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:       envStr("OTEL_SERVICE_NAME", "brandmesh"),
		LogLevel:          envStr("BRANDMESH_LOG_LEVEL", "info"),
		LogFormat:         envStr("BRANDMESH_LOG_FORMAT", "text"),
		SearchURL:         envStr("BRANDMESH_SEARCH_URL", ""),
		AgentsFile:        envStr("BRANDMESH_CONFIG", ""),
	}

	var err error

	cfg.MaxConcurrentInvocations, err = envInt("BRANDMESH_MAX_CONCURRENT_INVOCATIONS", 10)
	collect(err)
	cfg.ActTimeout, err = envDuration("BRANDMESH_ACT_TIMEOUT", 2*time.Minute)
	collect(err)
	cfg.SettingsTTL, err = envDuration("BRANDMESH_SETTINGS_TTL", 5*time.Minute)
	collect(err)
	cfg.JWTExpiration, err = envDuration("BRANDMESH_JWT_EXPIRATION", 24*time.Hour)
	collect(err)
	cfg.OTELInsecure, err = envBool("BRANDMESH_OTEL_INSECURE", false)
	collect(err)
	cfg.ScraperConcurrency, err = envInt("BRANDMESH_SCRAPER_CONCURRENCY", 4)
	collect(err)
	cfg.PriceTieBand, err = envFloat("BRANDMESH_PRICE_TIE_BAND", 0.02)
	collect(err)
	cfg.MaxURLs, err = envInt("BRANDMESH_MAX_URLS", 10)
	collect(err)

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}

	if cfg.AgentsFile != "" {
		f, err := LoadFile(cfg.AgentsFile)
		if err != nil {
			return Config{}, err
		}

		cfg.Apply(f)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadFile parses a YAML agents file.
func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	return ParseFile(data)
}

// ParseFile parses YAML agents file content. Unknown keys are rejected.
func ParseFile(data []byte) (File, error) {
	var f File

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("config: parse yaml: %w", err)
	}

	return f, nil
}

// Apply overlays f onto c.
func (c *Config) Apply(f File) {
	if len(f.Agents) > 0 {
		if c.Agents == nil {
			c.Agents = make(map[string]AgentConfig, len(f.Agents))
		}
		for name, a := range f.Agents {
			c.Agents[name] = a
		}
	}

	if p := f.Pipeline; p != nil {
		if p.ScraperConcurrency > 0 {
			c.ScraperConcurrency = p.ScraperConcurrency
		}
		if p.TieBand > 0 {
			c.PriceTieBand = p.TieBand
		}
		if p.MaxURLs > 0 {
			c.MaxURLs = p.MaxURLs
		}
	}
}

// Agent returns the overrides for name, if any.
func (c Config) Agent(name string) AgentConfig {
	return c.Agents[name]
}

// Validate reports impossible values.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("config: BRANDMESH_SQLITE_PATH is required for the sqlite store")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("config: unknown BRANDMESH_STORE %q", c.StoreBackend)
	}

	if _, err := model.ParseEffort(c.Effort); err != nil {
		return fmt.Errorf("config: BRANDMESH_REASONING_EFFORT: %w", err)
	}
	if c.MaxConcurrentInvocations <= 0 {
		return fmt.Errorf("config: BRANDMESH_MAX_CONCURRENT_INVOCATIONS must be positive")
	}
	if c.ActTimeout <= 0 {
		return fmt.Errorf("config: BRANDMESH_ACT_TIMEOUT must be positive")
	}
	if c.SettingsTTL <= 0 {
		return fmt.Errorf("config: BRANDMESH_SETTINGS_TTL must be positive")
	}
	if c.ScraperConcurrency <= 0 {
		return fmt.Errorf("config: BRANDMESH_SCRAPER_CONCURRENCY must be positive")
	}
	if c.PriceTieBand < 0 || c.PriceTieBand >= 1 {
		return fmt.Errorf("config: BRANDMESH_PRICE_TIE_BAND must be in [0, 1)")
	}
	if c.MaxURLs <= 0 {
		return fmt.Errorf("config: BRANDMESH_MAX_URLS must be positive")
	}

	for name, a := range c.Agents {
		if a.MaxIterations < 0 {
			return fmt.Errorf("config: agent %s: max_iterations must not be negative", name)
		}
		if _, err := model.ParseEffort(a.Effort); err != nil {
			return fmt.Errorf("config: agent %s: %w", name, err)
		}
	}

	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
