package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, 10, cfg.MaxConcurrentInvocations)
	assert.Equal(t, 2*time.Minute, cfg.ActTimeout)
	assert.Equal(t, 0.02, cfg.PriceTieBand)
	assert.Equal(t, "brandmesh", cfg.ServiceName)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BRANDMESH_STORE", "sqlite")
	t.Setenv("BRANDMESH_SQLITE_PATH", "/tmp/bm.db")
	t.Setenv("BRANDMESH_ACT_TIMEOUT", "30s")
	t.Setenv("BRANDMESH_REASONING_EFFORT", "high")
	t.Setenv("BRANDMESH_OTEL_INSECURE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreSQLite, cfg.StoreBackend)
	assert.Equal(t, "/tmp/bm.db", cfg.SQLitePath)
	assert.Equal(t, 30*time.Second, cfg.ActTimeout)
	assert.Equal(t, "high", cfg.Effort)
	assert.True(t, cfg.OTELInsecure)
}

func TestLoadReportsAllBadValues(t *testing.T) {
	t.Setenv("BRANDMESH_MAX_URLS", "lots")
	t.Setenv("BRANDMESH_ACT_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `BRANDMESH_MAX_URLS="lots" is not a valid integer`)
	assert.Contains(t, err.Error(), `BRANDMESH_ACT_TIMEOUT="soon" is not a valid duration`)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEST_FLOAT", "0.05")
	f, err := envFloat("TEST_FLOAT", 0)
	require.NoError(t, err)
	assert.Equal(t, 0.05, f)

	t.Setenv("TEST_BOOL_BAD", "maybe")
	_, err = envBool("TEST_BOOL_BAD", false)
	assert.EqualError(t, err, `TEST_BOOL_BAD="maybe" is not a valid boolean`)

	n, err := envInt("TEST_INT_MISSING", 99)
	require.NoError(t, err)
	assert.Equal(t, 99, n)
}

func TestValidate(t *testing.T) {
	base, err := Load()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown store", func(c *Config) { c.StoreBackend = "redis" }},
		{"postgres without url", func(c *Config) { c.StoreBackend = StorePostgres }},
		{"bad effort", func(c *Config) { c.Effort = "extreme" }},
		{"zero concurrency", func(c *Config) { c.MaxConcurrentInvocations = 0 }},
		{"tie band too wide", func(c *Config) { c.PriceTieBand = 1.5 }},
		{"negative iterations", func(c *Config) { c.Agents = map[string]AgentConfig{"intel": {MaxIterations: -1}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestAgentsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brandmesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
agents:
  intel:
    model: gpt-4o
    max_iterations: 6
    effort: medium
  operations:
    disabled: true
pipeline:
  tie_band: 0.05
  max_urls: 3
`), 0o600))

	t.Setenv("BRANDMESH_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)

	intel := cfg.Agent("intel")
	assert.Equal(t, "gpt-4o", intel.Model)
	assert.Equal(t, 6, intel.MaxIterations)
	assert.True(t, cfg.Agent("operations").Disabled)
	assert.Equal(t, 0.05, cfg.PriceTieBand)
	assert.Equal(t, 3, cfg.MaxURLs)
	assert.Equal(t, 4, cfg.ScraperConcurrency)
}

func TestParseFile_RejectsUnknownKeys(t *testing.T) {
	_, err := ParseFile([]byte("agents:\n  intel:\n    temperature: 0.3\n"))
	assert.Error(t, err)

	f, err := ParseFile(nil)
	require.NoError(t, err)
	assert.Empty(t, f.Agents)
}
