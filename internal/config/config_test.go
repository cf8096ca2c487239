package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg, err := Load(writeConfig(t, "server:\n  port: 8080\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "table", cfg.Queue.Backend)
	assert.Equal(t, 10*time.Second, cfg.Queue.PollInterval)
	assert.Equal(t, "resty", cfg.Provider.Client)
	assert.Equal(t, "gpt-3.5-turbo", cfg.Provider.Model)
	assert.Equal(t, 200, cfg.Provider.MaxTokens)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "local", cfg.Storage.Type)
	assert.Zero(t, cfg.Engine.MaxConcurrency)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileAndEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("QUEUE_BACKEND", "fs")

	cfg, err := Load(writeConfig(t, `
queue:
  poll_interval: 2s
  inbound_dir: /srv/in
  output_dir: /srv/out
  stale_after: 30m
engine:
  max_concurrency: 4
  part_timeout: 45s
provider:
  client: sdk
  model: gpt-4o-mini
`))
	require.NoError(t, err)

	assert.Equal(t, "fs", cfg.Queue.Backend)
	assert.Equal(t, 2*time.Second, cfg.Queue.PollInterval)
	assert.Equal(t, 30*time.Minute, cfg.Queue.StaleAfter)
	assert.Equal(t, 4, cfg.Engine.MaxConcurrency)
	assert.Equal(t, 45*time.Second, cfg.Engine.PartTimeout)
	assert.Equal(t, "sdk", cfg.Provider.Client)
	assert.Equal(t, "sk-test", cfg.Provider.APIKey)
	assert.NoError(t, cfg.Provider.ValidateWithAPIKey())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Database: DatabaseConfig{Driver: "sqlite", Path: "x.db"},
			Storage:  StorageConfig{Type: "local", LocalDir: "data"},
			Queue:    QueueConfig{Backend: "table", PollInterval: time.Second},
			Provider: ProviderConfig{Client: "resty", Model: "m", MaxTokens: 10},
		}
	}
	require.NoError(t, base().Validate())

	testCases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"postgres without url", func(c *Config) { c.Database.Driver = "postgres" }},
		{"unknown backend", func(c *Config) { c.Queue.Backend = "redis" }},
		{"fs without dirs", func(c *Config) { c.Queue.Backend = "fs" }},
		{"zero poll interval", func(c *Config) { c.Queue.PollInterval = 0 }},
		{"negative concurrency", func(c *Config) { c.Engine.MaxConcurrency = -1 }},
		{"s3 without bucket", func(c *Config) { c.Storage = StorageConfig{Type: "s3", Endpoint: "s3.amazonaws.com"} }},
		{"unknown client", func(c *Config) { c.Provider.Client = "grpc" }},
		{"zero max tokens", func(c *Config) { c.Provider.MaxTokens = 0 }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestProviderAPIKeyEnv(t *testing.T) {
	t.Setenv("MY_KEY", "from-env")
	p := ProviderConfig{Client: "resty", Model: "m", MaxTokens: 1, APIKeyEnv: "MY_KEY"}
	assert.Error(t, p.ValidateWithAPIKey())

	p.ResolveEnvVars()
	assert.Equal(t, "from-env", p.APIKey)
	assert.NoError(t, p.ValidateWithAPIKey())
}
