package config

import (
	"fmt"
	"os"
	"time"
)

// ProviderConfig configures the text-generation provider that explains slides.
type ProviderConfig struct {
	Client     string        `mapstructure:"client"`      // "resty" (OpenAI-compatible HTTP) or "sdk" (openai-go)
	Model      string        `mapstructure:"model"`       // Model name/ID
	APIKey     string        `mapstructure:"api_key"`     // API key (can be set directly or via env var)
	APIKeyEnv  string        `mapstructure:"api_key_env"` // Environment variable name for API key
	BaseURL    string        `mapstructure:"base_url"`    // Base URL for OpenAI-compatible APIs
	MaxTokens  int           `mapstructure:"max_tokens"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryCount int           `mapstructure:"retry_count"`
}

// ResolveEnvVars loads the API key from APIKeyEnv when it was not set directly.
func (c *ProviderConfig) ResolveEnvVars() {
	if c.APIKeyEnv != "" && c.APIKey == "" {
		if val := os.Getenv(c.APIKeyEnv); val != "" {
			c.APIKey = val
		}
	}
}

// Validate checks that the provider configuration has all required fields.
// Returns an error describing the first validation failure, or nil if valid.
func (c *ProviderConfig) Validate() error {
	switch c.Client {
	case "resty", "sdk":
	default:
		return fmt.Errorf("provider: unknown client %q", c.Client)
	}
	if c.Model == "" {
		return fmt.Errorf("provider: model is required")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("provider: max_tokens must be positive")
	}
	if c.RetryCount < 0 {
		return fmt.Errorf("provider: retry_count must not be negative")
	}
	return nil
}

// ValidateWithAPIKey validates the configuration including API key requirement.
// Use this when the provider will actually be called.
func (c *ProviderConfig) ValidateWithAPIKey() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.APIKey == "" {
		return fmt.Errorf("provider: api_key is required (set directly or via %s)", c.APIKeyEnv)
	}
	return nil
}
