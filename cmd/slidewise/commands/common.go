package commands

import (
	"context"
	"fmt"

	"github.com/timmy/slidewise/internal/app"
	"github.com/timmy/slidewise/internal/config"
	"github.com/timmy/slidewise/internal/logger"
)

// loadConfig reads and validates the configuration at path.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newApp loads the config and wires the queue store for a command.
func newApp(ctx context.Context, configPath, serviceName string) (*app.App, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	appLogger := app.NewLogger(cfg.Log, serviceName)
	logger.SetDefaultLogger(appLogger)

	a, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	return a, nil
}
