package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/timmy/slidewise/internal/api/handler"
	"github.com/timmy/slidewise/internal/config"
	"github.com/timmy/slidewise/internal/logger"
	"github.com/timmy/slidewise/internal/queue"
	"github.com/timmy/slidewise/internal/repository"
	"github.com/timmy/slidewise/internal/service"
	"github.com/timmy/slidewise/internal/source"
	"github.com/timmy/slidewise/internal/source/markdown"
	"github.com/timmy/slidewise/internal/source/pptx"
	"github.com/timmy/slidewise/internal/storage"
	"gorm.io/gorm"
)

// App holds the wired components shared by the binaries.
type App struct {
	Config  *config.Config
	Logger  *logger.Logger
	Sources *source.Registry
	Store   queue.Store

	db      *gorm.DB
	storage storage.ObjectStorage
	watcher *queue.Watcher
}

// NewLogger builds the process logger from the log section, falling back to
// LOG_* environment variables for rotation settings.
func NewLogger(cfg config.LogConfig, serviceName string) *logger.Logger {
	envCfg := logger.LoadFromEnv().WithService(serviceName)
	if cfg.Level != "" {
		envCfg.Level = cfg.Level
	}
	if cfg.Format != "" {
		envCfg.Format = cfg.Format
	}
	if cfg.Environment != "" {
		envCfg.Environment = cfg.Environment
	}
	if cfg.File != "" {
		envCfg.LogFile = cfg.File
	}
	return logger.NewFromEnv(envCfg)
}

// NewSources returns the registry of every supported document format.
func NewSources() *source.Registry {
	return source.NewRegistry(pptx.New(), markdown.New())
}

// New wires the queue store for the configured backend.
// Parameters:
//   - ctx: context for start-up calls (bucket checks).
//   - cfg: validated configuration.
//   - log: process logger.
// Returns:
//   - *App: wired application; call Close when done.
//   - error: non-nil if a backing store cannot be reached.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{
		Config:  cfg,
		Logger:  log,
		Sources: NewSources(),
	}

	switch cfg.Queue.Backend {
	case "fs":
		fsq, err := queue.NewFSQueue(queue.FSConfig{
			InboundDir: cfg.Queue.InboundDir,
			OutputDir:  cfg.Queue.OutputDir,
			FailedDir:  cfg.Queue.FailedDir,
		}, log)
		if err != nil {
			return nil, err
		}
		a.Store = fsq

	case "table":
		db, err := repository.InitDB(&cfg.Database)
		if err != nil {
			return nil, err
		}
		a.db = db

		objectStorage, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		if s3s, ok := objectStorage.(*storage.S3Storage); ok {
			if err := s3s.EnsureBucket(ctx); err != nil {
				a.Close()
				return nil, fmt.Errorf("failed to ensure storage bucket: %w", err)
			}
		}
		a.storage = objectStorage
		a.Store = queue.NewTableQueue(repository.NewJobRepository(db), objectStorage, log)

	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
	}

	log.WithField(logger.FieldQueueBackend, cfg.Queue.Backend).Info("Queue store ready")
	return a, nil
}

// NewEngine builds the explanation engine with the configured provider.
func (a *App) NewEngine() (*service.ExplainEngine, error) {
	p := a.Config.Provider
	if err := p.ValidateWithAPIKey(); err != nil {
		return nil, err
	}
	explainer, err := service.NewExplainer(p.Client, &service.LLMConfig{
		Model:      p.Model,
		APIKey:     p.APIKey,
		BaseURL:    p.BaseURL,
		MaxTokens:  p.MaxTokens,
		Timeout:    p.Timeout,
		RetryCount: p.RetryCount,
	})
	if err != nil {
		return nil, err
	}
	return service.NewExplainEngine(a.Sources, explainer, a.Logger, &service.EngineConfig{
		MaxConcurrency: a.Config.Engine.MaxConcurrency,
		PartTimeout:    a.Config.Engine.PartTimeout,
	}), nil
}

// NewPoller builds the poller. For the fs backend with queue.watch set it
// also starts an inbound watcher bound to ctx.
func (a *App) NewPoller(ctx context.Context, engine queue.Processor) (*queue.Poller, error) {
	if fsq, ok := a.Store.(*queue.FSQueue); ok && a.Config.Queue.Watch {
		w, err := fsq.Watch(a.Config.Queue.WatchDebounce)
		if err != nil {
			a.Logger.WithError(err).Warn("Inbound watcher unavailable, polling only")
		} else {
			a.watcher = w
			go w.Run(ctx)
		}
	}

	return queue.NewPoller(a.Store, engine, a.Logger, &queue.PollerConfig{
		Interval:   a.Config.Queue.PollInterval,
		StaleAfter: a.Config.Queue.StaleAfter,
		Backend:    a.Config.Queue.Backend,
	}), nil
}

// HealthChecks returns probes for the backing stores in use.
func (a *App) HealthChecks() []handler.HealthCheck {
	var checks []handler.HealthCheck
	if a.db != nil {
		checks = append(checks, handler.HealthCheck{
			Name: "database",
			Check: func(ctx context.Context) error {
				sqlDB, err := a.db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
		})
	}
	if a.Config.Queue.Backend == "fs" {
		dir := a.Config.Queue.InboundDir
		checks = append(checks, handler.HealthCheck{
			Name: "inbound_dir",
			Check: func(ctx context.Context) error {
				_, err := os.Stat(dir)
				return err
			},
		})
	}
	return checks
}

// Close releases the database and watcher.
func (a *App) Close() error {
	var errs []error
	if a.watcher != nil {
		errs = append(errs, a.watcher.Close())
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
