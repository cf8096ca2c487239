package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/timmy/slidewise/internal/app"
	"github.com/timmy/slidewise/internal/domain"
	"github.com/timmy/slidewise/internal/export"
	"github.com/timmy/slidewise/internal/logger"
	"github.com/urfave/cli/v3"
)

// ExplainAction explains one local document and writes the result next to it
// (or into --destination). It does not touch the queue.
func ExplainAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one document path")
	}
	path := cmd.Args().First()

	format, err := export.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	appLogger := app.NewLogger(cfg.Log, "slidewise-cli")
	logger.SetDefaultLogger(appLogger)

	a := &app.App{Config: cfg, Logger: appLogger, Sources: app.NewSources()}
	engine, err := a.NewEngine()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("cannot read document: %w", err)
	}

	h := localHandle(path)
	if !a.Sources.Supports(h.Extension()) {
		return fmt.Errorf("unsupported document type %q (supported: %v)", h.Extension(), a.Sources.Extensions())
	}

	artifact, err := engine.Process(ctx, h)
	if err != nil {
		return err
	}

	dir := cmd.String("destination")
	if dir == "" {
		dir = filepath.Dir(path)
	}
	out, err := writeArtifact(dir, artifact, format)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.Root().Writer, "%s\n", out)
	return nil
}

// localHandle wraps a file on disk as a document handle.
func localHandle(path string) domain.DocumentHandle {
	return domain.NewDocumentHandle(uuid.New().String(), filepath.Base(path), func(ctx context.Context) (io.ReadCloser, error) {
		return os.Open(path)
	})
}

// writeArtifact renders the artifact into dir as "<lecture name>.<format>".
// Returns the written path.
func writeArtifact(dir string, artifact *domain.ExplanationArtifact, format export.Format) (string, error) {
	data, err := export.Render(format, artifact)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create destination: %w", err)
	}
	out := filepath.Join(dir, artifact.LectureName+"."+string(format))
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", out, err)
	}
	return out, nil
}
