package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/timmy/slidewise/internal/domain"
	"github.com/timmy/slidewise/internal/export"
	"github.com/urfave/cli/v3"
)

// StatusAction prints the state of a job.
func StatusAction(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("job id is required")
	}

	a, err := newApp(ctx, cmd.String("config"), "slidewise-cli")
	if err != nil {
		return err
	}
	defer a.Close()

	view, err := a.Store.Lookup(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("job %s not found", id)
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.Root().Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", view.ID)
	fmt.Fprintf(w, "Status:\t%s\n", view.Status)
	fmt.Fprintf(w, "Document:\t%s\n", view.Filename)
	if !view.SubmittedAt.IsZero() {
		fmt.Fprintf(w, "Submitted:\t%s\n", view.SubmittedAt.Format("2006-01-02 15:04:05"))
	}
	if view.CompletedAt != nil {
		fmt.Fprintf(w, "Completed:\t%s\n", view.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	if view.Status == domain.JobStatusDone {
		fmt.Fprintf(w, "Explanations:\t%d\n", len(view.Explanations))
	}
	if view.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:\t%s\n", view.ErrorMessage)
	}
	return w.Flush()
}

// ExportAction writes a done job's explanations to --output.
func ExportAction(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("job id is required")
	}
	format, err := export.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cmd.String("config"), "slidewise-cli")
	if err != nil {
		return err
	}
	defer a.Close()

	artifact, err := a.Store.Artifact(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("job %s has no explanations (not found or not done)", id)
	}
	if err != nil {
		return err
	}

	data, err := export.Render(format, artifact)
	if err != nil {
		return err
	}
	out := cmd.String("output")
	if dir := filepath.Dir(out); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	fmt.Fprintf(cmd.Root().Writer, "%s\n", out)
	return nil
}
