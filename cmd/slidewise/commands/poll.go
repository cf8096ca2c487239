package commands

import (
	"context"

	"github.com/urfave/cli/v3"
)

// PollAction runs the queue poller until the context is cancelled.
// With --once it processes at most one job and returns.
func PollAction(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(ctx, cmd.String("config"), "slidewise-poller")
	if err != nil {
		return err
	}
	defer a.Close()

	engine, err := a.NewEngine()
	if err != nil {
		return err
	}
	poller, err := a.NewPoller(ctx, engine)
	if err != nil {
		return err
	}

	if cmd.Bool("once") {
		processed, err := poller.RunOnce(ctx)
		if err != nil {
			return err
		}
		if !processed {
			a.Logger.Info("No pending job")
		}
		return nil
	}

	return poller.Run(ctx)
}
