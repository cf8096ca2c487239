package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/timmy/slidewise/internal/logger"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// ServeAction runs the HTTP API and the poller side by side. Either one
// failing stops the other.
func ServeAction(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(ctx, cmd.String("config"), "slidewise")
	if err != nil {
		return err
	}
	defer a.Close()

	engine, err := a.NewEngine()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	poller, err := a.NewPoller(gctx, engine)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: a.Router(),
	}

	g.Go(func() error {
		a.Logger.WithFields(logger.Fields{
			"port": a.Config.Server.Port,
			"mode": a.Config.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return poller.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
