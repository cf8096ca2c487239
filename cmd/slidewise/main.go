package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/timmy/slidewise/cmd/slidewise/commands"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configFlag := &cli.StringFlag{
		Name:    "config",
		Usage:   "path to the config file",
		Sources: cli.EnvVars("CONFIG_PATH"),
	}

	app := &cli.Command{
		Name:  "slidewise",
		Usage: "Explains lecture slides with a language model",
		Flags: []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and the queue poller in one process",
				Action: commands.ServeAction,
			},
			{
				Name:  "poll",
				Usage: "Run the queue poller until interrupted",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "once",
						Usage: "process at most one job and exit",
					},
				},
				Action: commands.PollAction,
			},
			{
				Name:      "explain",
				Usage:     "Explain a single document without the queue",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "destination",
						Usage: "output directory (defaults to the document's directory)",
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "output format (json or xlsx)",
						Value: "json",
					},
				},
				Action: commands.ExplainAction,
			},
			{
				Name:      "status",
				Usage:     "Show the status of a submitted job",
				ArgsUsage: "<job-id>",
				Action:    commands.StatusAction,
			},
			{
				Name:      "export",
				Usage:     "Write the explanations of a done job to a file",
				ArgsUsage: "<job-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "format",
						Usage: "output format (json or xlsx)",
						Value: "json",
					},
					&cli.StringFlag{
						Name:     "output",
						Usage:    "output file path",
						Required: true,
					},
				},
				Action: commands.ExportAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
