package main

import (
	"context"
	"fmt"
	"os"

	"github.com/loomwork/loom/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "loom",
		EnableShellCompletion: true,
		Usage:                 "Run a demo computation graph and print its results",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "Maximum number of concurrent vertex workers",
				Value:   4,
				Sources: cli.EnvVars("LOOM_WORKERS"),
			},
			&cli.BoolFlag{
				Name:    "stream",
				Usage:   "Publish vertex outputs as they are produced",
				Sources: cli.EnvVars("LOOM_STREAM"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus transport (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OTLP traces for vertex executions",
				Sources: cli.EnvVars("LOOM_TRACING"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("loom")
			logger.InfoContext(ctx, "Initializing Loom demo run")

			return runDemo(ctx, logger, demoConfig{
				workers:  int(command.Int("workers")),
				stream:   command.Bool("stream"),
				eventBus: command.String("event-bus"),
				tracing:  command.Bool("tracing"),
			})
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
