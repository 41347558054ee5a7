// Package main provides the toolflow command line: the API server and tool and workflow commands.
package main

import (
	"context"
	"os"

	"github.com/dukex/toolflow/pkg/executor"
	"github.com/dukex/toolflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("toolflow")

	cmd := &cli.Command{
		Name:                  "toolflow",
		Usage:                 "Install security tools and run them as workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence (file://, postgres://, redis://)",
				Value:   "file://./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "tools-dir",
				Usage:   "Directory where tools are installed",
				Value:   "./tools",
				Sources: cli.EnvVars("TOOLS_DIR"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.IntFlag{
				Name:    "max-output",
				Usage:   "Maximum bytes of stdout and stderr kept per command",
				Value:   executor.DefaultMaxOutput,
				Sources: cli.EnvVars("MAX_OUTPUT_BYTES"),
			},
			&cli.BoolFlag{
				Name:    "otel",
				Usage:   "Export traces through OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			serveCommand(),
			toolsCommand(),
			workflowsCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
