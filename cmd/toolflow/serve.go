package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/toolflow/pkg/log"
	"github.com/dukex/toolflow/pkg/scheduler"
	cli "github.com/urfave/cli/v3"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP API and the workflow scheduler",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Usage:   "Port to listen on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("serve")

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := newApp(ctx, command)
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			sched := scheduler.New(app.engine.Workflows(), app.engine.Runner(), logger)
			if err := sched.Subscribe(app.eventBus); err != nil {
				return err
			}

			if err := app.eventBus.Subscribe(ctx); err != nil {
				return err
			}

			if err := sched.Start(ctx); err != nil {
				return err
			}
			defer sched.Stop()

			api := NewAPI(logger, app.engine)
			server := api.App()

			errCh := make(chan error, 1)

			go func() {
				errCh <- api.Listen(server, command.Int("port"))
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				logger.Info("Shutting down")

				return server.ShutdownWithTimeout(shutdownTimeout)
			}
		},
	}
}
