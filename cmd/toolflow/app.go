package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/toolflow/pkg/cmd"
	"github.com/dukex/toolflow/pkg/eventbus"
	"github.com/dukex/toolflow/pkg/executor"
	"github.com/dukex/toolflow/pkg/log"
	"github.com/dukex/toolflow/pkg/otelhelper"
	"github.com/dukex/toolflow/pkg/persistence"
	"github.com/dukex/toolflow/pkg/services"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

// App wires the engine with its persistence, event bus and executor.
type App struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	engine      *services.Engine
}

func newApp(ctx context.Context, command *cli.Command) (*App, error) {
	logger := log.WithModule("app")

	p, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize persistence: %w", err)
	}

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
	if err != nil {
		_ = p.Close(ctx)

		return nil, err
	}

	var tracer trace.Tracer = otelhelper.NoopTracer()

	if command.Bool("otel") {
		tracer, err = otelhelper.NewTracer(ctx, "toolflow")
		if err != nil {
			_ = eventBus.Close()
			_ = p.Close(ctx)

			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
	}

	engine, err := services.NewEngine(services.Config{
		Persistence: p,
		Executor:    executor.NewLocal(logger, command.Int("max-output")),
		Publisher:   eventBus,
		Tracer:      tracer,
		Logger:      logger,
		ToolsDir:    command.String("tools-dir"),
	})
	if err != nil {
		_ = eventBus.Close()
		_ = p.Close(ctx)

		return nil, err
	}

	if err := engine.Init(ctx); err != nil {
		_ = eventBus.Close()
		_ = p.Close(ctx)

		return nil, err
	}

	return &App{
		logger:      logger,
		persistence: p,
		eventBus:    eventBus,
		engine:      engine,
	}, nil
}

// Close stops in-flight work and releases the event bus and persistence.
func (a *App) Close(ctx context.Context) {
	a.engine.Close()

	if err := a.eventBus.Close(); err != nil {
		a.logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
	}

	if err := a.persistence.Close(ctx); err != nil {
		a.logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
	}
}
