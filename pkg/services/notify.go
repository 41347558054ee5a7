package services

import (
	"context"
	"log/slog"

	"github.com/dukex/toolflow/pkg/eventbus"
)

// notify publishes a change notification. Delivery failures are logged and never fail the
// operation that produced them.
func notify(ctx context.Context, publisher eventbus.EventPublisher, logger *slog.Logger, key string, event eventbus.Event) {
	if publisher == nil {
		return
	}

	if err := publisher.Publish(ctx, key, event); err != nil {
		logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "key", key, "error", err)
	}
}
