package messaging

import (
	"context"
	"log/slog"

	"github.com/rl1809/general-store/internal/core/domain"
)

// LogPublisher only records events in the log; used when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event domain.Event) error {
	p.logger.InfoContext(ctx, "event",
		"event_id", event.ID,
		"type", event.Type,
		"transaction_id", event.Transaction.ID,
		"inventory", event.Inventory,
	)
	return nil
}
