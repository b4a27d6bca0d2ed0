package outbox

import (
	"context"
	"log/slog"
	"time"
)

type Store interface {
	Unpublished(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, id int64) error
}

type Publisher interface {
	Publish(ctx context.Context, key, eventType string, payload []byte) error
}

// Dispatcher drains the outbox on a fixed tick. A row is marked
// published only after the broker accepted it; any failure leaves the
// row for the next tick, so delivery is at-least-once and consumers
// must tolerate duplicates.
type Dispatcher struct {
	store     Store
	publisher Publisher
	tick      time.Duration
	batchSize int
	logger    *slog.Logger
}

func NewDispatcher(store Store, publisher Publisher, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:     store,
		publisher: publisher,
		tick:      time.Second,
		batchSize: 100,
		logger:    logger,
	}
}

func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.drain(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	events, err := d.store.Unpublished(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("failed to fetch outbox events", "error", err)
		return
	}

	for _, event := range events {
		if err := d.publisher.Publish(ctx, event.Key, event.EventType, event.Payload); err != nil {
			d.logger.Error("failed to publish outbox event", "error", err, "id", event.ID, "type", event.EventType)
			continue
		}

		if err := d.store.MarkPublished(ctx, event.ID); err != nil {
			d.logger.Error("failed to mark outbox event published", "error", err, "id", event.ID)
			continue
		}
	}
}
