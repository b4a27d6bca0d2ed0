// Package outbox persists order events in the same transaction as the
// state change that produced them, and ships them to Kafka from a
// separate dispatcher loop. This replaces fire-and-forget notification
// calls: an event row either commits with its state change or not at
// all, and the dispatcher retries publishing until it succeeds.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tanmaydg/bazario/internal/domain"
)

type Event struct {
	ID        int64
	Key       string
	EventType string
	Payload   []byte
	CreatedAt time.Time
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Append adds an event row inside the caller's transaction. The key is
// the order id so downstream consumers see per-order ordering.
func (r *Repository) Append(ctx context.Context, tx *sql.Tx, event domain.OrderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal outbox event: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO outbox (key, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`, event.Order.ID, string(event.Type), payload, event.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	return nil
}

func (r *Repository) Unpublished(ctx context.Context, limit int) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, key, event_type, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Key, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

func (r *Repository) MarkPublished(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox SET published_at = NOW() WHERE id = $1
	`, id)
	return err
}
