// Package inbox deduplicates consumed events by recording their ids in the
// same transaction as the handler's writes.
package inbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"
	"github.com/workgate/agenda/libs/db"
	"github.com/workgate/agenda/libs/kafkax"
)

var ErrMissingEventID = errors.New("event has no id")

// TxHandler handles one event inside the inbox transaction.
type TxHandler func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Schema creates the inbox table. Services include it in their migrations.
const Schema = `
CREATE TABLE IF NOT EXISTS inbox_events (
	event_id    text PRIMARY KEY,
	event_type  text NOT NULL,
	received_at timestamptz NOT NULL DEFAULT now()
)`

// Record inserts the event id within tx and reports whether it was new.
func Record(ctx context.Context, tx pgx.Tx, eventID, eventType string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Handler wraps fn so that each event id is applied at most once. A failing
// fn rolls back the inbox row too, so the event is retried.
func (r *Repository) Handler(fn TxHandler) kafkax.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		meta := kafkax.ExtractEventMeta(msg)
		if meta.EventID == "" {
			return ErrMissingEventID
		}
		return r.pool.InTx(ctx, func(tx pgx.Tx) error {
			fresh, err := Record(ctx, tx, meta.EventID, meta.EventType)
			if err != nil {
				return fmt.Errorf("inbox record: %w", err)
			}
			if !fresh {
				return nil
			}
			return fn(ctx, tx, msg)
		})
	}
}
