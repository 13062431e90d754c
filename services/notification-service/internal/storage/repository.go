package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/workgate/agenda/libs/db"
	"github.com/workgate/agenda/libs/inbox"
)

const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Attempt is one delivery on one channel for one event.
type Attempt struct {
	EventID       string
	EventType     string
	AppointmentID string
	BusinessID    string
	Channel       string
	Recipient     string
	Provider      string
	Status        string
	Error         string
	CreatedAt     time.Time
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS notification_attempts (
		id             bigserial PRIMARY KEY,
		event_id       text NOT NULL,
		event_type     text NOT NULL,
		appointment_id text NOT NULL DEFAULT '',
		business_id    text NOT NULL DEFAULT '',
		channel        text NOT NULL,
		recipient      text NOT NULL DEFAULT '',
		provider       text NOT NULL DEFAULT '',
		status         text NOT NULL,
		error          text NOT NULL DEFAULT '',
		created_at     timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS notification_attempts_appointment_idx
		ON notification_attempts (appointment_id)`,
	inbox.Schema,
}

func Migrate(ctx context.Context, pool *db.Pool) error {
	return pool.ExecAll(ctx, schema...)
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record stores a within tx so attempts commit together with the inbox row.
func (r *Repository) Record(ctx context.Context, tx pgx.Tx, a Attempt) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO notification_attempts
			(event_id, event_type, appointment_id, business_id, channel, recipient, provider, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, a.EventID, a.EventType, a.AppointmentID, a.BusinessID, a.Channel, a.Recipient, a.Provider, a.Status, a.Error)
	return err
}

// ForAppointment lists the attempts for one appointment of a business, oldest
// first.
func (r *Repository) ForAppointment(ctx context.Context, businessID, appointmentID string) ([]Attempt, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT event_id, event_type, appointment_id, business_id, channel, recipient, provider, status, error, created_at
		FROM notification_attempts
		WHERE business_id = $1 AND appointment_id = $2
		ORDER BY created_at, id
	`, businessID, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.EventID, &a.EventType, &a.AppointmentID, &a.BusinessID, &a.Channel,
			&a.Recipient, &a.Provider, &a.Status, &a.Error, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
