package storage

import (
	"context"

	"github.com/workgate/agenda/libs/db"
	"github.com/workgate/agenda/libs/inbox"
)

// schema is applied in order at startup. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS providers (
		id          uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		business_id uuid NOT NULL,
		name        text NOT NULL,
		username    text NOT NULL UNIQUE,
		email       text NOT NULL DEFAULT '',
		push_token  text NOT NULL DEFAULT '',
		created_at  timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS providers_business_idx ON providers (business_id)`,
	`CREATE TABLE IF NOT EXISTS services (
		id               uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		business_id      uuid NOT NULL,
		name             text NOT NULL,
		duration_minutes integer NOT NULL CHECK (duration_minutes >= 1),
		price            numeric(10, 2) NOT NULL DEFAULT 0,
		created_at       timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS services_business_idx ON services (business_id)`,
	`CREATE TABLE IF NOT EXISTS work_hours (
		provider_id  uuid NOT NULL REFERENCES providers (id) ON DELETE CASCADE,
		day_of_week  smallint NOT NULL CHECK (day_of_week BETWEEN 0 AND 6),
		start_time   time NOT NULL,
		end_time     time NOT NULL,
		is_available boolean NOT NULL DEFAULT true,
		PRIMARY KEY (provider_id, day_of_week)
	)`,
	`CREATE TABLE IF NOT EXISTS clients (
		id          uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		business_id uuid NOT NULL,
		name        text NOT NULL,
		email       text NOT NULL,
		phone       text NOT NULL DEFAULT '',
		created_at  timestamptz NOT NULL DEFAULT now(),
		updated_at  timestamptz NOT NULL DEFAULT now(),
		UNIQUE (business_id, email)
	)`,
	`CREATE TABLE IF NOT EXISTS appointments (
		id           uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		business_id  uuid NOT NULL,
		provider_id  uuid NOT NULL REFERENCES providers (id),
		service_id   uuid NOT NULL REFERENCES services (id),
		client_id    uuid REFERENCES clients (id),
		date         date NOT NULL,
		time         time NOT NULL,
		observations text NOT NULL DEFAULT '',
		status       text NOT NULL DEFAULT 'scheduled'
			CHECK (status IN ('scheduled', 'confirmed', 'in_progress', 'completed', 'cancelled')),
		created_at   timestamptz NOT NULL DEFAULT now(),
		updated_at   timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS appointments_active_slot_uq
		ON appointments (provider_id, date, time) WHERE status <> 'cancelled'`,
	`CREATE INDEX IF NOT EXISTS appointments_business_date_idx ON appointments (business_id, date, time)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		business_id        uuid PRIMARY KEY,
		plan               text NOT NULL DEFAULT '',
		status             text NOT NULL,
		current_period_end timestamptz,
		updated_at         timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id             bigserial PRIMARY KEY,
		event_id       uuid NOT NULL UNIQUE,
		aggregate_type text NOT NULL,
		aggregate_id   text NOT NULL,
		event_type     text NOT NULL,
		payload        jsonb NOT NULL,
		traceparent    text NOT NULL DEFAULT '',
		tracestate     text NOT NULL DEFAULT '',
		created_at     timestamptz NOT NULL DEFAULT now(),
		published_at   timestamptz
	)`,
	`CREATE INDEX IF NOT EXISTS outbox_events_unpublished_idx ON outbox_events (id) WHERE published_at IS NULL`,
	inbox.Schema,
}

func Migrate(ctx context.Context, pool *db.Pool) error {
	return pool.ExecAll(ctx, schema...)
}
