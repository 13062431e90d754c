package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/workgate/agenda/services/scheduling-service/internal/civil"
	"github.com/workgate/agenda/services/scheduling-service/internal/model"
)

type bookingTx struct {
	tx pgx.Tx
}

// LockProviderDay takes a transaction scoped advisory lock keyed on the
// provider and date. It is released on commit or rollback.
func (b *bookingTx) LockProviderDay(ctx context.Context, providerID string, date civil.Date) error {
	_, err := b.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		"appointment:"+providerID+":"+date.String())
	return err
}

func (b *bookingTx) WorkHour(ctx context.Context, providerID string, day time.Weekday) (model.WorkHourRule, error) {
	return workHour(ctx, b.tx, providerID, day)
}

func (b *bookingTx) BookedSlots(ctx context.Context, providerID string, date civil.Date) ([]model.BookedSlot, error) {
	return bookedSlots(ctx, b.tx, providerID, date)
}

func (b *bookingTx) UpsertClient(ctx context.Context, c model.Client) (model.Client, error) {
	err := b.tx.QueryRow(ctx, `
		INSERT INTO clients (business_id, name, email, phone)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (business_id, email)
		DO UPDATE SET name = EXCLUDED.name,
		              phone = EXCLUDED.phone,
		              updated_at = now()
		RETURNING id::text, created_at
	`, c.BusinessID, c.Name, c.Email, c.Phone).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return model.Client{}, err
	}
	return c, nil
}

func (b *bookingTx) InsertAppointment(ctx context.Context, a *model.Appointment) error {
	var clientID pgtype.Text
	if a.ClientID != "" {
		clientID = pgtype.Text{String: a.ClientID, Valid: true}
	}
	err := b.tx.QueryRow(ctx, `
		INSERT INTO appointments
			(business_id, provider_id, service_id, client_id, date, time, observations, status)
		VALUES ($1, $2, $3, $4::uuid, $5, $6, $7, $8)
		RETURNING id::text, created_at
	`, a.BusinessID, a.ProviderID, a.ServiceID, clientID, pgDate(a.Date), pgTime(a.Time), a.Observations, string(a.Status)).
		Scan(&a.ID, &a.CreatedAt)
	if IsUniqueViolation(err) {
		return model.ErrConflict
	}
	return err
}

func (b *bookingTx) Commit(ctx context.Context) error {
	return b.tx.Commit(ctx)
}

// Rollback after Commit returns pgx.ErrTxClosed, which callers ignore.
func (b *bookingTx) Rollback(ctx context.Context) error {
	return b.tx.Rollback(ctx)
}
