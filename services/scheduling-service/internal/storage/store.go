package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/workgate/agenda/libs/db"
	"github.com/workgate/agenda/services/scheduling-service/internal/booking"
	"github.com/workgate/agenda/services/scheduling-service/internal/civil"
	"github.com/workgate/agenda/services/scheduling-service/internal/model"
)

// Store is the Postgres implementation of the booking engine's store and
// the repository behind the owner endpoints.
type Store struct {
	pool *db.Pool
}

func NewStore(pool *db.Pool) *Store {
	return &Store{pool: pool}
}

var _ booking.Store = (*Store)(nil)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const providerColumns = `id::text, business_id::text, name, username, email, push_token`

func scanProvider(row pgx.Row) (model.Provider, error) {
	var p model.Provider
	err := row.Scan(&p.ID, &p.BusinessID, &p.Name, &p.Username, &p.Email, &p.PushToken)
	return p, err
}

func (s *Store) ProviderByID(ctx context.Context, id string) (model.Provider, error) {
	p, err := scanProvider(s.pool.QueryRow(ctx, `
		SELECT `+providerColumns+`
		FROM providers
		WHERE id = $1
	`, id))
	return p, lookupErr(err)
}

func (s *Store) ProviderByUsername(ctx context.Context, username string) (model.Provider, error) {
	p, err := scanProvider(s.pool.QueryRow(ctx, `
		SELECT `+providerColumns+`
		FROM providers
		WHERE username = $1
	`, username))
	return p, lookupErr(err)
}

// SetPushToken stores the device token agenda pushes go to. An empty token
// turns pushes off.
func (s *Store) SetPushToken(ctx context.Context, businessID, providerID, token string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE providers
		SET push_token = $3
		WHERE id = $1 AND business_id = $2
	`, providerID, businessID, token)
	if err != nil {
		return lookupErr(err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// Providers lists every provider; the daily jobs fan out over it.
func (s *Store) Providers(ctx context.Context) ([]model.Provider, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+providerColumns+`
		FROM providers
		ORDER BY business_id, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) Service(ctx context.Context, businessID, serviceID string) (model.Service, error) {
	var sv model.Service
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, business_id::text, name, duration_minutes, price::text
		FROM services
		WHERE id = $1 AND business_id = $2
	`, serviceID, businessID).Scan(&sv.ID, &sv.BusinessID, &sv.Name, &sv.DurationMinutes, &sv.Price)
	return sv, lookupErr(err)
}

func (s *Store) Services(ctx context.Context, businessID string) ([]model.Service, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, business_id::text, name, duration_minutes, price::text
		FROM services
		WHERE business_id = $1
		ORDER BY name
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		var sv model.Service
		if err := rows.Scan(&sv.ID, &sv.BusinessID, &sv.Name, &sv.DurationMinutes, &sv.Price); err != nil {
			return nil, err
		}
		out = append(out, sv)
	}
	return out, rows.Err()
}

func (s *Store) WorkHour(ctx context.Context, providerID string, day time.Weekday) (model.WorkHourRule, error) {
	return workHour(ctx, s.pool, providerID, day)
}

func (s *Store) BookedSlots(ctx context.Context, providerID string, date civil.Date) ([]model.BookedSlot, error) {
	return bookedSlots(ctx, s.pool, providerID, date)
}

func workHour(ctx context.Context, q querier, providerID string, day time.Weekday) (model.WorkHourRule, error) {
	var (
		rule       model.WorkHourRule
		start, end pgtype.Time
	)
	err := q.QueryRow(ctx, `
		SELECT provider_id::text, start_time, end_time, is_available
		FROM work_hours
		WHERE provider_id = $1 AND day_of_week = $2
	`, providerID, int(day)).Scan(&rule.ProviderID, &start, &end, &rule.IsAvailable)
	if err != nil {
		return model.WorkHourRule{}, lookupErr(err)
	}
	rule.DayOfWeek = day
	rule.Start = fromPgTime(start)
	rule.End = fromPgTime(end)
	return rule, nil
}

// bookedSlots joins each active appointment with its own service duration.
func bookedSlots(ctx context.Context, q querier, providerID string, date civil.Date) ([]model.BookedSlot, error) {
	rows, err := q.Query(ctx, `
		SELECT a.id::text, a.time, s.duration_minutes
		FROM appointments a
		JOIN services s ON s.id = a.service_id
		WHERE a.provider_id = $1
		  AND a.date = $2
		  AND a.status <> 'cancelled'
		ORDER BY a.time
	`, providerID, pgDate(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BookedSlot
	for rows.Next() {
		var (
			slot    model.BookedSlot
			start   pgtype.Time
			minutes int
		)
		if err := rows.Scan(&slot.AppointmentID, &start, &minutes); err != nil {
			return nil, err
		}
		slot.Start = fromPgTime(start)
		slot.Duration = time.Duration(minutes) * time.Minute
		out = append(out, slot)
	}
	return out, rows.Err()
}

func (s *Store) Begin(ctx context.Context) (booking.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &bookingTx{tx: tx}, nil
}
