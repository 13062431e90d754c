package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/workgate/agenda/services/scheduling-service/internal/availability"
	"github.com/workgate/agenda/services/scheduling-service/internal/civil"
	"github.com/workgate/agenda/services/scheduling-service/internal/model"
)

const agendaSelect = `
	SELECT a.id::text, a.business_id::text, a.provider_id::text, p.name,
		a.date, a.time, a.status, s.name, s.duration_minutes,
		COALESCE(c.name, ''), COALESCE(c.email, ''), COALESCE(c.phone, ''), a.observations
	FROM appointments a
	JOIN providers p ON p.id = a.provider_id
	JOIN services s ON s.id = a.service_id
	LEFT JOIN clients c ON c.id = a.client_id`

func (s *Store) queryAgenda(ctx context.Context, sql string, args ...any) ([]model.AgendaItem, error) {
	rows, err := s.pool.Query(ctx, agendaSelect+sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.AgendaItem{}
	for rows.Next() {
		var (
			item    model.AgendaItem
			date    pgtype.Date
			at      pgtype.Time
			status  string
			minutes int
		)
		if err := rows.Scan(&item.AppointmentID, &item.BusinessID, &item.ProviderID, &item.ProviderName,
			&date, &at, &status, &item.ServiceName, &minutes,
			&item.ClientName, &item.ClientEmail, &item.ClientPhone, &item.Observations); err != nil {
			return nil, err
		}
		item.Date = fromPgDate(date)
		item.Time = fromPgTime(at)
		item.Status = model.Status(status)
		item.Duration = time.Duration(minutes) * time.Minute
		out = append(out, item)
	}
	return out, rows.Err()
}

// AppointmentsOn lists a business's appointments for a date, every status
// included, ordered by time.
func (s *Store) AppointmentsOn(ctx context.Context, businessID string, date civil.Date) ([]model.AgendaItem, error) {
	return s.queryAgenda(ctx, `
		WHERE a.business_id = $1 AND a.date = $2
		ORDER BY a.date, a.time, p.name
	`, businessID, pgDate(date))
}

// DailyAgenda lists a provider's active appointments for a date.
func (s *Store) DailyAgenda(ctx context.Context, providerID string, date civil.Date) ([]model.AgendaItem, error) {
	return s.queryAgenda(ctx, `
		WHERE a.provider_id = $1 AND a.date = $2 AND a.status <> 'cancelled'
		ORDER BY a.time
	`, providerID, pgDate(date))
}

// ReminderCandidates lists appointments on date that still expect the client.
func (s *Store) ReminderCandidates(ctx context.Context, date civil.Date) ([]model.AgendaItem, error) {
	return s.queryAgenda(ctx, `
		WHERE a.date = $1 AND a.status IN ('scheduled', 'confirmed')
		ORDER BY a.business_id, a.time
	`, pgDate(date))
}

// UpdateStatus changes an appointment's status within a business. Reopening
// a cancelled appointment takes the provider's day lock and returns
// model.ErrConflict when the slot now overlaps an active booking.
func (s *Store) UpdateStatus(ctx context.Context, businessID, appointmentID string, status model.Status) (model.Appointment, error) {
	var out model.Appointment
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		cur, d, err := appointmentForUpdate(ctx, tx, businessID, appointmentID)
		if err != nil {
			return err
		}
		if cur.Status.Reopens(status) {
			if err := (&bookingTx{tx: tx}).LockProviderDay(ctx, cur.ProviderID, cur.Date); err != nil {
				return err
			}
			booked, err := bookedSlots(ctx, tx, cur.ProviderID, cur.Date)
			if err != nil {
				return err
			}
			if availability.Collides(cur.Time, d, booked) {
				return model.ErrConflict
			}
		}
		out, err = setStatus(ctx, tx, businessID, appointmentID, status)
		return err
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return model.Appointment{}, model.ErrConflict
		}
		return model.Appointment{}, lookupErr(err)
	}
	return out, nil
}

// appointmentForUpdate row-locks the appointment and returns it with its
// service duration.
func appointmentForUpdate(ctx context.Context, tx pgx.Tx, businessID, appointmentID string) (model.Appointment, time.Duration, error) {
	var (
		a       model.Appointment
		date    pgtype.Date
		at      pgtype.Time
		st      string
		minutes int
	)
	err := tx.QueryRow(ctx, `
		SELECT a.provider_id::text, a.date, a.time, a.status, s.duration_minutes
		FROM appointments a
		JOIN services s ON s.id = a.service_id
		WHERE a.id = $1 AND a.business_id = $2
		FOR UPDATE OF a
	`, appointmentID, businessID).Scan(&a.ProviderID, &date, &at, &st, &minutes)
	if err != nil {
		return model.Appointment{}, 0, err
	}
	a.Date = fromPgDate(date)
	a.Time = fromPgTime(at)
	a.Status = model.Status(st)
	return a, time.Duration(minutes) * time.Minute, nil
}

func setStatus(ctx context.Context, tx pgx.Tx, businessID, appointmentID string, status model.Status) (model.Appointment, error) {
	var (
		a        model.Appointment
		date     pgtype.Date
		at       pgtype.Time
		clientID pgtype.Text
		st       string
	)
	err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3, updated_at = now()
		WHERE id = $1 AND business_id = $2
		RETURNING id::text, business_id::text, provider_id::text, service_id::text, client_id::text,
			date, time, observations, status, created_at
	`, appointmentID, businessID, string(status)).Scan(
		&a.ID, &a.BusinessID, &a.ProviderID, &a.ServiceID, &clientID,
		&date, &at, &a.Observations, &st, &a.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	a.ClientID = clientID.String
	a.Date = fromPgDate(date)
	a.Time = fromPgTime(at)
	a.Status = model.Status(st)
	return a, nil
}
