package storage

import (
	"context"
	"time"

	"github.com/workgate/agenda/services/scheduling-service/internal/civil"
	"github.com/workgate/agenda/services/scheduling-service/internal/model"
)

// CountNewClients counts clients created in [from, to).
func (s *Store) CountNewClients(ctx context.Context, businessID string, from, to time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM clients
		WHERE business_id = $1 AND created_at >= $2 AND created_at < $3
	`, businessID, from, to).Scan(&n)
	return n, err
}

// CountAppointments counts appointments with status dated in [from, to].
func (s *Store) CountAppointments(ctx context.Context, businessID string, status model.Status, from, to civil.Date) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE business_id = $1 AND status = $2 AND date BETWEEN $3 AND $4
	`, businessID, string(status), pgDate(from), pgDate(to)).Scan(&n)
	return n, err
}
