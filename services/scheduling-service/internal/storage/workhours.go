package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/workgate/agenda/services/scheduling-service/internal/civil"
	"github.com/workgate/agenda/services/scheduling-service/internal/model"
)

// DefaultWorkHours is the week a new provider starts with: Monday to Friday
// 09:00-18:00, weekends off.
func DefaultWorkHours(providerID string) []model.WorkHourRule {
	rules := make([]model.WorkHourRule, 0, 7)
	for day := time.Sunday; day <= time.Saturday; day++ {
		rules = append(rules, model.WorkHourRule{
			ProviderID:  providerID,
			DayOfWeek:   day,
			Start:       civil.MustClock("09:00:00"),
			End:         civil.MustClock("18:00:00"),
			IsAvailable: day != time.Sunday && day != time.Saturday,
		})
	}
	return rules
}

func (s *Store) WorkHours(ctx context.Context, providerID string) ([]model.WorkHourRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT day_of_week, start_time, end_time, is_available
		FROM work_hours
		WHERE provider_id = $1
		ORDER BY day_of_week
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.WorkHourRule{}
	for rows.Next() {
		var (
			rule       model.WorkHourRule
			day        int16
			start, end pgtype.Time
		)
		if err := rows.Scan(&day, &start, &end, &rule.IsAvailable); err != nil {
			return nil, err
		}
		rule.ProviderID = providerID
		rule.DayOfWeek = time.Weekday(day)
		rule.Start = fromPgTime(start)
		rule.End = fromPgTime(end)
		out = append(out, rule)
	}
	return out, rows.Err()
}

// ReplaceWorkHours swaps all of a provider's rules in one transaction.
func (s *Store) ReplaceWorkHours(ctx context.Context, providerID string, rules []model.WorkHourRule) error {
	return s.pool.InTx(ctx, func(tx pgx.Tx) error {
		return replaceWorkHours(ctx, tx, providerID, rules)
	})
}

// SeedDefaultWorkHours installs DefaultWorkHours when the provider has no
// rules yet and reports whether it did.
func (s *Store) SeedDefaultWorkHours(ctx context.Context, providerID string) (bool, error) {
	seeded := false
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		var n int
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM work_hours WHERE provider_id = $1`, providerID).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		seeded = true
		return replaceWorkHours(ctx, tx, providerID, DefaultWorkHours(providerID))
	})
	if IsUniqueViolation(err) {
		// Seeded concurrently.
		return false, nil
	}
	return seeded, err
}

func replaceWorkHours(ctx context.Context, tx pgx.Tx, providerID string, rules []model.WorkHourRule) error {
	if _, err := tx.Exec(ctx, `DELETE FROM work_hours WHERE provider_id = $1`, providerID); err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for _, r := range rules {
		batch.Queue(`
			INSERT INTO work_hours (provider_id, day_of_week, start_time, end_time, is_available)
			VALUES ($1, $2, $3, $4, $5)
		`, providerID, int16(r.DayOfWeek), pgTime(r.Start), pgTime(r.End), r.IsAvailable)
	}
	return tx.SendBatch(ctx, batch).Close()
}
