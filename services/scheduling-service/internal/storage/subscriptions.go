package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	SubscriptionActive    = "active"
	SubscriptionCancelled = "cancelled"
)

type Subscription struct {
	BusinessID       string
	Plan             string
	Status           string
	CurrentPeriodEnd *time.Time
}

func UpsertSubscription(ctx context.Context, tx pgx.Tx, sub Subscription) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO subscriptions (business_id, plan, status, current_period_end)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (business_id)
		DO UPDATE SET plan = CASE WHEN EXCLUDED.plan <> '' THEN EXCLUDED.plan ELSE subscriptions.plan END,
		              status = EXCLUDED.status,
		              current_period_end = EXCLUDED.current_period_end,
		              updated_at = now()
	`, sub.BusinessID, sub.Plan, sub.Status, sub.CurrentPeriodEnd)
	return err
}

// HasActiveSubscription reports whether the business may use owner features.
func (s *Store) HasActiveSubscription(ctx context.Context, businessID string) (bool, error) {
	var active bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM subscriptions
			WHERE business_id = $1
			  AND status = 'active'
			  AND (current_period_end IS NULL OR current_period_end > now())
		)
	`, businessID).Scan(&active)
	if IsInvalidID(err) {
		return false, nil
	}
	return active, err
}
