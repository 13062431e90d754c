// Package entitlements gates owner features behind an active subscription.
package entitlements

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"
	"github.com/workgate/agenda/libs/auth"
	"github.com/workgate/agenda/libs/events"
	"github.com/workgate/agenda/libs/httpx"
	"github.com/workgate/agenda/services/scheduling-service/internal/storage"
)

type Checker interface {
	HasActiveSubscription(ctx context.Context, businessID string) (bool, error)
}

// Gate caches positive answers for a short TTL; inactive businesses are
// always re-checked so a fresh activation takes effect at once.
type Gate struct {
	checker Checker
	logger  *slog.Logger
	ttl     time.Duration
	now     func() time.Time

	mu     sync.Mutex
	active map[string]time.Time
}

func NewGate(checker Checker, logger *slog.Logger, ttl time.Duration) *Gate {
	return &Gate{
		checker: checker,
		logger:  logger,
		ttl:     ttl,
		now:     time.Now,
		active:  map[string]time.Time{},
	}
}

func (g *Gate) Active(ctx context.Context, businessID string) (bool, error) {
	now := g.now()
	g.mu.Lock()
	until, ok := g.active[businessID]
	g.mu.Unlock()
	if ok && now.Before(until) {
		return true, nil
	}

	active, err := g.checker.HasActiveSubscription(ctx, businessID)
	if err != nil {
		return false, err
	}
	g.mu.Lock()
	if active && g.ttl > 0 {
		g.active[businessID] = now.Add(g.ttl)
	} else {
		delete(g.active, businessID)
	}
	g.mu.Unlock()
	return active, nil
}

// Forget drops the cached answer for a business.
func (g *Gate) Forget(businessID string) {
	g.mu.Lock()
	delete(g.active, businessID)
	g.mu.Unlock()
}

// Require must run after auth.RequireOwner.
func (g *Gate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFromContext(r.Context())
		if !ok {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		active, err := g.Active(r.Context(), claims.BusinessID)
		if err != nil {
			g.logger.Error("subscription check failed", "err", err, "business_id", claims.BusinessID)
			httpx.WriteError(w, http.StatusInternalServerError, "subscription check failed")
			return
		}
		if !active {
			httpx.WriteError(w, http.StatusForbidden, "subscription required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// EventHandler applies billing subscription events inside the inbox transaction.
func (g *Gate) EventHandler(logger *slog.Logger) func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error {
	return func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error {
		sub, err := subscriptionFromEvent(msg)
		if err != nil {
			// Malformed payloads can never succeed; drop them.
			logger.Error("invalid subscription event", "err", err, "topic", msg.Topic)
			return nil
		}
		if err := storage.UpsertSubscription(ctx, tx, sub); err != nil {
			return err
		}
		g.Forget(sub.BusinessID)
		logger.Info("subscription updated", "business_id", sub.BusinessID, "status", sub.Status)
		return nil
	}
}

func subscriptionFromEvent(msg kafka.Message) (storage.Subscription, error) {
	var payload events.Subscription
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		return storage.Subscription{}, err
	}
	if payload.BusinessID == "" {
		return storage.Subscription{}, fmt.Errorf("missing business_id")
	}

	sub := storage.Subscription{BusinessID: payload.BusinessID, Plan: payload.Plan}
	switch msg.Topic {
	case events.SubscriptionActivated:
		sub.Status = storage.SubscriptionActive
	case events.SubscriptionCancelled:
		sub.Status = storage.SubscriptionCancelled
	default:
		return storage.Subscription{}, fmt.Errorf("unexpected topic %q", msg.Topic)
	}
	if payload.CurrentPeriodEnd != "" {
		end, err := time.Parse(time.RFC3339, payload.CurrentPeriodEnd)
		if err != nil {
			return storage.Subscription{}, fmt.Errorf("invalid current_period_end: %w", err)
		}
		sub.CurrentPeriodEnd = &end
	}
	return sub, nil
}
