package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/workgate/agenda/libs/auth"
	"github.com/workgate/agenda/libs/httpx"
	"github.com/workgate/agenda/services/notification-service/internal/storage"
)

type AttemptStore interface {
	ForAppointment(ctx context.Context, businessID, appointmentID string) ([]storage.Attempt, error)
}

type AttemptsHandler struct {
	store  AttemptStore
	logger *slog.Logger
}

func NewAttemptsHandler(store AttemptStore, logger *slog.Logger) *AttemptsHandler {
	return &AttemptsHandler{store: store, logger: logger}
}

type attemptItem struct {
	EventType string `json:"event_type"`
	Channel   string `json:"channel"`
	Recipient string `json:"recipient"`
	Provider  string `json:"provider"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	CreatedAt string `json:"created_at"`
}

// List serves GET /api/v1/notifications?appointment_id= for the caller's business.
func (h *AttemptsHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	appointmentID := strings.TrimSpace(r.URL.Query().Get("appointment_id"))
	if appointmentID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "appointment_id required")
		return
	}

	attempts, err := h.store.ForAppointment(r.Context(), claims.BusinessID, appointmentID)
	if err != nil {
		h.logger.Error("list notification attempts failed", "err", err, "appointment_id", appointmentID)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	out := make([]attemptItem, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, attemptItem{
			EventType: a.EventType,
			Channel:   a.Channel,
			Recipient: a.Recipient,
			Provider:  a.Provider,
			Status:    a.Status,
			Error:     a.Error,
			CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
