package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/workgate/agenda/libs/auth"
	"github.com/workgate/agenda/services/notification-service/internal/storage"
)

type fakeAttempts struct {
	businessID string
	attempts   []storage.Attempt
}

func (f *fakeAttempts) ForAppointment(_ context.Context, businessID, _ string) ([]storage.Attempt, error) {
	f.businessID = businessID
	return f.attempts, nil
}

func TestListScopesToClaims(t *testing.T) {
	store := &fakeAttempts{attempts: []storage.Attempt{
		{EventType: "booking.appointment.booked.v1", Channel: "email", Status: storage.StatusSent, CreatedAt: time.Unix(0, 0)},
	}}
	h := NewAttemptsHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications?appointment_id=a1", nil)
	req = req.WithContext(auth.ContextWithClaims(req.Context(), &auth.Claims{BusinessID: "biz-1", ProviderID: "p", Role: "owner"}))
	rr := httptest.NewRecorder()
	h.List(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var got []attemptItem
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil || len(got) != 1 || got[0].Channel != "email" {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
	if store.businessID != "biz-1" {
		t.Fatalf("expected scoping to biz-1, got %q", store.businessID)
	}
}

func TestListRequiresAppointmentID(t *testing.T) {
	h := NewAttemptsHandler(&fakeAttempts{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	req = req.WithContext(auth.ContextWithClaims(req.Context(), &auth.Claims{BusinessID: "biz-1"}))
	rr := httptest.NewRecorder()
	h.List(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestListWithoutClaims(t *testing.T) {
	h := NewAttemptsHandler(&fakeAttempts{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rr := httptest.NewRecorder()
	h.List(rr, httptest.NewRequest(http.MethodGet, "/api/v1/notifications?appointment_id=a", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}
