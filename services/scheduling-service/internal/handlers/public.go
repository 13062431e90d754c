package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/workgate/agenda/libs/httpx"
	"github.com/workgate/agenda/services/scheduling-service/internal/booking"
	"github.com/workgate/agenda/services/scheduling-service/internal/model"
)

type Booker interface {
	AvailableSlots(ctx context.Context, ref booking.ProviderRef, serviceID, date string) ([]string, error)
	CreateBooking(ctx context.Context, req booking.BookingRequest) (booking.Confirmation, error)
}

type ProfileStore interface {
	ProviderByUsername(ctx context.Context, username string) (model.Provider, error)
	Services(ctx context.Context, businessID string) ([]model.Service, error)
	WorkHours(ctx context.Context, providerID string) ([]model.WorkHourRule, error)
}

type PublicHandler struct {
	booker   Booker
	profiles ProfileStore
	logger   *slog.Logger
}

func NewPublicHandler(booker Booker, profiles ProfileStore, logger *slog.Logger) *PublicHandler {
	return &PublicHandler{booker: booker, profiles: profiles, logger: logger}
}

type createBookingRequest struct {
	ProviderID   string `json:"provider_id"`
	Username     string `json:"username"`
	ServiceID    string `json:"service_id"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	ClientName   string `json:"client_name"`
	ClientEmail  string `json:"client_email"`
	ClientPhone  string `json:"client_phone"`
	Observations string `json:"observations"`
}

type bookingResponse struct {
	AppointmentID string `json:"appointment_id"`
	ProviderID    string `json:"provider_id"`
	ServiceID     string `json:"service_id"`
	ClientID      string `json:"client_id"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	Status        string `json:"status"`
	Observations  string `json:"observations,omitempty"`
	ServiceName   string `json:"service_name"`
	ProviderName  string `json:"provider_name"`
	ClientName    string `json:"client_name"`
	CreatedAt     string `json:"created_at"`
}

type profileService struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           string `json:"price"`
}

type profileResponse struct {
	ProviderID string           `json:"provider_id"`
	Name       string           `json:"name"`
	Username   string           `json:"username"`
	Services   []profileService `json:"services"`
	WorkHours  []workHourItem   `json:"work_hours"`
}

// Slots serves GET /api/v1/public/slots?username=|provider_id=&service_id=&date=.
func (h *PublicHandler) Slots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ref := booking.ProviderRef{
		ID:       strings.TrimSpace(q.Get("provider_id")),
		Username: strings.TrimSpace(q.Get("username")),
	}
	slots, err := h.booker.AvailableSlots(r.Context(), ref, q.Get("service_id"), q.Get("date"))
	if err != nil {
		h.writeBookingError(w, err, "failed to load availability")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, slots)
}

// Book serves POST /api/v1/public/bookings.
func (h *PublicHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteReasonError(w, http.StatusBadRequest, string(booking.ReasonInvalidInput), "invalid json body")
		return
	}

	conf, err := h.booker.CreateBooking(r.Context(), booking.BookingRequest{
		Provider:     booking.ProviderRef{ID: req.ProviderID, Username: req.Username},
		ServiceID:    req.ServiceID,
		Date:         req.Date,
		Time:         req.Time,
		ClientName:   req.ClientName,
		ClientEmail:  req.ClientEmail,
		ClientPhone:  req.ClientPhone,
		Observations: req.Observations,
	})
	if err != nil {
		h.writeBookingError(w, err, "failed to create booking")
		return
	}

	a := conf.Appointment
	httpx.WriteJSON(w, http.StatusCreated, bookingResponse{
		AppointmentID: a.ID,
		ProviderID:    a.ProviderID,
		ServiceID:     a.ServiceID,
		ClientID:      a.ClientID,
		Date:          a.Date.String(),
		Time:          a.Time.String(),
		Status:        string(a.Status),
		Observations:  a.Observations,
		ServiceName:   conf.Service.Name,
		ProviderName:  conf.Provider.Name,
		ClientName:    conf.Client.Name,
		CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// Profile serves GET /api/v1/public/profile?username=.
func (h *PublicHandler) Profile(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		httpx.WriteError(w, http.StatusBadRequest, "username required")
		return
	}

	ctx := r.Context()
	p, err := h.profiles.ProviderByUsername(ctx, username)
	if errors.Is(err, model.ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "provider not found")
		return
	}
	if err != nil {
		h.logger.Error("load profile failed", "err", err, "username", username)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	services, err := h.profiles.Services(ctx, p.BusinessID)
	if err != nil {
		h.logger.Error("load services failed", "err", err, "provider_id", p.ID)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	rules, err := h.profiles.WorkHours(ctx, p.ID)
	if err != nil {
		h.logger.Error("load work hours failed", "err", err, "provider_id", p.ID)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}

	resp := profileResponse{
		ProviderID: p.ID,
		Name:       p.Name,
		Username:   p.Username,
		Services:   make([]profileService, 0, len(services)),
		WorkHours:  toWorkHourItems(rules),
	}
	for _, s := range services {
		resp.Services = append(resp.Services, profileService{ID: s.ID, Name: s.Name, DurationMinutes: s.DurationMinutes, Price: s.Price})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

var rejectionStatus = map[booking.Reason]int{
	booking.ReasonMissingFields:       http.StatusBadRequest,
	booking.ReasonInvalidInput:        http.StatusBadRequest,
	booking.ReasonProviderNotFound:    http.StatusNotFound,
	booking.ReasonServiceNotFound:     http.StatusNotFound,
	booking.ReasonOutsideWorkingHours: http.StatusConflict,
	booking.ReasonSlotUnavailable:     http.StatusConflict,
}

// writeBookingError answers rejections with their reason and hides storage
// failures behind a fixed message.
func (h *PublicHandler) writeBookingError(w http.ResponseWriter, err error, internalMsg string) {
	var rej *booking.Rejection
	if errors.As(err, &rej) {
		status, ok := rejectionStatus[rej.Reason]
		if !ok {
			status = http.StatusBadRequest
		}
		httpx.WriteReasonError(w, status, string(rej.Reason), rej.Message)
		return
	}
	if errors.Is(err, context.Canceled) {
		h.logger.Warn("request cancelled", "err", err)
		return
	}
	h.logger.Error(internalMsg, "err", err)
	httpx.WriteError(w, http.StatusInternalServerError, internalMsg)
}
