package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/workgate/agenda/libs/auth"
	"github.com/workgate/agenda/libs/httpx"
	"github.com/workgate/agenda/services/scheduling-service/internal/civil"
	"github.com/workgate/agenda/services/scheduling-service/internal/model"
	"github.com/workgate/agenda/services/scheduling-service/internal/reports"
)

type OwnerStore interface {
	reports.Source
	AppointmentsOn(ctx context.Context, businessID string, date civil.Date) ([]model.AgendaItem, error)
	UpdateStatus(ctx context.Context, businessID, appointmentID string, status model.Status) (model.Appointment, error)
	WorkHours(ctx context.Context, providerID string) ([]model.WorkHourRule, error)
	ReplaceWorkHours(ctx context.Context, providerID string, rules []model.WorkHourRule) error
	SeedDefaultWorkHours(ctx context.Context, providerID string) (bool, error)
	SetPushToken(ctx context.Context, businessID, providerID, token string) error
}

// AgendaNotifier is told when an owner change touches today's agenda.
type AgendaNotifier interface {
	AgendaChanged(ctx context.Context, providerID string, date civil.Date) error
}

// OwnerHandler serves the authenticated owner routes. Every query is scoped
// to the business in the caller's token.
type OwnerHandler struct {
	store    OwnerStore
	notifier AgendaNotifier
	logger   *slog.Logger
	loc      *time.Location
	now      func() time.Time
}

func NewOwnerHandler(store OwnerStore, notifier AgendaNotifier, logger *slog.Logger, loc *time.Location) *OwnerHandler {
	return &OwnerHandler{store: store, notifier: notifier, logger: logger, loc: loc, now: time.Now}
}

type appointmentItem struct {
	AppointmentID   string `json:"appointment_id"`
	ProviderID      string `json:"provider_id"`
	ProviderName    string `json:"provider_name"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	Status          string `json:"status"`
	ServiceName     string `json:"service_name"`
	DurationMinutes int    `json:"duration_minutes"`
	ClientName      string `json:"client_name"`
	ClientEmail     string `json:"client_email,omitempty"`
	ClientPhone     string `json:"client_phone,omitempty"`
	Observations    string `json:"observations,omitempty"`
}

type updateStatusRequest struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

type pushTokenRequest struct {
	Token string `json:"token"`
}

type workHourItem struct {
	DayOfWeek   int    `json:"day_of_week"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	IsAvailable bool   `json:"is_available"`
}

type workHoursBody struct {
	WorkHours []workHourItem `json:"work_hours"`
}

type period struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type weeklyReportResponse struct {
	ClientIncrease        int    `json:"client_increase"`
	NewClients            int    `json:"new_clients"`
	CompletedAppointments int    `json:"completed_appointments"`
	CancelledAppointments int    `json:"cancelled_appointments"`
	Period                period `json:"period"`
}

func (h *OwnerHandler) today() civil.Date {
	return civil.DateOf(h.now().In(h.loc))
}

func claimsOrFail(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
	}
	return claims, ok
}

// ListAppointments serves GET /api/v1/appointments?date=YYYY-MM-DD. The date
// defaults to today.
func (h *OwnerHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrFail(w, r)
	if !ok {
		return
	}
	date := h.today()
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		d, err := civil.ParseDate(raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid date")
			return
		}
		date = d
	}

	items, err := h.store.AppointmentsOn(r.Context(), claims.BusinessID, date)
	if err != nil {
		h.logger.Error("list appointments failed", "err", err, "business_id", claims.BusinessID)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to list appointments")
		return
	}
	resp := make([]appointmentItem, 0, len(items))
	for _, it := range items {
		resp = append(resp, appointmentItem{
			AppointmentID:   it.AppointmentID,
			ProviderID:      it.ProviderID,
			ProviderName:    it.ProviderName,
			Date:            it.Date.String(),
			Time:            it.Time.String(),
			Status:          string(it.Status),
			ServiceName:     it.ServiceName,
			DurationMinutes: int(it.Duration / time.Minute),
			ClientName:      it.ClientName,
			ClientEmail:     it.ClientEmail,
			ClientPhone:     it.ClientPhone,
			Observations:    it.Observations,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// UpdateStatus serves POST /api/v1/appointments/status.
func (h *OwnerHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrFail(w, r)
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "appointment_id required")
		return
	}
	status, ok := model.ParseStatus(strings.TrimSpace(req.Status))
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "invalid status")
		return
	}

	appt, err := h.store.UpdateStatus(r.Context(), claims.BusinessID, req.AppointmentID, status)
	switch {
	case errors.Is(err, model.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "appointment not found")
		return
	case errors.Is(err, model.ErrConflict):
		httpx.WriteError(w, http.StatusConflict, "time slot already booked")
		return
	case err != nil:
		h.logger.Error("update status failed", "err", err, "appointment_id", req.AppointmentID)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to update appointment")
		return
	}

	if appt.Date == h.today() && h.notifier != nil {
		if err := h.notifier.AgendaChanged(r.Context(), appt.ProviderID, appt.Date); err != nil {
			h.logger.Error("agenda refresh failed", "err", err, "appointment_id", appt.ID)
		}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"appointment_id": appt.ID,
		"status":         string(appt.Status),
	})
}

// GetWorkHours serves GET /api/v1/work-hours for the caller's provider,
// seeding the default week the first time.
func (h *OwnerHandler) GetWorkHours(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrFail(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if seeded, err := h.store.SeedDefaultWorkHours(ctx, claims.ProviderID); err != nil {
		h.logger.Error("seed work hours failed", "err", err, "provider_id", claims.ProviderID)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load work hours")
		return
	} else if seeded {
		h.logger.Info("default work hours seeded", "provider_id", claims.ProviderID)
	}

	rules, err := h.store.WorkHours(ctx, claims.ProviderID)
	if err != nil {
		h.logger.Error("load work hours failed", "err", err, "provider_id", claims.ProviderID)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load work hours")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, workHoursBody{WorkHours: toWorkHourItems(rules)})
}

// PutWorkHours serves PUT /api/v1/work-hours, replacing every rule.
func (h *OwnerHandler) PutWorkHours(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrFail(w, r)
	if !ok {
		return
	}
	var body workHoursBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	rules, err := parseWorkHours(claims.ProviderID, body.WorkHours)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.ReplaceWorkHours(r.Context(), claims.ProviderID, rules); err != nil {
		h.logger.Error("replace work hours failed", "err", err, "provider_id", claims.ProviderID)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to save work hours")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, workHoursBody{WorkHours: toWorkHourItems(rules)})
}

// PutPushToken serves PUT /api/v1/push-token, registering the device that
// receives the caller's agenda pushes.
func (h *OwnerHandler) PutPushToken(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrFail(w, r)
	if !ok {
		return
	}
	var req pushTokenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		httpx.WriteError(w, http.StatusBadRequest, "token required")
		return
	}

	err := h.store.SetPushToken(r.Context(), claims.BusinessID, claims.ProviderID, token)
	switch {
	case errors.Is(err, model.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "provider not found")
		return
	case err != nil:
		h.logger.Error("save push token failed", "err", err, "provider_id", claims.ProviderID)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to save push token")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "push token saved"})
}

// WeeklyReport serves GET /api/v1/reports/weekly.
func (h *OwnerHandler) WeeklyReport(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrFail(w, r)
	if !ok {
		return
	}
	rep, err := reports.BuildWeekly(r.Context(), h.store, claims.BusinessID, h.now().In(h.loc))
	if err != nil {
		h.logger.Error("weekly report failed", "err", err, "business_id", claims.BusinessID)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to build report")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, weeklyReportResponse{
		ClientIncrease:        rep.ClientIncrease,
		NewClients:            rep.NewClients,
		CompletedAppointments: rep.CompletedAppointments,
		CancelledAppointments: rep.CancelledAppointments,
		Period:                period{Start: rep.Period.Start.String(), End: rep.Period.End.String()},
	})
}

// parseWorkHours validates a full week replacement.
func parseWorkHours(providerID string, items []workHourItem) ([]model.WorkHourRule, error) {
	seen := map[int]bool{}
	rules := make([]model.WorkHourRule, 0, len(items))
	for _, it := range items {
		if it.DayOfWeek < 0 || it.DayOfWeek > 6 {
			return nil, errors.New("day_of_week must be between 0 and 6")
		}
		if seen[it.DayOfWeek] {
			return nil, fmt.Errorf("duplicate day_of_week %d", it.DayOfWeek)
		}
		seen[it.DayOfWeek] = true

		start, err := civil.ParseClock(strings.TrimSpace(it.StartTime))
		if err != nil {
			return nil, fmt.Errorf("day %d: %v", it.DayOfWeek, err)
		}
		end, err := civil.ParseClock(strings.TrimSpace(it.EndTime))
		if err != nil {
			return nil, fmt.Errorf("day %d: %v", it.DayOfWeek, err)
		}
		if it.IsAvailable && start >= end {
			return nil, fmt.Errorf("day %d: start_time must be before end_time", it.DayOfWeek)
		}
		rules = append(rules, model.WorkHourRule{
			ProviderID:  providerID,
			DayOfWeek:   time.Weekday(it.DayOfWeek),
			Start:       start,
			End:         end,
			IsAvailable: it.IsAvailable,
		})
	}
	return rules, nil
}

func toWorkHourItems(rules []model.WorkHourRule) []workHourItem {
	out := make([]workHourItem, 0, len(rules))
	for _, r := range rules {
		out = append(out, workHourItem{
			DayOfWeek:   int(r.DayOfWeek),
			StartTime:   r.Start.Full(),
			EndTime:     r.End.Full(),
			IsAvailable: r.IsAvailable,
		})
	}
	return out
}
