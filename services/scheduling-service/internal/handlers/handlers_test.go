package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/workgate/agenda/libs/auth"
	"github.com/workgate/agenda/services/scheduling-service/internal/booking"
	"github.com/workgate/agenda/services/scheduling-service/internal/civil"
	"github.com/workgate/agenda/services/scheduling-service/internal/model"
)

const secret = "test-secret"

var (
	brt     = time.FixedZone("BRT", -3*3600)
	discard = slog.New(slog.NewTextHandler(io.Discard, nil))
)

type fakeBooker struct {
	slots    []string
	slotsErr error
	bookErr  error
	lastReq  booking.BookingRequest
}

func (f *fakeBooker) AvailableSlots(_ context.Context, _ booking.ProviderRef, _, _ string) ([]string, error) {
	return f.slots, f.slotsErr
}

func (f *fakeBooker) CreateBooking(_ context.Context, req booking.BookingRequest) (booking.Confirmation, error) {
	f.lastReq = req
	if f.bookErr != nil {
		return booking.Confirmation{}, f.bookErr
	}
	return booking.Confirmation{
		Appointment: model.Appointment{
			ID: "appt-1", ProviderID: "prov-1", ServiceID: req.ServiceID, ClientID: "client-1",
			Date: civil.Date{Year: 2026, Month: 10, Day: 19}, Time: civil.MustClock(req.Time),
			Status: model.StatusScheduled, CreatedAt: time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC),
		},
		Provider: model.Provider{Name: "Ana"},
		Service:  model.Service{Name: "Haircut"},
		Client:   model.Client{Name: req.ClientName},
	}, nil
}

type fakeStore struct {
	provider  model.Provider
	services  []model.Service
	rules     []model.WorkHourRule
	items     []model.AgendaItem
	updated   model.Appointment
	updateErr error
	replaced  []model.WorkHourRule
	seeded    bool
	lastBiz   string
	tokens    map[string]string
}

func (f *fakeStore) ProviderByUsername(_ context.Context, username string) (model.Provider, error) {
	if username != f.provider.Username {
		return model.Provider{}, model.ErrNotFound
	}
	return f.provider, nil
}

func (f *fakeStore) Services(context.Context, string) ([]model.Service, error) {
	return f.services, nil
}

func (f *fakeStore) WorkHours(context.Context, string) ([]model.WorkHourRule, error) {
	return f.rules, nil
}

func (f *fakeStore) AppointmentsOn(_ context.Context, businessID string, _ civil.Date) ([]model.AgendaItem, error) {
	f.lastBiz = businessID
	return f.items, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, businessID, id string, status model.Status) (model.Appointment, error) {
	f.lastBiz = businessID
	if f.updateErr != nil {
		return model.Appointment{}, f.updateErr
	}
	f.updated.ID = id
	f.updated.Status = status
	return f.updated, nil
}

func (f *fakeStore) ReplaceWorkHours(_ context.Context, _ string, rules []model.WorkHourRule) error {
	f.replaced = rules
	return nil
}

func (f *fakeStore) SeedDefaultWorkHours(context.Context, string) (bool, error) {
	f.seeded = true
	return false, nil
}

func (f *fakeStore) SetPushToken(_ context.Context, businessID, providerID, token string) error {
	if businessID != f.provider.BusinessID || providerID != f.provider.ID {
		return model.ErrNotFound
	}
	if f.tokens == nil {
		f.tokens = map[string]string{}
	}
	f.tokens[providerID] = token
	return nil
}

func (f *fakeStore) CountNewClients(_ context.Context, _ string, from, _ time.Time) (int, error) {
	if civil.DateOf(from).String() == "2026-10-11" {
		return 4, nil
	}
	return 1, nil
}

func (f *fakeStore) CountAppointments(_ context.Context, _ string, status model.Status, _, _ civil.Date) (int, error) {
	if status == model.StatusCompleted {
		return 9, nil
	}
	return 3, nil
}

type fakeNotifier struct{ calls []string }

func (f *fakeNotifier) AgendaChanged(_ context.Context, providerID string, date civil.Date) error {
	f.calls = append(f.calls, providerID+"/"+date.String())
	return nil
}

func newServer(t *testing.T, b *fakeBooker, s *fakeStore, n *fakeNotifier) *http.ServeMux {
	t.Helper()
	var notifier AgendaNotifier
	if n != nil {
		notifier = n
	}
	owner := NewOwnerHandler(s, notifier, discard, brt)
	owner.now = func() time.Time { return time.Date(2026, 10, 14, 9, 0, 0, 0, brt) }
	mux := http.NewServeMux()
	Register(mux, NewPublicHandler(b, s, discard), owner, nil, auth.RequireOwner(secret))
	return mux
}

func ownerToken(t *testing.T) string {
	t.Helper()
	tok, err := auth.SignHS256(auth.Claims{
		BusinessID:       "biz-1",
		ProviderID:       "prov-1",
		Role:             "owner",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}, secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func do(mux http.Handler, method, target, body, token string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body struct {
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not json: %v (%s)", err, rr.Body.String())
	}
	return body.Error, body.Reason
}

func TestSlots(t *testing.T) {
	mux := newServer(t, &fakeBooker{slots: []string{"09:00", "09:30"}}, &fakeStore{}, nil)

	rr := do(mux, http.MethodGet, "/api/v1/public/slots?username=ana&service_id=svc&date=2026-10-19", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var got []string
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil || len(got) != 2 {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}

	rr = do(mux, http.MethodPost, "/api/v1/public/slots", "", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestSlotsEmptyIsArray(t *testing.T) {
	mux := newServer(t, &fakeBooker{slots: []string{}}, &fakeStore{}, nil)
	rr := do(mux, http.MethodGet, "/api/v1/public/slots?username=ana&service_id=svc&date=2026-10-18", "", "")
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("expected empty array, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestBookSuccess(t *testing.T) {
	b := &fakeBooker{}
	mux := newServer(t, b, &fakeStore{}, nil)

	body := `{"username":"ana","service_id":"svc-30","date":"2026-10-19","time":"10:00","client_name":"Bia","client_email":"bia@example.com"}`
	rr := do(mux, http.MethodPost, "/api/v1/public/bookings", body, "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var got bookingResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if got.AppointmentID != "appt-1" || got.ServiceName != "Haircut" || got.ProviderName != "Ana" || got.ClientName != "Bia" || got.Time != "10:00" {
		t.Fatalf("unexpected response %+v", got)
	}
	if b.lastReq.Provider.Username != "ana" {
		t.Fatalf("provider ref not forwarded: %+v", b.lastReq.Provider)
	}
}

func TestBookRejectionsMapToStatus(t *testing.T) {
	cases := []struct {
		reason booking.Reason
		status int
	}{
		{booking.ReasonMissingFields, http.StatusBadRequest},
		{booking.ReasonInvalidInput, http.StatusBadRequest},
		{booking.ReasonProviderNotFound, http.StatusNotFound},
		{booking.ReasonServiceNotFound, http.StatusNotFound},
		{booking.ReasonOutsideWorkingHours, http.StatusConflict},
		{booking.ReasonSlotUnavailable, http.StatusConflict},
	}
	for _, tc := range cases {
		rej := &booking.Rejection{Reason: tc.reason, Message: "rejected"}
		mux := newServer(t, &fakeBooker{bookErr: fmt.Errorf("create booking: %w", rej)}, &fakeStore{}, nil)
		rr := do(mux, http.MethodPost, "/api/v1/public/bookings", `{"username":"ana"}`, "")
		if rr.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.reason, tc.status, rr.Code)
		}
		if msg, reason := decodeError(t, rr); reason != string(tc.reason) || msg != "rejected" {
			t.Fatalf("%s: unexpected body %q/%q", tc.reason, msg, reason)
		}
	}
}

func TestBookHidesStorageErrors(t *testing.T) {
	mux := newServer(t, &fakeBooker{bookErr: fmt.Errorf("insert appointment: %w", errors.New("pq: relation does not exist"))}, &fakeStore{}, nil)
	rr := do(mux, http.MethodPost, "/api/v1/public/bookings", `{"username":"ana"}`, "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if msg, _ := decodeError(t, rr); strings.Contains(msg, "relation") {
		t.Fatalf("internal error leaked: %q", msg)
	}
}

func TestBookInvalidJSON(t *testing.T) {
	mux := newServer(t, &fakeBooker{}, &fakeStore{}, nil)
	rr := do(mux, http.MethodPost, "/api/v1/public/bookings", `{"username":`, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if _, reason := decodeError(t, rr); reason != "invalid_input" {
		t.Fatalf("expected invalid_input, got %s", reason)
	}
}

func TestProfile(t *testing.T) {
	s := &fakeStore{
		provider: model.Provider{ID: "prov-1", BusinessID: "biz-1", Name: "Ana", Username: "ana"},
		services: []model.Service{{ID: "svc-30", Name: "Haircut", DurationMinutes: 30, Price: "50.00"}},
		rules:    []model.WorkHourRule{{DayOfWeek: time.Monday, Start: civil.MustClock("09:00"), End: civil.MustClock("18:00"), IsAvailable: true}},
	}
	mux := newServer(t, &fakeBooker{}, s, nil)

	rr := do(mux, http.MethodGet, "/api/v1/public/profile?username=ana", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var got profileResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if got.Name != "Ana" || len(got.Services) != 1 || got.WorkHours[0].StartTime != "09:00:00" {
		t.Fatalf("unexpected profile %+v", got)
	}

	if rr := do(mux, http.MethodGet, "/api/v1/public/profile?username=nobody", "", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestOwnerRoutesRequireToken(t *testing.T) {
	mux := newServer(t, &fakeBooker{}, &fakeStore{}, nil)
	for _, path := range []string{"/api/v1/appointments", "/api/v1/work-hours", "/api/v1/reports/weekly", "/api/v1/push-token"} {
		if rr := do(mux, http.MethodGet, path, "", ""); rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rr.Code)
		}
	}
}

func TestListAppointmentsScopedToTenant(t *testing.T) {
	s := &fakeStore{items: []model.AgendaItem{
		{AppointmentID: "a1", Date: civil.Date{Year: 2026, Month: 10, Day: 14}, Time: civil.MustClock("09:00"), Status: model.StatusScheduled, Duration: 30 * time.Minute},
	}}
	mux := newServer(t, &fakeBooker{}, s, nil)

	rr := do(mux, http.MethodGet, "/api/v1/appointments?date=2026-10-14", "", ownerToken(t))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var got []appointmentItem
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil || len(got) != 1 || got[0].DurationMinutes != 30 {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
	if s.lastBiz != "biz-1" {
		t.Fatalf("expected query scoped to biz-1, got %q", s.lastBiz)
	}

	if rr := do(mux, http.MethodGet, "/api/v1/appointments?date=14-10-2026", "", ownerToken(t)); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", rr.Code)
	}
}

func TestUpdateStatus(t *testing.T) {
	s := &fakeStore{updated: model.Appointment{ProviderID: "prov-1", Date: civil.Date{Year: 2026, Month: 10, Day: 14}}}
	n := &fakeNotifier{}
	mux := newServer(t, &fakeBooker{}, s, n)
	tok := ownerToken(t)

	rr := do(mux, http.MethodPost, "/api/v1/appointments/status", `{"appointment_id":"a1","status":"completed"}`, tok)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(n.calls) != 1 {
		t.Fatalf("expected agenda refresh for today's appointment, got %v", n.calls)
	}

	if rr := do(mux, http.MethodPost, "/api/v1/appointments/status", `{"appointment_id":"a1","status":"done"}`, tok); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rr.Code)
	}

	s.updateErr = model.ErrNotFound
	if rr := do(mux, http.MethodPost, "/api/v1/appointments/status", `{"appointment_id":"other","status":"cancelled"}`, tok); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	s.updateErr = model.ErrConflict
	if rr := do(mux, http.MethodPost, "/api/v1/appointments/status", `{"appointment_id":"a1","status":"scheduled"}`, tok); rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestWorkHours(t *testing.T) {
	s := &fakeStore{}
	mux := newServer(t, &fakeBooker{}, s, nil)
	tok := ownerToken(t)

	if rr := do(mux, http.MethodGet, "/api/v1/work-hours", "", tok); rr.Code != http.StatusOK || !s.seeded {
		t.Fatalf("expected 200 with seeding, got %d", rr.Code)
	}

	body := `{"work_hours":[{"day_of_week":1,"start_time":"08:00","end_time":"17:00","is_available":true},{"day_of_week":0,"start_time":"00:00","end_time":"00:00","is_available":false}]}`
	rr := do(mux, http.MethodPut, "/api/v1/work-hours", body, tok)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(s.replaced) != 2 || s.replaced[0].Start.Full() != "08:00:00" || s.replaced[0].ProviderID != "prov-1" {
		t.Fatalf("unexpected rules %+v", s.replaced)
	}

	invalid := []string{
		`{"work_hours":[{"day_of_week":7,"start_time":"08:00","end_time":"17:00","is_available":true}]}`,
		`{"work_hours":[{"day_of_week":1,"start_time":"08:00","end_time":"17:00","is_available":true},{"day_of_week":1,"start_time":"09:00","end_time":"10:00","is_available":true}]}`,
		`{"work_hours":[{"day_of_week":1,"start_time":"18:00","end_time":"17:00","is_available":true}]}`,
		`{"work_hours":[{"day_of_week":1,"start_time":"8am","end_time":"17:00","is_available":true}]}`,
	}
	for _, b := range invalid {
		if rr := do(mux, http.MethodPut, "/api/v1/work-hours", b, tok); rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d", b, rr.Code)
		}
	}
}

func TestPutPushToken(t *testing.T) {
	s := &fakeStore{provider: model.Provider{ID: "prov-1", BusinessID: "biz-1"}}
	mux := newServer(t, &fakeBooker{}, s, nil)
	tok := ownerToken(t)

	rr := do(mux, http.MethodPut, "/api/v1/push-token", `{"token":" ExponentPushToken[abc] "}`, tok)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if s.tokens["prov-1"] != "ExponentPushToken[abc]" {
		t.Fatalf("expected trimmed token stored for prov-1, got %v", s.tokens)
	}

	if rr := do(mux, http.MethodPut, "/api/v1/push-token", `{"token":"  "}`, tok); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank token, got %d", rr.Code)
	}
	if rr := do(mux, http.MethodPost, "/api/v1/push-token", `{"token":"x"}`, tok); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for POST, got %d", rr.Code)
	}

	s.provider.BusinessID = "biz-2"
	if rr := do(mux, http.MethodPut, "/api/v1/push-token", `{"token":"x"}`, tok); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a provider outside the tenant, got %d", rr.Code)
	}
}

func TestWeeklyReport(t *testing.T) {
	mux := newServer(t, &fakeBooker{}, &fakeStore{}, nil)
	rr := do(mux, http.MethodGet, "/api/v1/reports/weekly", "", ownerToken(t))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var got weeklyReportResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if got.ClientIncrease != 3 || got.CompletedAppointments != 9 || got.CancelledAppointments != 3 {
		t.Fatalf("unexpected report %+v", got)
	}
	if got.Period.Start != "2026-10-11" || got.Period.End != "2026-10-17" {
		t.Fatalf("unexpected period %+v", got.Period)
	}
}
