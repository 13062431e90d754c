package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/workgate/agenda/services/scheduling-service/internal/civil"
	"github.com/workgate/agenda/services/scheduling-service/internal/model"
)

// memStore mimics the Postgres store: a per-day lock held until the
// transaction ends and writes that only become visible on commit.
type memStore struct {
	mu        sync.Mutex
	providers map[string]model.Provider
	services  map[string]model.Service
	rules     map[string]model.WorkHourRule
	clients   map[string]model.Client
	appts     []model.Appointment
	dayLocks  map[string]*sync.Mutex
	seq       int

	failInsert error
	failBegin  error
}

func newMemStore() *memStore {
	return &memStore{
		providers: map[string]model.Provider{},
		services:  map[string]model.Service{},
		rules:     map[string]model.WorkHourRule{},
		clients:   map[string]model.Client{},
		dayLocks:  map[string]*sync.Mutex{},
	}
}

func ruleKey(providerID string, day time.Weekday) string {
	return fmt.Sprintf("%s/%d", providerID, day)
}

func clientKey(businessID, email string) string {
	return businessID + "/" + email
}

func (s *memStore) addProvider(p model.Provider) {
	s.providers[p.ID] = p
}

func (s *memStore) addService(sv model.Service) {
	s.services[sv.ID] = sv
}

func (s *memStore) addRule(r model.WorkHourRule) {
	s.rules[ruleKey(r.ProviderID, r.DayOfWeek)] = r
}

func (s *memStore) addAppt(a model.Appointment) {
	s.appts = append(s.appts, a)
}

func (s *memStore) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *memStore) apptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.appts)
}

func (s *memStore) ProviderByID(_ context.Context, id string) (model.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.providers[id]
	if !ok {
		return model.Provider{}, model.ErrNotFound
	}
	return p, nil
}

func (s *memStore) ProviderByUsername(_ context.Context, username string) (model.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.providers {
		if p.Username == username {
			return p, nil
		}
	}
	return model.Provider{}, model.ErrNotFound
}

func (s *memStore) Service(_ context.Context, businessID, serviceID string) (model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sv, ok := s.services[serviceID]
	if !ok || sv.BusinessID != businessID {
		return model.Service{}, model.ErrNotFound
	}
	return sv, nil
}

func (s *memStore) WorkHour(_ context.Context, providerID string, day time.Weekday) (model.WorkHourRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[ruleKey(providerID, day)]
	if !ok {
		return model.WorkHourRule{}, model.ErrNotFound
	}
	return r, nil
}

func (s *memStore) BookedSlots(_ context.Context, providerID string, date civil.Date) ([]model.BookedSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bookedLocked(providerID, date, nil), nil
}

func (s *memStore) bookedLocked(providerID string, date civil.Date, extra []model.Appointment) []model.BookedSlot {
	var out []model.BookedSlot
	for _, a := range append(append([]model.Appointment(nil), s.appts...), extra...) {
		if a.ProviderID != providerID || a.Date != date || !a.Status.Active() {
			continue
		}
		out = append(out, model.BookedSlot{
			AppointmentID: a.ID,
			Start:         a.Time,
			Duration:      s.services[a.ServiceID].Duration(),
		})
	}
	return out
}

func (s *memStore) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.failBegin != nil {
		return nil, s.failBegin
	}
	return &memTx{store: s}, nil
}

type memTx struct {
	store   *memStore
	lock    *sync.Mutex
	clients []model.Client
	appts   []model.Appointment
	done    bool
}

func (t *memTx) LockProviderDay(ctx context.Context, providerID string, date civil.Date) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := t.store
	s.mu.Lock()
	key := providerID + "/" + date.String()
	l, ok := s.dayLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.dayLocks[key] = l
	}
	s.mu.Unlock()

	l.Lock()
	t.lock = l
	return nil
}

func (t *memTx) WorkHour(ctx context.Context, providerID string, day time.Weekday) (model.WorkHourRule, error) {
	return t.store.WorkHour(ctx, providerID, day)
}

func (t *memTx) BookedSlots(_ context.Context, providerID string, date civil.Date) ([]model.BookedSlot, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.bookedLocked(providerID, date, t.appts), nil
}

func (t *memTx) UpsertClient(_ context.Context, c model.Client) (model.Client, error) {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.clients[clientKey(c.BusinessID, c.Email)]; ok {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
	} else {
		s.seq++
		c.ID = fmt.Sprintf("client-%d", s.seq)
		c.CreatedAt = time.Now()
	}
	t.clients = append(t.clients, c)
	return c, nil
}

func (t *memTx) InsertAppointment(_ context.Context, a *model.Appointment) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsert != nil {
		return s.failInsert
	}
	for _, b := range append(append([]model.Appointment(nil), s.appts...), t.appts...) {
		if b.ProviderID == a.ProviderID && b.Date == a.Date && b.Time == a.Time && b.Status.Active() {
			return model.ErrConflict
		}
	}
	s.seq++
	a.ID = fmt.Sprintf("appt-%d", s.seq)
	a.CreatedAt = time.Now()
	t.appts = append(t.appts, *a)
	return nil
}

func (t *memTx) Commit(_ context.Context) error {
	if t.done {
		return errors.New("tx closed")
	}
	s := t.store
	s.mu.Lock()
	for _, c := range t.clients {
		s.clients[clientKey(c.BusinessID, c.Email)] = c
	}
	s.appts = append(s.appts, t.appts...)
	s.mu.Unlock()
	t.finish()
	return nil
}

func (t *memTx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.finish()
	return nil
}

func (t *memTx) finish() {
	t.done = true
	if t.lock != nil {
		t.lock.Unlock()
		t.lock = nil
	}
}

type recordingNotifier struct {
	mu        sync.Mutex
	confirmed []Confirmation
	agendas   []string
	err       error
}

func (n *recordingNotifier) BookingConfirmed(_ context.Context, c Confirmation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed = append(n.confirmed, c)
	return n.err
}

func (n *recordingNotifier) AgendaChanged(_ context.Context, providerID string, date civil.Date) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.agendas = append(n.agendas, providerID+"/"+date.String())
	return n.err
}
