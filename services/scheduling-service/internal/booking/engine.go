package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/workgate/agenda/libs/metrics"
	otelx "github.com/workgate/agenda/libs/otel"
	"github.com/workgate/agenda/services/scheduling-service/internal/availability"
	"github.com/workgate/agenda/services/scheduling-service/internal/civil"
	"github.com/workgate/agenda/services/scheduling-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ProviderRef struct {
	ID       string
	Username string
}

func (r ProviderRef) empty() bool {
	return strings.TrimSpace(r.ID) == "" && strings.TrimSpace(r.Username) == ""
}

type BookingRequest struct {
	Provider     ProviderRef
	ServiceID    string
	Date         string
	Time         string
	ClientName   string
	ClientEmail  string
	ClientPhone  string
	Observations string
}

type Confirmation struct {
	Appointment model.Appointment
	Provider    model.Provider
	Service     model.Service
	Client      model.Client
}

type Config struct {
	// Location is the business time zone used to decide what "today" is.
	Location      *time.Location
	Slots         availability.SlotOptions
	NotifyTimeout time.Duration
	Now           func() time.Time
}

type Engine struct {
	store    Store
	notifier Notifier
	logger   *slog.Logger
	cfg      Config
	tracer   trace.Tracer
	inflight sync.WaitGroup
}

func NewEngine(store Store, notifier Notifier, logger *slog.Logger, cfg Config) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Engine{
		store:    store,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		tracer:   otelx.Tracer("scheduling-service/booking"),
	}
}

func (e *Engine) now() time.Time {
	return e.cfg.Now().In(e.cfg.Location)
}

// Today is the current calendar day in the business location.
func (e *Engine) Today() civil.Date {
	return civil.DateOf(e.now())
}

// AvailableSlots lists the free HH:MM start times of a provider for a service
// on a date. A day without an available work-hour rule yields an empty list.
func (e *Engine) AvailableSlots(ctx context.Context, ref ProviderRef, serviceID, date string) ([]string, error) {
	ctx, span := e.tracer.Start(ctx, "booking.AvailableSlots")
	defer span.End()

	serviceID = strings.TrimSpace(serviceID)
	date = strings.TrimSpace(date)
	if ref.empty() || serviceID == "" || date == "" {
		return nil, reject(ErrMissingFields)
	}
	day, err := civil.ParseDate(date)
	if err != nil {
		return nil, rejectf(ErrInvalidInput, err.Error())
	}

	provider, err := e.resolveProvider(ctx, ref)
	if err != nil {
		return nil, err
	}
	service, err := e.resolveService(ctx, provider.BusinessID, serviceID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("provider_id", provider.ID), attribute.String("date", day.String()))

	rule, err := e.store.WorkHour(ctx, provider.ID, day.Weekday())
	if errors.Is(err, model.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load work hours: %w", err)
	}
	if !rule.IsAvailable {
		return []string{}, nil
	}

	slots, err := availability.GenerateSlots(rule.Start, rule.End, service.Duration(), e.cfg.Slots)
	if err != nil {
		return nil, fmt.Errorf("service %s: %w", service.ID, err)
	}
	booked, err := e.store.BookedSlots(ctx, provider.ID, day)
	if err != nil {
		return nil, fmt.Errorf("load booked slots: %w", err)
	}

	free := availability.FilterSlots(slots, booked, day, e.now())
	metrics.SlotsServed.Observe(float64(len(free)))
	return availability.Format(free), nil
}

// CreateBooking validates the request and commits the appointment. Business
// refusals are returned as *Rejection; anything else is a storage failure.
func (e *Engine) CreateBooking(ctx context.Context, req BookingRequest) (Confirmation, error) {
	ctx, span := e.tracer.Start(ctx, "booking.CreateBooking")
	defer span.End()

	conf, err := e.createBooking(ctx, req)
	var rej *Rejection
	switch {
	case err == nil:
		metrics.BookingsTotal.WithLabelValues("committed").Inc()
		span.SetAttributes(attribute.String("appointment_id", conf.Appointment.ID))
	case errors.As(err, &rej):
		metrics.BookingsTotal.WithLabelValues(string(rej.Reason)).Inc()
		span.SetAttributes(attribute.String("rejection", string(rej.Reason)))
	default:
		metrics.BookingsTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "booking failed")
	}
	if err != nil {
		return Confirmation{}, err
	}

	e.notifyCommitted(ctx, conf)
	return conf, nil
}

func (e *Engine) createBooking(ctx context.Context, req BookingRequest) (Confirmation, error) {
	req = trimRequest(req)
	if req.Provider.empty() || req.ServiceID == "" || req.Date == "" || req.Time == "" ||
		req.ClientName == "" || req.ClientEmail == "" {
		return Confirmation{}, reject(ErrMissingFields)
	}
	day, err := civil.ParseDate(req.Date)
	if err != nil {
		return Confirmation{}, rejectf(ErrInvalidInput, err.Error())
	}
	at, err := civil.ParseClock(req.Time)
	if err != nil {
		return Confirmation{}, rejectf(ErrInvalidInput, err.Error())
	}
	if addr, err := mail.ParseAddress(req.ClientEmail); err != nil || addr.Address != req.ClientEmail {
		return Confirmation{}, rejectf(ErrInvalidInput, "invalid client email")
	}

	provider, err := e.resolveProvider(ctx, req.Provider)
	if err != nil {
		return Confirmation{}, err
	}
	service, err := e.resolveService(ctx, provider.BusinessID, req.ServiceID)
	if err != nil {
		return Confirmation{}, err
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return Confirmation{}, fmt.Errorf("begin booking: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.LockProviderDay(ctx, provider.ID, day); err != nil {
		return Confirmation{}, fmt.Errorf("lock provider day: %w", err)
	}

	rule, err := tx.WorkHour(ctx, provider.ID, day.Weekday())
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return Confirmation{}, fmt.Errorf("load work hours: %w", err)
	}
	if err != nil || !availability.WithinWorkingHours(at, rule) {
		return Confirmation{}, reject(ErrOutsideWorkingHours)
	}

	booked, err := tx.BookedSlots(ctx, provider.ID, day)
	if err != nil {
		return Confirmation{}, fmt.Errorf("load booked slots: %w", err)
	}
	if availability.Conflicts(at, availability.Busy(booked)) {
		return Confirmation{}, reject(ErrSlotUnavailable)
	}

	client, err := tx.UpsertClient(ctx, model.Client{
		BusinessID: provider.BusinessID,
		Name:       req.ClientName,
		Email:      req.ClientEmail,
		Phone:      req.ClientPhone,
	})
	if err != nil {
		return Confirmation{}, fmt.Errorf("upsert client: %w", err)
	}

	appt := model.Appointment{
		BusinessID:   provider.BusinessID,
		ProviderID:   provider.ID,
		ServiceID:    service.ID,
		ClientID:     client.ID,
		Date:         day,
		Time:         at,
		Observations: req.Observations,
		Status:       model.StatusScheduled,
	}
	if err := tx.InsertAppointment(ctx, &appt); err != nil {
		if errors.Is(err, model.ErrConflict) {
			return Confirmation{}, reject(ErrSlotUnavailable)
		}
		return Confirmation{}, fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if errors.Is(err, model.ErrConflict) {
			return Confirmation{}, reject(ErrSlotUnavailable)
		}
		return Confirmation{}, fmt.Errorf("commit booking: %w", err)
	}

	return Confirmation{Appointment: appt, Provider: provider, Service: service, Client: client}, nil
}

func (e *Engine) resolveProvider(ctx context.Context, ref ProviderRef) (model.Provider, error) {
	var (
		p   model.Provider
		err error
	)
	if id := strings.TrimSpace(ref.ID); id != "" {
		p, err = e.store.ProviderByID(ctx, id)
	} else {
		p, err = e.store.ProviderByUsername(ctx, strings.TrimSpace(ref.Username))
	}
	if errors.Is(err, model.ErrNotFound) {
		return model.Provider{}, reject(ErrProviderNotFound)
	}
	if err != nil {
		return model.Provider{}, fmt.Errorf("load provider: %w", err)
	}
	return p, nil
}

func (e *Engine) resolveService(ctx context.Context, businessID, serviceID string) (model.Service, error) {
	s, err := e.store.Service(ctx, businessID, serviceID)
	if errors.Is(err, model.ErrNotFound) {
		return model.Service{}, reject(ErrServiceNotFound)
	}
	if err != nil {
		return model.Service{}, fmt.Errorf("load service: %w", err)
	}
	return s, nil
}

// notifyCommitted fires the post-commit events in the background. They never
// affect the booking result.
func (e *Engine) notifyCommitted(ctx context.Context, conf Confirmation) {
	base := context.WithoutCancel(ctx)
	appt := conf.Appointment

	e.spawn(base, "booking confirmation", appt.ID, func(ctx context.Context) error {
		return e.notifier.BookingConfirmed(ctx, conf)
	})
	if appt.Date == e.Today() {
		e.spawn(base, "agenda refresh", appt.ID, func(ctx context.Context) error {
			return e.notifier.AgendaChanged(ctx, appt.ProviderID, appt.Date)
		})
	}
}

func (e *Engine) spawn(base context.Context, what, appointmentID string, fn func(context.Context) error) {
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		ctx, cancel := context.WithTimeout(base, e.cfg.NotifyTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			e.logger.Error(what+" failed", "err", err, "appointment_id", appointmentID)
		}
	}()
}

// Drain waits for in-flight notifications or until ctx is done.
func (e *Engine) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func trimRequest(r BookingRequest) BookingRequest {
	r.Provider.ID = strings.TrimSpace(r.Provider.ID)
	r.Provider.Username = strings.TrimSpace(r.Provider.Username)
	r.ServiceID = strings.TrimSpace(r.ServiceID)
	r.Date = strings.TrimSpace(r.Date)
	r.Time = strings.TrimSpace(r.Time)
	r.ClientName = strings.TrimSpace(r.ClientName)
	r.ClientEmail = strings.ToLower(strings.TrimSpace(r.ClientEmail))
	r.ClientPhone = strings.TrimSpace(r.ClientPhone)
	r.Observations = strings.TrimSpace(r.Observations)
	return r
}
