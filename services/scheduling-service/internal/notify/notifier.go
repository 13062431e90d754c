// Package notify turns booking and agenda events into outbox rows that the
// notification service delivers.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/workgate/agenda/libs/events"
	"github.com/workgate/agenda/services/scheduling-service/internal/booking"
	"github.com/workgate/agenda/services/scheduling-service/internal/civil"
	"github.com/workgate/agenda/services/scheduling-service/internal/model"
	"github.com/workgate/agenda/services/scheduling-service/internal/outbox"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, evt outbox.Event) (string, error)
}

type AgendaSource interface {
	ProviderByID(ctx context.Context, id string) (model.Provider, error)
	DailyAgenda(ctx context.Context, providerID string, date civil.Date) ([]model.AgendaItem, error)
}

type Notifier struct {
	out    Enqueuer
	agenda AgendaSource
	logger *slog.Logger
}

func New(out Enqueuer, agenda AgendaSource, logger *slog.Logger) *Notifier {
	return &Notifier{out: out, agenda: agenda, logger: logger}
}

var _ booking.Notifier = (*Notifier)(nil)

func (n *Notifier) BookingConfirmed(ctx context.Context, c booking.Confirmation) error {
	appt := c.Appointment
	evt, err := outbox.NewEvent("appointment", appt.ID, events.AppointmentBooked, events.Booked{
		AppointmentID: appt.ID,
		BusinessID:    appt.BusinessID,
		ProviderID:    appt.ProviderID,
		ProviderName:  c.Provider.Name,
		ServiceName:   c.Service.Name,
		Date:          appt.Date.String(),
		Time:          appt.Time.String(),
		ClientName:    c.Client.Name,
		ClientEmail:   c.Client.Email,
		ClientPhone:   c.Client.Phone,
	})
	if err != nil {
		return err
	}
	return n.enqueue(ctx, evt)
}

// AgendaChanged reloads the provider's day and sends it.
func (n *Notifier) AgendaChanged(ctx context.Context, providerID string, date civil.Date) error {
	provider, err := n.agenda.ProviderByID(ctx, providerID)
	if err != nil {
		return fmt.Errorf("load provider %s: %w", providerID, err)
	}
	items, err := n.agenda.DailyAgenda(ctx, providerID, date)
	if err != nil {
		return fmt.Errorf("load agenda: %w", err)
	}
	return n.SendAgenda(ctx, provider, date, items)
}

func (n *Notifier) SendAgenda(ctx context.Context, p model.Provider, date civil.Date, items []model.AgendaItem) error {
	payload := events.Agenda{
		ProviderID:    p.ID,
		BusinessID:    p.BusinessID,
		ProviderName:  p.Name,
		ProviderEmail: p.Email,
		PushToken:     p.PushToken,
		Date:          date.String(),
		Items:         make([]events.AgendaItem, 0, len(items)),
	}
	for _, it := range items {
		payload.Items = append(payload.Items, events.AgendaItem{
			AppointmentID: it.AppointmentID,
			Time:          it.Time.String(),
			Status:        string(it.Status),
			ServiceName:   it.ServiceName,
			ClientName:    it.ClientName,
			ClientPhone:   it.ClientPhone,
			Observations:  it.Observations,
		})
	}
	evt, err := outbox.NewEvent("provider", p.ID, events.AgendaDaily, payload)
	if err != nil {
		return err
	}
	return n.enqueue(ctx, evt)
}

func (n *Notifier) Reminder(ctx context.Context, it model.AgendaItem) error {
	evt, err := outbox.NewEvent("appointment", it.AppointmentID, events.ReminderRequested, events.Reminder{
		AppointmentID: it.AppointmentID,
		BusinessID:    it.BusinessID,
		ProviderName:  it.ProviderName,
		ServiceName:   it.ServiceName,
		Date:          it.Date.String(),
		Time:          it.Time.String(),
		ClientName:    it.ClientName,
		ClientEmail:   it.ClientEmail,
		ClientPhone:   it.ClientPhone,
	})
	if err != nil {
		return err
	}
	return n.enqueue(ctx, evt)
}

func (n *Notifier) enqueue(ctx context.Context, evt outbox.Event) error {
	id, err := n.out.Enqueue(ctx, evt)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", evt.EventType, err)
	}
	n.logger.Debug("notification enqueued", "event_id", id, "event_type", evt.EventType, "aggregate_id", evt.AggregateID)
	return nil
}
