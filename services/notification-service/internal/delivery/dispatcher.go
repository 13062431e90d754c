// Package delivery turns agenda events into email, SMS and push deliveries
// and records every attempt.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"
	"github.com/workgate/agenda/libs/events"
	"github.com/workgate/agenda/libs/kafkax"
	"github.com/workgate/agenda/libs/metrics"
	"github.com/workgate/agenda/services/notification-service/internal/email"
	"github.com/workgate/agenda/services/notification-service/internal/push"
	"github.com/workgate/agenda/services/notification-service/internal/sms"
	"github.com/workgate/agenda/services/notification-service/internal/storage"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
	ChannelPush  = "push"
)

type Recorder interface {
	Record(ctx context.Context, tx pgx.Tx, a storage.Attempt) error
}

type Senders struct {
	Email email.Sender
	SMS   sms.Sender
	Push  push.Sender
}

// Dispatcher delivers one event per call. A failed send is recorded and does
// not fail the event. Only recording errors are returned; they roll back the
// inbox transaction, so a redelivery sends every channel again, including
// ones that had already gone out.
type Dispatcher struct {
	senders     Senders
	rec         Recorder
	logger      *slog.Logger
	sendTimeout time.Duration
}

func NewDispatcher(senders Senders, rec Recorder, logger *slog.Logger, sendTimeout time.Duration) *Dispatcher {
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	if senders.SMS == nil {
		senders.SMS = sms.NewNoopSender()
	}
	if senders.Push == nil {
		senders.Push = push.NoopSender{}
	}
	return &Dispatcher{senders: senders, rec: rec, logger: logger, sendTimeout: sendTimeout}
}

// Handle matches inbox.TxHandler.
func (d *Dispatcher) Handle(ctx context.Context, tx pgx.Tx, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)
	base := storage.Attempt{EventID: meta.EventID, EventType: meta.EventType}

	var err error
	switch meta.EventType {
	case events.AppointmentBooked:
		var p events.Booked
		if err = json.Unmarshal(msg.Value, &p); err == nil {
			return d.booked(ctx, tx, base, p)
		}
	case events.AgendaDaily:
		var p events.Agenda
		if err = json.Unmarshal(msg.Value, &p); err == nil {
			return d.agenda(ctx, tx, base, p)
		}
	case events.ReminderRequested:
		var p events.Reminder
		if err = json.Unmarshal(msg.Value, &p); err == nil {
			return d.reminder(ctx, tx, base, p)
		}
	default:
		d.logger.Warn("unhandled event type", "event_type", meta.EventType, "event_id", meta.EventID)
		return nil
	}
	d.logger.Error("invalid event payload", "err", err, "event_type", meta.EventType, "event_id", meta.EventID)
	return nil
}

func (d *Dispatcher) booked(ctx context.Context, tx pgx.Tx, base storage.Attempt, p events.Booked) error {
	base.AppointmentID = p.AppointmentID
	base.BusinessID = p.BusinessID

	if to := strings.TrimSpace(p.ClientEmail); to != "" && d.senders.Email != nil {
		msg, err := email.RenderBooked(p)
		if err != nil {
			return err
		}
		if err := d.deliver(ctx, tx, base, ChannelEmail, to, d.senders.Email.ProviderID(), func(ctx context.Context) error {
			return d.senders.Email.Send(ctx, msg)
		}); err != nil {
			return err
		}
	}
	if to := strings.TrimSpace(p.ClientPhone); to != "" {
		body := sms.BookedText(p)
		if err := d.deliver(ctx, tx, base, ChannelSMS, to, d.senders.SMS.ProviderID(), func(ctx context.Context) error {
			return d.senders.SMS.Send(ctx, to, body)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) agenda(ctx context.Context, tx pgx.Tx, base storage.Attempt, p events.Agenda) error {
	base.BusinessID = p.BusinessID

	if to := strings.TrimSpace(p.ProviderEmail); to != "" && d.senders.Email != nil {
		msg, err := email.RenderAgenda(p)
		if err != nil {
			return err
		}
		if err := d.deliver(ctx, tx, base, ChannelEmail, to, d.senders.Email.ProviderID(), func(ctx context.Context) error {
			return d.senders.Email.Send(ctx, msg)
		}); err != nil {
			return err
		}
	}
	if token := strings.TrimSpace(p.PushToken); token != "" {
		n := agendaPush(p)
		if err := d.deliver(ctx, tx, base, ChannelPush, token, d.senders.Push.ProviderID(), func(ctx context.Context) error {
			return d.senders.Push.Send(ctx, token, n)
		}); err != nil {
			return err
		}
	}
	return nil
}

// reminder prefers SMS and falls back to email when the client left no phone.
func (d *Dispatcher) reminder(ctx context.Context, tx pgx.Tx, base storage.Attempt, p events.Reminder) error {
	base.AppointmentID = p.AppointmentID
	base.BusinessID = p.BusinessID

	if to := strings.TrimSpace(p.ClientPhone); to != "" {
		body := sms.ReminderText(p)
		return d.deliver(ctx, tx, base, ChannelSMS, to, d.senders.SMS.ProviderID(), func(ctx context.Context) error {
			return d.senders.SMS.Send(ctx, to, body)
		})
	}
	if to := strings.TrimSpace(p.ClientEmail); to != "" && d.senders.Email != nil {
		msg, err := email.RenderReminder(p)
		if err != nil {
			return err
		}
		return d.deliver(ctx, tx, base, ChannelEmail, to, d.senders.Email.ProviderID(), func(ctx context.Context) error {
			return d.senders.Email.Send(ctx, msg)
		})
	}
	return d.record(ctx, tx, base, "", "", "", storage.StatusSkipped, "no contact")
}

func (d *Dispatcher) deliver(ctx context.Context, tx pgx.Tx, base storage.Attempt, channel, recipient, provider string, send func(context.Context) error) error {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	err := send(sendCtx)
	cancel()

	status, reason := storage.StatusSent, ""
	if err != nil {
		status, reason = storage.StatusFailed, err.Error()
		d.logger.Error("notification send failed", "err", err, "channel", channel,
			"event_id", base.EventID, "appointment_id", base.AppointmentID)
	}
	return d.record(ctx, tx, base, channel, recipient, provider, status, reason)
}

func (d *Dispatcher) record(ctx context.Context, tx pgx.Tx, a storage.Attempt, channel, recipient, provider, status, reason string) error {
	a.Channel = channel
	a.Recipient = recipient
	a.Provider = provider
	a.Status = status
	a.Error = reason
	if a.Channel == "" {
		a.Channel = "none"
	}
	metrics.NotificationsTotal.WithLabelValues(a.Channel, status).Inc()
	if err := d.rec.Record(ctx, tx, a); err != nil {
		return fmt.Errorf("record %s attempt: %w", a.Channel, err)
	}
	return nil
}

func agendaPush(p events.Agenda) push.Notification {
	body := "Nenhum agendamento."
	switch n := len(p.Items); {
	case n == 1:
		body = fmt.Sprintf("1 agendamento: %s %s", p.Items[0].Time, p.Items[0].ClientName)
	case n > 1:
		body = fmt.Sprintf("%d agendamentos, o primeiro às %s", n, p.Items[0].Time)
	}
	return push.Notification{
		Title: "Sua agenda de " + email.DisplayDate(p.Date),
		Body:  body,
		Data:  map[string]string{"provider_id": p.ProviderID, "date": p.Date},
	}
}
