package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"
	"github.com/workgate/agenda/libs/events"
	"github.com/workgate/agenda/libs/kafkax"
	"github.com/workgate/agenda/services/notification-service/internal/email"
	"github.com/workgate/agenda/services/notification-service/internal/push"
	"github.com/workgate/agenda/services/notification-service/internal/storage"
)

type fakeEmail struct {
	sent []email.Message
	err  error
}

func (f *fakeEmail) ProviderID() string { return "fake-smtp" }

func (f *fakeEmail) Send(_ context.Context, msg email.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeSMS struct{ to []string }

func (f *fakeSMS) ProviderID() string { return "fake-sms" }

func (f *fakeSMS) Send(_ context.Context, to, _ string) error {
	f.to = append(f.to, to)
	return nil
}

type fakePush struct{ tokens []string }

func (f *fakePush) ProviderID() string { return "fake-push" }

func (f *fakePush) Send(_ context.Context, token string, _ push.Notification) error {
	f.tokens = append(f.tokens, token)
	return nil
}

type fakeRecorder struct {
	attempts []storage.Attempt
	err      error
}

func (f *fakeRecorder) Record(_ context.Context, _ pgx.Tx, a storage.Attempt) error {
	if f.err != nil {
		return f.err
	}
	f.attempts = append(f.attempts, a)
	return nil
}

type fixture struct {
	email *fakeEmail
	sms   *fakeSMS
	push  *fakePush
	rec   *fakeRecorder
	d     *Dispatcher
}

func newFixture() *fixture {
	f := &fixture{email: &fakeEmail{}, sms: &fakeSMS{}, push: &fakePush{}, rec: &fakeRecorder{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.d = NewDispatcher(Senders{Email: f.email, SMS: f.sms, Push: f.push}, f.rec, logger, 0)
	return f
}

func eventMessage(t *testing.T, eventType string, payload any) kafka.Message {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return kafkax.NewMessage(kafkax.EventMeta{EventID: "evt-1", EventType: eventType}, "agg-1", raw)
}

func TestBookedSendsEmailAndSMS(t *testing.T) {
	f := newFixture()
	msg := eventMessage(t, events.AppointmentBooked, events.Booked{
		AppointmentID: "appt-1", BusinessID: "biz-1", ServiceName: "Corte", Date: "2026-10-19", Time: "10:00",
		ClientName: "Bia", ClientEmail: "bia@example.com", ClientPhone: "+5511999990000",
	})
	if err := f.d.Handle(context.Background(), nil, msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(f.email.sent) != 1 || f.email.sent[0].To != "bia@example.com" {
		t.Fatalf("expected one confirmation email, got %+v", f.email.sent)
	}
	if len(f.sms.to) != 1 {
		t.Fatalf("expected one sms, got %v", f.sms.to)
	}
	if len(f.rec.attempts) != 2 {
		t.Fatalf("expected two recorded attempts, got %d", len(f.rec.attempts))
	}
	for _, a := range f.rec.attempts {
		if a.EventID != "evt-1" || a.AppointmentID != "appt-1" || a.Status != storage.StatusSent {
			t.Fatalf("unexpected attempt %+v", a)
		}
	}
}

func TestBookedWithoutPhoneSkipsSMS(t *testing.T) {
	f := newFixture()
	msg := eventMessage(t, events.AppointmentBooked, events.Booked{AppointmentID: "appt-1", ClientEmail: "bia@example.com"})
	if err := f.d.Handle(context.Background(), nil, msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(f.sms.to) != 0 || len(f.rec.attempts) != 1 {
		t.Fatalf("expected email only, got sms=%v attempts=%d", f.sms.to, len(f.rec.attempts))
	}
}

func TestSendFailureIsRecordedNotReturned(t *testing.T) {
	f := newFixture()
	f.email.err = errors.New("smtp: connection refused")
	msg := eventMessage(t, events.AppointmentBooked, events.Booked{AppointmentID: "appt-1", ClientEmail: "bia@example.com"})
	if err := f.d.Handle(context.Background(), nil, msg); err != nil {
		t.Fatalf("send failures must not fail the event: %v", err)
	}
	if len(f.rec.attempts) != 1 || f.rec.attempts[0].Status != storage.StatusFailed || f.rec.attempts[0].Error == "" {
		t.Fatalf("expected failed attempt, got %+v", f.rec.attempts)
	}
}

func TestRecordErrorIsReturned(t *testing.T) {
	f := newFixture()
	f.rec.err = errors.New("db down")
	msg := eventMessage(t, events.AppointmentBooked, events.Booked{AppointmentID: "appt-1", ClientEmail: "bia@example.com"})
	if err := f.d.Handle(context.Background(), nil, msg); err == nil {
		t.Fatal("expected record error to be returned for retry")
	}

	// The rolled back inbox row lets the redelivery through, which sends again.
	f.rec.err = nil
	if err := f.d.Handle(context.Background(), nil, msg); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if len(f.email.sent) != 2 || len(f.rec.attempts) != 1 {
		t.Fatalf("expected the email resent and recorded once, got sent=%d attempts=%d", len(f.email.sent), len(f.rec.attempts))
	}
}

func TestAgendaSendsEmailAndPush(t *testing.T) {
	f := newFixture()
	msg := eventMessage(t, events.AgendaDaily, events.Agenda{
		ProviderID: "prov-1", BusinessID: "biz-1", ProviderName: "Ana", ProviderEmail: "ana@example.com",
		PushToken: "device-1", Date: "2026-10-14",
		Items: []events.AgendaItem{{Time: "09:00", ServiceName: "Corte", ClientName: "Bia"}},
	})
	if err := f.d.Handle(context.Background(), nil, msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(f.email.sent) != 1 || len(f.push.tokens) != 1 || f.push.tokens[0] != "device-1" {
		t.Fatalf("expected email and push, got email=%d push=%v", len(f.email.sent), f.push.tokens)
	}
}

func TestReminderPrefersSMS(t *testing.T) {
	f := newFixture()
	msg := eventMessage(t, events.ReminderRequested, events.Reminder{
		AppointmentID: "appt-1", ClientName: "Bia", ClientEmail: "bia@example.com", ClientPhone: "+5511999990000",
	})
	if err := f.d.Handle(context.Background(), nil, msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(f.sms.to) != 1 || len(f.email.sent) != 0 {
		t.Fatalf("expected sms only, got sms=%v email=%d", f.sms.to, len(f.email.sent))
	}
}

func TestReminderFallsBackToEmail(t *testing.T) {
	f := newFixture()
	msg := eventMessage(t, events.ReminderRequested, events.Reminder{AppointmentID: "appt-1", ClientEmail: "bia@example.com"})
	if err := f.d.Handle(context.Background(), nil, msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(f.email.sent) != 1 {
		t.Fatalf("expected reminder email, got %d", len(f.email.sent))
	}
}

func TestReminderWithoutContactIsSkipped(t *testing.T) {
	f := newFixture()
	msg := eventMessage(t, events.ReminderRequested, events.Reminder{AppointmentID: "appt-1"})
	if err := f.d.Handle(context.Background(), nil, msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(f.rec.attempts) != 1 || f.rec.attempts[0].Status != storage.StatusSkipped {
		t.Fatalf("expected skipped attempt, got %+v", f.rec.attempts)
	}
}

func TestMalformedAndUnknownEventsAreDropped(t *testing.T) {
	f := newFixture()
	bad := kafkax.NewMessage(kafkax.EventMeta{EventID: "e", EventType: events.AppointmentBooked}, "k", []byte("{"))
	if err := f.d.Handle(context.Background(), nil, bad); err != nil {
		t.Fatalf("malformed payload should be dropped: %v", err)
	}
	other := kafkax.NewMessage(kafkax.EventMeta{EventID: "e", EventType: "something.else.v1"}, "k", []byte("{}"))
	if err := f.d.Handle(context.Background(), nil, other); err != nil {
		t.Fatalf("unknown event should be dropped: %v", err)
	}
	if len(f.rec.attempts) != 0 {
		t.Fatalf("expected no attempts, got %d", len(f.rec.attempts))
	}
}
