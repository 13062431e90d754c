package booking

import (
	"context"
	"time"

	"github.com/workgate/agenda/services/scheduling-service/internal/civil"
	"github.com/workgate/agenda/services/scheduling-service/internal/model"
)

// Directory is the read side the engine needs. Lookups that find nothing
// return model.ErrNotFound.
type Directory interface {
	ProviderByID(ctx context.Context, id string) (model.Provider, error)
	ProviderByUsername(ctx context.Context, username string) (model.Provider, error)
	Service(ctx context.Context, businessID, serviceID string) (model.Service, error)
	WorkHour(ctx context.Context, providerID string, day time.Weekday) (model.WorkHourRule, error)
	// BookedSlots lists the active appointments of a provider on a date.
	BookedSlots(ctx context.Context, providerID string, date civil.Date) ([]model.BookedSlot, error)
}

// Tx is one booking transaction. Rollback is always deferred, so it must be
// safe to call after Commit.
type Tx interface {
	// LockProviderDay serializes bookings for a provider and date until the
	// transaction ends.
	LockProviderDay(ctx context.Context, providerID string, date civil.Date) error
	WorkHour(ctx context.Context, providerID string, day time.Weekday) (model.WorkHourRule, error)
	BookedSlots(ctx context.Context, providerID string, date civil.Date) ([]model.BookedSlot, error)
	// UpsertClient resolves the client by (email, business), refreshing name
	// and phone, or creates it.
	UpsertClient(ctx context.Context, c model.Client) (model.Client, error)
	// InsertAppointment fills in ID and CreatedAt. A clash with another
	// active appointment returns model.ErrConflict.
	InsertAppointment(ctx context.Context, a *model.Appointment) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type Store interface {
	Directory
	Begin(ctx context.Context) (Tx, error)
}

// Notifier receives events after a booking has committed.
type Notifier interface {
	BookingConfirmed(ctx context.Context, c Confirmation) error
	AgendaChanged(ctx context.Context, providerID string, date civil.Date) error
}

type NopNotifier struct{}

func (NopNotifier) BookingConfirmed(context.Context, Confirmation) error { return nil }

func (NopNotifier) AgendaChanged(context.Context, string, civil.Date) error { return nil }
