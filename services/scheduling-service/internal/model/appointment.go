package model

import (
	"errors"
	"time"

	"github.com/workgate/agenda/services/scheduling-service/internal/civil"
)

// ErrNotFound is returned by stores when a tenant-scoped lookup finds nothing.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by stores when a write would overlap an active
// appointment of the same provider.
var ErrConflict = errors.New("conflict")

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

var statuses = map[Status]struct{}{
	StatusScheduled:  {},
	StatusConfirmed:  {},
	StatusInProgress: {},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	_, ok := statuses[st]
	return st, ok
}

// Active reports whether the appointment still occupies its slot.
func (s Status) Active() bool { return s != StatusCancelled }

// Reopens reports whether moving from s to next puts a released slot back in
// use.
func (s Status) Reopens(next Status) bool { return !s.Active() && next.Active() }

type Appointment struct {
	ID           string
	BusinessID   string
	ProviderID   string
	ServiceID    string
	ClientID     string
	Date         civil.Date
	Time         civil.Clock
	Observations string
	Status       Status
	CreatedAt    time.Time
}

// BookedSlot is an active appointment reduced to what conflict checks need.
// Duration is the appointment's own service duration.
type BookedSlot struct {
	AppointmentID string
	Start         civil.Clock
	Duration      time.Duration
}

// AgendaItem is an appointment joined with the names shown to owners,
// providers and clients.
type AgendaItem struct {
	AppointmentID string
	BusinessID    string
	ProviderID    string
	ProviderName  string
	Date          civil.Date
	Time          civil.Clock
	Status        Status
	ServiceName   string
	Duration      time.Duration
	ClientName    string
	ClientEmail   string
	ClientPhone   string
	Observations  string
}
