// Package reports computes the owner's weekly summary.
package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/workgate/agenda/services/scheduling-service/internal/civil"
	"github.com/workgate/agenda/services/scheduling-service/internal/model"
)

// Week runs Sunday to Saturday, both days included.
type Week struct {
	Start civil.Date
	End   civil.Date
}

// WeekRange returns the week containing t, in t's location.
func WeekRange(t time.Time) Week {
	today := civil.DateOf(t)
	start := today.AddDays(-int(today.Weekday()))
	return Week{Start: start, End: start.AddDays(6)}
}

func (w Week) Previous() Week {
	return Week{Start: w.Start.AddDays(-7), End: w.End.AddDays(-7)}
}

// Bounds returns [start of Start, start of the day after End) in loc.
func (w Week) Bounds(loc *time.Location) (time.Time, time.Time) {
	return w.Start.In(loc), w.End.AddDays(1).In(loc)
}

type Source interface {
	CountNewClients(ctx context.Context, businessID string, from, to time.Time) (int, error)
	CountAppointments(ctx context.Context, businessID string, status model.Status, from, to civil.Date) (int, error)
}

type Weekly struct {
	Period                Week
	NewClients            int
	PreviousNewClients    int
	ClientIncrease        int
	CompletedAppointments int
	CancelledAppointments int
}

func BuildWeekly(ctx context.Context, src Source, businessID string, now time.Time) (Weekly, error) {
	week := WeekRange(now)
	prev := week.Previous()
	loc := now.Location()

	from, to := week.Bounds(loc)
	current, err := src.CountNewClients(ctx, businessID, from, to)
	if err != nil {
		return Weekly{}, fmt.Errorf("count clients: %w", err)
	}
	from, to = prev.Bounds(loc)
	previous, err := src.CountNewClients(ctx, businessID, from, to)
	if err != nil {
		return Weekly{}, fmt.Errorf("count previous clients: %w", err)
	}
	completed, err := src.CountAppointments(ctx, businessID, model.StatusCompleted, week.Start, week.End)
	if err != nil {
		return Weekly{}, fmt.Errorf("count completed: %w", err)
	}
	cancelled, err := src.CountAppointments(ctx, businessID, model.StatusCancelled, week.Start, week.End)
	if err != nil {
		return Weekly{}, fmt.Errorf("count cancelled: %w", err)
	}

	return Weekly{
		Period:                week,
		NewClients:            current,
		PreviousNewClients:    previous,
		ClientIncrease:        current - previous,
		CompletedAppointments: completed,
		CancelledAppointments: cancelled,
	}, nil
}
