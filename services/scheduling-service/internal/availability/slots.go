package availability

import (
	"errors"
	"time"

	"github.com/workgate/agenda/services/scheduling-service/internal/civil"
	"github.com/workgate/agenda/services/scheduling-service/internal/model"
)

var ErrInvalidDuration = errors.New("slot duration must be positive")

// Interval is a half-open range of times of day, [Start, End).
type Interval struct {
	Start civil.Clock
	End   civil.Clock
}

func (i Interval) Contains(t civil.Clock) bool {
	return i.Start <= t && t < i.End
}

type SlotOptions struct {
	// AllowOverrun emits every start before the window end even when the
	// appointment would run past it.
	AllowOverrun bool
}

// GenerateSlots returns start, start+d, start+2d, ... inside the window. By
// default a slot is emitted only when slot+d <= end.
func GenerateSlots(start, end civil.Clock, d time.Duration, opts SlotOptions) ([]civil.Clock, error) {
	if d < time.Second {
		return nil, ErrInvalidDuration
	}
	var slots []civil.Clock
	for t := start; t < end; t = t.Add(d) {
		if !opts.AllowOverrun && t.Add(d) > end {
			break
		}
		slots = append(slots, t)
	}
	return slots, nil
}

// GenerateSlotStrings parses HH:MM or HH:MM:SS bounds and formats the result as HH:MM.
func GenerateSlotStrings(start, end string, d time.Duration, opts SlotOptions) ([]string, error) {
	from, err := civil.ParseClock(start)
	if err != nil {
		return nil, err
	}
	to, err := civil.ParseClock(end)
	if err != nil {
		return nil, err
	}
	slots, err := GenerateSlots(from, to, d, opts)
	if err != nil {
		return nil, err
	}
	return Format(slots), nil
}

// Busy turns booked appointments into the intervals they occupy, each with
// its own service duration.
func Busy(booked []model.BookedSlot) []Interval {
	out := make([]Interval, 0, len(booked))
	for _, b := range booked {
		out = append(out, Interval{Start: b.Start, End: b.Start.Add(b.Duration)})
	}
	return out
}

// Conflicts reports whether t falls inside one of the busy intervals. Only the
// candidate start point is tested, so a candidate that begins before a booking
// but runs into it is not a conflict.
func Conflicts(t civil.Clock, busy []Interval) bool {
	for _, b := range busy {
		if b.Contains(t) {
			return true
		}
	}
	return false
}

// Collides reports whether an appointment at start lasting d would share time
// with a booked one: its start falls inside a busy interval or a booked start
// falls inside its own interval.
func Collides(start civil.Clock, d time.Duration, booked []model.BookedSlot) bool {
	if Conflicts(start, Busy(booked)) {
		return true
	}
	own := Interval{Start: start, End: start.Add(d)}
	for _, b := range booked {
		if own.Contains(b.Start) {
			return true
		}
	}
	return false
}

// FilterSlots drops slots taken by a booking and, when date is today in
// now's location, slots that already started. Input order is kept.
func FilterSlots(slots []civil.Clock, booked []model.BookedSlot, date civil.Date, now time.Time) []civil.Clock {
	busy := Busy(booked)
	sameDay := civil.DateOf(now) == date
	current := civil.ClockOf(now)

	out := make([]civil.Clock, 0, len(slots))
	for _, s := range slots {
		if sameDay && s < current {
			continue
		}
		if Conflicts(s, busy) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// WithinWorkingHours reports whether t is inside the rule's closed window
// [Start, End]. Unavailable rules admit nothing.
func WithinWorkingHours(t civil.Clock, rule model.WorkHourRule) bool {
	return rule.IsAvailable && rule.Start <= t && t <= rule.End
}

func Format(slots []civil.Clock) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.String())
	}
	return out
}
