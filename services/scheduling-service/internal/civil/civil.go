// Package civil holds time-zone naive calendar dates and times of day, the
// way appointments are stored and shown to clients.
package civil

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar day without a location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) IsZero() bool { return d == Date{} }

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) Weekday() time.Weekday {
	return d.In(time.UTC).Weekday()
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.In(time.UTC).AddDate(0, 0, n))
}

func (d Date) Before(o Date) bool {
	return d.In(time.UTC).Before(o.In(time.UTC))
}

// Clock is a time of day counted in seconds from midnight. Values past 24h
// are allowed so that interval ends do not wrap.
type Clock int

// ParseClock accepts exactly HH:MM or HH:MM:SS, ASCII digits only.
func ParseClock(s string) (Clock, error) {
	if len(s) != 5 && len(s) != 8 {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	var parts [3]int
	for i := 0; i*3 < len(s); i++ {
		if i > 0 && s[i*3-1] != ':' {
			return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
		}
		hi, lo := s[i*3], s[i*3+1]
		if hi < '0' || hi > '9' || lo < '0' || lo > '9' {
			return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
		}
		parts[i] = int(hi-'0')*10 + int(lo-'0')
	}
	h, m, sec := parts[0], parts[1], parts[2]
	if h > 23 || m > 59 || sec > 59 {
		return 0, fmt.Errorf("invalid time %q: out of range", s)
	}
	return Clock(h*3600 + m*60 + sec), nil
}

func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ClockOf returns the time of day of t in t's own location.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*3600 + t.Minute()*60 + t.Second())
}

func ClockFromDuration(d time.Duration) Clock {
	return Clock(d / time.Second)
}

func (c Clock) Add(d time.Duration) Clock {
	return c + Clock(d/time.Second)
}

func (c Clock) Duration() time.Duration {
	return time.Duration(c) * time.Second
}

// String formats as HH:MM, the representation used on the wire.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/3600, (int(c)%3600)/60)
}

// Full formats as HH:MM:SS, the representation used for work-hour rules.
func (c Clock) Full() string {
	return fmt.Sprintf("%02d:%02d:%02d", int(c)/3600, (int(c)%3600)/60, int(c)%60)
}
