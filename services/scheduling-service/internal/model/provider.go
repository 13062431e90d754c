package model

import (
	"time"

	"github.com/workgate/agenda/services/scheduling-service/internal/civil"
)

type Provider struct {
	ID         string
	BusinessID string
	Name       string
	Username   string
	Email      string
	PushToken  string
}

type Service struct {
	ID              string
	BusinessID      string
	Name            string
	DurationMinutes int
	Price           string
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// WorkHourRule is the single rule a provider has for one weekday.
type WorkHourRule struct {
	ProviderID  string
	DayOfWeek   time.Weekday
	Start       civil.Clock
	End         civil.Clock
	IsAvailable bool
}

type Client struct {
	ID         string
	BusinessID string
	Name       string
	Email      string
	Phone      string
	CreatedAt  time.Time
}
