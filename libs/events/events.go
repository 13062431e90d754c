// Package events defines the Kafka topics and JSON payloads exchanged
// between agenda services. Topic names equal event types.
package events

const (
	AppointmentBooked     = "booking.appointment.booked.v1"
	AgendaDaily           = "notification.agenda.daily.v1"
	ReminderRequested     = "notification.reminder.requested.v1"
	SubscriptionActivated = "billing.subscription.activated.v1"
	SubscriptionCancelled = "billing.subscription.cancelled.v1"
)

// Booked is the client confirmation for a committed appointment.
type Booked struct {
	AppointmentID string `json:"appointment_id"`
	BusinessID    string `json:"business_id"`
	ProviderID    string `json:"provider_id"`
	ProviderName  string `json:"provider_name"`
	ServiceName   string `json:"service_name"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	ClientName    string `json:"client_name"`
	ClientEmail   string `json:"client_email"`
	ClientPhone   string `json:"client_phone,omitempty"`
}

type AgendaItem struct {
	AppointmentID string `json:"appointment_id"`
	Time          string `json:"time"`
	Status        string `json:"status"`
	ServiceName   string `json:"service_name"`
	ClientName    string `json:"client_name"`
	ClientPhone   string `json:"client_phone,omitempty"`
	Observations  string `json:"observations,omitempty"`
}

// Agenda is a provider's day, sent on refresh and by the daily job.
type Agenda struct {
	ProviderID    string       `json:"provider_id"`
	BusinessID    string       `json:"business_id"`
	ProviderName  string       `json:"provider_name"`
	ProviderEmail string       `json:"provider_email,omitempty"`
	PushToken     string       `json:"push_token,omitempty"`
	Date          string       `json:"date"`
	Items         []AgendaItem `json:"items"`
}

// Reminder asks for a client reminder of an upcoming appointment.
type Reminder struct {
	AppointmentID string `json:"appointment_id"`
	BusinessID    string `json:"business_id"`
	ProviderName  string `json:"provider_name"`
	ServiceName   string `json:"service_name"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	ClientName    string `json:"client_name"`
	ClientEmail   string `json:"client_email,omitempty"`
	ClientPhone   string `json:"client_phone,omitempty"`
}

// Subscription is published by billing when a plan starts or ends.
type Subscription struct {
	BusinessID       string `json:"business_id"`
	Plan             string `json:"plan"`
	Status           string `json:"status,omitempty"`
	CurrentPeriodEnd string `json:"current_period_end,omitempty"`
}
