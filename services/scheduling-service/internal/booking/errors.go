package booking

import "errors"

var (
	ErrMissingFields       = errors.New("missing required fields")
	ErrInvalidInput        = errors.New("invalid input")
	ErrProviderNotFound    = errors.New("provider not found")
	ErrServiceNotFound     = errors.New("service not found")
	ErrOutsideWorkingHours = errors.New("requested time is outside working hours")
	ErrSlotUnavailable     = errors.New("time slot no longer available")
)

type Reason string

const (
	ReasonMissingFields       Reason = "missing_fields"
	ReasonInvalidInput        Reason = "invalid_input"
	ReasonProviderNotFound    Reason = "provider_not_found"
	ReasonServiceNotFound     Reason = "service_not_found"
	ReasonOutsideWorkingHours Reason = "outside_working_hours"
	ReasonSlotUnavailable     Reason = "slot_unavailable"
)

var reasons = map[error]Reason{
	ErrMissingFields:       ReasonMissingFields,
	ErrInvalidInput:        ReasonInvalidInput,
	ErrProviderNotFound:    ReasonProviderNotFound,
	ErrServiceNotFound:     ReasonServiceNotFound,
	ErrOutsideWorkingHours: ReasonOutsideWorkingHours,
	ErrSlotUnavailable:     ReasonSlotUnavailable,
}

// Rejection is a business refusal. It unwraps to one of the sentinel errors
// above, so callers can use errors.Is or errors.As.
type Rejection struct {
	Reason  Reason
	Message string
	err     error
}

func (r *Rejection) Error() string { return r.Message }

func (r *Rejection) Unwrap() error { return r.err }

func reject(sentinel error) *Rejection {
	return &Rejection{Reason: reasons[sentinel], Message: sentinel.Error(), err: sentinel}
}

func rejectf(sentinel error, msg string) *Rejection {
	r := reject(sentinel)
	r.Message = msg
	return r
}
