package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotAuthenticated     = errors.New("actor not authenticated")
	ErrSettingNotFound      = errors.New("calendar setting not found")
	ErrSettingFrozen        = errors.New("calendar setting frozen after generation")
	ErrTimeslotNotFound     = errors.New("timeslot not found")
	ErrTimeslotDisabled     = errors.New("timeslot disabled")
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrSubjectNotFound      = errors.New("subject not found")
	ErrLeadNotFound         = errors.New("lead not found")
	ErrDuplicateAppointment = errors.New("subject already has an upcoming appointment")
	ErrCapacityExceeded     = errors.New("timeslot capacity exceeded")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrStatusConflict       = errors.New("status conflict")
)

// ValidationError reports a bad input shape or range. It is never retried
// and is surfaced to the caller as-is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
