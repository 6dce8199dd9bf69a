package model

import "time"

type AppointmentStatus string

const (
	AppointmentUpcoming  AppointmentStatus = "upcoming"
	AppointmentDone      AppointmentStatus = "done"
	AppointmentMissed    AppointmentStatus = "missed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentUpcoming, AppointmentDone, AppointmentMissed, AppointmentCancelled:
		return true
	}
	return false
}

// Terminal reports whether the status ends the appointment's active life.
// Terminal appointments still count toward timeslot occupancy; only
// cancellation releases capacity.
func (s AppointmentStatus) Terminal() bool {
	return s != AppointmentUpcoming
}

// LoanOutcome captures the post-appointment loan fields the agent records
// when closing out a meeting.
type LoanOutcome struct {
	Bank    string
	Amount  float64
	Remarks string
}

type Appointment struct {
	ID        string
	Subject   Subject
	AgentID   string
	Status    AppointmentStatus
	StartAt   time.Time // UTC
	EndAt     time.Time // UTC
	Notes     string
	Urgent    bool
	Outcome   *LoanOutcome
	CreatedBy string
	UpdatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AppointmentSlot links an appointment to a timeslot. The schema allows
// several slots per appointment but the booking paths always write exactly
// one, flagged primary.
type AppointmentSlot struct {
	AppointmentID string
	TimeslotID    string
	Primary       bool
}
