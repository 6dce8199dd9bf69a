package model

import "time"

// CalendarSetting is a named recurring schedule timeslots are generated from.
// Once a generation run has stamped GeneratedAt the setting is frozen; edits
// may only influence future settings, never slots already emitted.
type CalendarSetting struct {
	ID              string
	Name            string
	WorkingDays     []time.Weekday
	DayStartMinute  int // minutes from midnight, local wall clock
	DayEndMinute    int
	SlotMinutes     int
	DefaultCapacity int
	TZOffsetMinutes int // fixed display offset east of UTC
	GeneratedAt     *time.Time
	CreatedBy       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (s CalendarSetting) WorksOn(day time.Weekday) bool {
	for _, d := range s.WorkingDays {
		if d == day {
			return true
		}
	}
	return false
}

// CalendarException marks a specific date closed (holiday) or annotated.
type CalendarException struct {
	ID        string
	SettingID string
	Date      time.Time // date only, midnight UTC
	Closed    bool
	Note      string
}

// Timeslot is one concrete bookable window. OccupiedCount is only ever
// written inside the same transaction as the appointment change that moves
// it; reading it outside a transaction is advisory.
type Timeslot struct {
	ID            string
	SettingID     string
	Date          time.Time // date only, midnight UTC
	StartMinute   int
	EndMinute     int
	MaxCapacity   int
	OccupiedCount int
	Disabled      bool
	CreatedAt     time.Time
}

func (t Timeslot) HasCapacity() bool {
	return t.OccupiedCount < t.MaxCapacity
}

// StartAtUTC resolves the slot's local wall-clock start to a UTC instant
// given the fixed timezone offset in minutes.
func (t Timeslot) StartAtUTC(tzOffsetMinutes int) time.Time {
	return t.Date.Add(time.Duration(t.StartMinute-tzOffsetMinutes) * time.Minute)
}

func (t Timeslot) EndAtUTC(tzOffsetMinutes int) time.Time {
	return t.Date.Add(time.Duration(t.EndMinute-tzOffsetMinutes) * time.Minute)
}
