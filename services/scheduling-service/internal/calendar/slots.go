package calendar

// DaySlots returns the start minute of every full slot between dayStart and
// dayEnd. A trailing window shorter than slotMinutes is discarded, not
// emitted.
func DaySlots(dayStartMinute, dayEndMinute, slotMinutes int) []int {
	if slotMinutes <= 0 || dayEndMinute <= dayStartMinute {
		return nil
	}
	var starts []int
	for m := dayStartMinute; m+slotMinutes <= dayEndMinute; m += slotMinutes {
		starts = append(starts, m)
	}
	return starts
}
