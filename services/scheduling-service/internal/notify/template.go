package notify

import "github.com/md-rashed-zaman/leadsched/services/scheduling-service/internal/model"

// TemplateFor picks the gateway template for a lead status transition.
// Statuses without an outbound message (internal bookkeeping states) report
// ok=false and are skipped by the dispatcher.
func TemplateFor(to model.LeadStatus) (templateRef string, ok bool) {
	switch to {
	case model.LeadStatusBooked:
		return "appointment_booked", true
	case model.LeadStatusDone:
		return "appointment_completed", true
	case model.LeadStatusFollowUp:
		return "appointment_missed_follow_up", true
	case model.LeadStatusOpen:
		return "appointment_cancelled", true
	}
	return "", false
}
