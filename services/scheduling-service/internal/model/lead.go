package model

import "time"

type LeadStatus string

const (
	LeadStatusNew         LeadStatus = "new"
	LeadStatusAssigned    LeadStatus = "assigned"
	LeadStatusOpen        LeadStatus = "open"
	LeadStatusNoAnswer    LeadStatus = "no_answer"
	LeadStatusFollowUp    LeadStatus = "follow_up"
	LeadStatusBooked      LeadStatus = "booked"
	LeadStatusDone        LeadStatus = "done"
	LeadStatusMissedRS    LeadStatus = "missed_rs"
	LeadStatusUnqualified LeadStatus = "unqualified"
	LeadStatusGiveUp      LeadStatus = "give_up"
	LeadStatusBlacklisted LeadStatus = "blacklisted"
)

func (s LeadStatus) Valid() bool {
	switch s {
	case LeadStatusNew, LeadStatusAssigned, LeadStatusOpen, LeadStatusNoAnswer,
		LeadStatusFollowUp, LeadStatusBooked, LeadStatusDone, LeadStatusMissedRS,
		LeadStatusUnqualified, LeadStatusGiveUp, LeadStatusBlacklisted:
		return true
	}
	return false
}

type Lead struct {
	ID        string
	Name      string
	Phone     string
	AgentID   string
	Status    LeadStatus
	Source    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Borrower is the parallel entity kind worked by the borrower desk. It shares
// the lead status value space so appointment-driven transitions apply to both.
type Borrower struct {
	ID        string
	Name      string
	Phone     string
	AgentID   string
	Status    LeadStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
