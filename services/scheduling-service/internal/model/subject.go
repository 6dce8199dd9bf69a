package model

// SubjectKind distinguishes the two entity kinds an appointment can be booked
// for. Leads and borrowers live in separate tables but share the same
// scheduling lifecycle, so the ledger is written once against Subject.
type SubjectKind string

const (
	SubjectLead     SubjectKind = "lead"
	SubjectBorrower SubjectKind = "borrower"
)

type Subject struct {
	Kind SubjectKind
	ID   string
}

func LeadSubject(id string) Subject {
	return Subject{Kind: SubjectLead, ID: id}
}

func BorrowerSubject(id string) Subject {
	return Subject{Kind: SubjectBorrower, ID: id}
}

func (s Subject) Valid() bool {
	if s.ID == "" {
		return false
	}
	return s.Kind == SubjectLead || s.Kind == SubjectBorrower
}
