package storage

import (
	"context"

	"github.com/md-rashed-zaman/leadsched/services/scheduling-service/internal/model"
)

// subjectTable maps a subject kind to its backing table. Both tables share
// the status column contract, which is what lets the ledger and the state
// machine run once over either kind.
func subjectTable(kind model.SubjectKind) (string, bool) {
	switch kind {
	case model.SubjectLead:
		return "leads", true
	case model.SubjectBorrower:
		return "borrowers", true
	}
	return "", false
}

// CompareAndSetStatus locks the subject row, then writes to when from is nil
// or matches what was read under the lock. applied=false with a nil error is
// the reject-on-conflict outcome.
func (s *Store) CompareAndSetStatus(ctx context.Context, subject model.Subject, from *model.LeadStatus, to model.LeadStatus, updatedBy string) (model.LeadStatus, bool, error) {
	table, ok := subjectTable(subject.Kind)
	if !ok {
		return "", false, model.Invalid("subject kind", "unknown")
	}

	var prev model.LeadStatus
	err := s.q(ctx).QueryRow(ctx,
		`SELECT status FROM `+table+` WHERE id = $1 FOR UPDATE`,
		subject.ID).Scan(&prev)
	if isNoRows(err) {
		return "", false, model.ErrSubjectNotFound
	}
	if err != nil {
		return "", false, err
	}

	if from != nil && prev != *from {
		return prev, false, nil
	}

	_, err = s.q(ctx).Exec(ctx,
		`UPDATE `+table+` SET status = $2, updated_by = $3, updated_at = now() WHERE id = $1`,
		subject.ID, to, updatedBy)
	if err != nil {
		return prev, false, err
	}
	return prev, true, nil
}

func (s *Store) SubjectPhone(ctx context.Context, subject model.Subject) (string, error) {
	table, ok := subjectTable(subject.Kind)
	if !ok {
		return "", model.Invalid("subject kind", "unknown")
	}
	var phone string
	err := s.q(ctx).QueryRow(ctx,
		`SELECT phone FROM `+table+` WHERE id = $1`,
		subject.ID).Scan(&phone)
	if isNoRows(err) {
		return "", model.ErrSubjectNotFound
	}
	return phone, err
}

func (s *Store) GetLead(ctx context.Context, leadID string) (model.Lead, error) {
	var lead model.Lead
	err := s.q(ctx).QueryRow(ctx, `
		SELECT id, name, phone, agent_id, status, source, created_at, updated_at
		FROM leads
		WHERE id = $1
	`, leadID).Scan(
		&lead.ID,
		&lead.Name,
		&lead.Phone,
		&lead.AgentID,
		&lead.Status,
		&lead.Source,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	)
	if isNoRows(err) {
		return model.Lead{}, model.ErrLeadNotFound
	}
	return lead, err
}
