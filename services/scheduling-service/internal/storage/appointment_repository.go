package storage

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/leadsched/services/scheduling-service/internal/model"
)

func (s *Store) GetTimeslotForUpdate(ctx context.Context, timeslotID string) (model.Timeslot, error) {
	var slot model.Timeslot
	err := s.q(ctx).QueryRow(ctx, `
		SELECT id, setting_id, date, start_minute, end_minute, max_capacity, occupied_count, disabled, created_at
		FROM timeslots
		WHERE id = $1
		FOR UPDATE
	`, timeslotID).Scan(
		&slot.ID,
		&slot.SettingID,
		&slot.Date,
		&slot.StartMinute,
		&slot.EndMinute,
		&slot.MaxCapacity,
		&slot.OccupiedCount,
		&slot.Disabled,
		&slot.CreatedAt,
	)
	if isNoRows(err) {
		return model.Timeslot{}, model.ErrTimeslotNotFound
	}
	return slot, err
}

const appointmentColumns = `
	id, subject_kind, subject_id, agent_id, status, start_at, end_at, notes, urgent,
	loan_bank, loan_amount, loan_remarks, created_by, updated_by, created_at, updated_at`

func (s *Store) FindActiveAppointment(ctx context.Context, subject model.Subject) (*model.Appointment, error) {
	row := s.q(ctx).QueryRow(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE subject_kind = $1 AND subject_id = $2 AND status = 'upcoming'
		LIMIT 1
	`, subject.Kind, subject.ID)
	appt, err := scanAppointment(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &appt, nil
}

func (s *Store) GetAppointment(ctx context.Context, appointmentID string) (model.Appointment, error) {
	row := s.q(ctx).QueryRow(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, appointmentID)
	appt, err := scanAppointment(row)
	if isNoRows(err) {
		return model.Appointment{}, model.ErrAppointmentNotFound
	}
	return appt, err
}

func (s *Store) InsertAppointment(ctx context.Context, appt model.Appointment) error {
	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO appointments
			(id, subject_kind, subject_id, agent_id, status, start_at, end_at, notes, urgent,
			 created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, appt.ID, appt.Subject.Kind, appt.Subject.ID, appt.AgentID, appt.Status,
		appt.StartAt, appt.EndAt, appt.Notes, appt.Urgent,
		appt.CreatedBy, appt.UpdatedBy, appt.CreatedAt, appt.UpdatedAt)
	if isUniqueViolation(err) {
		// Partial unique index on (subject_kind, subject_id) WHERE status =
		// 'upcoming': the storage-level backstop of the one-active-appointment
		// rule.
		return model.ErrDuplicateAppointment
	}
	return err
}

func (s *Store) UpdateAppointmentTimes(ctx context.Context, appointmentID string, start, end time.Time, updatedBy string) error {
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE appointments
		SET start_at = $2, end_at = $3, updated_by = $4, updated_at = now()
		WHERE id = $1
	`, appointmentID, start, end, updatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAppointmentNotFound
	}
	return nil
}

func (s *Store) UpdateAppointmentStatus(ctx context.Context, appointmentID string, status model.AppointmentStatus, outcome *model.LoanOutcome, updatedBy string) error {
	var (
		bank    *string
		amount  *float64
		remarks *string
	)
	if outcome != nil {
		bank, amount, remarks = &outcome.Bank, &outcome.Amount, &outcome.Remarks
	}
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE appointments
		SET status = $2,
			loan_bank = COALESCE($3, loan_bank),
			loan_amount = COALESCE($4, loan_amount),
			loan_remarks = COALESCE($5, loan_remarks),
			updated_by = $6,
			updated_at = now()
		WHERE id = $1
	`, appointmentID, status, bank, amount, remarks, updatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAppointmentNotFound
	}
	return nil
}

func (s *Store) InsertAssociation(ctx context.Context, assoc model.AppointmentSlot) error {
	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO appointment_slots (appointment_id, timeslot_id, is_primary)
		VALUES ($1, $2, $3)
	`, assoc.AppointmentID, assoc.TimeslotID, assoc.Primary)
	return err
}

func (s *Store) DeleteAssociation(ctx context.Context, appointmentID, timeslotID string) error {
	_, err := s.q(ctx).Exec(ctx, `
		DELETE FROM appointment_slots
		WHERE appointment_id = $1 AND timeslot_id = $2
	`, appointmentID, timeslotID)
	return err
}

func (s *Store) PrimaryTimeslotID(ctx context.Context, appointmentID string) (string, error) {
	var id string
	err := s.q(ctx).QueryRow(ctx, `
		SELECT timeslot_id FROM appointment_slots
		WHERE appointment_id = $1 AND is_primary
	`, appointmentID).Scan(&id)
	if isNoRows(err) {
		return "", model.ErrTimeslotNotFound
	}
	return id, err
}

func (s *Store) IncrementOccupancy(ctx context.Context, timeslotID string) error {
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE timeslots SET occupied_count = occupied_count + 1 WHERE id = $1
	`, timeslotID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrTimeslotNotFound
	}
	return nil
}

// DecrementOccupancy is the conditional floor-at-zero decrement. A zero
// rows-affected result means the floor fired; the caller logs it as an
// anomaly rather than treating it as success.
func (s *Store) DecrementOccupancy(ctx context.Context, timeslotID string) (bool, error) {
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE timeslots
		SET occupied_count = occupied_count - 1
		WHERE id = $1 AND occupied_count > 0
	`, timeslotID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanAppointment(row interface{ Scan(dest ...any) error }) (model.Appointment, error) {
	var (
		appt    model.Appointment
		bank    *string
		amount  *float64
		remarks *string
	)
	err := row.Scan(
		&appt.ID,
		&appt.Subject.Kind,
		&appt.Subject.ID,
		&appt.AgentID,
		&appt.Status,
		&appt.StartAt,
		&appt.EndAt,
		&appt.Notes,
		&appt.Urgent,
		&bank,
		&amount,
		&remarks,
		&appt.CreatedBy,
		&appt.UpdatedBy,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	if bank != nil || amount != nil || remarks != nil {
		appt.Outcome = &model.LoanOutcome{}
		if bank != nil {
			appt.Outcome.Bank = *bank
		}
		if amount != nil {
			appt.Outcome.Amount = *amount
		}
		if remarks != nil {
			appt.Outcome.Remarks = *remarks
		}
	}
	return appt, nil
}
