package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/leadsched/services/scheduling-service/internal/leadstate"
	"github.com/md-rashed-zaman/leadsched/services/scheduling-service/internal/model"
)

// Repository is the storage contract of the ledger. Every occupancy write is
// conditional so a double cancel can never drive a count negative, and
// GetTimeslotForUpdate must take a row lock so the capacity check and the
// increment happen against the same observed count.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetTimeslotForUpdate(ctx context.Context, timeslotID string) (model.Timeslot, error)
	FindActiveAppointment(ctx context.Context, subject model.Subject) (*model.Appointment, error)
	GetAppointment(ctx context.Context, appointmentID string) (model.Appointment, error)
	InsertAppointment(ctx context.Context, appt model.Appointment) error
	UpdateAppointmentTimes(ctx context.Context, appointmentID string, start, end time.Time, updatedBy string) error
	UpdateAppointmentStatus(ctx context.Context, appointmentID string, status model.AppointmentStatus, outcome *model.LoanOutcome, updatedBy string) error
	InsertAssociation(ctx context.Context, assoc model.AppointmentSlot) error
	DeleteAssociation(ctx context.Context, appointmentID, timeslotID string) error
	PrimaryTimeslotID(ctx context.Context, appointmentID string) (string, error)
	IncrementOccupancy(ctx context.Context, timeslotID string) error
	// DecrementOccupancy applies the floor-at-zero decrement and reports
	// whether a row was actually updated.
	DecrementOccupancy(ctx context.Context, timeslotID string) (bool, error)
	// SettingTZOffset resolves the fixed display offset (minutes east of
	// UTC) of the setting a slot was generated from.
	SettingTZOffset(ctx context.Context, settingID string) (int, error)
}

type Service struct {
	repo   Repository
	leads  *leadstate.Machine
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, leads *leadstate.Machine, logger *slog.Logger) *Service {
	return &Service{repo: repo, leads: leads, logger: logger, now: time.Now}
}

type CreateInput struct {
	Actor      model.Actor
	Subject    model.Subject
	TimeslotID string
	AgentID    string
	Notes      string
	Urgent     bool
}

// Create books an appointment against a timeslot. The capacity check, the
// appointment insert, the primary slot association and the occupancy
// increment commit in one transaction or not at all. System actors bypass
// the capacity check but still increment occupancy, which is how walk-in
// overbooking is accounted for. The lead transition to booked is sequenced
// by the booking flow, not here; Cancel and UpdateStatus own their lead
// mapping because they are the single integration points for those paths.
func (s *Service) Create(ctx context.Context, in CreateInput) (model.Appointment, error) {
	if !in.Actor.Authenticated() {
		return model.Appointment{}, model.ErrNotAuthenticated
	}
	if !in.Subject.Valid() {
		return model.Appointment{}, model.Invalid("subject", "missing id or unknown kind")
	}
	if in.TimeslotID == "" {
		return model.Appointment{}, model.Invalid("timeslot", "id required")
	}

	var appt model.Appointment
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		active, err := s.repo.FindActiveAppointment(txCtx, in.Subject)
		if err != nil {
			return err
		}
		if active != nil {
			return model.ErrDuplicateAppointment
		}

		slot, err := s.repo.GetTimeslotForUpdate(txCtx, in.TimeslotID)
		if err != nil {
			return err
		}
		if slot.Disabled {
			return model.ErrTimeslotDisabled
		}
		if !in.Actor.System && !slot.HasCapacity() {
			return model.ErrCapacityExceeded
		}

		tzOffset, err := s.repo.SettingTZOffset(txCtx, slot.SettingID)
		if err != nil {
			return fmt.Errorf("resolve timezone offset: %w", err)
		}
		now := s.now().UTC()
		appt = model.Appointment{
			ID:        uuid.NewString(),
			Subject:   in.Subject,
			AgentID:   in.AgentID,
			Status:    model.AppointmentUpcoming,
			StartAt:   slot.StartAtUTC(tzOffset),
			EndAt:     slot.EndAtUTC(tzOffset),
			Notes:     in.Notes,
			Urgent:    in.Urgent,
			CreatedBy: in.Actor.ID,
			UpdatedBy: in.Actor.ID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.InsertAppointment(txCtx, appt); err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
		if err := s.repo.InsertAssociation(txCtx, model.AppointmentSlot{
			AppointmentID: appt.ID,
			TimeslotID:    slot.ID,
			Primary:       true,
		}); err != nil {
			return fmt.Errorf("insert slot association: %w", err)
		}
		return s.repo.IncrementOccupancy(txCtx, slot.ID)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// Cancel transitions the appointment to cancelled and releases its slot
// capacity. Cancelling an already-cancelled appointment is a status conflict
// and never touches occupancy, so the decrement is idempotent per
// appointment.
func (s *Service) Cancel(ctx context.Context, actor model.Actor, appointmentID string) error {
	if !actor.Authenticated() {
		return model.ErrNotAuthenticated
	}

	return s.repo.WithTx(ctx, func(txCtx context.Context) error {
		appt, err := s.repo.GetAppointment(txCtx, appointmentID)
		if err != nil {
			return err
		}
		if appt.Status == model.AppointmentCancelled {
			return model.ErrStatusConflict
		}

		if err := s.repo.UpdateAppointmentStatus(txCtx, appt.ID, model.AppointmentCancelled, nil, actor.ID); err != nil {
			return fmt.Errorf("update status: %w", err)
		}

		slotID, err := s.repo.PrimaryTimeslotID(txCtx, appt.ID)
		if err != nil {
			return err
		}
		if err := s.releaseOccupancy(txCtx, slotID, appt.ID); err != nil {
			return err
		}

		_, err = s.leads.Apply(txCtx, leadstate.Command{
			Source:  s.sourceFor(actor),
			Subject: appt.Subject,
			Actor:   actor,
			To:      model.LeadStatusOpen,
		})
		return err
	})
}

// Move rebinds an upcoming appointment to a new timeslot in one transaction:
// recompute times, drop the old association and its occupancy, take the new
// one. Only automated reconciliation may move; interactive flows must cancel
// and rebook explicitly.
func (s *Service) Move(ctx context.Context, actor model.Actor, appointmentID, newTimeslotID string) error {
	if !actor.Authenticated() {
		return model.ErrNotAuthenticated
	}
	if !actor.System {
		return model.Invalid("actor", "move is restricted to automated reconciliation")
	}

	return s.repo.WithTx(ctx, func(txCtx context.Context) error {
		appt, err := s.repo.GetAppointment(txCtx, appointmentID)
		if err != nil {
			return err
		}
		if appt.Status != model.AppointmentUpcoming {
			return model.ErrStatusConflict
		}

		newSlot, err := s.repo.GetTimeslotForUpdate(txCtx, newTimeslotID)
		if err != nil {
			return err
		}
		if newSlot.Disabled {
			return model.ErrTimeslotDisabled
		}

		oldSlotID, err := s.repo.PrimaryTimeslotID(txCtx, appt.ID)
		if err != nil {
			return err
		}
		if oldSlotID == newSlot.ID {
			return nil
		}

		tzOffset, err := s.repo.SettingTZOffset(txCtx, newSlot.SettingID)
		if err != nil {
			return fmt.Errorf("resolve timezone offset: %w", err)
		}
		if err := s.repo.UpdateAppointmentTimes(txCtx, appt.ID,
			newSlot.StartAtUTC(tzOffset), newSlot.EndAtUTC(tzOffset), actor.ID); err != nil {
			return fmt.Errorf("update times: %w", err)
		}

		if err := s.repo.DeleteAssociation(txCtx, appt.ID, oldSlotID); err != nil {
			return fmt.Errorf("delete association: %w", err)
		}
		if err := s.releaseOccupancy(txCtx, oldSlotID, appt.ID); err != nil {
			return err
		}
		if err := s.repo.InsertAssociation(txCtx, model.AppointmentSlot{
			AppointmentID: appt.ID,
			TimeslotID:    newSlot.ID,
			Primary:       true,
		}); err != nil {
			return fmt.Errorf("insert association: %w", err)
		}
		return s.repo.IncrementOccupancy(txCtx, newSlot.ID)
	})
}

type UpdateStatusInput struct {
	Actor   model.Actor
	Outcome *model.LoanOutcome
	// Source overrides the lead-status mapping variant; zero value means the
	// interactive appointment-transition mapping.
	Source leadstate.Source
}

// UpdateStatus is the single integration point between the appointment
// lifecycle and the lead lifecycle. Callers must not write appointment
// status directly or the lead drifts out of sync.
func (s *Service) UpdateStatus(ctx context.Context, appointmentID string, newStatus model.AppointmentStatus, in UpdateStatusInput) error {
	if !in.Actor.Authenticated() {
		return model.ErrNotAuthenticated
	}
	if !newStatus.Valid() {
		return model.ErrInvalidStatus
	}
	if newStatus == model.AppointmentCancelled {
		// Cancellation owns the occupancy release; route through it.
		return s.Cancel(ctx, in.Actor, appointmentID)
	}

	return s.repo.WithTx(ctx, func(txCtx context.Context) error {
		appt, err := s.repo.GetAppointment(txCtx, appointmentID)
		if err != nil {
			return err
		}
		if appt.Status == newStatus {
			return nil
		}
		if appt.Status == model.AppointmentCancelled || newStatus == model.AppointmentUpcoming {
			// upcoming is an initial state only, and a cancelled appointment
			// already gave its capacity back.
			return model.ErrStatusConflict
		}

		if err := s.repo.UpdateAppointmentStatus(txCtx, appt.ID, newStatus, in.Outcome, in.Actor.ID); err != nil {
			return fmt.Errorf("update status: %w", err)
		}

		src := in.Source
		if src == "" {
			src = s.sourceFor(in.Actor)
		}
		leadStatus, ok := leadstate.LeadStatusFor(newStatus, src)
		if !ok {
			return nil
		}
		_, err = s.leads.Apply(txCtx, leadstate.Command{
			Source:  src,
			Subject: appt.Subject,
			Actor:   in.Actor,
			To:      leadStatus,
		})
		return err
	})
}

// ActiveAppointment returns the subject's single upcoming appointment.
func (s *Service) ActiveAppointment(ctx context.Context, subject model.Subject) (model.Appointment, error) {
	if !subject.Valid() {
		return model.Appointment{}, model.Invalid("subject", "missing id or unknown kind")
	}
	appt, err := s.repo.FindActiveAppointment(ctx, subject)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt == nil {
		return model.Appointment{}, model.ErrAppointmentNotFound
	}
	return *appt, nil
}

func (s *Service) releaseOccupancy(ctx context.Context, timeslotID, appointmentID string) error {
	released, err := s.repo.DecrementOccupancy(ctx, timeslotID)
	if err != nil {
		return fmt.Errorf("decrement occupancy: %w", err)
	}
	if !released {
		// Floor-at-zero fired: something already released this capacity.
		// Surface it as an anomaly instead of a silent success.
		s.logger.Warn("occupancy anomaly: decrement hit zero floor",
			"timeslot_id", timeslotID, "appointment_id", appointmentID)
	}
	return nil
}

func (s *Service) sourceFor(actor model.Actor) leadstate.Source {
	if actor.System {
		return leadstate.SourceImportReconciliation
	}
	return leadstate.SourceAppointment
}
