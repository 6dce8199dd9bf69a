package leadstate

import (
	"context"
	"errors"
	"log/slog"

	"github.com/md-rashed-zaman/leadsched/services/scheduling-service/internal/model"
)

// Source tags who is writing the lead status. Every writer funnels through
// Machine.Apply so the shared-ownership race on lead status becomes an
// explicit, testable policy instead of a bare overwrite.
type Source string

const (
	SourceAppointment          Source = "appointment_transition"
	SourceManualEdit           Source = "manual_edit"
	SourceEligibilitySweep     Source = "eligibility_sweep"
	SourceStalenessSweep       Source = "staleness_sweep"
	SourceImportReconciliation Source = "import_reconciliation"
)

// Command is one requested lead status write. A nil From means
// last-writer-wins; a non-nil From is a compare-and-set that rejects on
// conflict with model.ErrStatusConflict.
type Command struct {
	Source  Source
	Subject model.Subject
	Actor   model.Actor
	From    *model.LeadStatus
	To      model.LeadStatus
}

// Change describes a status transition that actually happened.
type Change struct {
	Subject model.Subject
	From    model.LeadStatus
	To      model.LeadStatus
	Source  Source
}

// Trigger is invoked after a lead status actually changed. Failures are
// logged, never surfaced: notification is best-effort and must not roll back
// the status write.
type Trigger interface {
	LeadStatusChanged(ctx context.Context, change Change) error
}

type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// CompareAndSetStatus locks the subject row, applies the write when from
	// is nil or matches the current status, and reports the previous status
	// and whether the write was applied.
	CompareAndSetStatus(ctx context.Context, subject model.Subject, from *model.LeadStatus, to model.LeadStatus, updatedBy string) (prev model.LeadStatus, applied bool, err error)
}

// Locker serializes writers per subject across processes. Implementations
// must fail open: lead status has a database-level CAS as the real guard.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

type Machine struct {
	repo    Repository
	locker  Locker
	trigger Trigger
	logger  *slog.Logger
}

func NewMachine(repo Repository, locker Locker, trigger Trigger, logger *slog.Logger) *Machine {
	if locker == nil {
		locker = NopLocker{}
	}
	return &Machine{repo: repo, locker: locker, trigger: trigger, logger: logger}
}

type ApplyResult struct {
	Previous model.LeadStatus
	Current  model.LeadStatus
	Changed  bool
}

// Apply performs the lead status write. The notification trigger fires if
// and only if the status actually changed, inside the same transaction as
// the write (the trigger enqueues; delivery happens elsewhere).
func (m *Machine) Apply(ctx context.Context, cmd Command) (ApplyResult, error) {
	if !cmd.Actor.Authenticated() {
		return ApplyResult{}, model.ErrNotAuthenticated
	}
	if !cmd.Subject.Valid() {
		return ApplyResult{}, model.Invalid("subject", "missing id or unknown kind")
	}
	if !cmd.To.Valid() {
		return ApplyResult{}, model.ErrInvalidStatus
	}

	release, err := m.locker.Acquire(ctx, lockKey(cmd.Subject))
	if err != nil {
		m.logger.Warn("lead lock unavailable; relying on storage CAS",
			"subject", cmd.Subject.ID, "err", err)
	} else {
		defer release()
	}

	var result ApplyResult
	err = m.repo.WithTx(ctx, func(txCtx context.Context) error {
		prev, applied, err := m.repo.CompareAndSetStatus(txCtx, cmd.Subject, cmd.From, cmd.To, cmd.Actor.ID)
		if err != nil {
			return err
		}
		if !applied {
			return model.ErrStatusConflict
		}
		result = ApplyResult{Previous: prev, Current: cmd.To, Changed: prev != cmd.To}
		if !result.Changed || m.trigger == nil {
			return nil
		}
		change := Change{Subject: cmd.Subject, From: prev, To: cmd.To, Source: cmd.Source}
		if err := m.trigger.LeadStatusChanged(txCtx, change); err != nil {
			m.logger.Error("notification trigger failed; status write kept",
				"subject", cmd.Subject.ID, "to", string(cmd.To), "err", err)
		}
		return nil
	})
	if err != nil {
		return ApplyResult{}, err
	}
	return result, nil
}

// LeadStatusFor maps an appointment status to the lead status it implies.
// The missed mapping depends on who is writing: interactive flows move the
// lead to follow_up, import reconciliation uses the missed_rs bucket.
func LeadStatusFor(status model.AppointmentStatus, src Source) (model.LeadStatus, bool) {
	switch status {
	case model.AppointmentUpcoming:
		return model.LeadStatusBooked, true
	case model.AppointmentDone:
		return model.LeadStatusDone, true
	case model.AppointmentMissed:
		if src == SourceImportReconciliation {
			return model.LeadStatusMissedRS, true
		}
		return model.LeadStatusFollowUp, true
	case model.AppointmentCancelled:
		return model.LeadStatusOpen, true
	}
	return "", false
}

func lockKey(subject model.Subject) string {
	return "leadstate:" + string(subject.Kind) + ":" + subject.ID
}

// IsConflict reports whether err is the reject-on-conflict outcome of a
// compare-and-set command.
func IsConflict(err error) bool {
	return errors.Is(err, model.ErrStatusConflict)
}
