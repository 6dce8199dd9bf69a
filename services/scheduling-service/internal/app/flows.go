package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/leadsched/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/leadsched/services/scheduling-service/internal/leadstate"
	"github.com/md-rashed-zaman/leadsched/services/scheduling-service/internal/ledger"
	"github.com/md-rashed-zaman/leadsched/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/leadsched/services/scheduling-service/internal/workflow"
)

// Flows composes the core components into the multi-step business
// operations callers actually invoke. Each flow runs through the workflow
// coordinator: steps execute in order, completed steps without a
// compensation stay committed on later failure, and the caller receives the
// full per-step outcome.
type Flows struct {
	calendar *calendar.Service
	ledger   *ledger.Service
	leads    *leadstate.Machine
	coord    *workflow.Coordinator
	logger   *slog.Logger
}

func NewFlows(cal *calendar.Service, led *ledger.Service, leads *leadstate.Machine, coord *workflow.Coordinator, logger *slog.Logger) *Flows {
	return &Flows{calendar: cal, ledger: led, leads: leads, coord: coord, logger: logger}
}

type BookingInput struct {
	Actor      model.Actor
	Subject    model.Subject
	TimeslotID string
	AgentID    string
	Notes      string
	Urgent     bool
}

// BookAppointment creates the appointment and then transitions the lead to
// booked. The create step registers cancellation as its compensation, so a
// failed lead transition releases the slot again.
func (f *Flows) BookAppointment(ctx context.Context, in BookingInput) workflow.Result {
	var appt model.Appointment

	return f.coord.Execute(ctx, []workflow.Step{
		{
			Name: "create appointment",
			Run: func(stepCtx context.Context) (any, error) {
				created, err := f.ledger.Create(stepCtx, ledger.CreateInput{
					Actor:      in.Actor,
					Subject:    in.Subject,
					TimeslotID: in.TimeslotID,
					AgentID:    in.AgentID,
					Notes:      in.Notes,
					Urgent:     in.Urgent,
				})
				if err != nil {
					return nil, err
				}
				appt = created
				return created, nil
			},
			Compensate: func(stepCtx context.Context) error {
				return f.ledger.Cancel(stepCtx, in.Actor, appt.ID)
			},
		},
		{
			Name: "transition lead to booked",
			Run: func(stepCtx context.Context) (any, error) {
				return f.leads.Apply(stepCtx, leadstate.Command{
					Source:  leadstate.SourceAppointment,
					Subject: in.Subject,
					Actor:   in.Actor,
					To:      model.LeadStatusBooked,
				})
			},
		},
	})
}

// CancelAndRebook is the interactive reschedule: an explicit cancel followed
// by a fresh booking. The cancel step registers no compensation, so a failed
// rebooking leaves the cancellation committed and the result flags the
// partial outcome for manual follow-up.
func (f *Flows) CancelAndRebook(ctx context.Context, actor model.Actor, appointmentID string, rebook BookingInput) workflow.Result {
	return f.coord.Execute(ctx, []workflow.Step{
		{
			Name: "cancel existing appointment",
			Run: func(stepCtx context.Context) (any, error) {
				return nil, f.ledger.Cancel(stepCtx, actor, appointmentID)
			},
		},
		{
			Name: "book replacement",
			Run: func(stepCtx context.Context) (any, error) {
				result := f.BookAppointment(stepCtx, rebook)
				if failed := result.FailedStep(); failed != nil {
					return result, failed.Err
				}
				return result, nil
			},
		},
	})
}

type ImportRecord struct {
	Subject       model.Subject
	AgentID       string
	PreferredDate time.Time
	Notes         string
}

// ReconcileImport places one ingested record on the calendar. Ingestion must
// never fail silently for lack of capacity, so placement uses the nearest
// open slot regardless of remaining capacity and books with the system
// actor's override. A record whose subject already has an upcoming
// appointment is moved instead of double-booked.
func (f *Flows) ReconcileImport(ctx context.Context, actor model.Actor, rec ImportRecord) workflow.Result {
	var slot *model.Timeslot

	return f.coord.Execute(ctx, []workflow.Step{
		{
			Name: "resolve placement slot",
			Run: func(stepCtx context.Context) (any, error) {
				found, err := f.calendar.FindNearestAvailable(stepCtx, rec.PreferredDate)
				if err != nil {
					return nil, err
				}
				if found == nil {
					return nil, model.Invalid("placement", "no open slot within lookahead window")
				}
				slot = found
				return found, nil
			},
		},
		{
			Name: "place appointment",
			Run: func(stepCtx context.Context) (any, error) {
				return f.placeOrMove(stepCtx, actor, rec, slot.ID)
			},
		},
		{
			Name: "transition lead to booked",
			Run: func(stepCtx context.Context) (any, error) {
				return f.leads.Apply(stepCtx, leadstate.Command{
					Source:  leadstate.SourceImportReconciliation,
					Subject: rec.Subject,
					Actor:   actor,
					To:      model.LeadStatusBooked,
				})
			},
		},
	})
}

func (f *Flows) placeOrMove(ctx context.Context, actor model.Actor, rec ImportRecord, timeslotID string) (any, error) {
	created, err := f.ledger.Create(ctx, ledger.CreateInput{
		Actor:      actor,
		Subject:    rec.Subject,
		TimeslotID: timeslotID,
		AgentID:    rec.AgentID,
		Notes:      rec.Notes,
	})
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, model.ErrDuplicateAppointment) {
		return nil, err
	}

	// Already booked: reconcile by moving the existing appointment onto the
	// imported placement.
	existing, err := f.ledger.ActiveAppointment(ctx, rec.Subject)
	if err != nil {
		return nil, err
	}
	if err := f.ledger.Move(ctx, actor, existing.ID, timeslotID); err != nil {
		return nil, err
	}
	return existing, nil
}
