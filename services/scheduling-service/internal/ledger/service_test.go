package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/leadsched/services/scheduling-service/internal/leadstate"
	"github.com/md-rashed-zaman/leadsched/services/scheduling-service/internal/model"
)

// fakeLedgerRepo keeps all state in maps and snapshots them at the outermost
// WithTx so a failing callback rolls back the way a real transaction would.
// It implements both the ledger and the leadstate repository contracts so a
// real Machine can run inside the same fake transaction.
type fakeLedgerRepo struct {
	slots     map[string]model.Timeslot
	appts     map[string]model.Appointment
	assocs    map[string]string // appointment id -> primary timeslot id
	leads     map[string]model.LeadStatus
	tzOffsets map[string]int

	failOn string
	depth  int
	snap   *repoSnapshot
}

type repoSnapshot struct {
	slots  map[string]model.Timeslot
	appts  map[string]model.Appointment
	assocs map[string]string
	leads  map[string]model.LeadStatus
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{
		slots:     make(map[string]model.Timeslot),
		appts:     make(map[string]model.Appointment),
		assocs:    make(map[string]string),
		leads:     make(map[string]model.LeadStatus),
		tzOffsets: make(map[string]int),
	}
}

func (r *fakeLedgerRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.depth == 0 {
		r.snap = &repoSnapshot{
			slots:  cloneMap(r.slots),
			appts:  cloneMap(r.appts),
			assocs: cloneMap(r.assocs),
			leads:  cloneMap(r.leads),
		}
	}
	r.depth++
	err := fn(ctx)
	r.depth--
	if err != nil && r.depth == 0 {
		r.slots, r.appts, r.assocs, r.leads =
			r.snap.slots, r.snap.appts, r.snap.assocs, r.snap.leads
	}
	return err
}

func cloneMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (r *fakeLedgerRepo) GetTimeslotForUpdate(_ context.Context, id string) (model.Timeslot, error) {
	slot, ok := r.slots[id]
	if !ok {
		return model.Timeslot{}, model.ErrTimeslotNotFound
	}
	return slot, nil
}

func (r *fakeLedgerRepo) FindActiveAppointment(_ context.Context, subject model.Subject) (*model.Appointment, error) {
	for _, appt := range r.appts {
		if appt.Subject == subject && appt.Status == model.AppointmentUpcoming {
			a := appt
			return &a, nil
		}
	}
	return nil, nil
}

func (r *fakeLedgerRepo) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	appt, ok := r.appts[id]
	if !ok {
		return model.Appointment{}, model.ErrAppointmentNotFound
	}
	return appt, nil
}

func (r *fakeLedgerRepo) InsertAppointment(_ context.Context, appt model.Appointment) error {
	if r.failOn == "InsertAppointment" {
		return errors.New("injected insert failure")
	}
	r.appts[appt.ID] = appt
	return nil
}

func (r *fakeLedgerRepo) UpdateAppointmentTimes(_ context.Context, id string, start, end time.Time, updatedBy string) error {
	appt := r.appts[id]
	appt.StartAt, appt.EndAt, appt.UpdatedBy = start, end, updatedBy
	r.appts[id] = appt
	return nil
}

func (r *fakeLedgerRepo) UpdateAppointmentStatus(_ context.Context, id string, status model.AppointmentStatus, outcome *model.LoanOutcome, updatedBy string) error {
	appt := r.appts[id]
	appt.Status, appt.UpdatedBy = status, updatedBy
	if outcome != nil {
		appt.Outcome = outcome
	}
	r.appts[id] = appt
	return nil
}

func (r *fakeLedgerRepo) InsertAssociation(_ context.Context, assoc model.AppointmentSlot) error {
	if r.failOn == "InsertAssociation" {
		return errors.New("injected association failure")
	}
	r.assocs[assoc.AppointmentID] = assoc.TimeslotID
	return nil
}

func (r *fakeLedgerRepo) DeleteAssociation(_ context.Context, appointmentID, _ string) error {
	delete(r.assocs, appointmentID)
	return nil
}

func (r *fakeLedgerRepo) PrimaryTimeslotID(_ context.Context, appointmentID string) (string, error) {
	id, ok := r.assocs[appointmentID]
	if !ok {
		return "", model.ErrTimeslotNotFound
	}
	return id, nil
}

func (r *fakeLedgerRepo) IncrementOccupancy(_ context.Context, timeslotID string) error {
	slot := r.slots[timeslotID]
	slot.OccupiedCount++
	r.slots[timeslotID] = slot
	return nil
}

func (r *fakeLedgerRepo) DecrementOccupancy(_ context.Context, timeslotID string) (bool, error) {
	slot := r.slots[timeslotID]
	if slot.OccupiedCount == 0 {
		return false, nil
	}
	slot.OccupiedCount--
	r.slots[timeslotID] = slot
	return true, nil
}

func (r *fakeLedgerRepo) SettingTZOffset(_ context.Context, settingID string) (int, error) {
	return r.tzOffsets[settingID], nil
}

func (r *fakeLedgerRepo) CompareAndSetStatus(_ context.Context, subject model.Subject, from *model.LeadStatus, to model.LeadStatus, _ string) (model.LeadStatus, bool, error) {
	prev, ok := r.leads[subject.ID]
	if !ok {
		return "", false, model.ErrSubjectNotFound
	}
	if from != nil && prev != *from {
		return prev, false, nil
	}
	r.leads[subject.ID] = to
	return prev, true, nil
}

func newLedgerFixture(t *testing.T) (*fakeLedgerRepo, *Service) {
	t.Helper()
	repo := newFakeLedgerRepo()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	machine := leadstate.NewMachine(repo, nil, nil, logger)
	return repo, NewService(repo, machine, logger)
}

func addSlot(repo *fakeLedgerRepo, id string, occupied, capacity int) {
	repo.slots[id] = model.Timeslot{
		ID:            id,
		SettingID:     "setting-1",
		Date:          time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		StartMinute:   9 * 60,
		EndMinute:     9*60 + 45,
		MaxCapacity:   capacity,
		OccupiedCount: occupied,
	}
}

func TestCreate_BooksAppointment(t *testing.T) {
	repo, svc := newLedgerFixture(t)
	addSlot(repo, "slot-1", 0, 2)
	repo.tzOffsets["setting-1"] = 480 // UTC+8
	repo.leads["lead-1"] = model.LeadStatusAssigned

	appt, err := svc.Create(context.Background(), CreateInput{
		Actor:      model.UserActor("agent-7"),
		Subject:    model.LeadSubject("lead-1"),
		TimeslotID: "slot-1",
		AgentID:    "agent-7",
		Notes:      "first visit",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if appt.Status != model.AppointmentUpcoming {
		t.Fatalf("expected upcoming, got %s", appt.Status)
	}
	wantStart := time.Date(2026, 9, 7, 1, 0, 0, 0, time.UTC) // 09:00 local at UTC+8
	if !appt.StartAt.Equal(wantStart) {
		t.Fatalf("expected start %v, got %v", wantStart, appt.StartAt)
	}
	if repo.slots["slot-1"].OccupiedCount != 1 {
		t.Fatalf("expected occupancy 1, got %d", repo.slots["slot-1"].OccupiedCount)
	}
	if repo.assocs[appt.ID] != "slot-1" {
		t.Fatal("primary slot association missing")
	}
}

func TestCreate_RejectsSecondActiveAppointment(t *testing.T) {
	repo, svc := newLedgerFixture(t)
	addSlot(repo, "slot-1", 0, 2)
	addSlot(repo, "slot-2", 0, 2)
	repo.leads["lead-1"] = model.LeadStatusAssigned

	actor := model.UserActor("agent-7")
	subject := model.LeadSubject("lead-1")
	if _, err := svc.Create(context.Background(), CreateInput{Actor: actor, Subject: subject, TimeslotID: "slot-1"}); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	_, err := svc.Create(context.Background(), CreateInput{Actor: actor, Subject: subject, TimeslotID: "slot-2"})
	if !errors.Is(err, model.ErrDuplicateAppointment) {
		t.Fatalf("expected ErrDuplicateAppointment, got %v", err)
	}
	if repo.slots["slot-2"].OccupiedCount != 0 {
		t.Fatal("rejected booking must not consume capacity")
	}
}

func TestCreate_CapacityExhausted(t *testing.T) {
	repo, svc := newLedgerFixture(t)
	addSlot(repo, "slot-1", 1, 1)

	_, err := svc.Create(context.Background(), CreateInput{
		Actor:      model.UserActor("agent-7"),
		Subject:    model.LeadSubject("lead-1"),
		TimeslotID: "slot-1",
	})
	if !errors.Is(err, model.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if repo.slots["slot-1"].OccupiedCount != 1 {
		t.Fatalf("occupancy must stay at 1, got %d", repo.slots["slot-1"].OccupiedCount)
	}
}

func TestCreate_SystemActorOverbooks(t *testing.T) {
	repo, svc := newLedgerFixture(t)
	addSlot(repo, "slot-1", 1, 1)

	_, err := svc.Create(context.Background(), CreateInput{
		Actor:      model.SystemActor("import-reconciler"),
		Subject:    model.LeadSubject("lead-1"),
		TimeslotID: "slot-1",
	})
	if err != nil {
		t.Fatalf("system actor must bypass the capacity check: %v", err)
	}
	if repo.slots["slot-1"].OccupiedCount != 2 {
		t.Fatalf("overbooking must still be counted, got %d", repo.slots["slot-1"].OccupiedCount)
	}
}

func TestCreate_RollsBackOnPartialFailure(t *testing.T) {
	repo, svc := newLedgerFixture(t)
	addSlot(repo, "slot-1", 0, 2)
	repo.failOn = "InsertAssociation"

	_, err := svc.Create(context.Background(), CreateInput{
		Actor:      model.UserActor("agent-7"),
		Subject:    model.LeadSubject("lead-1"),
		TimeslotID: "slot-1",
	})
	if err == nil {
		t.Fatal("expected injected failure to surface")
	}
	if len(repo.appts) != 0 {
		t.Fatal("failed booking must leave no appointment behind")
	}
	if repo.slots["slot-1"].OccupiedCount != 0 {
		t.Fatalf("failed booking must leave occupancy untouched, got %d", repo.slots["slot-1"].OccupiedCount)
	}
}

func TestCancel_ReleasesCapacityAndReopensLead(t *testing.T) {
	repo, svc := newLedgerFixture(t)
	addSlot(repo, "slot-1", 0, 2)
	repo.leads["lead-1"] = model.LeadStatusAssigned
	actor := model.UserActor("agent-7")

	appt, err := svc.Create(context.Background(), CreateInput{
		Actor: actor, Subject: model.LeadSubject("lead-1"), TimeslotID: "slot-1",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := svc.Cancel(context.Background(), actor, appt.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if got := repo.appts[appt.ID].Status; got != model.AppointmentCancelled {
		t.Fatalf("expected cancelled, got %s", got)
	}
	if repo.slots["slot-1"].OccupiedCount != 0 {
		t.Fatalf("cancel must release capacity, got %d", repo.slots["slot-1"].OccupiedCount)
	}
	if repo.leads["lead-1"] != model.LeadStatusOpen {
		t.Fatalf("cancel must reopen the lead, got %s", repo.leads["lead-1"])
	}
}

func TestCancel_DoubleCancelIsConflict(t *testing.T) {
	repo, svc := newLedgerFixture(t)
	addSlot(repo, "slot-1", 0, 2)
	repo.leads["lead-1"] = model.LeadStatusAssigned
	actor := model.UserActor("agent-7")

	appt, err := svc.Create(context.Background(), CreateInput{
		Actor: actor, Subject: model.LeadSubject("lead-1"), TimeslotID: "slot-1",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := svc.Cancel(context.Background(), actor, appt.ID); err != nil {
		t.Fatalf("first cancel failed: %v", err)
	}

	err = svc.Cancel(context.Background(), actor, appt.ID)
	if !errors.Is(err, model.ErrStatusConflict) {
		t.Fatalf("expected ErrStatusConflict, got %v", err)
	}
	if repo.slots["slot-1"].OccupiedCount != 0 {
		t.Fatalf("double cancel must not drive occupancy below zero, got %d", repo.slots["slot-1"].OccupiedCount)
	}
}

func TestMove_RebindsSlotAndPreservesOccupancy(t *testing.T) {
	repo, svc := newLedgerFixture(t)
	addSlot(repo, "slot-1", 0, 2)
	addSlot(repo, "slot-2", 0, 2)
	repo.leads["lead-1"] = model.LeadStatusAssigned

	appt, err := svc.Create(context.Background(), CreateInput{
		Actor: model.UserActor("agent-7"), Subject: model.LeadSubject("lead-1"), TimeslotID: "slot-1",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := svc.Move(context.Background(), model.UserActor("agent-7"), appt.ID, "slot-2"); err == nil {
		t.Fatal("interactive actors must not move appointments")
	}

	if err := svc.Move(context.Background(), model.SystemActor("import-reconciler"), appt.ID, "slot-2"); err != nil {
		t.Fatalf("move failed: %v", err)
	}
	if repo.slots["slot-1"].OccupiedCount != 0 || repo.slots["slot-2"].OccupiedCount != 1 {
		t.Fatalf("occupancy must follow the move, got %d/%d",
			repo.slots["slot-1"].OccupiedCount, repo.slots["slot-2"].OccupiedCount)
	}
	if repo.assocs[appt.ID] != "slot-2" {
		t.Fatal("primary association must point at the new slot")
	}
}

func TestUpdateStatus_DonePropagatesToLead(t *testing.T) {
	repo, svc := newLedgerFixture(t)
	addSlot(repo, "slot-1", 0, 2)
	repo.leads["lead-1"] = model.LeadStatusAssigned
	actor := model.UserActor("agent-7")

	appt, err := svc.Create(context.Background(), CreateInput{
		Actor: actor, Subject: model.LeadSubject("lead-1"), TimeslotID: "slot-1",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	outcome := &model.LoanOutcome{Bank: "DBS", Amount: 250000}
	if err := svc.UpdateStatus(context.Background(), appt.ID, model.AppointmentDone, UpdateStatusInput{
		Actor: actor, Outcome: outcome,
	}); err != nil {
		t.Fatalf("update status failed: %v", err)
	}
	if got := repo.appts[appt.ID]; got.Status != model.AppointmentDone || got.Outcome == nil || got.Outcome.Bank != "DBS" {
		t.Fatalf("appointment not closed out: %+v", got)
	}
	if repo.leads["lead-1"] != model.LeadStatusDone {
		t.Fatalf("lead must follow the appointment to done, got %s", repo.leads["lead-1"])
	}
	// Done does not release the slot.
	if repo.slots["slot-1"].OccupiedCount != 1 {
		t.Fatalf("done must keep the slot occupied, got %d", repo.slots["slot-1"].OccupiedCount)
	}
}

func TestUpdateStatus_RejectsIllegalTransitions(t *testing.T) {
	repo, svc := newLedgerFixture(t)
	addSlot(repo, "slot-1", 0, 2)
	repo.leads["lead-1"] = model.LeadStatusAssigned
	actor := model.UserActor("agent-7")

	appt, err := svc.Create(context.Background(), CreateInput{
		Actor: actor, Subject: model.LeadSubject("lead-1"), TimeslotID: "slot-1",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := svc.UpdateStatus(context.Background(), appt.ID, "vanished", UpdateStatusInput{Actor: actor}); !errors.Is(err, model.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}

	if err := svc.UpdateStatus(context.Background(), appt.ID, model.AppointmentDone, UpdateStatusInput{Actor: actor}); err != nil {
		t.Fatalf("done transition failed: %v", err)
	}
	if err := svc.UpdateStatus(context.Background(), appt.ID, model.AppointmentUpcoming, UpdateStatusInput{Actor: actor}); !errors.Is(err, model.ErrStatusConflict) {
		t.Fatalf("reopening a closed appointment must conflict, got %v", err)
	}
}
