package calendar

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/leadsched/services/scheduling-service/internal/model"
)

type fakeCalendarRepo struct {
	settings map[string]model.CalendarSetting
	closed   map[string]struct{}
	slots    map[string][]model.Timeslot // keyed by date
	created  []model.Timeslot
	marked   bool
}

func newFakeCalendarRepo() *fakeCalendarRepo {
	return &fakeCalendarRepo{
		settings: make(map[string]model.CalendarSetting),
		closed:   make(map[string]struct{}),
		slots:    make(map[string][]model.Timeslot),
	}
}

func (r *fakeCalendarRepo) GetSetting(_ context.Context, id string) (model.CalendarSetting, error) {
	s, ok := r.settings[id]
	if !ok {
		return model.CalendarSetting{}, model.ErrSettingNotFound
	}
	return s, nil
}

func (r *fakeCalendarRepo) ListClosedDates(_ context.Context, _ string, _, _ time.Time) (map[string]struct{}, error) {
	return r.closed, nil
}

func (r *fakeCalendarRepo) InsertTimeslots(_ context.Context, slots []model.Timeslot) (int, error) {
	r.created = append(r.created, slots...)
	for _, slot := range slots {
		key := slot.Date.Format("2006-01-02")
		r.slots[key] = append(r.slots[key], slot)
	}
	return len(slots), nil
}

func (r *fakeCalendarRepo) MarkGenerated(_ context.Context, _ string, _ time.Time) error {
	r.marked = true
	return nil
}

func (r *fakeCalendarRepo) ListOpenSlots(_ context.Context, date time.Time) ([]model.Timeslot, error) {
	return r.slots[date.Format("2006-01-02")], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func weekdaySetting() model.CalendarSetting {
	return model.CalendarSetting{
		ID:   "setting-1",
		Name: "weekday office hours",
		WorkingDays: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		},
		DayStartMinute:  9 * 60,
		DayEndMinute:    17 * 60,
		SlotMinutes:     60,
		DefaultCapacity: 1,
	}
}

func TestGenerate_SingleMonday(t *testing.T) {
	repo := newFakeCalendarRepo()
	repo.settings["setting-1"] = weekdaySetting()
	svc := NewService(repo, testLogger())

	monday := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	res, err := svc.Generate(context.Background(), model.UserActor("admin-1"), "setting-1", monday, monday)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if res.Created != 8 {
		t.Fatalf("expected 8 timeslots, got %d", res.Created)
	}
	if repo.created[0].StartMinute != 9*60 || repo.created[0].EndMinute != 10*60 {
		t.Fatalf("expected first slot 09:00-10:00, got %d-%d",
			repo.created[0].StartMinute, repo.created[0].EndMinute)
	}
	if repo.created[7].StartMinute != 16*60 || repo.created[7].EndMinute != 17*60 {
		t.Fatalf("expected last slot 16:00-17:00, got %d-%d",
			repo.created[7].StartMinute, repo.created[7].EndMinute)
	}
	if !repo.marked {
		t.Fatal("expected setting to be stamped generated")
	}
}

func TestGenerate_SkipsWeekendAndExceptions(t *testing.T) {
	repo := newFakeCalendarRepo()
	repo.settings["setting-1"] = weekdaySetting()
	// Tuesday the 8th is a holiday.
	repo.closed["2026-09-08"] = struct{}{}
	svc := NewService(repo, testLogger())

	// Monday through Sunday: Mon, Wed, Thu, Fri generate; Tue closed; weekend off.
	from := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 9, 13, 0, 0, 0, 0, time.UTC)
	res, err := svc.Generate(context.Background(), model.UserActor("admin-1"), "setting-1", from, to)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if res.Created != 4*8 {
		t.Fatalf("expected 32 timeslots, got %d", res.Created)
	}
}

func TestGenerate_EmptyRangeIsNotAnError(t *testing.T) {
	repo := newFakeCalendarRepo()
	repo.settings["setting-1"] = weekdaySetting()
	svc := NewService(repo, testLogger())

	// Saturday only: no working day in range.
	saturday := time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC)
	res, err := svc.Generate(context.Background(), model.UserActor("admin-1"), "setting-1", saturday, saturday)
	if err != nil {
		t.Fatalf("expected empty range to succeed, got %v", err)
	}
	if res.Created != 0 {
		t.Fatalf("expected 0 created, got %d", res.Created)
	}
	if repo.marked {
		t.Fatal("empty run must not stamp the setting")
	}
}

func TestGenerate_UnknownSetting(t *testing.T) {
	svc := NewService(newFakeCalendarRepo(), testLogger())
	day := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	_, err := svc.Generate(context.Background(), model.UserActor("admin-1"), "missing", day, day)
	if err != model.ErrSettingNotFound {
		t.Fatalf("expected ErrSettingNotFound, got %v", err)
	}
}

func TestGenerate_RequiresAuthenticatedActor(t *testing.T) {
	svc := NewService(newFakeCalendarRepo(), testLogger())
	day := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	_, err := svc.Generate(context.Background(), model.Actor{}, "setting-1", day, day)
	if err != model.ErrNotAuthenticated {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestFindNearestAvailable_WalksForward(t *testing.T) {
	repo := newFakeCalendarRepo()
	svc := NewService(repo, testLogger())

	// Slot exists three days past the target, already at capacity.
	slotDay := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	repo.slots["2026-09-10"] = []model.Timeslot{{
		ID:            "slot-full",
		Date:          slotDay,
		StartMinute:   9 * 60,
		EndMinute:     10 * 60,
		MaxCapacity:   1,
		OccupiedCount: 1,
	}}

	target := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	slot, err := svc.FindNearestAvailable(context.Background(), target)
	if err != nil {
		t.Fatalf("find nearest failed: %v", err)
	}
	if slot == nil {
		t.Fatal("expected a slot despite exhausted capacity")
	}
	if slot.ID != "slot-full" {
		t.Fatalf("expected slot-full, got %s", slot.ID)
	}
}

func TestFindNearestAvailable_NothingWithinWindow(t *testing.T) {
	repo := newFakeCalendarRepo()
	svc := NewService(repo, testLogger())

	// Slot exists beyond the 7-day lookahead.
	repo.slots["2026-09-20"] = []model.Timeslot{{ID: "too-far"}}

	target := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	slot, err := svc.FindNearestAvailable(context.Background(), target)
	if err != nil {
		t.Fatalf("find nearest failed: %v", err)
	}
	if slot != nil {
		t.Fatalf("expected no slot, got %s", slot.ID)
	}
}

func TestCapacityOn_Summarizes(t *testing.T) {
	repo := newFakeCalendarRepo()
	svc := NewService(repo, testLogger())

	day := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	repo.slots["2026-09-07"] = []model.Timeslot{
		{ID: "a", MaxCapacity: 2, OccupiedCount: 2},
		{ID: "b", MaxCapacity: 2, OccupiedCount: 1},
	}

	sum, err := svc.CapacityOn(context.Background(), day)
	if err != nil {
		t.Fatalf("capacity query failed: %v", err)
	}
	if sum.Slots != 2 || sum.TotalCapacity != 4 || sum.TotalOccupied != 3 || sum.Open != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}
