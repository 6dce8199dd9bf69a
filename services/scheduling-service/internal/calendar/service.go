package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/leadsched/services/scheduling-service/internal/model"
)

// nearestLookaheadDays bounds the forward walk of FindNearestAvailable.
const nearestLookaheadDays = 7

type Repository interface {
	GetSetting(ctx context.Context, settingID string) (model.CalendarSetting, error)
	ListClosedDates(ctx context.Context, settingID string, from, to time.Time) (map[string]struct{}, error)
	InsertTimeslots(ctx context.Context, slots []model.Timeslot) (int, error)
	MarkGenerated(ctx context.Context, settingID string, at time.Time) error
	ListOpenSlots(ctx context.Context, date time.Time) ([]model.Timeslot, error)
}

type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

type GenerateResult struct {
	Created int
}

// Generate walks every calendar date in [from, to], skipping non-working
// weekdays and closed exception dates, and bulk-inserts one timeslot per
// full slot window. A range that yields no slots is reported as zero
// created, not as an error.
func (s *Service) Generate(ctx context.Context, actor model.Actor, settingID string, from, to time.Time) (GenerateResult, error) {
	if !actor.Authenticated() {
		return GenerateResult{}, model.ErrNotAuthenticated
	}
	from = dateOnly(from)
	to = dateOnly(to)
	if to.Before(from) {
		return GenerateResult{}, model.Invalid("date range", "end date before start date")
	}

	setting, err := s.repo.GetSetting(ctx, settingID)
	if err != nil {
		return GenerateResult{}, err
	}
	if setting.SlotMinutes <= 0 {
		return GenerateResult{}, model.Invalid("slot duration", "must be positive")
	}
	if setting.DefaultCapacity < 1 {
		return GenerateResult{}, model.Invalid("capacity", "must be at least 1")
	}

	closed, err := s.repo.ListClosedDates(ctx, settingID, from, to)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("list exceptions: %w", err)
	}

	now := s.now().UTC()
	var slots []model.Timeslot
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if !setting.WorksOn(d.Weekday()) {
			continue
		}
		if _, ok := closed[dateKey(d)]; ok {
			continue
		}
		for _, start := range DaySlots(setting.DayStartMinute, setting.DayEndMinute, setting.SlotMinutes) {
			slots = append(slots, model.Timeslot{
				ID:          uuid.NewString(),
				SettingID:   setting.ID,
				Date:        d,
				StartMinute: start,
				EndMinute:   start + setting.SlotMinutes,
				MaxCapacity: setting.DefaultCapacity,
				CreatedAt:   now,
			})
		}
	}

	if len(slots) == 0 {
		s.logger.Info("timeslot generation produced empty range",
			"setting_id", settingID, "from", dateKey(from), "to", dateKey(to))
		return GenerateResult{Created: 0}, nil
	}

	created, err := s.repo.InsertTimeslots(ctx, slots)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("insert timeslots: %w", err)
	}
	if err := s.repo.MarkGenerated(ctx, settingID, now); err != nil {
		return GenerateResult{}, fmt.Errorf("mark setting generated: %w", err)
	}

	s.logger.Info("timeslots generated",
		"setting_id", settingID, "created", created, "actor", actor.ID)
	return GenerateResult{Created: created}, nil
}

// FindAvailable returns enabled slots for the date ordered by start time.
// It deliberately does not filter by capacity: "exists" and "bookable" are
// separate questions, and emergency flows are allowed to overbook.
func (s *Service) FindAvailable(ctx context.Context, date time.Time) ([]model.Timeslot, error) {
	return s.repo.ListOpenSlots(ctx, dateOnly(date))
}

// FindNearestAvailable returns the first enabled slot on the target date or
// within the following week, regardless of remaining capacity. Automated
// ingestion prefers overbooking over silently dropping a placement.
func (s *Service) FindNearestAvailable(ctx context.Context, date time.Time) (*model.Timeslot, error) {
	day := dateOnly(date)
	for i := 0; i <= nearestLookaheadDays; i++ {
		slots, err := s.repo.ListOpenSlots(ctx, day.AddDate(0, 0, i))
		if err != nil {
			return nil, err
		}
		if len(slots) > 0 {
			slot := slots[0]
			return &slot, nil
		}
	}
	return nil, nil
}

// CapacitySummary is the aggregate the external agent-assignment scheduler
// consumes; it needs nothing beyond these counts.
type CapacitySummary struct {
	Date          time.Time
	Slots         int
	TotalCapacity int
	TotalOccupied int
	Open          int
}

func (s *Service) CapacityOn(ctx context.Context, date time.Time) (CapacitySummary, error) {
	slots, err := s.repo.ListOpenSlots(ctx, dateOnly(date))
	if err != nil {
		return CapacitySummary{}, err
	}
	sum := CapacitySummary{Date: dateOnly(date), Slots: len(slots)}
	for _, slot := range slots {
		sum.TotalCapacity += slot.MaxCapacity
		sum.TotalOccupied += slot.OccupiedCount
		if slot.HasCapacity() {
			sum.Open++
		}
	}
	return sum, nil
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
