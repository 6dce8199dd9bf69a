package calendar

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/leadsched/services/scheduling-service/internal/model"
)

// AdminRepository covers the setting/exception writes behind the admin
// surface. Kept separate from Repository so generation-only callers depend
// on the narrower contract.
type AdminRepository interface {
	CreateSetting(ctx context.Context, setting model.CalendarSetting) error
	UpdateSetting(ctx context.Context, setting model.CalendarSetting) error
	AddException(ctx context.Context, exc model.CalendarException) error
	DisableTimeslot(ctx context.Context, timeslotID string) error
}

type Admin struct {
	repo AdminRepository
	now  func() time.Time
}

func NewAdmin(repo AdminRepository) *Admin {
	return &Admin{repo: repo, now: time.Now}
}

type SettingInput struct {
	Name            string
	WorkingDays     []time.Weekday
	DayStartMinute  int
	DayEndMinute    int
	SlotMinutes     int
	DefaultCapacity int
	TZOffsetMinutes int
}

func (in SettingInput) validate() error {
	if in.Name == "" {
		return model.Invalid("name", "required")
	}
	if len(in.WorkingDays) == 0 {
		return model.Invalid("working days", "at least one required")
	}
	if in.DayStartMinute < 0 || in.DayEndMinute > 24*60 || in.DayEndMinute <= in.DayStartMinute {
		return model.Invalid("daily window", "end must follow start within one day")
	}
	if in.SlotMinutes <= 0 {
		return model.Invalid("slot duration", "must be positive")
	}
	if in.DefaultCapacity < 1 {
		return model.Invalid("capacity", "must be at least 1")
	}
	return nil
}

func (a *Admin) CreateSetting(ctx context.Context, actor model.Actor, in SettingInput) (model.CalendarSetting, error) {
	if !actor.Authenticated() {
		return model.CalendarSetting{}, model.ErrNotAuthenticated
	}
	if err := in.validate(); err != nil {
		return model.CalendarSetting{}, err
	}
	now := a.now().UTC()
	setting := model.CalendarSetting{
		ID:              uuid.NewString(),
		Name:            in.Name,
		WorkingDays:     in.WorkingDays,
		DayStartMinute:  in.DayStartMinute,
		DayEndMinute:    in.DayEndMinute,
		SlotMinutes:     in.SlotMinutes,
		DefaultCapacity: in.DefaultCapacity,
		TZOffsetMinutes: in.TZOffsetMinutes,
		CreatedBy:       actor.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := a.repo.CreateSetting(ctx, setting); err != nil {
		return model.CalendarSetting{}, err
	}
	return setting, nil
}

// UpdateSetting edits a setting that has not generated slots yet. A frozen
// setting surfaces model.ErrSettingFrozen; the admin must create a new
// setting for future runs instead.
func (a *Admin) UpdateSetting(ctx context.Context, actor model.Actor, settingID string, in SettingInput) error {
	if !actor.Authenticated() {
		return model.ErrNotAuthenticated
	}
	if err := in.validate(); err != nil {
		return err
	}
	return a.repo.UpdateSetting(ctx, model.CalendarSetting{
		ID:              settingID,
		Name:            in.Name,
		WorkingDays:     in.WorkingDays,
		DayStartMinute:  in.DayStartMinute,
		DayEndMinute:    in.DayEndMinute,
		SlotMinutes:     in.SlotMinutes,
		DefaultCapacity: in.DefaultCapacity,
		TZOffsetMinutes: in.TZOffsetMinutes,
	})
}

func (a *Admin) AddException(ctx context.Context, actor model.Actor, settingID string, date time.Time, closed bool, note string) error {
	if !actor.Authenticated() {
		return model.ErrNotAuthenticated
	}
	return a.repo.AddException(ctx, model.CalendarException{
		ID:        uuid.NewString(),
		SettingID: settingID,
		Date:      dateOnly(date),
		Closed:    closed,
		Note:      note,
	})
}

// DisableSlot retires a slot instead of deleting it, so appointments that
// reference it keep a valid association.
func (a *Admin) DisableSlot(ctx context.Context, actor model.Actor, timeslotID string) error {
	if !actor.Authenticated() {
		return model.ErrNotAuthenticated
	}
	return a.repo.DisableTimeslot(ctx, timeslotID)
}
