package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/leadsched/services/scheduling-service/internal/model"
)

func (s *Store) CreateSetting(ctx context.Context, setting model.CalendarSetting) error {
	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO calendar_settings
			(id, name, working_days, day_start_minute, day_end_minute, slot_minutes,
			 default_capacity, tz_offset_minutes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, setting.ID, setting.Name, weekdaysToInts(setting.WorkingDays),
		setting.DayStartMinute, setting.DayEndMinute, setting.SlotMinutes,
		setting.DefaultCapacity, setting.TZOffsetMinutes, setting.CreatedBy)
	return err
}

// UpdateSetting applies edits only while the setting has never generated
// slots. A frozen setting rejects the write so existing timeslots keep the
// schedule they were emitted under.
func (s *Store) UpdateSetting(ctx context.Context, setting model.CalendarSetting) error {
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE calendar_settings
		SET name = $2,
			working_days = $3,
			day_start_minute = $4,
			day_end_minute = $5,
			slot_minutes = $6,
			default_capacity = $7,
			tz_offset_minutes = $8,
			updated_at = now()
		WHERE id = $1 AND generated_at IS NULL
	`, setting.ID, setting.Name, weekdaysToInts(setting.WorkingDays),
		setting.DayStartMinute, setting.DayEndMinute, setting.SlotMinutes,
		setting.DefaultCapacity, setting.TZOffsetMinutes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetSetting(ctx, setting.ID); err != nil {
			return err
		}
		return model.ErrSettingFrozen
	}
	return nil
}

func (s *Store) GetSetting(ctx context.Context, settingID string) (model.CalendarSetting, error) {
	var (
		setting model.CalendarSetting
		days    []int32
	)
	err := s.q(ctx).QueryRow(ctx, `
		SELECT id, name, working_days, day_start_minute, day_end_minute, slot_minutes,
			default_capacity, tz_offset_minutes, generated_at, created_by, created_at, updated_at
		FROM calendar_settings
		WHERE id = $1
	`, settingID).Scan(
		&setting.ID,
		&setting.Name,
		&days,
		&setting.DayStartMinute,
		&setting.DayEndMinute,
		&setting.SlotMinutes,
		&setting.DefaultCapacity,
		&setting.TZOffsetMinutes,
		&setting.GeneratedAt,
		&setting.CreatedBy,
		&setting.CreatedAt,
		&setting.UpdatedAt,
	)
	if isNoRows(err) {
		return model.CalendarSetting{}, model.ErrSettingNotFound
	}
	if err != nil {
		return model.CalendarSetting{}, err
	}
	setting.WorkingDays = intsToWeekdays(days)
	return setting, nil
}

func (s *Store) SettingTZOffset(ctx context.Context, settingID string) (int, error) {
	var offset int
	err := s.q(ctx).QueryRow(ctx, `
		SELECT tz_offset_minutes FROM calendar_settings WHERE id = $1
	`, settingID).Scan(&offset)
	if isNoRows(err) {
		return 0, model.ErrSettingNotFound
	}
	return offset, err
}

func (s *Store) AddException(ctx context.Context, exc model.CalendarException) error {
	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO calendar_exceptions (id, setting_id, date, closed, note)
		VALUES ($1, $2, $3, $4, $5)
	`, exc.ID, exc.SettingID, exc.Date, exc.Closed, exc.Note)
	return err
}

func (s *Store) ListClosedDates(ctx context.Context, settingID string, from, to time.Time) (map[string]struct{}, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT date FROM calendar_exceptions
		WHERE setting_id = $1 AND closed AND date BETWEEN $2 AND $3
	`, settingID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	closed := make(map[string]struct{})
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		closed[d.Format("2006-01-02")] = struct{}{}
	}
	return closed, rows.Err()
}

func (s *Store) InsertTimeslots(ctx context.Context, slots []model.Timeslot) (int, error) {
	rows := make([][]any, 0, len(slots))
	for _, slot := range slots {
		rows = append(rows, []any{
			slot.ID, slot.SettingID, slot.Date, slot.StartMinute, slot.EndMinute,
			slot.MaxCapacity, slot.OccupiedCount, slot.Disabled,
		})
	}
	n, err := s.q(ctx).CopyFrom(ctx,
		pgx.Identifier{"timeslots"},
		[]string{"id", "setting_id", "date", "start_minute", "end_minute", "max_capacity", "occupied_count", "disabled"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, fmt.Errorf("copy timeslots: %w", err)
	}
	return int(n), nil
}

func (s *Store) MarkGenerated(ctx context.Context, settingID string, at time.Time) error {
	_, err := s.q(ctx).Exec(ctx, `
		UPDATE calendar_settings
		SET generated_at = COALESCE(generated_at, $2),
			updated_at = now()
		WHERE id = $1
	`, settingID, at)
	return err
}

func (s *Store) ListOpenSlots(ctx context.Context, date time.Time) ([]model.Timeslot, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT id, setting_id, date, start_minute, end_minute, max_capacity, occupied_count, disabled, created_at
		FROM timeslots
		WHERE date = $1 AND NOT disabled
		ORDER BY start_minute ASC
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTimeslots(rows)
}

// DisableTimeslot retires a slot that appointments already reference;
// generated slots are never hard-deleted.
func (s *Store) DisableTimeslot(ctx context.Context, timeslotID string) error {
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE timeslots SET disabled = TRUE WHERE id = $1
	`, timeslotID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrTimeslotNotFound
	}
	return nil
}

func scanTimeslots(rows pgx.Rows) ([]model.Timeslot, error) {
	var slots []model.Timeslot
	for rows.Next() {
		var slot model.Timeslot
		if err := rows.Scan(
			&slot.ID,
			&slot.SettingID,
			&slot.Date,
			&slot.StartMinute,
			&slot.EndMinute,
			&slot.MaxCapacity,
			&slot.OccupiedCount,
			&slot.Disabled,
			&slot.CreatedAt,
		); err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

func weekdaysToInts(days []time.Weekday) []int32 {
	out := make([]int32, 0, len(days))
	for _, d := range days {
		out = append(out, int32(d))
	}
	return out
}

func intsToWeekdays(days []int32) []time.Weekday {
	out := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		out = append(out, time.Weekday(d))
	}
	return out
}
