// Package store persists reminder definitions and their history.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pathakanu/pillMemo/internal/model"
	"github.com/pathakanu/pillMemo/internal/recurrence"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a reminder does not exist or is not owned by the caller.
var ErrNotFound = errors.New("reminder not found")

// Store is the narrow CRUD surface the delivery engine and conversation
// flows depend on. Every call is atomic on its own; there are no
// cross-call transactions.
type Store interface {
	CreateReminder(ctx context.Context, owner, label string, clock recurrence.Clock, rec recurrence.Recurrence) (uint, error)
	ListReminders(ctx context.Context, owner string) ([]model.Reminder, error)
	GetReminder(ctx context.Context, owner string, id uint) (*model.Reminder, error)
	GetReminderByID(ctx context.Context, id uint) (*model.Reminder, error)
	DeleteReminder(ctx context.Context, owner string, id uint) (string, error)
	UpdateReminder(ctx context.Context, id uint, clock recurrence.Clock, rec recurrence.Recurrence) error
	RemindersDueAt(ctx context.Context, timeOfDay string) ([]model.Reminder, error)
	MarkFiredToday(ctx context.Context, id uint, date string) error
	AppendHistory(ctx context.Context, reminderID uint, at time.Time, action model.Action) error
	RecentHistory(ctx context.Context, owner string, limit int) ([]model.HistoryRecord, error)
}

// Gorm implements Store on top of a gorm connection.
type Gorm struct {
	db *gorm.DB
}

var _ Store = (*Gorm)(nil)

// NewGorm wraps db. The schema must already be migrated.
func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

// CreateReminder inserts a reminder with no dedup marker and returns its id.
func (s *Gorm) CreateReminder(ctx context.Context, owner, label string, clock recurrence.Clock, rec recurrence.Recurrence) (uint, error) {
	if !rec.Valid() {
		return 0, recurrence.ErrEmptyWeekdays
	}
	reminder := &model.Reminder{
		UserID:    owner,
		Label:     label,
		TimeOfDay: clock.String(),
		Days:      rec.Encode(),
	}
	if err := s.db.WithContext(ctx).Create(reminder).Error; err != nil {
		return 0, fmt.Errorf("create reminder: %w", err)
	}
	return reminder.ID, nil
}

// ListReminders returns the owner's reminders ordered by time of day.
func (s *Gorm) ListReminders(ctx context.Context, owner string) ([]model.Reminder, error) {
	var reminders []model.Reminder
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", owner).
		Order("time_of_day ASC, id ASC").
		Find(&reminders).Error; err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	return reminders, nil
}

// GetReminder looks a reminder up by id, scoped to owner.
func (s *Gorm) GetReminder(ctx context.Context, owner string, id uint) (*model.Reminder, error) {
	var reminder model.Reminder
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, owner).
		Take(&reminder).Error
	if err != nil {
		return nil, notFound(err, "get reminder")
	}
	return &reminder, nil
}

// GetReminderByID looks a reminder up without owner scoping.
func (s *Gorm) GetReminderByID(ctx context.Context, id uint) (*model.Reminder, error) {
	var reminder model.Reminder
	if err := s.db.WithContext(ctx).Take(&reminder, id).Error; err != nil {
		return nil, notFound(err, "get reminder by id")
	}
	return &reminder, nil
}

// DeleteReminder removes an owned reminder and returns its label.
// History entries are kept.
func (s *Gorm) DeleteReminder(ctx context.Context, owner string, id uint) (string, error) {
	var label string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reminder model.Reminder
		if err := tx.Where("id = ? AND user_id = ?", id, owner).Take(&reminder).Error; err != nil {
			return err
		}
		if err := tx.Delete(&model.Reminder{}, reminder.ID).Error; err != nil {
			return err
		}
		label = reminder.Label
		return nil
	})
	if err != nil {
		return "", notFound(err, "delete reminder")
	}
	return label, nil
}

// UpdateReminder replaces time and recurrence and clears the dedup marker.
func (s *Gorm) UpdateReminder(ctx context.Context, id uint, clock recurrence.Clock, rec recurrence.Recurrence) error {
	if !rec.Valid() {
		return recurrence.ErrEmptyWeekdays
	}
	result := s.db.WithContext(ctx).
		Model(&model.Reminder{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"time_of_day":     clock.String(),
			"days":            rec.Encode(),
			"last_fired_date": nil,
		})
	if result.Error != nil {
		return fmt.Errorf("update reminder: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RemindersDueAt returns every reminder stored for the given HH:MM.
func (s *Gorm) RemindersDueAt(ctx context.Context, timeOfDay string) ([]model.Reminder, error) {
	var reminders []model.Reminder
	if err := s.db.WithContext(ctx).
		Where("time_of_day = ?", timeOfDay).
		Order("id ASC").
		Find(&reminders).Error; err != nil {
		return nil, fmt.Errorf("reminders due at %s: %w", timeOfDay, err)
	}
	return reminders, nil
}

// MarkFiredToday stores date as the reminder's last fired date.
func (s *Gorm) MarkFiredToday(ctx context.Context, id uint, date string) error {
	result := s.db.WithContext(ctx).
		Model(&model.Reminder{}).
		Where("id = ?", id).
		Update("last_fired_date", date)
	if result.Error != nil {
		return fmt.Errorf("mark reminder fired: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendHistory records an action. The owner and label are copied from the
// reminder when it still exists.
func (s *Gorm) AppendHistory(ctx context.Context, reminderID uint, at time.Time, action model.Action) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry := model.HistoryEntry{
			ReminderID: reminderID,
			Action:     action,
			At:         at.Truncate(time.Second),
		}
		var reminder model.Reminder
		err := tx.Select("user_id", "label").Take(&reminder, reminderID).Error
		switch {
		case err == nil:
			entry.UserID = reminder.UserID
			entry.Label = reminder.Label
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("append history: %w", err)
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		return nil
	})
}

// RecentHistory returns the owner's latest entries, newest first.
func (s *Gorm) RecentHistory(ctx context.Context, owner string, limit int) ([]model.HistoryRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var entries []model.HistoryEntry
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", owner).
		Order("at DESC, id DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("recent history: %w", err)
	}

	records := make([]model.HistoryRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, model.HistoryRecord{At: e.At, Action: e.Action, Label: e.Label})
	}
	return records, nil
}

func notFound(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
