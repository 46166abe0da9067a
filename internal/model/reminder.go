package model

import (
	"fmt"
	"time"

	"github.com/pathakanu/pillMemo/internal/recurrence"
)

// Reminder is a medication reminder owned by one chat user.
type Reminder struct {
	ID            uint      `gorm:"primaryKey"`
	UserID        string    `gorm:"index;not null"`
	Label         string    `gorm:"type:text;not null"`
	TimeOfDay     string    `gorm:"size:5;index;not null"`
	Days          string    `gorm:"size:32;not null"`
	LastFiredDate *string   `gorm:"size:10"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

// Recurrence decodes the stored day list.
func (r Reminder) Recurrence() (recurrence.Recurrence, error) {
	rec, err := recurrence.Decode(r.Days)
	if err != nil {
		return recurrence.Recurrence{}, fmt.Errorf("reminder %d: %w", r.ID, err)
	}
	return rec, nil
}

// Schedule returns the fields the due check needs.
func (r Reminder) Schedule() (recurrence.Schedule, error) {
	rec, err := r.Recurrence()
	if err != nil {
		return recurrence.Schedule{}, err
	}
	sched := recurrence.Schedule{TimeOfDay: r.TimeOfDay, Recurrence: rec}
	if r.LastFiredDate != nil {
		sched.LastFiredDate = *r.LastFiredDate
	}
	return sched, nil
}

// DaysLabel renders the recurrence for listings, falling back to the raw value.
func (r Reminder) DaysLabel() string {
	rec, err := r.Recurrence()
	if err != nil {
		return r.Days
	}
	return recurrence.Describe(rec)
}
