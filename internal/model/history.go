package model

import (
	"strconv"
	"strings"
	"time"
)

// Action is what happened to a reminder at a point in time.
type Action string

const (
	ActionSent  Action = "sent"
	ActionTaken Action = "taken"

	snoozePrefix = "snooze_"
)

// Snoozed returns the action recorded when a user defers a reminder.
func Snoozed(minutes int) Action {
	return Action(snoozePrefix + strconv.Itoa(minutes))
}

// SnoozeMinutes extracts the minutes of a snooze action.
func (a Action) SnoozeMinutes() (int, bool) {
	rest, ok := strings.CutPrefix(string(a), snoozePrefix)
	if !ok {
		return 0, false
	}
	minutes, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return minutes, true
}

// Kind groups actions for metrics: "sent", "taken" or "snoozed".
func (a Action) Kind() string {
	if _, ok := a.SnoozeMinutes(); ok {
		return "snoozed"
	}
	return string(a)
}

// HistoryEntry is an append-only audit record. ReminderID is a weak
// reference; UserID and Label are copied from the reminder when the entry is
// written so the entry still reads well after the reminder is deleted.
type HistoryEntry struct {
	ID         uint      `gorm:"primaryKey"`
	ReminderID uint      `gorm:"index;not null"`
	UserID     string    `gorm:"index"`
	Label      string    `gorm:"type:text"`
	Action     Action    `gorm:"size:32;not null"`
	At         time.Time `gorm:"index;not null"`
}

// HistoryRecord is one line of a user's recent history.
type HistoryRecord struct {
	At     time.Time
	Action Action
	Label  string
}
