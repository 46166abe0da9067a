// Package recurrence decides whether a reminder fires at a given instant.
// Everything in here is pure: callers pass the wall-clock time already
// converted to the process timezone.
package recurrence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidClock is returned when a time of day is not a valid HH:MM value.
	ErrInvalidClock = errors.New("time of day must be HH:MM (00:00-23:59)")
	// ErrInvalidDays is returned when a day list contains an unknown token.
	ErrInvalidDays = errors.New("invalid day list")
	// ErrEmptyWeekdays is returned when a weekly recurrence has no days selected.
	ErrEmptyWeekdays = errors.New("weekly recurrence needs at least one day")
)

// DateLayout is the calendar date format used for the dedup marker.
const DateLayout = "2006-01-02"

// Clock is a wall-clock time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock accepts "HH:MM" or "H:MM" and normalizes it.
func ParseClock(s string) (Clock, error) {
	hourStr, minuteStr, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hourStr) < 1 || len(hourStr) > 2 || len(minuteStr) != 2 {
		return Clock{}, ErrInvalidClock
	}
	hour, err := strconv.Atoi(hourStr)
	if err != nil || hour < 0 || hour > 23 {
		return Clock{}, ErrInvalidClock
	}
	minute, err := strconv.Atoi(minuteStr)
	if err != nil || minute < 0 || minute > 59 {
		return Clock{}, ErrInvalidClock
	}
	return Clock{Hour: hour, Minute: minute}, nil
}

// String renders the clock as zero-padded HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ClockOf returns the HH:MM string of t.
func ClockOf(t time.Time) string {
	return t.Format("15:04")
}

// DateOf returns the calendar date of t in DateLayout.
func DateOf(t time.Time) string {
	return t.Format(DateLayout)
}

// Kind tells a daily recurrence apart from a weekday-restricted one.
type Kind uint8

const (
	KindDaily Kind = iota + 1
	KindWeekly
)

// Recurrence is either Daily or WeeklyOn a non-empty weekday set.
// The zero value is invalid.
type Recurrence struct {
	kind Kind
	days WeekdaySet
}

// Daily returns a recurrence active every day.
func Daily() Recurrence {
	return Recurrence{kind: KindDaily}
}

// WeeklyOn returns a recurrence active on the given weekdays.
func WeeklyOn(days WeekdaySet) (Recurrence, error) {
	if days.Empty() {
		return Recurrence{}, ErrEmptyWeekdays
	}
	return Recurrence{kind: KindWeekly, days: days}, nil
}

// Kind reports the recurrence kind.
func (r Recurrence) Kind() Kind { return r.kind }

// Days returns the weekday set of a weekly recurrence; empty for daily.
func (r Recurrence) Days() WeekdaySet { return r.days }

// Valid reports whether r was built through Daily or WeeklyOn.
func (r Recurrence) Valid() bool {
	switch r.kind {
	case KindDaily:
		return true
	case KindWeekly:
		return !r.days.Empty()
	default:
		return false
	}
}

// ActiveOn reports whether the recurrence covers weekday d.
func (r Recurrence) ActiveOn(d Weekday) bool {
	switch r.kind {
	case KindDaily:
		return true
	case KindWeekly:
		return r.days.Has(d)
	default:
		return false
	}
}

// Encode returns the storage form: "daily" or ascending indices "0,2,4".
func (r Recurrence) Encode() string {
	if r.kind == KindDaily {
		return dailyToken
	}
	return r.days.String()
}

// Decode parses the storage form produced by Encode.
func Decode(s string) (Recurrence, error) {
	s = strings.TrimSpace(s)
	if s == dailyToken {
		return Daily(), nil
	}
	var set WeekdaySet
	for _, part := range strings.Split(s, ",") {
		if part == "" {
			continue
		}
		idx, err := strconv.Atoi(part)
		if err != nil || idx < 0 || idx > 6 {
			return Recurrence{}, fmt.Errorf("%w: stored value %q", ErrInvalidDays, s)
		}
		set = set.With(Weekday(idx))
	}
	return WeeklyOn(set)
}

// Schedule is the part of a reminder the due check looks at.
type Schedule struct {
	TimeOfDay     string
	Recurrence    Recurrence
	LastFiredDate string // empty when never fired or reset
}

// Reason explains the outcome of Check.
type Reason string

const (
	Due           Reason = "due"
	WrongTime     Reason = "wrong_time"
	WrongWeekday  Reason = "wrong_weekday"
	AlreadySent   Reason = "already_sent"
	InvalidRecord Reason = "invalid_recurrence"
)

// Check evaluates s against now and says why it is or is not due.
func Check(s Schedule, now time.Time) Reason {
	if s.TimeOfDay != ClockOf(now) {
		return WrongTime
	}
	if !s.Recurrence.Valid() {
		return InvalidRecord
	}
	if !s.Recurrence.ActiveOn(WeekdayOf(now)) {
		return WrongWeekday
	}
	if s.LastFiredDate == DateOf(now) {
		return AlreadySent
	}
	return Due
}

// IsDue reports whether s fires at now.
func IsDue(s Schedule, now time.Time) bool {
	return Check(s, now) == Due
}
