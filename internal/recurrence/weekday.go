package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dailyToken = "daily"

// Weekday is a day index where 0 is Monday and 6 is Sunday.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [...]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// Valid reports whether d is in 0..6.
func (d Weekday) Valid() bool { return d >= Monday && d <= Sunday }

func (d Weekday) String() string {
	if !d.Valid() {
		return "Weekday(" + strconv.Itoa(int(d)) + ")"
	}
	return weekdayNames[d]
}

// Short returns the three-letter name.
func (d Weekday) Short() string {
	return d.String()[:3]
}

// WeekdayOf maps t to a Monday-based index.
func WeekdayOf(t time.Time) Weekday {
	return Weekday((int(t.Weekday()) + 6) % 7)
}

// WeekdaySet is a bitmask of weekdays.
type WeekdaySet uint8

// NewWeekdaySet builds a set from the given days, ignoring invalid ones.
func NewWeekdaySet(days ...Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s = s.With(d)
	}
	return s
}

// Has reports membership of d.
func (s WeekdaySet) Has(d Weekday) bool {
	return d.Valid() && s&(1<<uint(d)) != 0
}

// With returns s with d added.
func (s WeekdaySet) With(d Weekday) WeekdaySet {
	if !d.Valid() {
		return s
	}
	return s | 1<<uint(d)
}

// Toggle flips membership of d. Toggling twice restores the set.
func (s WeekdaySet) Toggle(d Weekday) WeekdaySet {
	if !d.Valid() {
		return s
	}
	return s ^ 1<<uint(d)
}

// Empty reports whether no day is selected.
func (s WeekdaySet) Empty() bool { return s&0x7f == 0 }

// Len counts selected days.
func (s WeekdaySet) Len() int {
	n := 0
	for d := Monday; d <= Sunday; d++ {
		if s.Has(d) {
			n++
		}
	}
	return n
}

// Days lists the selected days in ascending order.
func (s WeekdaySet) Days() []Weekday {
	days := make([]Weekday, 0, 7)
	for d := Monday; d <= Sunday; d++ {
		if s.Has(d) {
			days = append(days, d)
		}
	}
	return days
}

// String renders the set as ascending indices joined by commas.
func (s WeekdaySet) String() string {
	parts := make([]string, 0, 7)
	for _, d := range s.Days() {
		parts = append(parts, strconv.Itoa(int(d)))
	}
	return strings.Join(parts, ",")
}

// Names renders the set with full weekday names.
func (s WeekdaySet) Names() string {
	parts := make([]string, 0, 7)
	for _, d := range s.Days() {
		parts = append(parts, d.String())
	}
	return strings.Join(parts, ", ")
}

var dayTokens = map[string]Weekday{
	"mon": Monday, "monday": Monday,
	"tue": Tuesday, "tuesday": Tuesday,
	"wed": Wednesday, "wednesday": Wednesday,
	"thu": Thursday, "thursday": Thursday,
	"fri": Friday, "friday": Friday,
	"sat": Saturday, "saturday": Saturday,
	"sun": Sunday, "sunday": Sunday,
}

// ParseDayList reads user input such as "daily" or "Mon, wed; FRI".
// Tokens are case-insensitive, separated by commas or semicolons, and
// duplicates collapse. A single unknown token rejects the whole list.
func ParseDayList(s string) (Recurrence, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == dailyToken {
		return Daily(), nil
	}

	var set WeekdaySet
	for _, part := range strings.Split(strings.ReplaceAll(s, ";", ","), ",") {
		token := strings.TrimSpace(part)
		if token == "" {
			continue
		}
		day, ok := dayTokens[token]
		if !ok {
			return Recurrence{}, fmt.Errorf("%w: unknown day %q", ErrInvalidDays, token)
		}
		set = set.With(day)
	}
	if set.Empty() {
		return Recurrence{}, fmt.Errorf("%w: no days given", ErrInvalidDays)
	}
	return WeeklyOn(set)
}

// Describe renders a recurrence for people: "daily" or weekday names.
func Describe(r Recurrence) string {
	if r.Kind() == KindDaily {
		return dailyToken
	}
	return r.Days().Names()
}
