package message

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadPayload is returned for callback data this service did not produce.
var ErrBadPayload = errors.New("unrecognised callback payload")

// PayloadKind names what a button does.
type PayloadKind string

const (
	PayloadTaken       PayloadKind = "taken"
	PayloadSnooze      PayloadKind = "snooze"
	PayloadSchedule    PayloadKind = "schedule"
	PayloadDayToggle   PayloadKind = "daytoggle"
	PayloadDaysConfirm PayloadKind = "days_confirm"
)

// Schedule choices carried by PayloadSchedule.
const (
	ScheduleDaily  = "daily"
	ScheduleCustom = "custom"
)

// Payload is the decoded form of a button's callback data.
type Payload struct {
	Kind       PayloadKind
	ReminderID uint
	Minutes    int
	Schedule   string
	Day        int
}

// TakenPayload marks a reminder as taken.
func TakenPayload(reminderID uint) Payload {
	return Payload{Kind: PayloadTaken, ReminderID: reminderID}
}

// SnoozePayload defers a reminder by minutes.
func SnoozePayload(reminderID uint, minutes int) Payload {
	return Payload{Kind: PayloadSnooze, ReminderID: reminderID, Minutes: minutes}
}

// SchedulePayload picks daily or custom days in the create flow.
func SchedulePayload(choice string) Payload {
	return Payload{Kind: PayloadSchedule, Schedule: choice}
}

// DayTogglePayload flips one weekday in the create flow.
func DayTogglePayload(day int) Payload {
	return Payload{Kind: PayloadDayToggle, Day: day}
}

// DaysConfirmPayload confirms the weekday selection.
func DaysConfirmPayload() Payload {
	return Payload{Kind: PayloadDaysConfirm}
}

// Encode renders the payload as callback data, e.g. "snooze:5:15".
func (p Payload) Encode() string {
	switch p.Kind {
	case PayloadTaken:
		return fmt.Sprintf("%s:%d", p.Kind, p.ReminderID)
	case PayloadSnooze:
		return fmt.Sprintf("%s:%d:%d", p.Kind, p.ReminderID, p.Minutes)
	case PayloadSchedule:
		return fmt.Sprintf("%s:%s", p.Kind, p.Schedule)
	case PayloadDayToggle:
		return fmt.Sprintf("%s:%d", p.Kind, p.Day)
	default:
		return string(p.Kind)
	}
}

// ParsePayload decodes callback data produced by Encode.
func ParsePayload(data string) (Payload, error) {
	parts := strings.Split(strings.TrimSpace(data), ":")
	kind := PayloadKind(parts[0])
	args := parts[1:]

	bad := func() (Payload, error) {
		return Payload{}, fmt.Errorf("%w: %q", ErrBadPayload, data)
	}

	switch kind {
	case PayloadTaken:
		if len(args) != 1 {
			return bad()
		}
		id, err := parseID(args[0])
		if err != nil {
			return bad()
		}
		return TakenPayload(id), nil
	case PayloadSnooze:
		if len(args) != 2 {
			return bad()
		}
		id, err := parseID(args[0])
		if err != nil {
			return bad()
		}
		minutes, err := strconv.Atoi(args[1])
		if err != nil || minutes <= 0 {
			return bad()
		}
		return SnoozePayload(id, minutes), nil
	case PayloadSchedule:
		if len(args) != 1 || (args[0] != ScheduleDaily && args[0] != ScheduleCustom) {
			return bad()
		}
		return SchedulePayload(args[0]), nil
	case PayloadDayToggle:
		if len(args) != 1 {
			return bad()
		}
		day, err := strconv.Atoi(args[0])
		if err != nil || day < 0 || day > 6 {
			return bad()
		}
		return DayTogglePayload(day), nil
	case PayloadDaysConfirm:
		if len(args) != 0 {
			return bad()
		}
		return DaysConfirmPayload(), nil
	default:
		return bad()
	}
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrBadPayload
	}
	return uint(id), nil
}
