package conversation

import "github.com/pathakanu/pillMemo/internal/recurrence"

// Event is one user input fed to the Machine. The set of events is closed.
type Event interface {
	eventName() string
}

// StartCreate begins the create flow.
type StartCreate struct{}

// StartEdit begins the edit flow.
type StartEdit struct{}

// StartDelete begins the delete flow.
type StartDelete struct{}

// Cancel discards any draft.
type Cancel struct{}

// Text is free-form user input.
type Text struct {
	Body string
}

// ChooseSchedule picks message.ScheduleDaily or message.ScheduleCustom.
type ChooseSchedule struct {
	Kind string
}

// ToggleDay flips one weekday in the selection.
type ToggleDay struct {
	Day recurrence.Weekday
}

// ConfirmDays commits the weekday selection.
type ConfirmDays struct{}

func (StartCreate) eventName() string    { return "start_create" }
func (StartEdit) eventName() string      { return "start_edit" }
func (StartDelete) eventName() string    { return "start_delete" }
func (Cancel) eventName() string         { return "cancel" }
func (Text) eventName() string           { return "text" }
func (ChooseSchedule) eventName() string { return "choose_schedule" }
func (ToggleDay) eventName() string      { return "toggle_day" }
func (ConfirmDays) eventName() string    { return "confirm_days" }
