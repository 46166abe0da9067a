package conversation

import "github.com/pathakanu/pillMemo/internal/recurrence"

// Step names where a user is in a flow.
type Step string

const (
	StepIdle                 Step = "idle"
	StepAwaitingLabel        Step = "awaiting_label"
	StepAwaitingTime         Step = "awaiting_time"
	StepAwaitingScheduleKind Step = "awaiting_schedule_kind"
	StepAwaitingWeekdays     Step = "awaiting_weekdays"
	StepEditAwaitingID       Step = "edit_awaiting_id"
	StepEditAwaitingTime     Step = "edit_awaiting_time"
	StepEditAwaitingDays     Step = "edit_awaiting_days"
	StepDeleteAwaitingID     Step = "delete_awaiting_id"
)

// draft is the per-step state. Each variant holds exactly the fields
// collected so far.
type draft interface {
	step() Step
}

type awaitingLabel struct{}

type awaitingTime struct {
	label string
}

type awaitingScheduleKind struct {
	label string
	clock recurrence.Clock
}

type awaitingWeekdays struct {
	label string
	clock recurrence.Clock
	days  recurrence.WeekdaySet
}

type editAwaitingID struct{}

type editAwaitingTime struct {
	id    uint
	label string
}

type editAwaitingDays struct {
	id    uint
	label string
	clock recurrence.Clock
}

type deleteAwaitingID struct{}

func (awaitingLabel) step() Step        { return StepAwaitingLabel }
func (awaitingTime) step() Step         { return StepAwaitingTime }
func (awaitingScheduleKind) step() Step { return StepAwaitingScheduleKind }
func (awaitingWeekdays) step() Step     { return StepAwaitingWeekdays }
func (editAwaitingID) step() Step       { return StepEditAwaitingID }
func (editAwaitingTime) step() Step     { return StepEditAwaitingTime }
func (editAwaitingDays) step() Step     { return StepEditAwaitingDays }
func (deleteAwaitingID) step() Step     { return StepDeleteAwaitingID }

func stepOf(d draft) Step {
	if d == nil {
		return StepIdle
	}
	return d.step()
}

// Flow-starting events and Cancel are accepted in every step.
var global = map[string]bool{
	StartCreate{}.eventName(): true,
	StartEdit{}.eventName():   true,
	StartDelete{}.eventName(): true,
	Cancel{}.eventName():      true,
}

// allowed lists the step-specific events.
var allowed = map[Step]map[string]bool{
	StepIdle:                 {},
	StepAwaitingLabel:        {Text{}.eventName(): true},
	StepAwaitingTime:         {Text{}.eventName(): true},
	StepAwaitingScheduleKind: {ChooseSchedule{}.eventName(): true},
	StepAwaitingWeekdays:     {ToggleDay{}.eventName(): true, ConfirmDays{}.eventName(): true},
	StepEditAwaitingID:       {Text{}.eventName(): true},
	StepEditAwaitingTime:     {Text{}.eventName(): true},
	StepEditAwaitingDays:     {Text{}.eventName(): true},
	StepDeleteAwaitingID:     {Text{}.eventName(): true},
}

// Accepts reports whether ev is legal in step.
func Accepts(step Step, ev Event) bool {
	name := ev.eventName()
	return global[name] || allowed[step][name]
}
