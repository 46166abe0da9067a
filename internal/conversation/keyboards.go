package conversation

import (
	"github.com/pathakanu/pillMemo/internal/message"
	"github.com/pathakanu/pillMemo/internal/phrases"
	"github.com/pathakanu/pillMemo/internal/recurrence"
)

// MainMenu is the persistent keyboard shown when no flow is active.
func MainMenu(c *phrases.Catalog) *message.Keyboard {
	btn := func(key string) message.Button { return message.Button{Text: c.Button(key)} }
	return message.NewMenu(
		message.Row(btn(phrases.ButtonAddPill), btn(phrases.ButtonMyPills)),
		message.Row(btn(phrases.ButtonEditPill), btn(phrases.ButtonDeletePill)),
		message.Row(btn(phrases.ButtonHistory)),
	)
}

// CancelMenu offers a way back while a flow is active.
func CancelMenu(c *phrases.Catalog) *message.Keyboard {
	return message.NewMenu(message.Row(message.Button{Text: c.Button(phrases.ButtonBackToMain)}))
}

// ScheduleKeyboard asks for daily or custom days.
func ScheduleKeyboard(c *phrases.Catalog) *message.Keyboard {
	return message.NewKeyboard(message.Row(
		message.Button{Text: c.Button(phrases.ButtonScheduleDaily), Data: message.SchedulePayload(message.ScheduleDaily).Encode()},
		message.Button{Text: c.Button(phrases.ButtonScheduleCustom), Data: message.SchedulePayload(message.ScheduleCustom).Encode()},
	))
}

// DaysKeyboard shows the seven weekdays two per row with their selection
// mark, followed by the confirm button.
func DaysKeyboard(c *phrases.Catalog, selected recurrence.WeekdaySet) *message.Keyboard {
	var rows [][]message.Button
	for i := recurrence.Monday; i <= recurrence.Sunday; i += 2 {
		var row []message.Button
		for _, d := range []recurrence.Weekday{i, i + 1} {
			if !d.Valid() {
				continue
			}
			mark := c.Text(phrases.TextDaySelectedOff)
			if selected.Has(d) {
				mark = c.Text(phrases.TextDaySelectedOn)
			}
			row = append(row, message.Button{
				Text: d.Short() + " " + mark,
				Data: message.DayTogglePayload(int(d)).Encode(),
			})
		}
		rows = append(rows, row)
	}
	rows = append(rows, message.Row(message.Button{
		Text: c.Button(phrases.ButtonDaysConfirm),
		Data: message.DaysConfirmPayload().Encode(),
	}))
	return message.NewKeyboard(rows...)
}
