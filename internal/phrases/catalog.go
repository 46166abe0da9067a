// Package phrases holds the user-facing text catalog and the strategies that
// choose a notification phrase for a reminder.
package phrases

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"strings"

	"github.com/pathakanu/pillMemo/internal/recurrence"
	"gopkg.in/yaml.v3"
)

// LabelPlaceholder is replaced by the reminder label in reminder phrases.
const LabelPlaceholder = "{pill}"

// Text keys.
const (
	TextStart          = "start"
	TextHelp           = "help"
	TextCancelled      = "cancelled"
	TextUnexpected     = "unexpected_input"
	TextStoreError     = "store_error"
	TextAddName        = "add_name"
	TextEmptyLabel     = "empty_label"
	TextAddTime        = "add_time"
	TextInvalidTime    = "invalid_time"
	TextScheduleType   = "add_schedule_type"
	TextDaysCustom     = "add_days_custom"
	TextDaysEmpty      = "choose_days_warn_empty"
	TextSaved          = "saved"
	TextListEmpty      = "list_empty"
	TextListHeader     = "list_header"
	TextListLine       = "list_line"
	TextDeleteAskID    = "delete_ask_id"
	TextNeedNumericID  = "need_numeric_id"
	TextNotFound       = "pill_not_found"
	TextDeleted        = "deleted"
	TextEditAskID      = "edit_ask_id"
	TextEditCurrent    = "edit_current"
	TextEditAskDays    = "edit_ask_days"
	TextInvalidDays    = "invalid_days"
	TextUpdated        = "updated"
	TextHistoryEmpty   = "history_empty"
	TextHistoryHeader  = "history_header"
	TextHistoryLine    = "history_line"
	TextTakenOK        = "taken_ok"
	TextSnoozeOK       = "snooze_ok"
	TextRepeatSuffix   = "repeat_suffix"
	TextReminderGone   = "reminder_gone"
	TextDailyLabel     = "daily_label"
	TextDaySelectedOn  = "day_selected"
	TextDaySelectedOff = "day_unselected"
)

// Button keys.
const (
	ButtonAddPill        = "add_pill"
	ButtonMyPills        = "my_pills"
	ButtonEditPill       = "edit_pill"
	ButtonDeletePill     = "delete_pill"
	ButtonHistory        = "history"
	ButtonBackToMain     = "back_to_main"
	ButtonScheduleDaily  = "schedule_daily"
	ButtonScheduleCustom = "schedule_custom"
	ButtonDaysConfirm    = "days_confirm"
	ButtonPillTaken      = "pill_taken"
	ButtonRemindLater    = "remind_later"
)

// Catalog is the text table loaded from YAML. Missing keys fall back to the
// built-in English defaults.
type Catalog struct {
	Buttons         map[string]string `yaml:"buttons"`
	Texts           map[string]string `yaml:"texts"`
	ReminderPhrases []string          `yaml:"reminder_phrases"`
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return &Catalog{
		Buttons:         maps.Clone(defaultButtons),
		Texts:           maps.Clone(defaultTexts),
		ReminderPhrases: append([]string(nil), defaultPhrases...),
	}
}

// Load reads a YAML catalog from path and merges it over the defaults.
// An empty path yields the defaults.
func Load(path string) (*Catalog, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read phrases file: %w", err)
	}
	var override Catalog
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse phrases file: %w", err)
	}
	if err := c.merge(override); err != nil {
		return nil, fmt.Errorf("phrases file %s: %w", path, err)
	}
	return c, nil
}

func (c *Catalog) merge(o Catalog) error {
	maps.Copy(c.Buttons, o.Buttons)
	maps.Copy(c.Texts, o.Texts)
	if len(o.ReminderPhrases) > 0 {
		for i, p := range o.ReminderPhrases {
			if !strings.Contains(p, LabelPlaceholder) {
				return fmt.Errorf("reminder_phrases[%d] lacks %s", i, LabelPlaceholder)
			}
		}
		c.ReminderPhrases = o.ReminderPhrases
	}
	if len(c.ReminderPhrases) == 0 {
		return errors.New("no reminder phrases")
	}
	return nil
}

// Text renders a text entry, substituting {name} placeholders from kv pairs.
func (c *Catalog) Text(key string, kv ...string) string {
	return render(lookup(c.Texts, defaultTexts, key), kv)
}

// Button renders a button label.
func (c *Catalog) Button(key string, kv ...string) string {
	return render(lookup(c.Buttons, defaultButtons, key), kv)
}

// Days renders a recurrence with the catalog's label for daily schedules.
func (c *Catalog) Days(r recurrence.Recurrence) string {
	if r.Kind() == recurrence.KindDaily {
		return c.Text(TextDailyLabel)
	}
	return r.Days().Names()
}

// IsButton reports whether text is exactly the label of button key.
func (c *Catalog) IsButton(text, key string) bool {
	return strings.TrimSpace(text) == c.Button(key)
}

func lookup(m, fallback map[string]string, key string) string {
	if v, ok := m[key]; ok {
		return v
	}
	if v, ok := fallback[key]; ok {
		return v
	}
	return key
}

func render(tmpl string, kv []string) string {
	if len(kv) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		pairs = append(pairs, "{"+kv[i]+"}", kv[i+1])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

var defaultButtons = map[string]string{
	ButtonAddPill:        "➕ Add pill",
	ButtonMyPills:        "📋 My pills",
	ButtonEditPill:       "✏️ Edit pill",
	ButtonDeletePill:     "🗑 Delete pill",
	ButtonHistory:        "📜 History",
	ButtonBackToMain:     "⬅️ Back to menu",
	ButtonScheduleDaily:  "Every day",
	ButtonScheduleCustom: "Choose days",
	ButtonDaysConfirm:    "✅ Done",
	ButtonPillTaken:      "✅ Taken",
	ButtonRemindLater:    "⏰ In {minutes} min",
}

var defaultTexts = map[string]string{
	TextStart:          "Hi! I will remind you to take your pills. Use the menu below.",
	TextHelp:           "/add – new reminder\n/list – your reminders\n/edit – change time and days\n/delete – remove a reminder\n/history – recent activity\n/cancel – stop the current step",
	TextCancelled:      "Cancelled.",
	TextUnexpected:     "That does not fit the current step. Finish it or send /cancel.",
	TextStoreError:     "Something went wrong while saving. Please try again.",
	TextAddName:        "What is the name of the pill?",
	TextEmptyLabel:     "The name cannot be empty. What is the name of the pill?",
	TextAddTime:        "At what time? Send HH:MM, for example 08:30.",
	TextInvalidTime:    "Please send the time as HH:MM, for example 08:30.",
	TextScheduleType:   "Which days?",
	TextDaysCustom:     "Tap the days, then press Done.",
	TextDaysEmpty:      "Pick at least one day.",
	TextSaved:          "Saved! ✨\n\nPill: {pill}\nTime: {time}\nDays: {days}",
	TextListEmpty:      "You have no reminders yet.",
	TextListHeader:     "📋 Your pills:",
	TextListLine:       "ID: {id} — {pill} at {time} ({days})",
	TextDeleteAskID:    "Send the ID of the reminder to delete (see /list).",
	TextNeedNumericID:  "The ID must be a number.",
	TextNotFound:       "No reminder with that ID. Try another one or send /cancel.",
	TextDeleted:        "Deleted {pill} ✅",
	TextEditAskID:      "Send the ID of the reminder to edit (see /list).",
	TextEditCurrent:    "Editing {pill}. Current time: {time}.\n\nSend the new time as HH:MM.",
	TextEditAskDays:    "Send the days: \"daily\" or a list like \"mon, wed, fri\".",
	TextInvalidDays:    "I could not read those days. Send \"daily\" or a list like \"mon, wed, fri\".",
	TextUpdated:        "Updated ✅\n\nNew time: {time}\nNew days: {days}",
	TextHistoryEmpty:   "No history yet.",
	TextHistoryHeader:  "📜 Recent activity:",
	TextHistoryLine:    "{at} — {pill} ({action})",
	TextTakenOK:        "Noted, well done!",
	TextSnoozeOK:       "I will remind you again in {minutes} minutes.",
	TextRepeatSuffix:   " (repeat reminder) ⏰",
	TextReminderGone:   "That reminder no longer exists.",
	TextDailyLabel:     "every day",
	TextDaySelectedOn:  "✔️",
	TextDaySelectedOff: "✖️",
}

var defaultPhrases = []string{
	"Time to take {pill} 💊",
	"Don't forget your {pill} 💊",
	"Reminder: {pill} now 💊",
}
