package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pathakanu/pillMemo/internal/conversation"
	"github.com/pathakanu/pillMemo/internal/delivery"
	"github.com/pathakanu/pillMemo/internal/message"
	"github.com/pathakanu/pillMemo/internal/model"
	"github.com/pathakanu/pillMemo/internal/phrases"
	"github.com/pathakanu/pillMemo/internal/recurrence"
	"github.com/pathakanu/pillMemo/internal/store"
)

// OnUserText handles a text message: commands and menu buttons first, then
// the active conversation step.
func (b *Bot) OnUserText(ctx context.Context, userID, text string) error {
	text = strings.TrimSpace(text)
	t, err := b.transportFor(userID)
	if err != nil {
		return err
	}
	// Steps that wait for typed input read numeric replies as text.
	if r, ok := t.(ReplyResolver); ok && !conversation.Accepts(b.machine.Step(userID), conversation.Text{}) {
		if btn, ok := r.ResolveReply(userID, text); ok {
			if btn.Data != "" {
				return b.OnUserCallback(ctx, message.Callback{UserID: userID, Data: btn.Data})
			}
			text = btn.Text
		}
	}

	c := b.catalog
	switch {
	case isCommand(text, "start"):
		b.machine.Reset(userID)
		return b.Send(ctx, userID, c.Text(phrases.TextStart), conversation.MainMenu(c))
	case isCommand(text, "help"):
		return b.Send(ctx, userID, c.Text(phrases.TextHelp), nil)
	case isCommand(text, "add") || c.IsButton(text, phrases.ButtonAddPill):
		return b.handle(ctx, userID, conversation.StartCreate{}, nil)
	case isCommand(text, "edit") || c.IsButton(text, phrases.ButtonEditPill):
		return b.handle(ctx, userID, conversation.StartEdit{}, nil)
	case isCommand(text, "delete") || c.IsButton(text, phrases.ButtonDeletePill):
		return b.handle(ctx, userID, conversation.StartDelete{}, nil)
	case isCommand(text, "cancel") || c.IsButton(text, phrases.ButtonBackToMain):
		return b.handle(ctx, userID, conversation.Cancel{}, nil)
	case isCommand(text, "list") || c.IsButton(text, phrases.ButtonMyPills):
		return b.sendList(ctx, userID)
	case isCommand(text, "history") || c.IsButton(text, phrases.ButtonHistory):
		return b.sendHistory(ctx, userID)
	}

	if b.machine.Step(userID) == conversation.StepIdle {
		return b.Send(ctx, userID, c.Text(phrases.TextHelp), conversation.MainMenu(c))
	}
	return b.handle(ctx, userID, conversation.Text{Body: text}, nil)
}

// OnUserCallback handles a button tap.
func (b *Bot) OnUserCallback(ctx context.Context, cb message.Callback) error {
	t, err := b.transportFor(cb.UserID)
	if err != nil {
		return err
	}
	c := b.catalog

	p, err := message.ParsePayload(cb.Data)
	if err != nil {
		b.logger.Warn().Err(err).Str("user_id", cb.UserID).Str("data", cb.Data).Msg("ignoring callback")
		return t.Answer(ctx, cb, c.Text(phrases.TextUnexpected), true)
	}

	switch p.Kind {
	case message.PayloadTaken, message.PayloadSnooze:
		return b.respond(ctx, t, cb, p)
	case message.PayloadSchedule:
		b.answer(ctx, t, cb, "")
		b.clearKeyboard(ctx, t, cb)
		return b.handle(ctx, cb.UserID, conversation.ChooseSchedule{Kind: p.Schedule}, &cb)
	case message.PayloadDayToggle:
		b.answer(ctx, t, cb, "")
		return b.handle(ctx, cb.UserID, conversation.ToggleDay{Day: recurrence.Weekday(p.Day)}, &cb)
	case message.PayloadDaysConfirm:
		b.answer(ctx, t, cb, "")
		if err := b.handle(ctx, cb.UserID, conversation.ConfirmDays{}, &cb); err != nil {
			return err
		}
		if b.machine.Step(cb.UserID) == conversation.StepIdle {
			b.clearKeyboard(ctx, t, cb)
		}
		return nil
	}
	return t.Answer(ctx, cb, c.Text(phrases.TextUnexpected), true)
}

// respond handles the taken and snooze affordances of a notification.
func (b *Bot) respond(ctx context.Context, t Transport, cb message.Callback, p message.Payload) error {
	c := b.catalog
	if _, err := b.store.GetReminder(ctx, cb.UserID, p.ReminderID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			b.clearKeyboard(ctx, t, cb)
			return t.Answer(ctx, cb, c.Text(phrases.TextReminderGone), true)
		}
		return err
	}

	var ack string
	if p.Kind == message.PayloadTaken {
		if err := b.engine.MarkTaken(ctx, p.ReminderID, b.now()); err != nil {
			_ = t.Answer(ctx, cb, c.Text(phrases.TextStoreError), true)
			return err
		}
		ack = c.Text(phrases.TextTakenOK)
	} else {
		if _, err := b.engine.Snooze(ctx, p.ReminderID, p.Minutes, b.now()); err != nil {
			if errors.Is(err, delivery.ErrInvalidSnooze) {
				return t.Answer(ctx, cb, c.Text(phrases.TextUnexpected), true)
			}
			_ = t.Answer(ctx, cb, c.Text(phrases.TextStoreError), true)
			return err
		}
		ack = c.Text(phrases.TextSnoozeOK, "minutes", strconv.Itoa(p.Minutes))
	}

	b.clearKeyboard(ctx, t, cb)
	return t.Answer(ctx, cb, ack, false)
}

// handle feeds the state machine and delivers its reply. cb is the tap that
// produced ev, if any.
func (b *Bot) handle(ctx context.Context, userID string, ev conversation.Event, cb *message.Callback) error {
	reply, err := b.machine.Handle(ctx, userID, ev)
	if errors.Is(err, conversation.ErrUnexpectedEvent) {
		b.logger.Debug().Err(err).Str("user_id", userID).Msg("unexpected conversation event")
		return b.Send(ctx, userID, reply.Text, nil)
	}
	if err != nil {
		if reply.Text != "" {
			if sendErr := b.Send(ctx, userID, reply.Text, nil); sendErr != nil {
				b.logger.Error().Err(sendErr).Str("user_id", userID).Msg("send error reply")
			}
		}
		return err
	}

	if reply.UpdateKeyboard && cb != nil && cb.MessageRef != "" {
		t, err := b.transportFor(userID)
		if err != nil {
			return err
		}
		return t.EditKeyboard(ctx, userID, cb.MessageRef, reply.Keyboard)
	}
	return b.Send(ctx, userID, reply.Text, reply.Keyboard)
}

func (b *Bot) sendList(ctx context.Context, userID string) error {
	c := b.catalog
	reminders, err := b.store.ListReminders(ctx, userID)
	if err != nil {
		return err
	}
	if len(reminders) == 0 {
		return b.Send(ctx, userID, c.Text(phrases.TextListEmpty), nil)
	}

	var sb strings.Builder
	sb.WriteString(c.Text(phrases.TextListHeader))
	for _, r := range reminders {
		sb.WriteString("\n")
		sb.WriteString(c.Text(phrases.TextListLine,
			"id", strconv.FormatUint(uint64(r.ID), 10),
			"pill", r.Label,
			"time", r.TimeOfDay,
			"days", b.daysLabel(r),
		))
	}
	return b.Send(ctx, userID, sb.String(), nil)
}

func (b *Bot) sendHistory(ctx context.Context, userID string) error {
	c := b.catalog
	records, err := b.store.RecentHistory(ctx, userID, b.cfg.HistoryLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return b.Send(ctx, userID, c.Text(phrases.TextHistoryEmpty), nil)
	}

	loc := b.cfg.Location()
	var sb strings.Builder
	sb.WriteString(c.Text(phrases.TextHistoryHeader))
	for _, r := range records {
		sb.WriteString("\n")
		sb.WriteString(c.Text(phrases.TextHistoryLine,
			"at", r.At.In(loc).Format("2006-01-02 15:04"),
			"pill", r.Label,
			"action", actionLabel(r.Action),
		))
	}
	return b.Send(ctx, userID, sb.String(), nil)
}

func (b *Bot) daysLabel(r model.Reminder) string {
	rec, err := r.Recurrence()
	if err != nil {
		return r.DaysLabel()
	}
	return b.catalog.Days(rec)
}

func (b *Bot) answer(ctx context.Context, t Transport, cb message.Callback, text string) {
	if err := t.Answer(ctx, cb, text, false); err != nil {
		b.logger.Warn().Err(err).Str("user_id", cb.UserID).Msg("answer callback")
	}
}

func (b *Bot) clearKeyboard(ctx context.Context, t Transport, cb message.Callback) {
	if cb.MessageRef == "" {
		return
	}
	if err := t.EditKeyboard(ctx, cb.UserID, cb.MessageRef, nil); err != nil {
		b.logger.Warn().Err(err).Str("user_id", cb.UserID).Msg("clear keyboard")
	}
}

func actionLabel(a model.Action) string {
	if minutes, ok := a.SnoozeMinutes(); ok {
		return fmt.Sprintf("snoozed %d min", minutes)
	}
	return string(a)
}

// isCommand matches "/name", "/name@botname" and "/name args".
func isCommand(text, name string) bool {
	cmd, ok := strings.CutPrefix(text, "/")
	if !ok {
		return false
	}
	cmd, _, _ = strings.Cut(cmd, " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.EqualFold(cmd, name)
}
