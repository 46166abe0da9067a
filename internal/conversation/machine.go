// Package conversation drives the multi-step create, edit and delete flows.
// Drafts live in memory only; nothing reaches the store before a flow's
// final step.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pathakanu/pillMemo/internal/message"
	"github.com/pathakanu/pillMemo/internal/metrics"
	"github.com/pathakanu/pillMemo/internal/phrases"
	"github.com/pathakanu/pillMemo/internal/recurrence"
	"github.com/pathakanu/pillMemo/internal/store"
	"github.com/rs/zerolog"
)

// ErrUnexpectedEvent is returned when an event is not legal in the user's
// current step. The draft is left untouched.
var ErrUnexpectedEvent = errors.New("event not accepted in current step")

// Reply is what the user should see after an event.
type Reply struct {
	Text     string
	Keyboard *message.Keyboard
	// UpdateKeyboard asks the transport to redraw the keyboard of the
	// message the event came from instead of sending Text.
	UpdateKeyboard bool
	// Done is set when the flow ended, by commit or cancel.
	Done bool
}

// Machine holds one draft per user.
type Machine struct {
	store   store.Store
	catalog *phrases.Catalog
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	mu    sync.Mutex
	draft draft
	refs  int // guarded by Machine.mu
}

// withSession runs fn holding the user's session lock. Sessions without a
// draft are dropped once no caller holds them.
func (m *Machine) withSession(userID string, fn func(s *session)) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	if !ok {
		s = &session{}
		m.sessions[userID] = s
	}
	s.refs++
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		s.refs--
		if s.refs == 0 && s.draft == nil {
			delete(m.sessions, userID)
		}
		m.mu.Unlock()
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

// Step returns the user's current step.
func (m *Machine) Step(userID string) Step {
	var step Step
	m.withSession(userID, func(s *session) { step = stepOf(s.draft) })
	return step
}

// Reset drops the user's draft, if any.
func (m *Machine) Reset(userID string) {
	m.withSession(userID, func(s *session) { s.draft = nil })
}

// ActiveDrafts counts users in the middle of a flow.
func (m *Machine) ActiveDrafts() int {
	m.mu.Lock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	n := 0
	for _, s := range sessions {
		s.mu.Lock()
		if s.draft != nil {
			n++
		}
		s.mu.Unlock()
	}
	return n
}

// Handle applies ev to the user's draft. Events for one user are
// serialized. Validation failures produce a re-prompt with a nil error;
// store failures return the error and keep the draft.
func (m *Machine) Handle(ctx context.Context, userID string, ev Event) (reply Reply, err error) {
	m.withSession(userID, func(s *session) {
		reply, err = m.handleLocked(ctx, userID, s, ev)
	})
	return reply, err
}

func (m *Machine) handleLocked(ctx context.Context, userID string, s *session, ev Event) (Reply, error) {
	step := stepOf(s.draft)
	if !Accepts(step, ev) {
		m.metrics.ConversationEvent(string(step), "rejected")
		return Reply{Text: m.catalog.Text(phrases.TextUnexpected)},
			fmt.Errorf("%w: %s in %s", ErrUnexpectedEvent, ev.eventName(), step)
	}

	next, reply, err := m.apply(ctx, userID, s.draft, ev)
	if err != nil {
		m.metrics.ConversationEvent(string(step), "error")
		m.logger.Error().Err(err).Str("user_id", userID).Str("step", string(step)).Msg("conversation step failed")
		return reply, err
	}
	s.draft = next

	outcome := "advanced"
	switch {
	case reply.Done && next == nil:
		outcome = "finished"
	case stepOf(next) == step:
		outcome = "stayed"
	}
	m.metrics.ConversationEvent(string(step), outcome)
	m.logger.Debug().Str("user_id", userID).Str("from", string(step)).Str("to", string(stepOf(next))).Msg("conversation event")
	return reply, nil
}

func (m *Machine) apply(ctx context.Context, userID string, d draft, ev Event) (draft, Reply, error) {
	c := m.catalog
	switch ev := ev.(type) {
	case StartCreate:
		return awaitingLabel{}, Reply{Text: c.Text(phrases.TextAddName), Keyboard: CancelMenu(c)}, nil
	case StartEdit:
		return editAwaitingID{}, Reply{Text: c.Text(phrases.TextEditAskID), Keyboard: CancelMenu(c)}, nil
	case StartDelete:
		return deleteAwaitingID{}, Reply{Text: c.Text(phrases.TextDeleteAskID), Keyboard: CancelMenu(c)}, nil
	case Cancel:
		return nil, Reply{Text: c.Text(phrases.TextCancelled), Keyboard: MainMenu(c), Done: true}, nil
	case Text:
		return m.text(ctx, userID, d, strings.TrimSpace(ev.Body))
	case ChooseSchedule:
		return m.chooseSchedule(ctx, userID, d.(awaitingScheduleKind), ev.Kind)
	case ToggleDay:
		w := d.(awaitingWeekdays)
		if !ev.Day.Valid() {
			return d, Reply{Text: c.Text(phrases.TextUnexpected)}, nil
		}
		w.days = w.days.Toggle(ev.Day)
		return w, Reply{Text: c.Text(phrases.TextDaysCustom), Keyboard: DaysKeyboard(c, w.days), UpdateKeyboard: true}, nil
	case ConfirmDays:
		w := d.(awaitingWeekdays)
		rec, err := recurrence.WeeklyOn(w.days)
		if err != nil {
			return d, Reply{Text: c.Text(phrases.TextDaysEmpty), Keyboard: DaysKeyboard(c, w.days)}, nil
		}
		return m.create(ctx, userID, d, w.label, w.clock, rec)
	}
	return d, Reply{}, fmt.Errorf("%w: %T", ErrUnexpectedEvent, ev)
}

func (m *Machine) text(ctx context.Context, userID string, d draft, body string) (draft, Reply, error) {
	c := m.catalog
	switch d := d.(type) {
	case awaitingLabel:
		if body == "" {
			return d, Reply{Text: c.Text(phrases.TextEmptyLabel)}, nil
		}
		return awaitingTime{label: body}, Reply{Text: c.Text(phrases.TextAddTime)}, nil

	case awaitingTime:
		clock, err := recurrence.ParseClock(body)
		if err != nil {
			return d, Reply{Text: c.Text(phrases.TextInvalidTime)}, nil
		}
		return awaitingScheduleKind{label: d.label, clock: clock},
			Reply{Text: c.Text(phrases.TextScheduleType), Keyboard: ScheduleKeyboard(c)}, nil

	case editAwaitingID:
		id, ok := parseID(body)
		if !ok {
			return d, Reply{Text: c.Text(phrases.TextNeedNumericID)}, nil
		}
		reminder, err := m.store.GetReminder(ctx, userID, id)
		if errors.Is(err, store.ErrNotFound) {
			return d, Reply{Text: c.Text(phrases.TextNotFound)}, nil
		}
		if err != nil {
			return d, Reply{Text: c.Text(phrases.TextStoreError)}, err
		}
		return editAwaitingTime{id: reminder.ID, label: reminder.Label},
			Reply{Text: c.Text(phrases.TextEditCurrent, "pill", reminder.Label, "time", reminder.TimeOfDay)}, nil

	case editAwaitingTime:
		clock, err := recurrence.ParseClock(body)
		if err != nil {
			return d, Reply{Text: c.Text(phrases.TextInvalidTime)}, nil
		}
		return editAwaitingDays{id: d.id, label: d.label, clock: clock}, Reply{Text: c.Text(phrases.TextEditAskDays)}, nil

	case editAwaitingDays:
		rec, err := recurrence.ParseDayList(body)
		if err != nil {
			return d, Reply{Text: c.Text(phrases.TextInvalidDays)}, nil
		}
		err = m.store.UpdateReminder(ctx, d.id, d.clock, rec)
		if errors.Is(err, store.ErrNotFound) {
			return nil, Reply{Text: c.Text(phrases.TextReminderGone), Keyboard: MainMenu(c), Done: true}, nil
		}
		if err != nil {
			return d, Reply{Text: c.Text(phrases.TextStoreError)}, err
		}
		m.logger.Info().Str("user_id", userID).Uint("reminder_id", d.id).Msg("reminder updated")
		return nil, Reply{
			Text:     c.Text(phrases.TextUpdated, "time", d.clock.String(), "days", c.Days(rec)),
			Keyboard: MainMenu(c),
			Done:     true,
		}, nil

	case deleteAwaitingID:
		id, ok := parseID(body)
		if !ok {
			return d, Reply{Text: c.Text(phrases.TextNeedNumericID)}, nil
		}
		label, err := m.store.DeleteReminder(ctx, userID, id)
		if errors.Is(err, store.ErrNotFound) {
			return d, Reply{Text: c.Text(phrases.TextNotFound)}, nil
		}
		if err != nil {
			return d, Reply{Text: c.Text(phrases.TextStoreError)}, err
		}
		m.logger.Info().Str("user_id", userID).Uint("reminder_id", id).Msg("reminder deleted")
		return nil, Reply{Text: c.Text(phrases.TextDeleted, "pill", label), Keyboard: MainMenu(c), Done: true}, nil
	}
	return d, Reply{Text: c.Text(phrases.TextUnexpected)}, fmt.Errorf("%w: text in %s", ErrUnexpectedEvent, stepOf(d))
}

func (m *Machine) chooseSchedule(ctx context.Context, userID string, d awaitingScheduleKind, kind string) (draft, Reply, error) {
	c := m.catalog
	switch kind {
	case message.ScheduleDaily:
		return m.create(ctx, userID, d, d.label, d.clock, recurrence.Daily())
	case message.ScheduleCustom:
		return awaitingWeekdays{label: d.label, clock: d.clock},
			Reply{Text: c.Text(phrases.TextDaysCustom), Keyboard: DaysKeyboard(c, 0)}, nil
	}
	return d, Reply{Text: c.Text(phrases.TextScheduleType), Keyboard: ScheduleKeyboard(c)}, nil
}

// create commits a new reminder. On failure the current draft is kept.
func (m *Machine) create(ctx context.Context, userID string, current draft, label string, clock recurrence.Clock, rec recurrence.Recurrence) (draft, Reply, error) {
	c := m.catalog
	id, err := m.store.CreateReminder(ctx, userID, label, clock, rec)
	if err != nil {
		return current, Reply{Text: c.Text(phrases.TextStoreError)}, err
	}
	m.logger.Info().Str("user_id", userID).Uint("reminder_id", id).Str("time", clock.String()).Str("days", rec.Encode()).Msg("reminder created")
	return nil, Reply{
		Text:     c.Text(phrases.TextSaved, "pill", label, "time", clock.String(), "days", c.Days(rec)),
		Keyboard: MainMenu(c),
		Done:     true,
	}, nil
}

func parseID(s string) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
