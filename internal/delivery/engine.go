// Package delivery decides which reminders fire on each minute tick, sends
// them, and handles the taken and snooze responses.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pathakanu/pillMemo/internal/message"
	"github.com/pathakanu/pillMemo/internal/metrics"
	"github.com/pathakanu/pillMemo/internal/model"
	"github.com/pathakanu/pillMemo/internal/phrases"
	"github.com/pathakanu/pillMemo/internal/recurrence"
	"github.com/pathakanu/pillMemo/internal/scheduler"
	"github.com/pathakanu/pillMemo/internal/store"
	"github.com/rs/zerolog"
)

// MaxSnoozeMinutes caps a single snooze at one day.
const MaxSnoozeMinutes = 24 * 60

// ErrInvalidSnooze is returned for a snooze length outside 1..MaxSnoozeMinutes.
var ErrInvalidSnooze = errors.New("snooze minutes out of range")

// Notifier delivers a message to a user. kb may be nil.
type Notifier interface {
	Send(ctx context.Context, userID, text string, kb *message.Keyboard) error
}

// Queue runs a function once at a later time.
type Queue interface {
	At(at time.Time, name string, fn scheduler.Func) string
}

// Config wires an Engine.
type Config struct {
	Store    store.Store
	Notifier Notifier
	Queue    Queue
	Picker   phrases.Picker
	Catalog  *phrases.Catalog
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger

	// SnoozeMinutes is offered on the snooze button of every notification.
	SnoozeMinutes int
	// Location is the zone "now" is evaluated in. Defaults to UTC.
	Location *time.Location
}

// Engine is the reminder delivery core.
type Engine struct {
	store    store.Store
	notifier Notifier
	queue    Queue
	picker   phrases.Picker
	catalog  *phrases.Catalog
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	snooze   int
	loc      *time.Location
}

// TickReport summarises one tick.
type TickReport struct {
	At         time.Time
	Candidates int
	Sent       int
	Skipped    int
	Failed     int
}

// New builds an Engine from cfg.
func New(cfg Config) *Engine {
	e := &Engine{
		store:    cfg.Store,
		notifier: cfg.Notifier,
		queue:    cfg.Queue,
		picker:   cfg.Picker,
		catalog:  cfg.Catalog,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		snooze:   cfg.SnoozeMinutes,
		loc:      cfg.Location,
	}
	if e.catalog == nil {
		e.catalog = phrases.Default()
	}
	if e.picker == nil {
		e.picker = phrases.NewRandomPicker(e.catalog.ReminderPhrases, nil)
	}
	if e.snooze <= 0 {
		e.snooze = 15
	}
	if e.loc == nil {
		e.loc = time.UTC
	}
	return e
}

// Tick sends every reminder due at now. A failed send leaves the reminder
// unmarked so it is retried on its next occurrence. Errors are logged, never
// returned.
func (e *Engine) Tick(ctx context.Context, now time.Time) TickReport {
	started := time.Now()
	defer func() { e.metrics.ObserveTick(time.Since(started)) }()

	now = now.In(e.loc)
	report := TickReport{At: now}
	clock := recurrence.ClockOf(now)

	candidates, err := e.store.RemindersDueAt(ctx, clock)
	if err != nil {
		e.logger.Error().Err(err).Str("time", clock).Msg("load due reminders")
		return report
	}
	report.Candidates = len(candidates)

	for _, reminder := range candidates {
		log := e.logger.With().Uint("reminder_id", reminder.ID).Str("user_id", reminder.UserID).Logger()

		reason := recurrence.InvalidRecord
		if sched, err := reminder.Schedule(); err == nil {
			reason = recurrence.Check(sched, now)
		} else {
			log.Warn().Err(err).Msg("stored recurrence is unreadable")
		}
		if reason != recurrence.Due {
			report.Skipped++
			e.metrics.ReminderSkipped(string(reason))
			log.Debug().Str("reason", string(reason)).Msg("reminder skipped")
			continue
		}

		text := e.picker.Pick(ctx, reminder.Label)
		if err := e.notifier.Send(ctx, reminder.UserID, text, e.Affordances(reminder.ID)); err != nil {
			report.Failed++
			e.metrics.DeliveryFailed()
			log.Error().Err(err).Msg("deliver reminder")
			continue
		}
		report.Sent++
		e.metrics.ReminderSent("regular")

		if err := e.store.MarkFiredToday(ctx, reminder.ID, recurrence.DateOf(now)); err != nil {
			log.Error().Err(err).Msg("mark reminder fired")
		}
		e.record(ctx, log, reminder.ID, now, model.ActionSent)
		log.Info().Msg("reminder sent")
	}

	if report.Candidates > 0 {
		e.logger.Info().
			Str("time", clock).
			Int("candidates", report.Candidates).
			Int("sent", report.Sent).
			Int("skipped", report.Skipped).
			Int("failed", report.Failed).
			Msg("tick finished")
	}
	return report
}

// Snooze records the snooze and schedules a repeat delivery minutes after
// now. It returns the queued job id.
func (e *Engine) Snooze(ctx context.Context, reminderID uint, minutes int, now time.Time) (string, error) {
	if minutes < 1 || minutes > MaxSnoozeMinutes {
		return "", fmt.Errorf("%w: %d", ErrInvalidSnooze, minutes)
	}
	if _, err := e.store.GetReminderByID(ctx, reminderID); err != nil {
		return "", err
	}
	if err := e.store.AppendHistory(ctx, reminderID, now, model.Snoozed(minutes)); err != nil {
		return "", fmt.Errorf("record snooze: %w", err)
	}
	e.metrics.HistoryAppended(model.Snoozed(minutes).Kind())

	fireAt := now.Add(time.Duration(minutes) * time.Minute)
	id := e.queue.At(fireAt, "snooze:"+strconv.FormatUint(uint64(reminderID), 10), func(ctx context.Context) {
		e.fireSnooze(ctx, reminderID, fireAt)
	})
	e.logger.Info().Uint("reminder_id", reminderID).Int("minutes", minutes).Str("job_id", id).Msg("reminder snoozed")
	return id, nil
}

// fireSnooze repeats a reminder without touching its dedup marker.
// A reminder deleted in the meantime is dropped silently.
func (e *Engine) fireSnooze(ctx context.Context, reminderID uint, at time.Time) {
	log := e.logger.With().Uint("reminder_id", reminderID).Logger()

	reminder, err := e.store.GetReminderByID(ctx, reminderID)
	if errors.Is(err, store.ErrNotFound) {
		log.Info().Msg("snoozed reminder no longer exists")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("load snoozed reminder")
		return
	}

	text := e.picker.Pick(ctx, reminder.Label) + e.catalog.Text(phrases.TextRepeatSuffix)
	if err := e.notifier.Send(ctx, reminder.UserID, text, e.Affordances(reminder.ID)); err != nil {
		e.metrics.DeliveryFailed()
		log.Error().Err(err).Msg("deliver snoozed reminder")
		return
	}
	e.metrics.ReminderSent("snooze")
	e.record(ctx, log, reminder.ID, at.In(e.loc), model.ActionSent)
}

// MarkTaken records that the user took the medication.
func (e *Engine) MarkTaken(ctx context.Context, reminderID uint, now time.Time) error {
	if err := e.store.AppendHistory(ctx, reminderID, now, model.ActionTaken); err != nil {
		return fmt.Errorf("record taken: %w", err)
	}
	e.metrics.HistoryAppended(model.ActionTaken.Kind())
	return nil
}

// SnoozeMinutes is the length offered on notification buttons.
func (e *Engine) SnoozeMinutes() int {
	return e.snooze
}

// Affordances is the keyboard attached to every reminder notification.
func (e *Engine) Affordances(reminderID uint) *message.Keyboard {
	return message.NewKeyboard(message.Row(
		message.Button{
			Text: e.catalog.Button(phrases.ButtonPillTaken),
			Data: message.TakenPayload(reminderID).Encode(),
		},
		message.Button{
			Text: e.catalog.Button(phrases.ButtonRemindLater, "minutes", strconv.Itoa(e.snooze)),
			Data: message.SnoozePayload(reminderID, e.snooze).Encode(),
		},
	))
}

func (e *Engine) record(ctx context.Context, log zerolog.Logger, reminderID uint, at time.Time, action model.Action) {
	if err := e.store.AppendHistory(ctx, reminderID, at, action); err != nil {
		log.Error().Err(err).Str("action", string(action)).Msg("append history")
		return
	}
	e.metrics.HistoryAppended(action.Kind())
}
