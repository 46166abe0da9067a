// Package bot is the host around the reminder core: it routes user text and
// button taps from every chat transport, owns the scheduler lifecycle and
// serves the HTTP endpoints.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pathakanu/pillMemo/internal/config"
	"github.com/pathakanu/pillMemo/internal/conversation"
	"github.com/pathakanu/pillMemo/internal/delivery"
	"github.com/pathakanu/pillMemo/internal/logger"
	"github.com/pathakanu/pillMemo/internal/message"
	"github.com/pathakanu/pillMemo/internal/metrics"
	"github.com/pathakanu/pillMemo/internal/phrases"
	"github.com/pathakanu/pillMemo/internal/scheduler"
	"github.com/pathakanu/pillMemo/internal/store"
	"github.com/pathakanu/pillMemo/internal/twilio"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// ErrNoTransport is returned when no transport serves a user id.
var ErrNoTransport = errors.New("no transport for user")

// Transport is a chat channel. User ids handled by a transport start with
// its Prefix.
type Transport interface {
	Prefix() string
	Send(ctx context.Context, userID, text string, kb *message.Keyboard) error
	EditKeyboard(ctx context.Context, userID, messageRef string, kb *message.Keyboard) error
	Answer(ctx context.Context, cb message.Callback, text string, alert bool) error
}

// ReplyResolver is implemented by transports that map typed replies such
// as "2" back to a button.
type ReplyResolver interface {
	ResolveReply(userID, body string) (message.Button, bool)
}

// Deps wires a Bot.
type Deps struct {
	Config     *config.Config
	DB         *gorm.DB
	Store      store.Store
	Catalog    *phrases.Catalog
	Picker     phrases.Picker
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
	Transports []Transport
	// Now overrides the clock; it defaults to time.Now in the configured zone.
	Now func() time.Time
}

// Bot coordinates reminder delivery, conversations, and scheduling.
type Bot struct {
	cfg        *config.Config
	db         *gorm.DB
	store      store.Store
	catalog    *phrases.Catalog
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	transports map[string]Transport
	now        func() time.Time

	scheduler *scheduler.Scheduler
	engine    *delivery.Engine
	machine   *conversation.Machine
	// webhook is nil when no Twilio auth token is configured; the webhook
	// then rejects every request.
	webhook *twilio.WebhookValidator
}

// New creates a fully configured Bot instance.
func New(d Deps) *Bot {
	cfg := d.Config
	if cfg == nil {
		cfg = &config.Config{SnoozeMinutes: 15, HistoryLimit: 20}
	}
	catalog := d.Catalog
	if catalog == nil {
		catalog = phrases.Default()
	}
	loc := cfg.Location()
	now := d.Now
	if now == nil {
		now = func() time.Time { return time.Now().In(loc) }
	}

	b := &Bot{
		cfg:        cfg,
		db:         d.DB,
		store:      d.Store,
		catalog:    catalog,
		metrics:    d.Metrics,
		logger:     d.Logger,
		transports: make(map[string]Transport, len(d.Transports)),
		now:        now,
	}
	for _, t := range d.Transports {
		b.transports[t.Prefix()] = t
	}
	if cfg.TwilioAuthToken != "" {
		b.webhook = twilio.NewWebhookValidator(cfg.TwilioAuthToken, cfg.TwilioWebhookURL)
	}

	b.scheduler = scheduler.New(loc, logger.Component(d.Logger, "scheduler"),
		scheduler.WithClock(now),
		scheduler.WithPendingObserver(d.Metrics.SetPendingSnoozes),
	)
	b.engine = delivery.New(delivery.Config{
		Store:         d.Store,
		Notifier:      b,
		Queue:         b.scheduler,
		Picker:        d.Picker,
		Catalog:       catalog,
		Metrics:       d.Metrics,
		Logger:        logger.Component(d.Logger, "delivery"),
		SnoozeMinutes: cfg.SnoozeMinutes,
		Location:      loc,
	})
	b.machine = conversation.New(d.Store, catalog, d.Metrics, logger.Component(d.Logger, "conversation"))
	return b
}

// Send routes a message to the transport serving userID.
func (b *Bot) Send(ctx context.Context, userID, text string, kb *message.Keyboard) error {
	t, err := b.transportFor(userID)
	if err != nil {
		return err
	}
	return t.Send(ctx, userID, text, kb)
}

func (b *Bot) transportFor(userID string) (Transport, error) {
	i := strings.Index(userID, ":")
	if i < 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoTransport, userID)
	}
	t, ok := b.transports[userID[:i+1]]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoTransport, userID)
	}
	return t, nil
}

// OnTick runs the delivery engine for now.
func (b *Bot) OnTick(ctx context.Context, now time.Time) delivery.TickReport {
	return b.engine.Tick(ctx, now)
}

// StartScheduler registers the minute tick and starts the scheduler loop.
func (b *Bot) StartScheduler(ctx context.Context) error {
	err := b.scheduler.Every(scheduler.EveryMinute, "reminder-tick", func(ctx context.Context) {
		b.OnTick(ctx, b.now())
	})
	if err != nil {
		return err
	}
	if err := b.scheduler.Start(ctx); err != nil {
		return err
	}
	b.logger.Info().
		Str("timezone", b.cfg.Location().String()).
		Msg("snoozed reminders and unfinished conversations are kept in memory and do not survive a restart")
	return nil
}

// StopScheduler stops the scheduler gracefully and reports what in-memory
// state is being dropped.
func (b *Bot) StopScheduler() {
	if drafts := b.machine.ActiveDrafts(); drafts > 0 {
		b.logger.Warn().Int("drafts", drafts).Msg("dropping unfinished conversations")
	}
	if err := b.scheduler.Stop(); err != nil && !errors.Is(err, scheduler.ErrNotStarted) {
		b.logger.Error().Err(err).Msg("stop scheduler")
	}
}
