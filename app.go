package main

import (
	"fmt"

	"github.com/pathakanu/pillMemo/internal/bot"
	"github.com/pathakanu/pillMemo/internal/config"
	"github.com/pathakanu/pillMemo/internal/database"
	"github.com/pathakanu/pillMemo/internal/logger"
	"github.com/pathakanu/pillMemo/internal/metrics"
	myopenai "github.com/pathakanu/pillMemo/internal/openai"
	"github.com/pathakanu/pillMemo/internal/phrases"
	"github.com/pathakanu/pillMemo/internal/store"
	"github.com/pathakanu/pillMemo/internal/telegram"
	"github.com/pathakanu/pillMemo/internal/twilio"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// app is the wired process shared by the commands.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	db       *gorm.DB
	store    *store.Gorm
	bot      *bot.Bot
	telegram *telegram.Connector
}

// newApp loads configuration, opens the database and builds the bot with
// every configured transport.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New("pillmemo", cfg.LogLevel)

	db, err := database.New(cfg.DatabaseURL, cfg.DatabasePath, logger.Component(log, "database"))
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}

	catalog, err := phrases.Load(cfg.PhrasesPath)
	if err != nil {
		_ = database.Close(db)
		return nil, err
	}

	var picker phrases.Picker = phrases.NewRandomPicker(catalog.ReminderPhrases, nil)
	if ai := myopenai.New(cfg.OpenAIAPIKey); ai.Enabled() {
		picker = phrases.NewAIPicker(ai, picker, logger.Component(log, "phrases"))
	}

	a := &app{cfg: cfg, log: log, db: db, store: store.NewGorm(db)}

	var transports []bot.Transport
	if cfg.TelegramEnabled() {
		a.telegram, err = telegram.New(cfg.TelegramBotToken, logger.Component(log, "telegram"))
		if err != nil {
			_ = database.Close(db)
			return nil, err
		}
		transports = append(transports, a.telegram)
	}
	if cfg.WhatsAppEnabled() {
		transports = append(transports, twilio.New(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppNumber, logger.Component(log, "twilio")))
	}

	a.bot = bot.New(bot.Deps{
		Config:     cfg,
		DB:         db,
		Store:      a.store,
		Catalog:    catalog,
		Picker:     picker,
		Metrics:    metrics.New(nil),
		Logger:     log,
		Transports: transports,
	})
	return a, nil
}

func (a *app) close() {
	if err := database.Close(a.db); err != nil {
		a.log.Error().Err(err).Msg("close database")
	}
}
