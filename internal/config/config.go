package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Timezone decodes an IANA zone name from the environment.
type Timezone struct {
	*time.Location
}

// Decode implements envconfig.Decoder.
func (tz *Timezone) Decode(value string) error {
	loc, err := time.LoadLocation(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", value, err)
	}
	tz.Location = loc
	return nil
}

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	Port string `envconfig:"PORT" default:"8080"`

	TelegramBotToken     string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TwilioAccountSID     string `envconfig:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken      string `envconfig:"TWILIO_AUTH_TOKEN"`
	TwilioWhatsAppNumber string `envconfig:"TWILIO_WHATSAPP_NUMBER"`
	// TwilioWebhookURL is the public webhook address Twilio signs requests
	// for. Needed when a proxy rewrites the host or scheme.
	TwilioWebhookURL string `envconfig:"TWILIO_WEBHOOK_URL"`
	OpenAIAPIKey         string `envconfig:"OPENAI_API_KEY"`

	DatabaseURL  string `envconfig:"DATABASE_URL"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:"pills.db"`

	// LocalTimezone governs every "now" the reminder engine sees.
	LocalTimezone Timezone `envconfig:"LOCAL_TIMEZONE" default:"UTC"`
	PhrasesPath   string   `envconfig:"PHRASES_PATH"`
	LogLevel      string   `envconfig:"LOG_LEVEL" default:"info"`
	SnoozeMinutes int      `envconfig:"SNOOZE_MINUTES" default:"15"`
	HistoryLimit  int      `envconfig:"HISTORY_LIMIT" default:"20"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.LocalTimezone.Location == nil {
		cfg.LocalTimezone.Location = time.UTC
	}
	return &cfg, nil
}

// Location returns the process-wide timezone.
func (c *Config) Location() *time.Location {
	if c.LocalTimezone.Location == nil {
		return time.UTC
	}
	return c.LocalTimezone.Location
}

// TelegramEnabled reports whether a Telegram token is configured.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != ""
}

// WhatsAppEnabled reports whether complete Twilio credentials are configured.
func (c *Config) WhatsAppEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioWhatsAppNumber != ""
}

// Validate checks the settings the serve command needs.
func (c *Config) Validate() error {
	var errs []error
	if !c.TelegramEnabled() && !c.WhatsAppEnabled() {
		errs = append(errs, errors.New("no chat transport configured: set TELEGRAM_BOT_TOKEN or the TWILIO_* variables"))
	}
	if c.SnoozeMinutes < 1 || c.SnoozeMinutes > 24*60 {
		errs = append(errs, fmt.Errorf("SNOOZE_MINUTES must be between 1 and 1440, got %d", c.SnoozeMinutes))
	}
	if c.HistoryLimit < 1 {
		errs = append(errs, fmt.Errorf("HISTORY_LIMIT must be positive, got %d", c.HistoryLimit))
	}
	return errors.Join(errs...)
}
