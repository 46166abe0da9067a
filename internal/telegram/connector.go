// Package telegram connects the reminder bot to Telegram through long polling.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	"github.com/pathakanu/pillMemo/internal/message"
	"github.com/rs/zerolog"
)

// Prefix marks user ids that belong to this transport.
const Prefix = "telegram:"

const callTimeout = 10 * time.Second

// ErrForeignUser is returned for user ids of another transport.
var ErrForeignUser = errors.New("not a telegram user id")

// Handler receives inbound user events.
type Handler interface {
	OnUserText(ctx context.Context, userID, text string) error
	OnUserCallback(ctx context.Context, cb message.Callback) error
}

// Connector sends messages and dispatches updates for one bot.
type Connector struct {
	bot    BotAPI
	logger zerolog.Logger
}

// New creates a connector for the bot token.
func New(token string, logger zerolog.Logger) (*Connector, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return NewWithBot(NewBotAdapter(bot), logger), nil
}

// NewWithBot builds a connector on an existing BotAPI.
func NewWithBot(bot BotAPI, logger zerolog.Logger) *Connector {
	return &Connector{bot: bot, logger: logger}
}

// UserID maps a chat id to a user id.
func UserID(chatID int64) string {
	return Prefix + strconv.FormatInt(chatID, 10)
}

// ChatID extracts the chat id from a user id.
func ChatID(userID string) (int64, error) {
	rest, ok := strings.CutPrefix(userID, Prefix)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrForeignUser, userID)
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrForeignUser, userID)
	}
	return id, nil
}

// Prefix implements the host's transport lookup.
func (c *Connector) Prefix() string { return Prefix }

// Send delivers text with an optional keyboard.
func (c *Connector) Send(ctx context.Context, userID, text string, kb *message.Keyboard) error {
	chatID, err := ChatID(userID)
	if err != nil {
		return err
	}
	params := &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: chatID},
		Text:   text,
	}
	if kb != nil {
		if kb.Menu {
			params.ReplyMarkup = replyKeyboard(kb)
		} else {
			params.ReplyMarkup = inlineKeyboard(kb)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	if _, err := c.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// EditKeyboard replaces the inline keyboard of a sent message. A nil
// keyboard removes it.
func (c *Connector) EditKeyboard(ctx context.Context, userID, messageRef string, kb *message.Keyboard) error {
	chatID, err := ChatID(userID)
	if err != nil {
		return err
	}
	messageID, err := strconv.Atoi(messageRef)
	if err != nil {
		return fmt.Errorf("telegram message ref %q: %w", messageRef, err)
	}
	params := &telego.EditMessageReplyMarkupParams{
		ChatID:    telego.ChatID{ID: chatID},
		MessageID: messageID,
	}
	if kb != nil {
		params.ReplyMarkup = inlineKeyboard(kb)
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	if _, err := c.bot.EditMessageReplyMarkup(ctx, params); err != nil {
		return fmt.Errorf("telegram edit keyboard: %w", err)
	}
	return nil
}

// Answer acknowledges a button tap, optionally with a toast.
func (c *Connector) Answer(ctx context.Context, cb message.Callback, text string, alert bool) error {
	if cb.ID == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	err := c.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
		CallbackQueryID: cb.ID,
		Text:            text,
		ShowAlert:       alert,
	})
	if err != nil {
		return fmt.Errorf("telegram answer callback: %w", err)
	}
	return nil
}

// Run registers the command menu and dispatches updates to h until ctx ends.
func (c *Connector) Run(ctx context.Context, h Handler) error {
	me, err := c.bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram get me: %w", err)
	}
	c.logger.Info().Int64("bot_id", me.ID).Str("username", me.Username).Msg("telegram bot initialized")

	if err := c.registerCommands(ctx); err != nil {
		c.logger.Error().Err(err).Msg("register telegram commands")
	}

	updates, err := c.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{Timeout: 30})
	if err != nil {
		return fmt.Errorf("telegram long polling: %w", err)
	}
	c.logger.Info().Msg("telegram long polling started")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("telegram long polling stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				c.logger.Info().Msg("telegram updates channel closed")
				return nil
			}
			c.Dispatch(ctx, h, update)
		}
	}
}

// Dispatch routes one update. Handler errors and panics are logged.
func (c *Connector) Dispatch(ctx context.Context, h Handler, update telego.Update) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Int("update_id", update.UpdateID).Interface("panic", r).Msg("telegram handler panicked")
		}
	}()

	switch {
	case update.Message != nil:
		msg := update.Message
		if msg.Text == "" {
			return
		}
		if err := h.OnUserText(ctx, UserID(msg.Chat.ID), msg.Text); err != nil {
			c.logger.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("handle telegram message")
		}
	case update.CallbackQuery != nil:
		q := update.CallbackQuery
		cb := message.Callback{ID: q.ID, UserID: UserID(q.From.ID), Data: q.Data}
		if q.Message != nil {
			cb.UserID = UserID(q.Message.GetChat().ID)
			cb.MessageRef = strconv.Itoa(q.Message.GetMessageID())
		}
		if err := h.OnUserCallback(ctx, cb); err != nil {
			c.logger.Error().Err(err).Str("user_id", cb.UserID).Msg("handle telegram callback")
		}
	}
}

func (c *Connector) registerCommands(ctx context.Context) error {
	return c.bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{
		Commands: []telego.BotCommand{
			{Command: "start", Description: "Show the main menu"},
			{Command: "add", Description: "Add a reminder"},
			{Command: "list", Description: "List your reminders"},
			{Command: "edit", Description: "Change a reminder"},
			{Command: "delete", Description: "Delete a reminder"},
			{Command: "history", Description: "Recent activity"},
			{Command: "cancel", Description: "Cancel the current step"},
			{Command: "help", Description: "Show help"},
		},
	})
}

func inlineKeyboard(kb *message.Keyboard) *telego.InlineKeyboardMarkup {
	markup := &telego.InlineKeyboardMarkup{
		InlineKeyboard: make([][]telego.InlineKeyboardButton, len(kb.Rows)),
	}
	for i, row := range kb.Rows {
		buttons := make([]telego.InlineKeyboardButton, len(row))
		for j, b := range row {
			buttons[j] = telego.InlineKeyboardButton{Text: b.Text, CallbackData: b.Data}
		}
		markup.InlineKeyboard[i] = buttons
	}
	return markup
}

func replyKeyboard(kb *message.Keyboard) *telego.ReplyKeyboardMarkup {
	markup := &telego.ReplyKeyboardMarkup{
		Keyboard:       make([][]telego.KeyboardButton, len(kb.Rows)),
		ResizeKeyboard: true,
	}
	for i, row := range kb.Rows {
		buttons := make([]telego.KeyboardButton, len(row))
		for j, b := range row {
			buttons[j] = telego.KeyboardButton{Text: b.Text}
		}
		markup.Keyboard[i] = buttons
	}
	return markup
}
