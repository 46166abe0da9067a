// Package twilio is the WhatsApp transport. Keyboards have no native form on
// WhatsApp, so inline buttons are rendered as numbered options and a numeric
// reply is mapped back to the button it names.
package twilio

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pathakanu/pillMemo/internal/message"
	"github.com/rs/zerolog"
	twilio "github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Prefix marks user ids that belong to this transport. It matches the
// address form Twilio uses, so a sender address is already a user id.
const Prefix = "whatsapp:"

// MessageAPI is the part of the Twilio REST API the client uses.
type MessageAPI interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// Client wraps Twilio messaging operations required by the bot.
type Client struct {
	api          MessageAPI
	fromWhatsApp string
	logger       zerolog.Logger

	mu      sync.Mutex
	options map[string][]message.Button
}

// New creates a Twilio client bound to the configured WhatsApp sender number.
func New(accountSID, authToken, fromWhatsApp string, logger zerolog.Logger) *Client {
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{Username: accountSID, Password: authToken})
	return NewWithAPI(rest.Api, fromWhatsApp, logger)
}

// NewWithAPI builds a client on an existing MessageAPI.
func NewWithAPI(api MessageAPI, fromWhatsApp string, logger zerolog.Logger) *Client {
	return &Client{
		api:          api,
		fromWhatsApp: fromWhatsApp,
		logger:       logger,
		options:      make(map[string][]message.Button),
	}
}

// UserID maps a Twilio sender address to a user id.
func UserID(from string) string {
	return normalizeWhatsAppAddress(from)
}

// Prefix implements the host's transport lookup.
func (c *Client) Prefix() string { return Prefix }

// Send delivers text. Inline buttons are appended as numbered options and
// remembered for ResolveReply; menu buttons are listed as plain hints.
func (c *Client) Send(ctx context.Context, userID, text string, kb *message.Keyboard) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body := text
	var options []message.Button
	if kb != nil {
		if kb.Menu {
			body += renderMenu(kb)
		} else {
			options = kb.Buttons()
			body += renderOptions(options)
		}
	}
	if err := c.send(userID, body); err != nil {
		return err
	}
	c.remember(userID, options)
	return nil
}

// EditKeyboard cannot edit on WhatsApp; it sends the new options instead.
// A nil keyboard only forgets the current options.
func (c *Client) EditKeyboard(ctx context.Context, userID, _ string, kb *message.Keyboard) error {
	if kb == nil || kb.Menu {
		c.remember(userID, nil)
		return nil
	}
	return c.Send(ctx, userID, "", kb)
}

// Answer sends the acknowledgement text, if any, as a message.
func (c *Client) Answer(ctx context.Context, cb message.Callback, text string, _ bool) error {
	if text == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.send(cb.UserID, text)
}

// ResolveReply maps a numeric reply to the option it names.
func (c *Client) ResolveReply(userID, body string) (message.Button, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(body))
	if err != nil {
		return message.Button{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	options := c.options[userID]
	if n < 1 || n > len(options) {
		return message.Button{}, false
	}
	return options[n-1], true
}

func (c *Client) remember(userID string, options []message.Button) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(options) == 0 {
		delete(c.options, userID)
		return
	}
	c.options[userID] = options
}

// send posts one WhatsApp message via Twilio's API.
func (c *Client) send(to, body string) error {
	if c.api == nil {
		return fmt.Errorf("twilio client not initialised")
	}

	sender := normalizeWhatsAppAddress(c.fromWhatsApp)
	if sender == "" {
		return fmt.Errorf("twilio sender WhatsApp number is not configured")
	}

	recipient := normalizeWhatsAppAddress(to)
	if recipient == "" {
		return fmt.Errorf("recipient number missing or invalid")
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(recipient)
	params.SetFrom(sender)
	params.SetBody(strings.TrimSpace(body))

	resp, err := c.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio send message error: %w", err)
	}

	sid := ""
	if resp != nil && resp.Sid != nil {
		sid = *resp.Sid
	}
	c.logger.Debug().Str("to", recipient).Str("sid", sid).Msg("twilio message sent")
	return nil
}

func renderOptions(buttons []message.Button) string {
	if len(buttons) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n")
	for i, b := range buttons {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, b.Text)
	}
	return sb.String()
}

func renderMenu(kb *message.Keyboard) string {
	buttons := kb.Buttons()
	if len(buttons) == 0 {
		return ""
	}
	labels := make([]string, len(buttons))
	for i, b := range buttons {
		labels[i] = b.Text
	}
	return "\n\n" + strings.Join(labels, " · ")
}

func normalizeWhatsAppAddress(number string) string {
	trimmed := strings.TrimSpace(number)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, Prefix) {
		return trimmed
	}
	if strings.HasPrefix(trimmed, "+") {
		return Prefix + trimmed
	}
	return Prefix + "+" + trimmed
}
