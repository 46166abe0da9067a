package bot

import (
	"context"
	"encoding/xml"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/pathakanu/pillMemo/internal/database"
	"github.com/pathakanu/pillMemo/internal/twilio"
)

// Handler returns the HTTP routes: the Twilio webhook, metrics and health.
func (b *Bot) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/twilio/webhook", b.handleIncomingMessage).Methods(http.MethodPost)
	r.HandleFunc("/healthz", b.handleHealth).Methods(http.MethodGet)
	if b.metrics != nil {
		r.Handle("/metrics", b.metrics.Handler()).Methods(http.MethodGet)
	}
	return r
}

// handleIncomingMessage processes Twilio webhook POST requests. Only requests
// signed with the account's auth token are accepted. Replies go out through
// the REST API, so the TwiML answer is normally empty.
func (b *Bot) handleIncomingMessage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		b.logger.Warn().Err(err).Msg("webhook: parse form")
		b.writeTwilioResponse(w, "Sorry, I couldn't understand that request.")
		return
	}
	if b.webhook == nil || !b.webhook.Validate(r) {
		b.logger.Warn().Str("remote_addr", r.RemoteAddr).Msg("webhook: rejected request without a valid Twilio signature")
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	from := r.FormValue("From")
	body := strings.TrimSpace(r.FormValue("Body"))
	if from == "" || body == "" {
		b.writeTwilioResponse(w, "I need a message to work with. Please try again.")
		return
	}

	userID := twilio.UserID(from)
	if err := b.OnUserText(r.Context(), userID, body); err != nil {
		b.logger.Error().Err(err).Str("user_id", userID).Msg("webhook: handle message")
	}
	b.writeTwilioResponse(w, "")
}

func (b *Bot) handleHealth(w http.ResponseWriter, r *http.Request) {
	if b.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := database.Ping(ctx, b.db); err != nil {
			b.logger.Error().Err(err).Msg("health check failed")
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok"))
}

func (b *Bot) writeTwilioResponse(w http.ResponseWriter, message string) {
	twiml := struct {
		XMLName xml.Name `xml:"Response"`
		Message string   `xml:"Message,omitempty"`
	}{
		Message: message,
	}

	w.Header().Set("Content-Type", "application/xml")
	if err := xml.NewEncoder(w).Encode(twiml); err != nil {
		b.logger.Error().Err(err).Msg("twilio response encode")
	}
}
