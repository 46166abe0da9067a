package twilio

import (
	"net/http"
	"strings"

	twclient "github.com/twilio/twilio-go/client"
)

// SignatureHeader carries Twilio's signature of a webhook request.
const SignatureHeader = "X-Twilio-Signature"

// WebhookValidator checks that webhook requests were signed by Twilio with
// the account's auth token.
type WebhookValidator struct {
	validator twclient.RequestValidator
	publicURL string
}

// NewWebhookValidator builds a validator. publicURL is the webhook address
// as configured in Twilio; when empty it is rebuilt from the request.
func NewWebhookValidator(authToken, publicURL string) *WebhookValidator {
	return &WebhookValidator{
		validator: twclient.NewRequestValidator(authToken),
		publicURL: strings.TrimSpace(publicURL),
	}
}

// Validate reports whether r carries a valid signature. The form must
// already be parsed.
func (v *WebhookValidator) Validate(r *http.Request) bool {
	signature := r.Header.Get(SignatureHeader)
	if signature == "" {
		return false
	}
	params := make(map[string]string, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	return v.validator.Validate(v.requestURL(r), params, signature)
}

func (v *WebhookValidator) requestURL(r *http.Request) string {
	if v.publicURL != "" {
		return v.publicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
