package twilio

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const authToken = "12345"

// sign computes Twilio's X-Twilio-Signature for a form POST.
func sign(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString(fullURL)
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString(form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(sb.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func webhookRequest(t *testing.T, target string, form url.Values, signature string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	require.NoError(t, req.ParseForm())
	return req
}

func TestWebhookValidatorAcceptsSignedRequest(t *testing.T) {
	form := url.Values{"From": {user}, "Body": {"/list"}}
	target := "http://example.com/twilio/webhook"

	v := NewWebhookValidator(authToken, "")
	req := webhookRequest(t, target, form, sign(authToken, target, form))
	assert.True(t, v.Validate(req))
}

func TestWebhookValidatorRejects(t *testing.T) {
	form := url.Values{"From": {user}, "Body": {"/delete"}}
	target := "http://example.com/twilio/webhook"
	v := NewWebhookValidator(authToken, "")

	assert.False(t, v.Validate(webhookRequest(t, target, form, "")), "unsigned")
	assert.False(t, v.Validate(webhookRequest(t, target, form, sign("other-token", target, form))), "wrong token")

	signed := sign(authToken, target, form)
	tampered := url.Values{"From": {"whatsapp:+15550002222"}, "Body": {"/delete"}}
	assert.False(t, v.Validate(webhookRequest(t, target, tampered, signed)), "tampered form")
}

func TestWebhookValidatorUsesPublicURL(t *testing.T) {
	form := url.Values{"From": {user}, "Body": {"1"}}
	public := "https://pills.example.org/twilio/webhook"

	v := NewWebhookValidator(authToken, public)
	req := webhookRequest(t, "http://10.0.0.5:8080/twilio/webhook", form, sign(authToken, public, form))
	assert.True(t, v.Validate(req))
}
