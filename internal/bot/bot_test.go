package bot

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pathakanu/pillMemo/internal/config"
	"github.com/pathakanu/pillMemo/internal/conversation"
	"github.com/pathakanu/pillMemo/internal/message"
	"github.com/pathakanu/pillMemo/internal/metrics"
	"github.com/pathakanu/pillMemo/internal/model"
	"github.com/pathakanu/pillMemo/internal/phrases"
	"github.com/pathakanu/pillMemo/internal/recurrence"
	"github.com/pathakanu/pillMemo/internal/store"
	"github.com/pathakanu/pillMemo/internal/store/storetest"
	"github.com/pathakanu/pillMemo/internal/twilio"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

const (
	tgUser        = "telegram:42"
	waUser        = "whatsapp:+15550001111"
	testAuthToken = "twilio-test-token"
)

type sentMessage struct {
	userID string
	text   string
	kb     *message.Keyboard
}

type keyboardEdit struct {
	userID string
	ref    string
	kb     *message.Keyboard
}

type fakeTransport struct {
	prefix string

	mu      sync.Mutex
	sent    []sentMessage
	edits   []keyboardEdit
	answers []string
}

func (f *fakeTransport) Prefix() string { return f.prefix }

func (f *fakeTransport) Send(_ context.Context, userID, text string, kb *message.Keyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{userID: userID, text: text, kb: kb})
	return nil
}

func (f *fakeTransport) EditKeyboard(_ context.Context, userID, ref string, kb *message.Keyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, keyboardEdit{userID: userID, ref: ref, kb: kb})
	return nil
}

func (f *fakeTransport) Answer(_ context.Context, _ message.Callback, text string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeTransport) last() sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentMessage{}
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeTransport) lastAnswer() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.answers) == 0 {
		return ""
	}
	return f.answers[len(f.answers)-1]
}

// resolvingTransport numbers the inline buttons of its last message.
type resolvingTransport struct {
	fakeTransport
}

func (r *resolvingTransport) ResolveReply(userID, body string) (message.Button, bool) {
	n, err := strconv.Atoi(body)
	if err != nil {
		return message.Button{}, false
	}
	last := r.last()
	if last.userID != userID || last.kb == nil || last.kb.Menu {
		return message.Button{}, false
	}
	buttons := last.kb.Buttons()
	if n < 1 || n > len(buttons) {
		return message.Button{}, false
	}
	return buttons[n-1], true
}

type testBot struct {
	*Bot
	store *store.Gorm
	tg    *fakeTransport
	wa    *resolvingTransport
}

var wednesday8am = time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)

func newTestBot(t *testing.T) testBot {
	t.Helper()
	st, db := storetest.New(t)
	tg := &fakeTransport{prefix: "telegram:"}
	wa := &resolvingTransport{fakeTransport{prefix: "whatsapp:"}}

	b := New(Deps{
		Config:     &config.Config{SnoozeMinutes: 15, HistoryLimit: 20, TwilioAuthToken: testAuthToken},
		DB:         db,
		Store:      st,
		Metrics:    metrics.New(nil),
		Logger:     zerolog.Nop(),
		Transports: []Transport{tg, wa},
		Now:        func() time.Time { return wednesday8am },
	})
	return testBot{Bot: b, store: st, tg: tg, wa: wa}
}

func seedReminder(t *testing.T, st store.Store, owner, label, clock string) uint {
	t.Helper()
	c, err := recurrence.ParseClock(clock)
	require.NoError(t, err)
	id, err := st.CreateReminder(context.Background(), owner, label, c, recurrence.Daily())
	require.NoError(t, err)
	return id
}

func TestStartShowsMainMenu(t *testing.T) {
	b := newTestBot(t)
	require.NoError(t, b.OnUserText(context.Background(), tgUser, "/start"))

	last := b.tg.last()
	assert.Equal(t, b.catalog.Text(phrases.TextStart), last.text)
	require.NotNil(t, last.kb)
	assert.True(t, last.kb.Menu)
}

func TestCreateFlowThroughRouter(t *testing.T) {
	b := newTestBot(t)
	ctx := context.Background()

	require.NoError(t, b.OnUserText(ctx, tgUser, b.catalog.Button(phrases.ButtonAddPill)))
	require.NoError(t, b.OnUserText(ctx, tgUser, "Aspirin"))
	require.NoError(t, b.OnUserText(ctx, tgUser, "8:00"))

	cb := func(data string) message.Callback {
		return message.Callback{ID: "cb", UserID: tgUser, Data: data, MessageRef: "100"}
	}
	require.NoError(t, b.OnUserCallback(ctx, cb("schedule:custom")))
	require.NoError(t, b.OnUserCallback(ctx, cb("daytoggle:1")))
	require.NoError(t, b.OnUserCallback(ctx, cb("daytoggle:3")))

	b.tg.mu.Lock()
	lastEdit := b.tg.edits[len(b.tg.edits)-1]
	b.tg.mu.Unlock()
	assert.Equal(t, "100", lastEdit.ref)
	require.NotNil(t, lastEdit.kb)
	assert.Equal(t, "Tue ✔️", lastEdit.kb.Buttons()[1].Text)

	require.NoError(t, b.OnUserCallback(ctx, cb("days_confirm")))
	assert.Contains(t, b.tg.last().text, "Tuesday, Thursday")

	reminders, err := b.store.ListReminders(ctx, tgUser)
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	assert.Equal(t, "1,3", reminders[0].Days)

	require.NoError(t, b.OnUserText(ctx, tgUser, "/list"))
	assert.Contains(t, b.tg.last().text, "Aspirin at 08:00 (Tuesday, Thursday)")
}

func TestTickDeliversThroughTransport(t *testing.T) {
	b := newTestBot(t)
	id := seedReminder(t, b.store, tgUser, "Aspirin", "08:00")
	seedReminder(t, b.store, waUser, "Metformin", "08:00")

	report := b.OnTick(context.Background(), wednesday8am)
	assert.Equal(t, 2, report.Sent)

	last := b.tg.last()
	assert.Contains(t, last.text, "Aspirin")
	assert.Equal(t, message.TakenPayload(id).Encode(), last.kb.Buttons()[0].Data)
	assert.Contains(t, b.wa.last().text, "Metformin")
}

func TestTakenCallback(t *testing.T) {
	b := newTestBot(t)
	ctx := context.Background()
	id := seedReminder(t, b.store, tgUser, "Aspirin", "08:00")

	err := b.OnUserCallback(ctx, message.Callback{ID: "cb", UserID: tgUser, Data: message.TakenPayload(id).Encode(), MessageRef: "7"})
	require.NoError(t, err)
	assert.Equal(t, b.catalog.Text(phrases.TextTakenOK), b.tg.lastAnswer())

	history, err := b.store.RecentHistory(ctx, tgUser, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.ActionTaken, history[0].Action)
}

func TestSnoozeCallbackQueuesJob(t *testing.T) {
	b := newTestBot(t)
	ctx := context.Background()
	id := seedReminder(t, b.store, tgUser, "Aspirin", "08:00")

	err := b.OnUserCallback(ctx, message.Callback{ID: "cb", UserID: tgUser, Data: message.SnoozePayload(id, 15).Encode()})
	require.NoError(t, err)
	assert.Equal(t, 1, b.scheduler.Pending())
	assert.Contains(t, b.tg.lastAnswer(), "15")

	assert.Equal(t, 1, b.scheduler.RunDue(wednesday8am.Add(15*time.Minute)))
	assert.Contains(t, b.tg.last().text, b.catalog.Text(phrases.TextRepeatSuffix))
}

func TestCallbackForForeignReminder(t *testing.T) {
	b := newTestBot(t)
	ctx := context.Background()
	id := seedReminder(t, b.store, "telegram:99", "Aspirin", "08:00")

	require.NoError(t, b.OnUserCallback(ctx, message.Callback{ID: "cb", UserID: tgUser, Data: message.TakenPayload(id).Encode()}))
	assert.Equal(t, b.catalog.Text(phrases.TextReminderGone), b.tg.lastAnswer())

	history, err := b.store.RecentHistory(ctx, "telegram:99", 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestMalformedCallback(t *testing.T) {
	b := newTestBot(t)
	require.NoError(t, b.OnUserCallback(context.Background(), message.Callback{ID: "cb", UserID: tgUser, Data: "taken:abc"}))
	assert.Equal(t, b.catalog.Text(phrases.TextUnexpected), b.tg.lastAnswer())
}

func TestUnknownTransport(t *testing.T) {
	b := newTestBot(t)
	assert.ErrorIs(t, b.OnUserText(context.Background(), "signal:1", "/start"), ErrNoTransport)
	assert.ErrorIs(t, b.Send(context.Background(), "nobody", "hi", nil), ErrNoTransport)
}

func TestIdleTextShowsHelp(t *testing.T) {
	b := newTestBot(t)
	require.NoError(t, b.OnUserText(context.Background(), tgUser, "hello there"))
	assert.Equal(t, b.catalog.Text(phrases.TextHelp), b.tg.last().text)
}

func TestCancelCommand(t *testing.T) {
	b := newTestBot(t)
	ctx := context.Background()
	require.NoError(t, b.OnUserText(ctx, tgUser, "/add"))
	require.NoError(t, b.OnUserText(ctx, tgUser, "/cancel@pill_bot"))
	assert.Equal(t, conversation.StepIdle, b.machine.Step(tgUser))
	assert.Equal(t, b.catalog.Text(phrases.TextCancelled), b.tg.last().text)
}

func TestHistoryCommand(t *testing.T) {
	b := newTestBot(t)
	ctx := context.Background()
	id := seedReminder(t, b.store, tgUser, "Aspirin", "08:00")
	require.NoError(t, b.store.AppendHistory(ctx, id, wednesday8am, model.ActionSent))
	require.NoError(t, b.store.AppendHistory(ctx, id, wednesday8am.Add(time.Minute), model.Snoozed(15)))

	require.NoError(t, b.OnUserText(ctx, tgUser, "/history"))
	text := b.tg.last().text
	lines := strings.Split(text, "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "2024-01-10 08:01")
	assert.Contains(t, lines[1], "snoozed 15 min")
	assert.Contains(t, lines[2], "sent")
}

func TestWhatsAppNumericReplyActsAsButton(t *testing.T) {
	b := newTestBot(t)
	ctx := context.Background()
	seedReminder(t, b.store, waUser, "Metformin", "08:00")

	b.OnTick(ctx, wednesday8am)
	require.NoError(t, b.OnUserText(ctx, waUser, "1"))

	history, err := b.store.RecentHistory(ctx, waUser, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.ActionTaken, history[0].Action)
}

// twilioSignature signs a form POST the way Twilio does.
func twilioSignature(fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	data := fullURL
	for _, k := range keys {
		data += k + form.Get(k)
	}
	mac := hmac.New(sha1.New, []byte(testAuthToken))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, baseURL string, form url.Values, signed bool) *http.Response {
	t.Helper()
	target := baseURL + "/twilio/webhook"
	req, err := http.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if signed {
		req.Header.Set(twilio.SignatureHeader, twilioSignature(target, form))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

type outbox struct {
	mu     sync.Mutex
	bodies []string
}

func (o *outbox) CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bodies = append(o.bodies, *params.Body)
	return &openapi.ApiV2010Message{}, nil
}

func (o *outbox) last() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.bodies) == 0 {
		return ""
	}
	return o.bodies[len(o.bodies)-1]
}

func TestWhatsAppIDTypedDuringEditIsNotAButtonTap(t *testing.T) {
	st, db := storetest.New(t)
	out := &outbox{}
	wa := twilio.NewWithAPI(out, "+15559998888", zerolog.Nop())
	b := New(Deps{
		Config:     &config.Config{SnoozeMinutes: 15, HistoryLimit: 20},
		DB:         db,
		Store:      st,
		Metrics:    metrics.New(nil),
		Logger:     zerolog.Nop(),
		Transports: []Transport{wa},
		Now:        func() time.Time { return wednesday8am },
	})
	ctx := context.Background()
	id := seedReminder(t, st, waUser, "Aspirin", "08:00")
	require.Equal(t, uint(1), id)

	require.NoError(t, b.OnUserText(ctx, waUser, "/edit"))
	report := b.OnTick(ctx, wednesday8am)
	require.Equal(t, 1, report.Sent)
	require.Contains(t, out.last(), "\n1. ")

	require.NoError(t, b.OnUserText(ctx, waUser, "1"))
	assert.Equal(t, conversation.StepEditAwaitingTime, b.machine.Step(waUser))
	assert.Contains(t, out.last(), "Editing Aspirin")

	history, err := st.RecentHistory(ctx, waUser, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.ActionSent, history[0].Action)
}

func TestWebhook(t *testing.T) {
	b := newTestBot(t)
	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	resp := postWebhook(t, srv.URL, url.Values{"From": {waUser}, "Body": {"/list"}}, true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/xml", resp.Header.Get("Content-Type"))
	assert.Equal(t, b.catalog.Text(phrases.TextListEmpty), b.wa.last().text)
}

func TestWebhookRejectsUnsignedRequests(t *testing.T) {
	b := newTestBot(t)
	id := seedReminder(t, b.store, waUser, "Aspirin", "08:00")
	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	for _, body := range []string{"/delete", "1"} {
		resp := postWebhook(t, srv.URL, url.Values{"From": {waUser}, "Body": {body}}, false)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, body)
	}

	_, err := b.store.GetReminderByID(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, b.wa.last().text)
	assert.Equal(t, conversation.StepIdle, b.machine.Step(waUser))
}

func TestWebhookWithoutAuthTokenRejectsEverything(t *testing.T) {
	b := newTestBot(t)
	b.webhook = nil
	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	resp := postWebhook(t, srv.URL, url.Values{"From": {waUser}, "Body": {"/list"}}, true)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Empty(t, b.wa.last().text)
}

func TestWebhookRejectsEmptyBody(t *testing.T) {
	b := newTestBot(t)
	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	resp := postWebhook(t, srv.URL, url.Values{"From": {"whatsapp:+1"}}, true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "<Message>")
	assert.Empty(t, b.wa.last().text)
}

func TestHealthAndMetrics(t *testing.T) {
	b := newTestBot(t)
	h := b.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	b.OnTick(context.Background(), wednesday8am)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pillmemo_tick_duration_seconds")
}

func TestSchedulerLifecycle(t *testing.T) {
	b := newTestBot(t)
	require.NoError(t, b.StartScheduler(context.Background()))
	b.StopScheduler()
	b.StopScheduler()
}
