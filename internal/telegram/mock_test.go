package telegram

import (
	"context"

	"github.com/mymmrac/telego"
	"github.com/pathakanu/pillMemo/internal/message"
	"github.com/stretchr/testify/mock"
)

// MockBot is a testify mock of BotAPI.
type MockBot struct {
	mock.Mock
}

func (m *MockBot) GetMe(ctx context.Context) (*telego.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*telego.User), args.Error(1)
}

func (m *MockBot) SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*telego.Message), args.Error(1)
}

func (m *MockBot) EditMessageReplyMarkup(ctx context.Context, params *telego.EditMessageReplyMarkupParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*telego.Message), args.Error(1)
}

func (m *MockBot) AnswerCallbackQuery(ctx context.Context, params *telego.AnswerCallbackQueryParams) error {
	return m.Called(ctx, params).Error(0)
}

func (m *MockBot) SetMyCommands(ctx context.Context, params *telego.SetMyCommandsParams) error {
	return m.Called(ctx, params).Error(0)
}

func (m *MockBot) UpdatesViaLongPolling(ctx context.Context, params *telego.GetUpdatesParams, opts ...telego.LongPollingOption) (<-chan telego.Update, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(chan telego.Update), args.Error(1)
}

type recordingHandler struct {
	texts     []string
	callbacks []recordedCallback
}

type recordedCallback struct {
	userID, data, ref, id string
}

func (h *recordingHandler) OnUserText(_ context.Context, userID, text string) error {
	h.texts = append(h.texts, userID+"|"+text)
	return nil
}

func (h *recordingHandler) OnUserCallback(_ context.Context, cb message.Callback) error {
	h.callbacks = append(h.callbacks, recordedCallback{userID: cb.UserID, data: cb.Data, ref: cb.MessageRef, id: cb.ID})
	return nil
}

// panickingHandler panics on the first text it sees.
type panickingHandler struct {
	recordingHandler
	panicked bool
}

func (h *panickingHandler) OnUserText(ctx context.Context, userID, text string) error {
	if !h.panicked {
		h.panicked = true
		panic("handler exploded")
	}
	return h.recordingHandler.OnUserText(ctx, userID, text)
}
