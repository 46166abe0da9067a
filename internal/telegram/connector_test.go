package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/pathakanu/pillMemo/internal/message"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestChatID(t *testing.T) {
	id, err := ChatID(UserID(-1001))
	require.NoError(t, err)
	assert.EqualValues(t, -1001, id)

	_, err = ChatID("whatsapp:+15550001111")
	assert.ErrorIs(t, err, ErrForeignUser)
	_, err = ChatID("telegram:abc")
	assert.ErrorIs(t, err, ErrForeignUser)
}

func TestSendInlineKeyboard(t *testing.T) {
	bot := &MockBot{}
	bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		markup, ok := p.ReplyMarkup.(*telego.InlineKeyboardMarkup)
		return ok && p.ChatID.ID == 42 && p.Text == "Time to take Aspirin" &&
			markup.InlineKeyboard[0][1].CallbackData == "snooze:5:15"
	})).Return(&telego.Message{MessageID: 1}, nil)

	c := NewWithBot(bot, zerolog.Nop())
	kb := message.NewKeyboard(message.Row(
		message.Button{Text: "Taken", Data: "taken:5"},
		message.Button{Text: "Later", Data: "snooze:5:15"},
	))
	require.NoError(t, c.Send(context.Background(), "telegram:42", "Time to take Aspirin", kb))
	bot.AssertExpectations(t)
}

func TestSendMenuKeyboard(t *testing.T) {
	bot := &MockBot{}
	bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		markup, ok := p.ReplyMarkup.(*telego.ReplyKeyboardMarkup)
		return ok && markup.ResizeKeyboard && markup.Keyboard[0][0].Text == "Add"
	})).Return(&telego.Message{MessageID: 1}, nil)

	c := NewWithBot(bot, zerolog.Nop())
	kb := message.NewMenu(message.Row(message.Button{Text: "Add"}))
	require.NoError(t, c.Send(context.Background(), "telegram:42", "menu", kb))
	bot.AssertExpectations(t)
}

func TestSendErrors(t *testing.T) {
	bot := &MockBot{}
	bot.On("SendMessage", mock.Anything, mock.Anything).Return(nil, errors.New("blocked by user"))
	c := NewWithBot(bot, zerolog.Nop())

	assert.Error(t, c.Send(context.Background(), "telegram:42", "hi", nil))
	assert.ErrorIs(t, c.Send(context.Background(), "whatsapp:+1", "hi", nil), ErrForeignUser)
}

func TestEditKeyboardAndAnswer(t *testing.T) {
	bot := &MockBot{}
	bot.On("EditMessageReplyMarkup", mock.Anything, mock.MatchedBy(func(p *telego.EditMessageReplyMarkupParams) bool {
		return p.MessageID == 77 && p.ReplyMarkup == nil
	})).Return(&telego.Message{MessageID: 77}, nil)
	bot.On("AnswerCallbackQuery", mock.Anything, mock.MatchedBy(func(p *telego.AnswerCallbackQueryParams) bool {
		return p.CallbackQueryID == "cb-1" && p.Text == "Noted"
	})).Return(nil)

	c := NewWithBot(bot, zerolog.Nop())
	ctx := context.Background()
	require.NoError(t, c.EditKeyboard(ctx, "telegram:42", "77", nil))
	require.NoError(t, c.Answer(ctx, message.Callback{ID: "cb-1"}, "Noted", false))
	require.NoError(t, c.Answer(ctx, message.Callback{}, "ignored", false))
	assert.Error(t, c.EditKeyboard(ctx, "telegram:42", "not-a-number", nil))
	bot.AssertExpectations(t)
}

func TestDispatch(t *testing.T) {
	c := NewWithBot(&MockBot{}, zerolog.Nop())
	h := &recordingHandler{}
	ctx := context.Background()

	c.Dispatch(ctx, h, telego.Update{Message: &telego.Message{Chat: telego.Chat{ID: 42}, Text: "/add"}})
	c.Dispatch(ctx, h, telego.Update{Message: &telego.Message{Chat: telego.Chat{ID: 42}}})
	c.Dispatch(ctx, h, telego.Update{CallbackQuery: &telego.CallbackQuery{
		ID:      "cb-9",
		From:    telego.User{ID: 42},
		Data:    "taken:5",
		Message: &telego.Message{MessageID: 10, Chat: telego.Chat{ID: 42}},
	}})

	assert.Equal(t, []string{"telegram:42|/add"}, h.texts)
	require.Len(t, h.callbacks, 1)
	assert.Equal(t, recordedCallback{userID: "telegram:42", data: "taken:5", ref: "10", id: "cb-9"}, h.callbacks[0])
}

func TestRunDispatchesUntilCancelled(t *testing.T) {
	bot := &MockBot{}
	updates := make(chan telego.Update, 1)
	bot.On("GetMe", mock.Anything).Return(&telego.User{ID: 1, Username: "pill_bot"}, nil)
	bot.On("SetMyCommands", mock.Anything, mock.Anything).Return(nil)
	bot.On("UpdatesViaLongPolling", mock.Anything, mock.Anything).Return(updates, nil)

	c := NewWithBot(bot, zerolog.Nop())
	h := &recordingHandler{}
	ctx, cancel := context.WithCancel(context.Background())

	updates <- telego.Update{Message: &telego.Message{Chat: telego.Chat{ID: 5}, Text: "/list"}}
	close(updates)

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, h) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the updates channel closed")
	}
	cancel()
	assert.Equal(t, []string{"telegram:5|/list"}, h.texts)
}

func TestRunSurvivesHandlerPanic(t *testing.T) {
	bot := &MockBot{}
	updates := make(chan telego.Update, 2)
	bot.On("GetMe", mock.Anything).Return(&telego.User{ID: 1, Username: "pill_bot"}, nil)
	bot.On("SetMyCommands", mock.Anything, mock.Anything).Return(nil)
	bot.On("UpdatesViaLongPolling", mock.Anything, mock.Anything).Return(updates, nil)

	c := NewWithBot(bot, zerolog.Nop())
	h := &panickingHandler{}

	updates <- telego.Update{UpdateID: 1, Message: &telego.Message{Chat: telego.Chat{ID: 5}, Text: "/add"}}
	updates <- telego.Update{UpdateID: 2, Message: &telego.Message{Chat: telego.Chat{ID: 5}, Text: "/list"}}
	close(updates)

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), h) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the updates channel closed")
	}
	assert.True(t, h.panicked)
	assert.Equal(t, []string{"telegram:5|/list"}, h.texts)
}
