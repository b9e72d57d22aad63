package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-chat-dispatch/internal/domain"
)

type MockBot struct {
	mock.Mock
}

func (m *MockBot) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	args := m.Called(ctx, params)
	msg, _ := args.Get(0).(*models.Message)
	return msg, args.Error(1)
}

func (m *MockBot) AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error) {
	args := m.Called(ctx, params)
	return args.Bool(0), args.Error(1)
}

func (m *MockBot) SetMyCommands(ctx context.Context, params *bot.SetMyCommandsParams) (bool, error) {
	args := m.Called(ctx, params)
	return args.Bool(0), args.Error(1)
}

func (m *MockBot) SetWebhook(ctx context.Context, params *bot.SetWebhookParams) (bool, error) {
	args := m.Called(ctx, params)
	return args.Bool(0), args.Error(1)
}

func (m *MockBot) DeleteWebhook(ctx context.Context, params *bot.DeleteWebhookParams) (bool, error) {
	args := m.Called(ctx, params)
	return args.Bool(0), args.Error(1)
}

func TestClient_Send(t *testing.T) {
	tests := []struct {
		name    string
		msg     domain.OutboundMessage
		match   func(p *bot.SendMessageParams) bool
		retErr  error
		wantErr bool
	}{
		{
			name: "plain text",
			msg:  domain.OutboundMessage{Text: "hello"},
			match: func(p *bot.SendMessageParams) bool {
				return p.Text == "hello" && p.ParseMode == "" && p.ReplyMarkup == nil && p.ChatID == int64(42)
			},
		},
		{
			name: "html with numbered keyboard",
			msg: domain.OutboundMessage{Text: "<b>x</b>", HTML: true, Keyboard: &domain.Keyboard{
				Rows: [][]string{{"1"}, {"2"}}, OneTime: true,
			}},
			match: func(p *bot.SendMessageParams) bool {
				kb, ok := p.ReplyMarkup.(*models.ReplyKeyboardMarkup)
				return p.ParseMode == models.ParseModeHTML && ok && kb.OneTimeKeyboard &&
					len(kb.Keyboard) == 2 && kb.Keyboard[1][0].Text == "2"
			},
		},
		{
			name: "remove keyboard",
			msg:  domain.OutboundMessage{Text: "done", Keyboard: &domain.Keyboard{Remove: true}},
			match: func(p *bot.SendMessageParams) bool {
				rm, ok := p.ReplyMarkup.(*models.ReplyKeyboardRemove)
				return ok && rm.RemoveKeyboard
			},
		},
		{
			name:    "api failure",
			msg:     domain.OutboundMessage{Text: "x"},
			match:   func(*bot.SendMessageParams) bool { return true },
			retErr:  errors.New("forbidden: bot was blocked by the user"),
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mb := new(MockBot)
			mb.On("SendMessage", mock.Anything, mock.MatchedBy(tc.match)).
				Return(&models.Message{ID: 1}, tc.retErr).
				Once()

			c := newClient(mb, "T", DefaultAPIURL, Options{SendTimeout: time.Second})
			err := c.Send(context.Background(), 42, tc.msg)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			mb.AssertExpectations(t)
		})
	}
}

func TestClient_AnswerCallback(t *testing.T) {
	mb := new(MockBot)
	mb.On("AnswerCallbackQuery", mock.Anything, mock.MatchedBy(func(p *bot.AnswerCallbackQueryParams) bool {
		return p.CallbackQueryID == "cb-1"
	})).Return(true, nil).Once()

	c := newClient(mb, "T", DefaultAPIURL, Options{})
	require.NoError(t, c.AnswerCallback(context.Background(), "cb-1"))
	mb.AssertExpectations(t)
}

func TestClient_SetChatCommands(t *testing.T) {
	mb := new(MockBot)
	mb.On("SetMyCommands", mock.Anything, mock.MatchedBy(func(p *bot.SetMyCommandsParams) bool {
		scope, ok := p.Scope.(*models.BotCommandScopeChat)
		return ok && scope.ChatID == int64(7) && len(p.Commands) == 2 &&
			p.Commands[0].Command == "start" && p.Commands[1].Description == "notify"
	})).Return(true, nil).Once()

	c := newClient(mb, "T", DefaultAPIURL, Options{})
	err := c.SetChatCommands(context.Background(), 7, []domain.CommandDescriptor{
		{ID: "start", Description: "Show commands"},
		{ID: "notify"},
	})
	require.NoError(t, err)
	mb.AssertExpectations(t)
}

func TestClient_Webhook(t *testing.T) {
	mb := new(MockBot)
	mb.On("SetWebhook", mock.Anything, mock.MatchedBy(func(p *bot.SetWebhookParams) bool {
		return p.URL == "https://example.org/telegram/webhook/T" && p.SecretToken == "s3cret"
	})).Return(true, nil).Once()
	mb.On("DeleteWebhook", mock.Anything, mock.Anything).Return(false, errors.New("unauthorized")).Once()

	c := newClient(mb, "T", DefaultAPIURL, Options{})
	require.NoError(t, c.SetWebhook(context.Background(), "https://example.org/telegram/webhook/T", "s3cret"))
	err := c.DeleteWebhook(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete webhook")
	mb.AssertExpectations(t)
}

func TestNew_RejectsEmptyToken(t *testing.T) {
	_, err := New("  ", Options{})
	require.Error(t, err)
}
