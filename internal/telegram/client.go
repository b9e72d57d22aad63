// Package telegram adapts the Telegram Bot API to the engine's transport
// interfaces. Outbound calls go through github.com/go-telegram/bot; the
// poll side talks to getUpdates directly so the engine owns the offset and
// acknowledges only after a batch has been processed.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/tbourn/go-chat-dispatch/internal/domain"
)

// DefaultAPIURL is the public Bot API endpoint.
const DefaultAPIURL = "https://api.telegram.org"

// botAPI is the subset of *bot.Bot the adapter calls.
type botAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
	SetMyCommands(ctx context.Context, params *bot.SetMyCommandsParams) (bool, error)
	SetWebhook(ctx context.Context, params *bot.SetWebhookParams) (bool, error)
	DeleteWebhook(ctx context.Context, params *bot.DeleteWebhookParams) (bool, error)
}

// Options configure a Client.
type Options struct {
	// APIURL overrides DefaultAPIURL, e.g. for a local Bot API server.
	APIURL string
	// SendTimeout bounds each outbound call; zero leaves the caller's
	// context alone.
	SendTimeout time.Duration
	// HTTPClient is used for getUpdates. Defaults to a client without a
	// global timeout; every call is bounded by its context instead.
	HTTPClient *http.Client
}

// Client implements services.BotTransport and commands.CommandMenu.
type Client struct {
	api         botAPI
	token       string
	baseURL     string
	sendTimeout time.Duration
	httpc       *http.Client
}

// New builds a Client for token. bot.New validates the token with getMe.
func New(token string, o Options) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram: empty token")
	}
	base := strings.TrimRight(o.APIURL, "/")
	if base == "" {
		base = DefaultAPIURL
	}
	b, err := bot.New(token, bot.WithServerURL(base))
	if err != nil {
		return nil, fmt.Errorf("telegram: init bot: %w", err)
	}
	return newClient(b, token, base, o), nil
}

func newClient(api botAPI, token, base string, o Options) *Client {
	httpc := o.HTTPClient
	if httpc == nil {
		httpc = &http.Client{}
	}
	return &Client{api: api, token: token, baseURL: base, sendTimeout: o.SendTimeout, httpc: httpc}
}

func (c *Client) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.sendTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.sendTimeout)
}

// Send delivers msg to chatID. HTML messages use the HTML parse mode; a
// keyboard is attached as a reply keyboard or a removal request.
func (c *Client) Send(ctx context.Context, chatID int64, msg domain.OutboundMessage) error {
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	params := &bot.SendMessageParams{ChatID: chatID, Text: msg.Text}
	if msg.HTML {
		params.ParseMode = models.ParseModeHTML
	}
	if markup := replyMarkup(msg.Keyboard); markup != nil {
		params.ReplyMarkup = markup
	}
	if _, err := c.api.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("telegram: send message to %d: %w", chatID, err)
	}
	return nil
}

func replyMarkup(k *domain.Keyboard) models.ReplyMarkup {
	switch {
	case k == nil:
		return nil
	case k.Remove:
		return &models.ReplyKeyboardRemove{RemoveKeyboard: true}
	case len(k.Rows) == 0:
		return nil
	}
	rows := make([][]models.KeyboardButton, 0, len(k.Rows))
	for _, r := range k.Rows {
		row := make([]models.KeyboardButton, 0, len(r))
		for _, label := range r {
			row = append(row, models.KeyboardButton{Text: label})
		}
		rows = append(rows, row)
	}
	return &models.ReplyKeyboardMarkup{Keyboard: rows, OneTimeKeyboard: k.OneTime, ResizeKeyboard: true}
}

// AnswerCallback acknowledges a callback query without a notification.
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	if _, err := c.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: callbackID}); err != nil {
		return fmt.Errorf("telegram: answer callback: %w", err)
	}
	return nil
}

// SetChatCommands replaces the command menu shown in one chat.
func (c *Client) SetChatCommands(ctx context.Context, chatID int64, cmds []domain.CommandDescriptor) error {
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	list := make([]models.BotCommand, 0, len(cmds))
	for _, cmd := range cmds {
		desc := cmd.Description
		if desc == "" {
			desc = cmd.ID
		}
		list = append(list, models.BotCommand{Command: cmd.ID, Description: desc})
	}
	_, err := c.api.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: list,
		Scope:    &models.BotCommandScopeChat{ChatID: chatID},
	})
	if err != nil {
		return fmt.Errorf("telegram: set chat commands: %w", err)
	}
	return nil
}

// SetWebhook registers url as the push endpoint. secret, when set, is echoed
// by the platform in the X-Telegram-Bot-Api-Secret-Token header.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	_, err := c.api.SetWebhook(ctx, &bot.SetWebhookParams{
		URL:            url,
		SecretToken:    secret,
		AllowedUpdates: allowedUpdates,
	})
	if err != nil {
		return fmt.Errorf("telegram: set webhook: %w", err)
	}
	return nil
}

// DeleteWebhook removes any registered webhook so getUpdates works. Pending
// updates are kept.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	if _, err := c.api.DeleteWebhook(ctx, &bot.DeleteWebhookParams{}); err != nil {
		return fmt.Errorf("telegram: delete webhook: %w", err)
	}
	return nil
}

// allowedUpdates are the update kinds the engine understands.
var allowedUpdates = []string{"message", "callback_query"}
