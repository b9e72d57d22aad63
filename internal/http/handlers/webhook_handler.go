package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-dispatch/internal/http/middleware"
	"github.com/tbourn/go-chat-dispatch/internal/services"
)

// maxUpdateBytes caps a pushed update body.
const maxUpdateBytes = 1 << 20

// Webhook receives updates pushed by the bot platform.
//
// Response codes drive the platform's redelivery: anything but 2xx is
// retried, so only store failures answer 500. Handler failures were already
// logged by the dispatcher and are acknowledged with 200.
type Webhook struct {
	Dispatcher services.UpdateProcessor
	Decoder    services.WebhookDecoder
	// Token is the path secret; a mismatch answers 404 so the endpoint
	// cannot be probed.
	Token string
	// Secret, when set, must match the X-Telegram-Bot-Api-Secret-Token header.
	Secret string
}

// Receive handles POST /telegram/webhook/:token.
func (h *Webhook) Receive(c *gin.Context) {
	if h.Token == "" || !middleware.SecretEqual(c.Param("token"), h.Token) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "route not found")
		return
	}
	if !middleware.SecretEqual(c.GetHeader(middleware.HeaderWebhookSecret), h.Secret) {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "invalid secret token")
		return
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxUpdateBytes))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable body")
		return
	}
	u, err := h.Decoder.DecodeWebhookUpdate(raw)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "undecodable update")
		return
	}
	if u == nil {
		// An update kind the engine does not handle.
		c.Status(http.StatusOK)
		return
	}

	lg := middleware.LoggerFrom(c)
	if err := h.Dispatcher.ProcessUpdate(c.Request.Context(), u); err != nil {
		if errors.Is(err, services.ErrStore) {
			fail(c, http.StatusInternalServerError, ErrCodeStoreUnavailable, "update not processed")
			return
		}
		lg.Warn().Err(err).Int64("update_id", u.ID).Msg("webhook update failed")
	}
	c.Status(http.StatusOK)
}
