package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// maxPayloadBytes caps a notify trigger body.
const maxPayloadBytes = 256 << 10

// NotifyService is the broadcast entry point of the engine.
type NotifyService interface {
	Notify(ctx context.Context, notifierID string, payload any) error
}

// NotifyTrigger accepts internal broadcast requests. The broadcast runs
// after the response; Wait blocks until every accepted broadcast finished.
type NotifyTrigger struct {
	Service NotifyService
	// Timeout bounds one broadcast. Zero means no bound.
	Timeout time.Duration

	wg sync.WaitGroup
}

type notifyAccepted struct {
	Notifier string `json:"notifier"`
	Status   string `json:"status"`
}

// Trigger handles POST /internal/notify/:id. The body, if any, must be JSON
// and becomes the notifier's payload. Unknown ids are accepted: the engine
// ignores them and the trigger has no way to act on the difference.
func (h *NotifyTrigger) Trigger(c *gin.Context) {
	id := c.Param("id")
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPayloadBytes))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable body")
		return
	}

	var payload any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "payload must be JSON")
			return
		}
	}

	h.wg.Add(1)
	go h.run(id, payload)
	ok(c, http.StatusAccepted, notifyAccepted{Notifier: id, Status: "accepted"})
}

func (h *NotifyTrigger) run(id string, payload any) {
	defer h.wg.Done()
	ctx := context.Background()
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}
	if err := h.Service.Notify(ctx, id, payload); err != nil {
		log.Error().Err(err).Str("notifier", id).Msg("notify trigger failed")
	}
}

// Wait blocks until all accepted broadcasts have finished.
func (h *NotifyTrigger) Wait() { h.wg.Wait() }
