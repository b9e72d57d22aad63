package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-telegram/bot/models"

	"github.com/tbourn/go-chat-dispatch/internal/domain"
)

// apiResponse is the Bot API response envelope.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

type getUpdatesRequest struct {
	Offset         int64    `json:"offset"`
	Limit          int      `json:"limit,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

// FetchUpdates long-polls getUpdates for sequence numbers >= since. Updates
// of unhandled kinds are dropped but still count toward the returned
// sequence range through their IDs.
func (c *Client) FetchUpdates(ctx context.Context, since int64, timeout time.Duration) ([]domain.Update, error) {
	secs := int(timeout / time.Second)
	if secs < 0 {
		secs = 0
	}
	// The server holds the request for up to timeout; leave room for the
	// response on top.
	ctx, cancel := context.WithTimeout(ctx, timeout+10*time.Second)
	defer cancel()

	raw, err := c.getUpdates(ctx, getUpdatesRequest{Offset: since, Timeout: secs, AllowedUpdates: allowedUpdates})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Update, 0, len(raw))
	for i := range raw {
		if u := ToDomain(&raw[i]); u != nil {
			out = append(out, *u)
			continue
		}
		// Keep the sequence number so the poller acknowledges it.
		out = append(out, domain.Update{ID: raw[i].ID})
	}
	return out, nil
}

// AckUpdates confirms every update up to and including upto. The platform
// forgets updates below the offset of the next getUpdates call, so the ack
// is an immediate call with offset upto+1.
func (c *Client) AckUpdates(ctx context.Context, upto int64) error {
	_, err := c.getUpdates(ctx, getUpdatesRequest{Offset: upto + 1, Limit: 1, Timeout: 0})
	return err
}

func (c *Client) getUpdates(ctx context.Context, req getUpdatesRequest) ([]models.Update, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/bot%s/getUpdates", c.baseURL, c.token)
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("telegram: getUpdates request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(hreq)
	if err != nil {
		// The URL carries the token; never surface it.
		return nil, fmt.Errorf("telegram: getUpdates: %w", redactURLError(err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("telegram: getUpdates read: %w", err)
	}
	var env apiResponse
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("telegram: getUpdates decode (status %d): %w", resp.StatusCode, err)
	}
	if !env.OK {
		return nil, fmt.Errorf("telegram: getUpdates: %d %s", env.ErrorCode, env.Description)
	}
	var updates []models.Update
	if len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, &updates); err != nil {
			return nil, fmt.Errorf("telegram: getUpdates result: %w", err)
		}
	}
	return updates, nil
}
