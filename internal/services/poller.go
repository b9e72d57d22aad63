// Package services – Poller (long-poll ingestion)
//
// The poller fetches a batch of updates since the last acknowledged sequence
// number, processes it, and only then acknowledges up to the highest sequence
// seen. A crash between processing and acknowledging redelivers the whole
// batch; duplicate executions are accepted, not filtered.
//
// Within a batch, updates are sorted ascending and grouped by chat. Each
// chat's group runs sequentially so a later update observes state written by
// an earlier one; distinct chats run in parallel up to Concurrency.
package services

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-chat-dispatch/internal/domain"
)

// PollOffsetKey is the settings key holding the next sequence number to fetch.
const PollOffsetKey = "telegram.poll_offset"

// UpdateProcessor is implemented by CommandDispatcher.
type UpdateProcessor interface {
	ProcessUpdate(ctx context.Context, u *domain.Update) error
}

// Poller drives poll-mode ingestion.
type Poller struct {
	Source     UpdateSource
	Dispatcher UpdateProcessor
	// Settings persists the checkpoint across restarts; optional.
	Settings Settings

	Timeout     time.Duration
	RetryDelay  time.Duration
	Concurrency int

	mu     sync.Mutex
	offset int64
}

// Offset returns the next sequence number the poller will fetch from.
func (p *Poller) Offset() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offset
}

func (p *Poller) setOffset(v int64) {
	p.mu.Lock()
	p.offset = v
	p.mu.Unlock()
}

// Restore loads the persisted checkpoint, if any.
func (p *Poller) Restore(ctx context.Context) error {
	if p.Settings == nil {
		return nil
	}
	v, ok, err := p.Settings.GetSetting(ctx, PollOffsetKey)
	if err != nil || !ok {
		return err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Warn().Str("value", v).Msg("ignoring corrupt poll checkpoint")
		return nil
	}
	p.setOffset(n)
	return nil
}

// Run polls until ctx is done. Fetch and ack failures are logged and retried
// after RetryDelay; they never stop the loop.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.Restore(ctx); err != nil {
		log.Warn().Err(err).Msg("restore poll checkpoint")
	}
	log.Info().Int64("offset", p.Offset()).Dur("timeout", p.timeout()).Msg("poller started")

	for {
		if ctx.Err() != nil {
			log.Info().Msg("poller stopped")
			return nil
		}
		if _, err := p.PollOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				continue
			}
			log.Warn().Err(err).Msg("poll cycle failed")
			t := time.NewTimer(p.retryDelay())
			select {
			case <-ctx.Done():
				t.Stop()
			case <-t.C:
			}
		}
	}
}

// PollOnce runs one fetch → process → ack cycle and returns the number of
// updates processed.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	updates, err := p.Source.FetchUpdates(ctx, p.Offset(), p.timeout())
	if err != nil {
		pollBatches.WithLabelValues("fetch_error").Inc()
		return 0, err
	}
	if len(updates) == 0 {
		pollBatches.WithLabelValues("empty").Inc()
		return 0, nil
	}

	tr := otel.Tracer("services/Poller")
	ctx, span := tr.Start(ctx, "Batch",
		trace.WithAttributes(attribute.Int("batch.size", len(updates))),
	)
	defer span.End()

	upto := p.ProcessBatch(ctx, updates)
	span.SetAttributes(attribute.Int64("batch.upto", upto))

	// The next fetch starts after the batch even if the explicit ack fails:
	// fetching from upto+1 acknowledges on its own.
	p.setOffset(upto + 1)

	if err := p.Source.AckUpdates(ctx, upto); err != nil {
		pollBatches.WithLabelValues("ack_error").Inc()
		return len(updates), err
	}
	if p.Settings != nil {
		if err := p.Settings.PutSetting(ctx, PollOffsetKey, strconv.FormatInt(upto+1, 10)); err != nil {
			log.Warn().Err(err).Int64("offset", upto+1).Msg("persist poll checkpoint")
		}
	}
	pollBatches.WithLabelValues("ok").Inc()
	return len(updates), nil
}

// ProcessBatch dispatches every update of the batch and returns the highest
// sequence number, or 0 for an empty batch. It returns only after all
// updates finished.
func (p *Poller) ProcessBatch(ctx context.Context, updates []domain.Update) int64 {
	if len(updates) == 0 {
		return 0
	}
	sorted := make([]domain.Update, len(updates))
	copy(sorted, updates)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var order []int64
	groups := map[int64][]*domain.Update{}
	for i := range sorted {
		u := &sorted[i]
		if _, ok := groups[u.ChatID]; !ok {
			order = append(order, u.ChatID)
		}
		groups[u.ChatID] = append(groups[u.ChatID], u)
	}

	maxConc := p.Concurrency
	if maxConc <= 0 {
		maxConc = 1
	}
	sem := make(chan struct{}, maxConc)
	var wg sync.WaitGroup
	for _, chatID := range order {
		group := groups[chatID]
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() {
				<-sem
				wg.Done()
			}()
			for _, u := range group {
				if err := p.Dispatcher.ProcessUpdate(ctx, u); err != nil {
					log.Error().Err(err).Int64("chat_id", u.ChatID).Int64("update_id", u.ID).Msg("dispatch update")
				}
			}
		}()
	}
	wg.Wait()

	return sorted[len(sorted)-1].ID
}

func (p *Poller) timeout() time.Duration {
	if p.Timeout <= 0 {
		return 60 * time.Second
	}
	return p.Timeout
}

func (p *Poller) retryDelay() time.Duration {
	if p.RetryDelay <= 0 {
		return 3 * time.Second
	}
	return p.RetryDelay
}
