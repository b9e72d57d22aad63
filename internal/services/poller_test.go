package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-chat-dispatch/internal/domain"
)

// fakeSource serves queued batches and records fetch/ack calls.
type fakeSource struct {
	mu       sync.Mutex
	batches  [][]domain.Update
	since    []int64
	acks     []int64
	fetchErr error
	ackErr   error
}

func (f *fakeSource) FetchUpdates(ctx context.Context, since int64, _ time.Duration) ([]domain.Update, error) {
	f.mu.Lock()
	f.since = append(f.since, since)
	if f.fetchErr != nil {
		f.mu.Unlock()
		return nil, f.fetchErr
	}
	if len(f.batches) > 0 {
		b := f.batches[0]
		f.batches = f.batches[1:]
		f.mu.Unlock()
		return b, nil
	}
	f.mu.Unlock()

	// Stand-in for the long-poll wait.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Millisecond):
		return nil, nil
	}
}

func (f *fakeSource) AckUpdates(ctx context.Context, upto int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks = append(f.acks, upto)
	return f.ackErr
}

// orderRecorder is an UpdateProcessor that notes the processing order.
type orderRecorder struct {
	mu   sync.Mutex
	seen []int64
	done int
}

func (o *orderRecorder) ProcessUpdate(_ context.Context, u *domain.Update) error {
	o.mu.Lock()
	o.seen = append(o.seen, u.ID)
	o.done++
	o.mu.Unlock()
	return nil
}

func TestPoller_BatchOrderAndAckAfterAll(t *testing.T) {
	// Updates 5, 6, 7 for chat 1: 6 opens a conversation, 7 has no command
	// and must observe the state written by 6.
	f := newDispatchFixture(t)
	h := &scripted{next: func(u *domain.Update, state []byte) ([]byte, error) {
		if u.ID == 6 {
			return []byte("waiting"), nil
		}
		return nil, nil
	}}
	f.cmds.MustRegister(domain.CommandDescriptor{ID: "notify"}, h.factory())

	src := &fakeSource{batches: [][]domain.Update{{
		*textUpdate(7, 1, "1"),
		*textUpdate(5, 1, "/notify"),
		*textUpdate(6, 1, "/notify"),
	}}}
	p := &Poller{Source: src, Dispatcher: f.d, Settings: f.store, Concurrency: 4}

	n, err := p.PollOnce(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("PollOnce: n=%d err=%v", n, err)
	}

	calls := h.snapshot()
	if len(calls) != 3 || calls[0].UpdateID != 5 || calls[1].UpdateID != 6 || calls[2].UpdateID != 7 {
		t.Fatalf("expected ascending order, got %+v", calls)
	}
	if calls[2].State != "waiting" {
		t.Fatalf("update 7 must see state from 6, got %q", calls[2].State)
	}
	if st := f.state(t, 1); st != nil {
		t.Fatalf("conversation should be finished, got %+v", st)
	}
	if len(src.acks) != 1 || src.acks[0] != 7 {
		t.Fatalf("expected a single ack up to 7, got %v", src.acks)
	}
	if p.Offset() != 8 {
		t.Fatalf("expected next offset 8, got %d", p.Offset())
	}
	v, ok, _ := f.store.GetSetting(context.Background(), PollOffsetKey)
	if !ok || v != "8" {
		t.Fatalf("expected persisted checkpoint 8, got %q %v", v, ok)
	}

	// Replaying the same batch ends in the same state.
	src.batches = [][]domain.Update{{*textUpdate(5, 1, "/notify"), *textUpdate(6, 1, "/notify"), *textUpdate(7, 1, "1")}}
	if _, err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if st := f.state(t, 1); st != nil {
		t.Fatalf("replay must converge to the same state, got %+v", st)
	}
}

func TestPoller_ProcessBatchParallelAcrossChats(t *testing.T) {
	rec := &orderRecorder{}
	p := &Poller{Dispatcher: rec, Concurrency: 3}
	batch := []domain.Update{
		{ID: 4, ChatID: 2}, {ID: 1, ChatID: 1}, {ID: 3, ChatID: 1}, {ID: 2, ChatID: 3},
	}
	if upto := p.ProcessBatch(context.Background(), batch); upto != 4 {
		t.Fatalf("upto=%d want 4", upto)
	}
	if rec.done != 4 {
		t.Fatalf("expected all updates processed before return, got %d", rec.done)
	}
	// Chat 1's updates keep their relative order.
	var chat1 []int64
	for _, id := range rec.seen {
		if id == 1 || id == 3 {
			chat1 = append(chat1, id)
		}
	}
	if len(chat1) != 2 || chat1[0] != 1 || chat1[1] != 3 {
		t.Fatalf("per-chat order broken: %v", rec.seen)
	}
	if p.ProcessBatch(context.Background(), nil) != 0 {
		t.Fatalf("empty batch must return 0")
	}
}

func TestPoller_FetchErrorAndEmpty(t *testing.T) {
	src := &fakeSource{fetchErr: errors.New("timeout")}
	p := &Poller{Source: src, Dispatcher: &orderRecorder{}}
	if _, err := p.PollOnce(context.Background()); err == nil {
		t.Fatalf("expected fetch error")
	}
	src.fetchErr = nil
	if n, err := p.PollOnce(context.Background()); err != nil || n != 0 {
		t.Fatalf("empty poll: %d %v", n, err)
	}
	if len(src.acks) != 0 {
		t.Fatalf("no ack for empty or failed fetch")
	}
}

func TestPoller_AckErrorStillAdvances(t *testing.T) {
	src := &fakeSource{
		batches: [][]domain.Update{{{ID: 10, ChatID: 1}}},
		ackErr:  errors.New("network"),
	}
	store := newTestStore(t)
	p := &Poller{Source: src, Dispatcher: &orderRecorder{}, Settings: store}
	if _, err := p.PollOnce(context.Background()); err == nil {
		t.Fatalf("expected ack error")
	}
	if p.Offset() != 11 {
		t.Fatalf("offset must move past processed batch, got %d", p.Offset())
	}
	if _, ok, _ := store.GetSetting(context.Background(), PollOffsetKey); ok {
		t.Fatalf("checkpoint must only persist after a successful ack")
	}
}

func TestPoller_RestoreAndRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_ = store.PutSetting(ctx, PollOffsetKey, "41")

	src := &fakeSource{batches: [][]domain.Update{{{ID: 41, ChatID: 1}}}}
	rec := &orderRecorder{}
	p := &Poller{Source: src, Dispatcher: rec, Settings: store, RetryDelay: time.Millisecond}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- p.Run(runCtx) }()

	waitFor(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return len(src.acks) == 1
	})
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop")
	}

	src.mu.Lock()
	defer src.mu.Unlock()
	if src.since[0] != 41 {
		t.Fatalf("expected first fetch from restored offset 41, got %v", src.since)
	}

	// Corrupt checkpoints are ignored.
	_ = store.PutSetting(ctx, PollOffsetKey, "garbage")
	p2 := &Poller{Settings: store}
	if err := p2.Restore(ctx); err != nil || p2.Offset() != 0 {
		t.Fatalf("corrupt checkpoint: %v offset=%d", err, p2.Offset())
	}
}
