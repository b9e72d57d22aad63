package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-chat-dispatch/internal/domain"
	"github.com/tbourn/go-chat-dispatch/internal/repo"
)

// ---------- test helpers ----------

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// One connection keeps the shared in-memory database alive and avoids
	// SQLITE_LOCKED between concurrent writers.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return NewStore(db)
}

type sent struct {
	ChatID int64
	Msg    domain.OutboundMessage
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []sent
	fail  map[int64]error
	calls int
}

func (f *fakeSender) Send(_ context.Context, chatID int64, msg domain.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.fail[chatID]; err != nil {
		return err
	}
	f.sent = append(f.sent, sent{ChatID: chatID, Msg: msg})
	return nil
}

func (f *fakeSender) texts(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.sent {
		if s.ChatID == chatID {
			out = append(out, s.Msg.Text)
		}
	}
	return out
}

type fakeAnswerer struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeAnswerer) AnswerCallback(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	return nil
}

// call records one handler invocation.
type call struct {
	UpdateID int64
	State    string
}

// scripted is a handler whose continuation state is chosen per test.
type scripted struct {
	mu    sync.Mutex
	calls []call
	next  func(u *domain.Update, state []byte) ([]byte, error)
}

func (s *scripted) factory() HandlerFactory {
	return func() Handler {
		return HandlerFunc(func(_ context.Context, u *domain.Update, state []byte) ([]byte, error) {
			s.mu.Lock()
			s.calls = append(s.calls, call{UpdateID: u.ID, State: string(state)})
			s.mu.Unlock()
			if s.next == nil {
				return nil, nil
			}
			return s.next(u, state)
		})
	}
}

func (s *scripted) snapshot() []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]call, len(s.calls))
	copy(out, s.calls)
	return out
}

// staticGate grants by (permission, chat) table; empty permission always passes.
type staticGate struct {
	grants map[string]map[int64]bool
	err    error
}

func (g *staticGate) Check(_ context.Context, perm string, chatID int64) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	if perm == "" {
		return true, nil
	}
	return g.grants[perm][chatID], nil
}

// brokenStates fails every call with ErrStore.
type brokenStates struct{}

var errBroken = fmt.Errorf("get conversation: %w: disk gone", ErrStore)

func (brokenStates) Get(context.Context, int64) (*domain.ConversationState, error) {
	return nil, errBroken
}
func (brokenStates) Put(context.Context, int64, string, []byte) error { return errBroken }
func (brokenStates) Delete(context.Context, int64) error              { return errBroken }

func textUpdate(id, chatID int64, text string) *domain.Update {
	u := &domain.Update{ID: id, ChatID: chatID, Text: text}
	if len(text) > 0 && text[0] == '/' {
		n := len(text)
		for i, r := range text {
			if r == ' ' {
				n = i
				break
			}
		}
		u.Entities = []domain.Entity{{Type: domain.EntityBotCommand, Offset: 0, Length: n}}
	}
	return u
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
