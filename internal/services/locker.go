// Package services – per-chat mutual exclusion
//
// The read → execute → write sequence of a dispatch must not interleave for
// one chat. ChatLocker hands out a lock per chat identity; distinct chats never
// contend.
package services

import (
	"context"
	"sync"
)

// ChatLocker serializes work per chat. Lock blocks until the chat is free or
// ctx is done; the returned function releases the lock.
type ChatLocker interface {
	Lock(ctx context.Context, chatID int64) (unlock func(), err error)
}

// LocalLocker is an in-process ChatLocker. Entries are reference counted and
// dropped once nobody holds or waits for them, so memory stays proportional to
// the number of chats currently in flight.
type LocalLocker struct {
	mu    sync.Mutex
	chats map[int64]*chatLock
}

type chatLock struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker returns a ready LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{chats: map[int64]*chatLock{}}
}

// Lock implements ChatLocker.
func (l *LocalLocker) Lock(ctx context.Context, chatID int64) (func(), error) {
	l.mu.Lock()
	if l.chats == nil {
		l.chats = map[int64]*chatLock{}
	}
	cl, ok := l.chats[chatID]
	if !ok {
		cl = &chatLock{ch: make(chan struct{}, 1)}
		l.chats[chatID] = cl
	}
	cl.refs++
	l.mu.Unlock()

	select {
	case cl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(chatID, cl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-cl.ch
			l.release(chatID, cl)
		})
	}, nil
}

func (l *LocalLocker) release(chatID int64, cl *chatLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cl.refs--
	if cl.refs == 0 {
		delete(l.chats, chatID)
	}
}
