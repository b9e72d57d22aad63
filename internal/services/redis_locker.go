package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// releaseLua deletes the key only when it still holds our token.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

// redisLockClient is the subset of redis.UniversalClient the locker uses.
type redisLockClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisLocker is a ChatLocker shared by every process pointing at the same
// Redis. Each lock is a key holding a random token with a TTL, so a crashed
// holder frees the chat after TTL.
type RedisLocker struct {
	rdb    redisLockClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker builds a locker on rdb. ttl bounds how long a crashed
// process can keep a chat blocked; it should exceed the slowest handler.
func NewRedisLocker(rdb redis.UniversalClient, ttl time.Duration) *RedisLocker {
	return newRedisLocker(rdb, ttl)
}

func newRedisLocker(rdb redisLockClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{rdb: rdb, prefix: "chatdispatch:lock", ttl: ttl, retry: 50 * time.Millisecond}
}

func (l *RedisLocker) key(chatID int64) string {
	return fmt.Sprintf("%s:%d", l.prefix, chatID)
}

// Lock implements ChatLocker. It polls SET NX until it wins or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, chatID int64) (func(), error) {
	key := l.key(chatID)
	token := uuid.NewString()

	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			break
		}
		t := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	return func() {
		// Release even when the caller's context is already cancelled.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.rdb.Eval(rctx, releaseLua, []string{key}, token).Err(); err != nil {
			log.Warn().Err(err).Int64("chat_id", chatID).Msg("redis unlock failed; lock expires by ttl")
		}
	}, nil
}
