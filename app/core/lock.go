package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quka-ai/kbcore/pkg/utils"
)

func IngestLockKey(tenantID, sourceID string) string {
	return fmt.Sprintf("kb:ingest:%s:%s", tenantID, sourceID)
}

// Locker hands out exclusive, expiring locks. unlock is safe to call more
// than once.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// 仅当 value 与加锁时写入的 token 一致才删除，避免误删他人的锁
const releaseScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`

type RedisLock struct {
	redis redis.UniversalClient
}

func NewRedisLock(cli redis.UniversalClient) *RedisLock {
	return &RedisLock{redis: cli}
}

func (l *RedisLock) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := utils.GenRandomID()
	ok, err := l.redis.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return func() {}, false, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := l.redis.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
				slog.Error("failed to release lock", slog.String("key", key), slog.String("error", err.Error()))
			}
		})
	}, true, nil
}

// SingleLock is a process local Locker for deployments without redis.
type SingleLock struct {
	mu    sync.Mutex
	locks map[string]time.Time
	now   func() time.Time
}

func NewSingleLock() *SingleLock {
	return &SingleLock{
		locks: make(map[string]time.Time),
		now:   time.Now,
	}
}

func (s *SingleLock) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.locks[key]; ok && now.Before(exp) {
		return func() {}, false, nil
	}
	expiresAt := now.Add(ttl)
	s.locks[key] = expiresAt

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.locks[key] == expiresAt {
				delete(s.locks, key)
			}
		})
	}, true, nil
}
