package querycache

import (
	"context"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/quka-ai/kbcore/pkg/types"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// Memory is an in-process types.Cache. Expired entries are dropped lazily on
// read and in bulk by Sweep.
type Memory struct {
	items cmap.ConcurrentMap[string, entry]
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		items: cmap.New[entry](),
		now:   time.Now,
	}
}

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	e, ok := m.items.Get(key)
	if !ok {
		return "", types.ErrCacheMiss
	}
	if !m.now().Before(e.expiresAt) {
		m.items.RemoveCb(key, func(_ string, v entry, exists bool) bool {
			return exists && !m.now().Before(v.expiresAt)
		})
		return "", types.ErrCacheMiss
	}
	return e.value, nil
}

func (m *Memory) SetEx(ctx context.Context, key, value string, expiresAt time.Duration) error {
	m.items.Set(key, entry{value: value, expiresAt: m.now().Add(expiresAt)})
	return nil
}

func (m *Memory) Expire(ctx context.Context, key string, expiration time.Duration) error {
	if e, ok := m.items.Get(key); ok {
		e.expiresAt = m.now().Add(expiration)
		m.items.Set(key, e)
	}
	return nil
}

// Sweep removes expired entries and returns how many were dropped.
func (m *Memory) Sweep() int {
	now := m.now()
	n := 0
	for item := range m.items.IterBuffered() {
		if now.Before(item.Val.expiresAt) {
			continue
		}
		if m.items.RemoveCb(item.Key, func(_ string, v entry, exists bool) bool {
			return exists && !now.Before(v.expiresAt)
		}) {
			n++
		}
	}
	return n
}

func (m *Memory) Len() int {
	return m.items.Count()
}
