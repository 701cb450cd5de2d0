package querycache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quka-ai/kbcore/pkg/testutils"
	"github.com/quka-ai/kbcore/pkg/types"
	"github.com/quka-ai/kbcore/pkg/utils"
)

func TestKey(t *testing.T) {
	k := Key("t1", "c1", "Refund   Policy")
	assert.True(t, strings.HasPrefix(k, KEY_PREFIX))
	assert.Len(t, strings.TrimPrefix(k, KEY_PREFIX), 40)

	assert.Equal(t, k, Key(" t1 ", "c1", "refund policy"))
	assert.NotEqual(t, k, Key("t2", "c1", "refund policy"))
	assert.NotEqual(t, k, Key("t1", "c2", "refund policy"))
	assert.NotEqual(t, k, Key("t1", "", "refund policy"))
	// separators keep fields apart
	assert.NotEqual(t, Key("ab", "c", "q"), Key("a", "bc", "q"))
}

func candidates() []types.SearchCandidate {
	return []types.SearchCandidate{
		{ID: "1", Content: "Refunds take 14 days.", Scores: types.SearchScores{Vector: 0.9, Hybrid: 0.45}},
	}
}

func TestMemoryTTL(t *testing.T) {
	now := time.Unix(100, 0)
	mem := NewMemory()
	mem.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, mem.SetEx(ctx, "a", "1", time.Minute))
	require.NoError(t, mem.SetEx(ctx, "b", "2", time.Second))

	v, err := mem.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	now = now.Add(2 * time.Second)
	_, err = mem.Get(ctx, "b")
	assert.ErrorIs(t, err, types.ErrCacheMiss)
	assert.Equal(t, 1, mem.Len())

	require.NoError(t, mem.Expire(ctx, "a", time.Second))
	require.NoError(t, mem.Expire(ctx, "missing", time.Hour))
	assert.Equal(t, 1, mem.Len())

	now = now.Add(5 * time.Second)
	assert.Equal(t, 1, mem.Sweep())
	assert.Equal(t, 0, mem.Len())
}

func TestKVRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemory(), time.Minute)

	_, ok := c.Get(ctx, "t1", "c1", "refunds")
	assert.False(t, ok)

	c.Set(ctx, "t1", "c1", "refunds", candidates())
	got, ok := c.Get(ctx, "t1", "c1", "  REFUNDS ")
	require.True(t, ok)
	assert.Equal(t, candidates(), got)

	_, ok = c.Get(ctx, "t2", "c1", "refunds")
	assert.False(t, ok)
}

func TestKVInvalidate(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemory(), time.Minute)

	c.Set(ctx, "t1", "c1", "refunds", candidates())
	c.Set(ctx, "t2", "c1", "refunds", candidates())

	c.Invalidate(ctx, "t1")
	_, ok := c.Get(ctx, "t1", "c1", "refunds")
	assert.False(t, ok)

	_, ok = c.Get(ctx, "t2", "c1", "refunds")
	assert.True(t, ok)

	// entries written after the bump are visible again
	c.Set(ctx, "t1", "c1", "refunds", candidates())
	got, ok := c.Get(ctx, "t1", "c1", "refunds")
	require.True(t, ok)
	assert.Equal(t, candidates(), got)

	c.Invalidate(ctx, "t1")
	_, ok = c.Get(ctx, "t1", "c1", "refunds")
	assert.False(t, ok)

	Nop{}.Invalidate(ctx, "t1")
}

type brokenBackend struct{}

func (brokenBackend) Get(context.Context, string) (string, error) {
	return "{not json", nil
}

func (brokenBackend) SetEx(context.Context, string, string, time.Duration) error {
	return errors.New("read only")
}

func (brokenBackend) Expire(context.Context, string, time.Duration) error {
	return nil
}

func TestKVToleratesBackendFailures(t *testing.T) {
	c := New(brokenBackend{}, 0)
	c.Set(context.Background(), "t1", "", "q", candidates())
	_, ok := c.Get(context.Background(), "t1", "", "q")
	assert.False(t, ok)
}

func TestRedisBackend(t *testing.T) {
	addr := testutils.RequireEnv(t, "KB_REDIS_ADDR")
	cli := redis.NewClient(&redis.Options{Addr: addr})
	defer cli.Close()

	ctx := context.Background()
	backend := NewRedis(cli)
	key := "kb:test:" + utils.RandomStr(8)
	t.Cleanup(func() { cli.Del(context.Background(), key) })

	_, err := backend.Get(ctx, key)
	assert.ErrorIs(t, err, types.ErrCacheMiss)

	require.NoError(t, backend.SetEx(ctx, key, "v", time.Minute))
	v, err := backend.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}
