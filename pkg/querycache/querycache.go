// Package querycache memoizes search results per tenant, conversation and
// normalized query.
package querycache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/quka-ai/kbcore/pkg/normalizer"
	"github.com/quka-ai/kbcore/pkg/types"
	"github.com/quka-ai/kbcore/pkg/utils"
)

const (
	KEY_PREFIX  = "kb:search:"
	DEFAULT_TTL = 10 * time.Minute
)

type Cache interface {
	Get(ctx context.Context, tenantID, conversationID, query string) ([]types.SearchCandidate, bool)
	Set(ctx context.Context, tenantID, conversationID, query string, list []types.SearchCandidate)
	// Invalidate drops every cached result of the tenant.
	Invalidate(ctx context.Context, tenantID string)
}

// Key derives the cache key. Queries that normalize to the same text share a
// key.
func Key(tenantID, conversationID, query string) string {
	h := sha1.New()
	h.Write([]byte(strings.TrimSpace(tenantID)))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(conversationID)))
	h.Write([]byte{0})
	h.Write([]byte(normalizer.Normalize(query)))
	return KEY_PREFIX + hex.EncodeToString(h.Sum(nil))
}

func generationKey(tenantID string) string {
	return KEY_PREFIX + "gen:" + strings.TrimSpace(tenantID)
}

// KV stores JSON encoded results in a string cache backend. Entry keys carry
// the tenant's current generation, so bumping it orphans older entries until
// their ttl runs out.
type KV struct {
	backend types.Cache
	ttl     time.Duration
}

func New(backend types.Cache, ttl time.Duration) *KV {
	if ttl <= 0 {
		ttl = DEFAULT_TTL
	}
	return &KV{backend: backend, ttl: ttl}
}

// generation 读取失败时按空值处理，最坏情况是命中旧条目直到过期
func (c *KV) generation(ctx context.Context, tenantID string) string {
	gen, err := c.backend.Get(ctx, generationKey(tenantID))
	if err != nil {
		if !errors.Is(err, types.ErrCacheMiss) {
			slog.Warn("query cache generation read failed", slog.String("tenant_id", tenantID), slog.String("error", err.Error()))
		}
		return ""
	}
	return gen
}

func (c *KV) entryKey(ctx context.Context, tenantID, conversationID, query string) string {
	k := Key(tenantID, conversationID, query)
	if gen := c.generation(ctx, tenantID); gen != "" {
		k += ":" + gen
	}
	return k
}

func (c *KV) Get(ctx context.Context, tenantID, conversationID, query string) ([]types.SearchCandidate, bool) {
	raw, err := c.backend.Get(ctx, c.entryKey(ctx, tenantID, conversationID, query))
	if err != nil {
		if !errors.Is(err, types.ErrCacheMiss) {
			slog.Warn("query cache read failed", slog.String("tenant_id", tenantID), slog.String("error", err.Error()))
		}
		return nil, false
	}

	var list []types.SearchCandidate
	if err = json.Unmarshal([]byte(raw), &list); err != nil {
		slog.Warn("query cache entry is corrupted", slog.String("tenant_id", tenantID), slog.String("error", err.Error()))
		return nil, false
	}
	return list, true
}

func (c *KV) Set(ctx context.Context, tenantID, conversationID, query string, list []types.SearchCandidate) {
	raw, err := json.Marshal(list)
	if err != nil {
		return
	}
	if err = c.backend.SetEx(ctx, c.entryKey(ctx, tenantID, conversationID, query), string(raw), c.ttl); err != nil {
		slog.Warn("query cache write failed", slog.String("tenant_id", tenantID), slog.String("error", err.Error()))
	}
}

// Invalidate moves the tenant to a fresh generation. The generation key only
// needs to outlive the entries written under it.
func (c *KV) Invalidate(ctx context.Context, tenantID string) {
	if err := c.backend.SetEx(ctx, generationKey(tenantID), utils.RandomStr(12), c.ttl); err != nil {
		slog.Warn("query cache invalidation failed", slog.String("tenant_id", tenantID), slog.String("error", err.Error()))
	}
}

// Nop never hits.
type Nop struct{}

func (Nop) Get(context.Context, string, string, string) ([]types.SearchCandidate, bool) {
	return nil, false
}

func (Nop) Set(context.Context, string, string, string, []types.SearchCandidate) {}

func (Nop) Invalidate(context.Context, string) {}
