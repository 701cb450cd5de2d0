// Package monitor detects content changes of url sources.
package monitor

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/quka-ai/kbcore/pkg/chunker"
	"github.com/quka-ai/kbcore/pkg/reader"
	"github.com/quka-ai/kbcore/pkg/reader/web"
	"github.com/quka-ai/kbcore/pkg/types"
	"github.com/quka-ai/kbcore/pkg/utils"
)

// CheckUpdater persists the outcome of a check.
type CheckUpdater interface {
	UpdateCheck(ctx context.Context, tenantID, id string, data types.SourceCheckUpdate) error
}

type Monitor struct {
	fetcher *web.Fetcher
	store   CheckUpdater
	now     func() time.Time
	observe func(status string)
}

type Option func(*Monitor)

func WithObserver(fn func(status string)) Option {
	return func(m *Monitor) {
		m.observe = fn
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

func New(fetcher *web.Fetcher, store CheckUpdater, opts ...Option) *Monitor {
	if fetcher == nil {
		fetcher = web.NewFetcher(0)
	}
	m := &Monitor{
		fetcher: fetcher,
		store:   store,
		now:     time.Now,
		observe: func(string) {},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ContentHash hashes the visible text of a page so that markup-only changes
// do not count as content changes.
func ContentHash(page *web.Page) string {
	body := page.Body
	if strings.Contains(page.ContentType, "html") || reader.LooksLikeHTML(body) {
		if text, err := chunker.ExtractText(body); err == nil {
			body = text
		}
	}
	return utils.SHA256Hex(body)
}

// Check fetches the source url and compares it against the stored hash.
// A reachable source whose last ingestion failed is queued again.
// Failures become statuses; Check itself never fails.
func (m *Monitor) Check(ctx context.Context, src types.KnowledgeSource) types.CheckResult {
	logger := slog.With(slog.String("tenant_id", src.TenantID), slog.String("source_id", src.ID))

	res := types.CheckResult{SourceID: src.ID, Hash: src.ContentHash}
	update := types.SourceCheckUpdate{CheckedAt: m.now().Unix()}

	page, err := m.fetcher.Fetch(ctx, src.URL)
	switch {
	case err != nil:
		res.Status = web.CheckStatus(err)
		logger.Warn("source check failed", slog.String("status", res.Status), slog.String("error", err.Error()))
	default:
		hash := ContentHash(page)
		switch {
		case src.ContentHash == "":
			res.Status = types.CHECK_STATUS_OK
			update.ContentHash = hash
		case src.ContentHash == hash:
			res.Status = types.CHECK_STATUS_OK
		default:
			res.Status = types.CHECK_STATUS_CONTENT_CHANGED
			res.Changed = true
			update.ContentHash = hash
			update.Status = types.SOURCE_STATUS_PENDING_REINGEST
			logger.Info("source content changed", slog.String("old_hash", src.ContentHash), slog.String("new_hash", hash))
		}
		// 上次重新入库失败时哈希已经更新，内容不再变化也要重新排队
		if src.Status == types.SOURCE_STATUS_FAILED_INGEST {
			update.Status = types.SOURCE_STATUS_PENDING_REINGEST
		}
		res.Hash = hash
	}

	update.CheckStatus = res.Status
	if err = m.store.UpdateCheck(ctx, src.TenantID, src.ID, update); err != nil {
		logger.Error("failed to persist check result", slog.String("error", err.Error()))
	}
	m.observe(res.Status)
	return res
}
