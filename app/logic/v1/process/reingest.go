package process

import (
	"context"
	"log/slog"
	"sync"
	"time"

	v1 "github.com/quka-ai/kbcore/app/logic/v1"
	"github.com/quka-ai/kbcore/pkg/register"
	"github.com/quka-ai/kbcore/pkg/types"
)

func init() {
	register.RegisterFunc[*Process](ProcessKey{}, func(p *Process) {
		p.schedule("reingest", p.core.Cfg().Process.WithDefaults().ReingestSpec, func() {
			p.exclusive("reingest", func() {
				p.ReingestPending(context.Background())
			})
		})
	})
}

// ReingestPending ingests every source flagged by the monitor and returns the
// number of successful runs.
func (p *Process) ReingestPending(ctx context.Context) int {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)

	// 先取完整列表再提交，入库过程中状态会变化，分页遍历会漏数据
	list, err := p.core.Store().KnowledgeSourceStore().List(ctx, types.ListSourceOptions{
		Status: types.SOURCE_STATUS_PENDING_REINGEST,
	}, types.NO_PAGINATION, types.NO_PAGINATION)
	if err != nil {
		slog.Error("failed to list sources pending re-ingestion", slog.String("error", err.Error()))
		return 0
	}

	for _, source := range list {
		wg.Add(1)
		err := p.ingestPool.Submit(func() {
			defer wg.Done()
			if p.ingestOne(ctx, source) {
				mu.Lock()
				success++
				mu.Unlock()
			}
		})
		if err != nil {
			wg.Done()
			slog.Error("failed to submit re-ingestion", slog.String("tenant_id", source.TenantID), slog.String("source_id", source.ID), slog.String("error", err.Error()))
		}
	}

	wg.Wait()
	return success
}

func (p *Process) ingestOne(ctx context.Context, source types.KnowledgeSource) bool {
	ctx, cancel := context.WithTimeout(ctx, p.core.Cfg().Process.WithDefaults().IngestLockTTL)
	defer cancel()

	start := time.Now()
	res, err := v1.NewIngestLogic(ctx, p.core).Ingest(source.TenantID, source.ID)
	if err != nil {
		slog.Warn("re-ingestion failed",
			slog.String("tenant_id", source.TenantID),
			slog.String("source_id", source.ID),
			slog.String("error", err.Error()))
		return false
	}
	slog.Info("source re-ingested",
		slog.String("tenant_id", source.TenantID),
		slog.String("source_id", source.ID),
		slog.Int("chunks", res.ChunksStored),
		slog.Duration("took", time.Since(start)))
	return true
}
