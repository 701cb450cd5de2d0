package process

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/quka-ai/kbcore/pkg/register"
	"github.com/quka-ai/kbcore/pkg/types"
)

func init() {
	register.RegisterFunc[*Process](ProcessKey{}, func(p *Process) {
		p.schedule("monitor", p.core.Cfg().Process.WithDefaults().MonitorSpec, func() {
			p.exclusive("monitor", func() {
				p.CheckDueSources(context.Background())
			})
		})
	})
}

// CheckDueSources checks every url source whose last check is older than the
// configured interval. It returns the number of sources per check status.
func (p *Process) CheckDueSources(ctx context.Context) map[string]int {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		summary = map[string]int{}
		mon     = p.core.Monitor()
		due     = time.Now().Add(-p.core.Cfg().Monitor.Interval()).Unix()
	)

	list, err := p.core.Store().KnowledgeSourceStore().List(ctx, types.ListSourceOptions{
		Kind:          types.SOURCE_KIND_URL,
		CheckedBefore: due,
	}, types.NO_PAGINATION, types.NO_PAGINATION)
	if err != nil {
		slog.Error("failed to list sources due for checking", slog.String("error", err.Error()))
		return summary
	}
	// 正在入库或等待重新入库的来源跳过，下次扫描再检查
	list = lo.Filter(list, func(item types.KnowledgeSource, _ int) bool {
		return item.Status != types.SOURCE_STATUS_INGESTING && item.Status != types.SOURCE_STATUS_PENDING_REINGEST
	})

	for _, source := range list {
		wg.Add(1)
		err := p.monitorPool.Submit(func() {
			defer wg.Done()
			res := mon.Check(ctx, source)
			mu.Lock()
			summary[res.Status]++
			mu.Unlock()
		})
		if err != nil {
			wg.Done()
			slog.Error("failed to submit source check", slog.String("tenant_id", source.TenantID), slog.String("source_id", source.ID), slog.String("error", err.Error()))
		}
	}
	wg.Wait()

	if len(list) > 0 {
		slog.Info("monitor sweep finished", slog.Int("checked", len(list)), slog.Any("statuses", summary))
	}
	return summary
}
