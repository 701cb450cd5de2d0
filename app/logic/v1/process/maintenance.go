package process

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quka-ai/kbcore/pkg/register"
)

func init() {
	register.RegisterFunc[*Process](ProcessKey{}, func(p *Process) {
		if interval := p.core.Cfg().AI.Rerank.WarmInterval; interval > 0 {
			p.schedule("rerank-warm", fmt.Sprintf("@every %s", interval), func() {
				p.WarmReranker(context.Background())
			})
		}

		p.schedule("query-cache-sweep", "@every 1m", func() {
			if n := p.core.SweepQueryCache(); n > 0 {
				slog.Debug("expired query cache entries removed", slog.Int("count", n))
			}
		})
	})
}

// WarmReranker keeps the cross-encoder model loaded.
func (p *Process) WarmReranker(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := p.core.Srv().AI().Warm(ctx); err != nil {
		slog.Warn("rerank warm ping failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}
