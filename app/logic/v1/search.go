package v1

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/quka-ai/kbcore/app/core"
	"github.com/quka-ai/kbcore/pkg/ai/rerank"
	"github.com/quka-ai/kbcore/pkg/errors"
	"github.com/quka-ai/kbcore/pkg/querycache"
	"github.com/quka-ai/kbcore/pkg/types"
)

type SearchLogic struct {
	ctx   context.Context
	core  *core.Core
	cache querycache.Cache
}

func NewSearchLogic(ctx context.Context, core *core.Core) *SearchLogic {
	return &SearchLogic{
		ctx:   ctx,
		core:  core,
		cache: core.QueryCache(),
	}
}

// WithCache overrides the query cache taken from core.
func (l *SearchLogic) WithCache(c querycache.Cache) *SearchLogic {
	l.cache = c
	return l
}

// Search runs hybrid retrieval and the optional rerank step. It only fails on
// invalid input; a degraded query returns whatever the remaining signals
// found, possibly nothing.
func (l *SearchLogic) Search(tenantID, conversationID, query string) ([]types.SearchCandidate, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, errors.New("SearchLogic.Search.EmptyTenant", ERROR_INVALIDARGUMENT, nil).Code(http.StatusBadRequest)
	}
	if strings.TrimSpace(query) == "" {
		return []types.SearchCandidate{}, nil
	}

	if l.cache != nil {
		if list, ok := l.cache.Get(l.ctx, tenantID, conversationID, query); ok {
			l.core.Metrics().QueryCacheInc(true)
			return list, nil
		}
		l.core.Metrics().QueryCacheInc(false)
	}

	timer := l.core.Metrics().SearchTimer()
	defer timer.ObserveDuration()

	res := l.core.Retrieval().Search(l.ctx, tenantID, query)
	model, prompt, output := usageFromAI(res.Usage)
	recordUsage(l.ctx, l.core, usageRecord{
		tenantID: tenantID,
		typ:      types.USAGE_TYPE_SEARCH,
		subType:  types.USAGE_SUB_TYPE_QUERY,
		objectID: res.QueryID,
		model:    model,
		prompt:   prompt,
		output:   output,
	})

	list := res.Candidates
	if reranker := l.core.Srv().AI().Reranker(); reranker != nil && len(list) > 0 {
		reranked, usage, err := rerank.Apply(l.ctx, reranker, query, list)
		if err != nil {
			l.core.Metrics().RerankFallbackInc()
			slog.Warn("rerank failed, keeping hybrid order",
				slog.String("tenant_id", tenantID),
				slog.String("query_id", res.QueryID),
				slog.String("error", err.Error()))
		}
		list = reranked
		model, prompt, output = usageFromAI(usage)
		recordUsage(l.ctx, l.core, usageRecord{
			tenantID: tenantID,
			typ:      types.USAGE_TYPE_SEARCH,
			subType:  types.USAGE_SUB_TYPE_RERANK,
			objectID: res.QueryID,
			model:    model,
			prompt:   prompt,
			output:   output,
		})
	}

	if list == nil {
		list = []types.SearchCandidate{}
	}
	// 空结果不缓存，避免把一次降级的结果固定下来
	if l.cache != nil && len(list) > 0 {
		l.cache.Set(l.ctx, tenantID, conversationID, query, list)
	}
	return list, nil
}
