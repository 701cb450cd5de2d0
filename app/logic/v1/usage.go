package v1

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/quka-ai/kbcore/app/core"
	"github.com/quka-ai/kbcore/pkg/ai"
	"github.com/quka-ai/kbcore/pkg/errors"
	"github.com/quka-ai/kbcore/pkg/types"
)

type usageRecord struct {
	tenantID string
	typ      string
	subType  string
	objectID string
	model    string
	prompt   int
	output   int
}

func usageFromAI(u *ai.Usage) (model string, prompt, output int) {
	if u == nil || u.Usage == nil {
		return "", 0, 0
	}
	return u.Model, u.Usage.PromptTokens, u.Usage.CompletionTokens
}

// recordUsage writes one ledger row. Failures only get logged.
func recordUsage(ctx context.Context, core *core.Core, r usageRecord) {
	if r.prompt == 0 && r.output == 0 {
		return
	}
	err := core.Store().AITokenUsageStore().Create(ctx, types.AITokenUsage{
		TenantID:    r.tenantID,
		Type:        r.typ,
		SubType:     r.subType,
		ObjectID:    r.objectID,
		Model:       r.model,
		UsagePrompt: r.prompt,
		UsageOutput: r.output,
		CreatedAt:   time.Now().Unix(),
	})
	if err != nil {
		slog.Error("failed to record token usage",
			slog.String("tenant_id", r.tenantID),
			slog.String("object_id", r.objectID),
			slog.String("sub_type", r.subType),
			slog.String("error", err.Error()))
	}
}

type UsageLogic struct {
	ctx  context.Context
	core *core.Core
}

func NewUsageLogic(ctx context.Context, core *core.Core) *UsageLogic {
	return &UsageLogic{
		ctx:  ctx,
		core: core,
	}
}

// Summary groups the tenant's token usage by model within [st, et].
func (l *UsageLogic) Summary(tenantID string, st, et time.Time) ([]types.AITokenSummary, error) {
	if et.Before(st) {
		return nil, errors.New("UsageLogic.Summary.InvalidTimeRange", ERROR_INVALIDARGUMENT, nil).Code(http.StatusBadRequest)
	}
	list, err := l.core.Store().AITokenUsageStore().ListTenantEachModelUsage(l.ctx, tenantID, st, et)
	if err != nil {
		return nil, errors.New("UsageLogic.Summary.AITokenUsageStore.ListTenantEachModelUsage", ERROR_INTERNAL, err)
	}
	return list, nil
}
