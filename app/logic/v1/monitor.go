package v1

import (
	"context"
	"fmt"
	"net/http"

	"github.com/quka-ai/kbcore/app/core"
	"github.com/quka-ai/kbcore/pkg/errors"
	"github.com/quka-ai/kbcore/pkg/types"
)

type MonitorLogic struct {
	ctx  context.Context
	core *core.Core
}

func NewMonitorLogic(ctx context.Context, core *core.Core) *MonitorLogic {
	return &MonitorLogic{
		ctx:  ctx,
		core: core,
	}
}

// Check runs one change detection pass for a url source. Fetch problems are
// reported through the result status, not as an error.
func (l *MonitorLogic) Check(tenantID, sourceID string) (types.CheckResult, error) {
	source, err := NewSourceLogic(l.ctx, l.core).Get(tenantID, sourceID)
	if err != nil {
		return types.CheckResult{}, errors.Trace("MonitorLogic.Check", err)
	}
	if source.Kind != types.SOURCE_KIND_URL {
		return types.CheckResult{}, errors.New("MonitorLogic.Check.Kind", ERROR_INVALIDARGUMENT,
			fmt.Errorf("only url sources can be monitored, got %q", source.Kind)).Code(http.StatusBadRequest)
	}
	return l.core.Monitor().Check(l.ctx, *source), nil
}
