package process

import (
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/robfig/cron/v3"

	"github.com/quka-ai/kbcore/app/core"
	"github.com/quka-ai/kbcore/pkg/register"
	"github.com/quka-ai/kbcore/pkg/safe"
)

type Process struct {
	cron *cron.Cron
	core *core.Core

	ingestPool  *ants.Pool
	monitorPool *ants.Pool

	// 同一时间每类扫描只运行一次
	sweeping sync.Map
}

type ProcessKey struct{}

func NewProcess(core *core.Core) (*Process, error) {
	cfg := core.Cfg().Process.WithDefaults()

	ingestPool, err := ants.NewPool(cfg.IngestConcurrency, ants.WithPanicHandler(panicHandler("ingest")))
	if err != nil {
		return nil, err
	}
	monitorPool, err := ants.NewPool(cfg.MonitorConcurrency, ants.WithPanicHandler(panicHandler("monitor")))
	if err != nil {
		ingestPool.Release()
		return nil, err
	}

	p := &Process{
		cron:        cron.New(),
		core:        core,
		ingestPool:  ingestPool,
		monitorPool: monitorPool,
	}

	for _, h := range register.ResolveFuncHandlers[*Process](ProcessKey{}) {
		h(p)
	}
	return p, nil
}

func panicHandler(pool string) func(interface{}) {
	return func(r interface{}) {
		slog.Error("panic recovered in worker", slog.String("pool", pool), slog.Any("recover", r))
	}
}

func (p *Process) Cron() *cron.Cron {
	return p.cron
}

func (p *Process) Core() *core.Core {
	return p.core
}

// schedule registers fn under spec and logs a broken spec instead of failing
// the whole process.
func (p *Process) schedule(name, spec string, fn func()) {
	if _, err := p.cron.AddFunc(spec, fn); err != nil {
		slog.Error("failed to register job", slog.String("job", name), slog.String("spec", spec), slog.String("error", err.Error()))
		return
	}
	slog.Info("job registered", slog.String("job", name), slog.String("spec", spec))
}

// exclusive runs fn unless a previous run of the same job is still going.
func (p *Process) exclusive(name string, fn func()) {
	if _, running := p.sweeping.LoadOrStore(name, struct{}{}); running {
		slog.Warn("previous run still in progress, skipped", slog.String("job", name))
		return
	}
	defer p.sweeping.Delete(name)
	safe.RunWithLog(fn, name)
}

func (p *Process) Start() {
	p.cron.Start()
}

func (p *Process) Stop() {
	// 停止 cron 调度器
	if p.cron != nil {
		ctx := p.cron.Stop()
		<-ctx.Done()
	}
	p.ingestPool.Release()
	p.monitorPool.Release()
}
