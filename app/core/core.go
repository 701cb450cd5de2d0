package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/quka-ai/kbcore/app/core/srv"
	"github.com/quka-ai/kbcore/app/store"
	"github.com/quka-ai/kbcore/app/store/memstore"
	"github.com/quka-ai/kbcore/app/store/sqlstore"
	"github.com/quka-ai/kbcore/pkg/ai/batcher"
	"github.com/quka-ai/kbcore/pkg/chunker"
	"github.com/quka-ai/kbcore/pkg/monitor"
	"github.com/quka-ai/kbcore/pkg/querycache"
	"github.com/quka-ai/kbcore/pkg/reader"
	"github.com/quka-ai/kbcore/pkg/reader/web"
	"github.com/quka-ai/kbcore/pkg/retrieval"
	"github.com/quka-ai/kbcore/pkg/types"
)

type Core struct {
	cfg CoreConfig
	srv *srv.Srv

	stores     func() store.Provider
	redis      redis.UniversalClient
	files      FileStorage
	locker     Locker
	queryCache querycache.Cache
	memCache   *querycache.Memory
	fetcher    *web.Fetcher

	httpEngine *gin.Engine
	metrics    *Metrics
}

type Option func(*Core)

// WithStore replaces the configured store driver.
func WithStore(p store.Provider) Option {
	return func(c *Core) {
		c.stores = func() store.Provider { return p }
	}
}

func WithSrv(s *srv.Srv) Option {
	return func(c *Core) {
		c.srv = s
	}
}

func WithFileStorage(f FileStorage) Option {
	return func(c *Core) {
		c.files = f
	}
}

func WithFetcher(f *web.Fetcher) Option {
	return func(c *Core) {
		c.fetcher = f
	}
}

func setupLogger(cfg Log) {
	var writer io.Writer = os.Stdout
	if cfg.Path != "" {
		writer = &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    500, // megabytes
			MaxBackups: 3,
			MaxAge:     28,   //days
			Compress:   true, // disabled by default
		}
	}
	l := slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(l)
}

func MustSetupCore(cfg CoreConfig) *Core {
	setupLogger(cfg.Log)

	core, err := NewCore(cfg)
	if err != nil {
		panic(err)
	}
	return core
}

// NewCore wires every dependency from cfg. Options win over the config.
func NewCore(cfg CoreConfig, opts ...Option) (*Core, error) {
	cfg.Process = cfg.Process.WithDefaults()

	core := &Core{
		cfg:        cfg,
		metrics:    NewMetrics("kb", "core"),
		httpEngine: gin.New(),
	}
	for _, opt := range opts {
		opt(core)
	}

	if core.stores == nil {
		if err := setupStore(core); err != nil {
			return nil, err
		}
	}

	if cfg.Redis.Enabled() {
		core.redis = newRedisClient(cfg.Redis)
		core.locker = NewRedisLock(core.redis)
	} else {
		core.locker = NewSingleLock()
	}

	if err := setupQueryCache(core); err != nil {
		return nil, err
	}

	if core.files == nil {
		files, err := SetupObjectStorage(cfg.ObjectStorage)
		if err != nil {
			return nil, err
		}
		core.files = files
	}

	if core.fetcher == nil {
		core.fetcher = web.NewFetcher(cfg.Monitor.FetchTimeout)
	}

	if core.srv == nil {
		s, err := srv.SetupSrvs(srv.ApplyAI(cfg.AI))
		if err != nil {
			return nil, err
		}
		core.srv = s
	}

	return core, nil
}

func setupStore(core *Core) error {
	switch strings.ToLower(core.cfg.Store.Driver) {
	case "", "postgres":
		provider := sqlstore.MustSetup(core.cfg.Postgres)
		// 执行数据库表初始化
		if err := provider().Install(); err != nil {
			return err
		}
		core.stores = func() store.Provider { return provider() }
		slog.Info("setupSqlStore done")
	case "memory":
		p := memstore.New()
		core.stores = func() store.Provider { return p }
	default:
		return fmt.Errorf("unknown store driver %q", core.cfg.Store.Driver)
	}
	return nil
}

func newRedisClient(cfg RedisConfig) redis.UniversalClient {
	seconds := func(v, def int) time.Duration {
		if v <= 0 {
			v = def
		}
		return time.Duration(v) * time.Second
	}

	addrs := []string{cfg.Addr}
	password := cfg.Password
	if cfg.Cluster {
		addrs = cfg.ClusterAddrs
		password = cfg.ClusterPasswd
	}
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        addrs,
		Password:     password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  seconds(cfg.DialTimeout, 5),
		ReadTimeout:  seconds(cfg.ReadTimeout, 3),
		WriteTimeout: seconds(cfg.WriteTimeout, 3),
	})
}

func setupQueryCache(core *Core) error {
	switch strings.ToLower(core.cfg.Cache.Driver) {
	case "", "memory":
		core.memCache = querycache.NewMemory()
		core.queryCache = querycache.New(core.memCache, core.cfg.Cache.TTL)
	case "redis":
		if core.redis == nil {
			return fmt.Errorf("cache driver redis requires redis.addr")
		}
		core.queryCache = querycache.New(querycache.NewRedis(core.redis), core.cfg.Cache.TTL)
	case "none":
		core.queryCache = querycache.Nop{}
	default:
		return fmt.Errorf("unknown cache driver %q", core.cfg.Cache.Driver)
	}
	return nil
}

func (s *Core) Cfg() CoreConfig {
	return s.cfg
}

func (s *Core) HttpEngine() *gin.Engine {
	return s.httpEngine
}

func (s *Core) Metrics() *Metrics {
	return s.metrics
}

func (s *Core) Store() store.Provider {
	return s.stores()
}

func (s *Core) Srv() *srv.Srv {
	return s.srv
}

// Redis returns nil when redis is not configured.
func (s *Core) Redis() redis.UniversalClient {
	return s.redis
}

// FileStorage returns nil when no object storage is configured.
func (s *Core) FileStorage() FileStorage {
	return s.files
}

func (s *Core) Locker() Locker {
	return s.locker
}

func (s *Core) QueryCache() querycache.Cache {
	return s.queryCache
}

// SweepQueryCache drops expired entries of the in-process cache.
func (s *Core) SweepQueryCache() int {
	if s.memCache == nil {
		return 0
	}
	return s.memCache.Sweep()
}

func (s *Core) Fetcher() *web.Fetcher {
	return s.fetcher
}

func (s *Core) Reader() *reader.Reader {
	return reader.New(s.fetcher, s.files)
}

func (s *Core) Chunker() *chunker.Chunker {
	return chunker.New(s.cfg.Chunker.Policy())
}

func (s *Core) Batcher() *batcher.Batcher {
	return batcher.New(s.srv.AI(), s.cfg.Chunker.Embedding, batcher.WithObserver(s.metrics.EmbeddingBatchInc))
}

func (s *Core) Retrieval() *retrieval.Engine {
	return retrieval.New(s.srv.AI(), s.Store().ChunkIndex(), s.cfg.Search, retrieval.WithFailureObserver(s.metrics.SearchFailureInc))
}

func (s *Core) Monitor() *monitor.Monitor {
	return monitor.New(s.fetcher, s.Store().KnowledgeSourceStore(), monitor.WithObserver(s.metrics.MonitorCheckInc))
}

// Ping reports whether the external dependencies answer.
func (s *Core) Ping(ctx context.Context) map[string]string {
	res := map[string]string{"store": "ok"}
	if _, err := s.Store().KnowledgeSourceStore().Total(ctx, types.ListSourceOptions{}); err != nil {
		res["store"] = err.Error()
	}
	if s.redis != nil {
		res["redis"] = "ok"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			res["redis"] = err.Error()
		}
	}
	return res
}
