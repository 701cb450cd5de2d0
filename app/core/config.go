package core

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/quka-ai/kbcore/app/core/srv"
	"github.com/quka-ai/kbcore/pkg/ai/batcher"
	"github.com/quka-ai/kbcore/pkg/chunker"
	"github.com/quka-ai/kbcore/pkg/retrieval"
)

func MustLoadBaseConfig(path string) CoreConfig {
	if path == "" {
		return LoadBaseConfigFromENV()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	conf := &CoreConfig{}
	if err = toml.Unmarshal(raw, conf); err != nil {
		panic(err)
	}

	return *conf
}

func LoadBaseConfigFromENV() CoreConfig {
	var c CoreConfig
	c.FromENV()
	return c
}

type CoreConfig struct {
	Addr          string              `toml:"addr"`
	Log           Log                 `toml:"log"`
	Store         StoreConfig         `toml:"store"`
	Postgres      PGConfig            `toml:"postgres"`
	Redis         RedisConfig         `toml:"redis"`
	ObjectStorage ObjectStorageDriver `toml:"object_storage"`

	AI srv.AIConfig `toml:"ai"`

	Chunker ChunkerConfig    `toml:"chunker"`
	Search  retrieval.Config `toml:"search"`
	Cache   CacheConfig      `toml:"cache"`
	Monitor MonitorConfig    `toml:"monitor"`
	Process ProcessConfig    `toml:"process"`
	Limit   LimitConfig      `toml:"limit"`
}

func (c *CoreConfig) FromENV() {
	c.Addr = os.Getenv("KB_API_SERVICE_ADDRESS")
	c.Log.FromENV()
	c.Store.FromENV()
	c.Postgres.FromENV()
	c.Redis.FromENV()
	c.ObjectStorage.FromENV()
	c.AI.Embedding.FromENV()
	c.AI.Rerank.FromENV()
	c.Cache.FromENV()
}

type StoreConfig struct {
	Driver string `toml:"driver"` // postgres | memory
}

func (s *StoreConfig) FromENV() {
	s.Driver = os.Getenv("KB_STORE_DRIVER")
}

type ObjectStorageDriver struct {
	Driver string    `toml:"driver"` // s3 | local
	S3     *S3Config `toml:"s3"`
	Local  struct {
		Root string `toml:"root"`
	} `toml:"local"`
}

func (o *ObjectStorageDriver) FromENV() {
	o.Driver = os.Getenv("KB_OBJECT_STORAGE_DRIVER")
	o.Local.Root = os.Getenv("KB_OBJECT_STORAGE_ROOT")
	if bucket := os.Getenv("KB_S3_BUCKET"); bucket != "" {
		o.S3 = &S3Config{
			Bucket:       bucket,
			Region:       os.Getenv("KB_S3_REGION"),
			Endpoint:     os.Getenv("KB_S3_ENDPOINT"),
			AccessKey:    os.Getenv("KB_S3_ACCESS_KEY"),
			SecretKey:    os.Getenv("KB_S3_SECRET_KEY"),
			UsePathStyle: os.Getenv("KB_S3_PATH_STYLE") == "true",
		}
	}
}

type S3Config struct {
	Bucket       string `toml:"bucket"`
	Region       string `toml:"region"`
	Endpoint     string `toml:"endpoint"`
	AccessKey    string `toml:"access_key"`
	SecretKey    string `toml:"secret_key"`
	UsePathStyle bool   `toml:"use_path_style"`
}

type ChunkerConfig struct {
	TargetWords         int `toml:"target_words"`
	MaxWords            int `toml:"max_words"`
	MinChars            int `toml:"min_chars"`
	MinSignificantWords int `toml:"min_significant_words"`
	OverlapUnits        int `toml:"overlap_units"`

	Embedding batcher.Config `toml:"embedding"`
}

// Policy overrides the default policy with every non-zero field.
func (c ChunkerConfig) Policy() chunker.Policy {
	p := chunker.DefaultPolicy()
	if c.TargetWords > 0 {
		p.TargetWords = c.TargetWords
	}
	if c.MaxWords > 0 {
		p.MaxWords = c.MaxWords
	}
	if c.MinChars > 0 {
		p.MinChars = c.MinChars
	}
	if c.MinSignificantWords > 0 {
		p.MinSignificantWords = c.MinSignificantWords
	}
	if c.OverlapUnits > 0 {
		p.OverlapUnits = c.OverlapUnits
	}
	return p
}

type CacheConfig struct {
	Driver string        `toml:"driver"` // memory | redis | none
	TTL    time.Duration `toml:"ttl"`
}

func (c *CacheConfig) FromENV() {
	c.Driver = os.Getenv("KB_CACHE_DRIVER")
}

type MonitorConfig struct {
	CheckInterval time.Duration `toml:"check_interval"`
	FetchTimeout  time.Duration `toml:"fetch_timeout"`
}

func (m MonitorConfig) Interval() time.Duration {
	if m.CheckInterval <= 0 {
		return 24 * time.Hour
	}
	return m.CheckInterval
}

type ProcessConfig struct {
	IngestConcurrency  int    `toml:"ingest_concurrency"`
	MonitorConcurrency int    `toml:"monitor_concurrency"`
	MonitorSpec        string `toml:"monitor_spec"`
	ReingestSpec       string `toml:"reingest_spec"`
	// 入库锁的过期时间，应大于一次入库的最长耗时
	IngestLockTTL time.Duration `toml:"ingest_lock_ttl"`
}

func (p ProcessConfig) WithDefaults() ProcessConfig {
	if p.IngestConcurrency <= 0 {
		p.IngestConcurrency = 4
	}
	if p.MonitorConcurrency <= 0 {
		p.MonitorConcurrency = 8
	}
	if p.MonitorSpec == "" {
		p.MonitorSpec = "*/10 * * * *"
	}
	if p.ReingestSpec == "" {
		p.ReingestSpec = "*/5 * * * *"
	}
	if p.IngestLockTTL <= 0 {
		p.IngestLockTTL = 30 * time.Minute
	}
	return p
}

// LimitConfig 按租户限流，PerSecond 为 0 时不限流
type LimitConfig struct {
	PerSecond float64 `toml:"per_second"`
	Burst     int     `toml:"burst"`
}

func (l LimitConfig) BurstOrDefault() int {
	if l.Burst <= 0 {
		return int(l.PerSecond) + 1
	}
	return l.Burst
}

type PGConfig struct {
	DSN string `toml:"dsn"`
}

func (m *PGConfig) FromENV() {
	m.DSN = os.Getenv("KB_POSTGRES_DSN")
}

func (c PGConfig) FormatDSN() string {
	return c.DSN
}

type RedisConfig struct {
	// 单机模式配置
	Addr     string `toml:"addr"`     // Redis地址，格式: host:port
	Password string `toml:"password"` // Redis密码
	DB       int    `toml:"db"`       // Redis数据库索引 (0-15)

	// 集群模式配置
	Cluster       bool     `toml:"cluster"`        // 是否启用集群模式
	ClusterAddrs  []string `toml:"cluster_addrs"`  // 集群节点地址列表
	ClusterPasswd string   `toml:"cluster_passwd"` // 集群密码

	// 连接池配置
	PoolSize     int `toml:"pool_size"`      // 连接池大小，默认10
	MinIdleConns int `toml:"min_idle_conns"` // 最小空闲连接数，默认0
	MaxRetries   int `toml:"max_retries"`    // 最大重试次数，默认3
	DialTimeout  int `toml:"dial_timeout"`   // 连接超时(秒)，默认5
	ReadTimeout  int `toml:"read_timeout"`   // 读超时(秒)，默认3
	WriteTimeout int `toml:"write_timeout"`  // 写超时(秒)，默认3
}

func (r *RedisConfig) FromENV() {
	r.Addr = os.Getenv("KB_REDIS_ADDR")
	r.Password = os.Getenv("KB_REDIS_PASSWORD")
	if dbStr := os.Getenv("KB_REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			r.DB = db
		}
	}
}

func (r RedisConfig) Enabled() bool {
	return r.Addr != "" || (r.Cluster && len(r.ClusterAddrs) > 0)
}

type Log struct {
	Level string `toml:"level"`
	Path  string `toml:"path"`
}

func (l *Log) FromENV() {
	l.Level = os.Getenv("KB_API_LOG_LEVEL")
	l.Path = os.Getenv("KB_API_LOG_PATH")
}

func (l *Log) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "info":
		return slog.LevelInfo
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}
