package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupConfigFromEnv(t *testing.T) {
	addr := "localhost:11111"
	t.Setenv("KB_API_SERVICE_ADDRESS", addr)
	t.Setenv("KB_STORE_DRIVER", "memory")
	t.Setenv("KB_REDIS_DB", "3")

	cfg := LoadBaseConfigFromENV()

	assert.Equal(t, addr, cfg.Addr)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoadConfigFromFile(t *testing.T) {
	raw := `
addr = ":33033"

[store]
driver = "memory"

[chunker]
target_words = 120
max_words = 240

[cache]
driver = "none"
ttl = "2m"

[monitor]
check_interval = "6h"

[process]
ingest_concurrency = 2

[limit]
per_second = 5.0
`
	path := filepath.Join(t.TempDir(), "kb.toml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg := MustLoadBaseConfig(path)
	assert.Equal(t, ":33033", cfg.Addr)
	assert.Equal(t, 120, cfg.Chunker.Policy().TargetWords)
	assert.Equal(t, 240, cfg.Chunker.Policy().MaxWords)
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 6*time.Hour, cfg.Monitor.Interval())
	assert.Equal(t, 6, cfg.Limit.BurstOrDefault())

	p := cfg.Process.WithDefaults()
	assert.Equal(t, 2, p.IngestConcurrency)
	assert.Equal(t, 8, p.MonitorConcurrency)
	assert.Equal(t, 30*time.Minute, p.IngestLockTTL)
}

func TestMustLoadBaseConfigPanicsOnMissingFile(t *testing.T) {
	assert.Panics(t, func() {
		MustLoadBaseConfig(filepath.Join(t.TempDir(), "missing.toml"))
	})
}
