package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 10*time.Minute, cfg.CacheSweepInterval)
	assert.Equal(t, []string{"ss", "andele", "osta"}, cfg.DefaultSources)
	assert.Equal(t, "", cfg.DSN(), "no database unless configured")

	for id, sc := range cfg.Sources {
		assert.GreaterOrEqual(t, sc.PageBatch, 2, id)
		assert.LessOrEqual(t, sc.PageBatch, 3, id)
		assert.GreaterOrEqual(t, sc.DetailWorkers, 5, id)
		assert.LessOrEqual(t, sc.DetailWorkers, 8, id)
		assert.GreaterOrEqual(t, sc.PageDelay, 100*time.Millisecond, id)
		assert.LessOrEqual(t, sc.PageDelay, time.Second, id)
		assert.NotEmpty(t, sc.Exclude, "%s has accessory keywords", id)
	}
	assert.Contains(t, cfg.Source("osta").Exclude, "ümbris")
	assert.Contains(t, cfg.Source("andele").Exclude, "vāciņš")
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("DEFAULT_SOURCES", "ss, osta,")
	t.Setenv("HEADLESS", "false")
	t.Setenv("SOURCE_SS_MAX_PAGES", "4")
	t.Setenv("SOURCE_SS_EXCLUDE", "kaste, turētājs")
	t.Setenv("DB_HOST", "db.local")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.Equal(t, []string{"ss", "osta"}, cfg.DefaultSources)
	assert.False(t, cfg.Headless)
	assert.Equal(t, 4, cfg.Source("ss").MaxPages)
	assert.Equal(t, []string{"kaste", "turētājs"}, cfg.Source("ss").Exclude)
	assert.Equal(t, "postgres://postgres:@db.local:5432/secondhand?sslmode=disable", cfg.DSN())
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("PER_PAGE", "twenty")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PER_PAGE")
}

func TestDatabaseURLWins(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DBHost = "ignored"
	cfg.DatabaseURL = "postgres://u:p@h/db"
	assert.Equal(t, "postgres://u:p@h/db", cfg.DSN())
}
