package livequery_test

import (
	"testing"
	"time"

	"github.com/autom8ter/livequery"
	"github.com/autom8ter/livequery/errors"
	"github.com/stretchr/testify/assert"
)

func TestConfig(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		cfg, err := livequery.LoadConfig([]byte(`
logLevel: debug
fetchTimeout: 2s
maxConcurrentFetches: 8
metrics: true
`))
		assert.NoError(t, err)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, 2*time.Second, cfg.FetchTimeout)
		assert.EqualValues(t, 8, cfg.MaxConcurrentFetches)
		assert.True(t, cfg.Metrics)
	})
	t.Run("json", func(t *testing.T) {
		cfg, err := livequery.LoadConfig([]byte(`{"logLevel": "warn", "fetchTimeout": "150ms"}`))
		assert.NoError(t, err)
		assert.Equal(t, "warn", cfg.LogLevel)
		assert.Equal(t, 150*time.Millisecond, cfg.FetchTimeout)
	})
	t.Run("invalid level", func(t *testing.T) {
		_, err := livequery.LoadConfig([]byte(`logLevel: loud`))
		assert.Error(t, err)
		assert.True(t, errors.Is(err, errors.Validation))
	})
	t.Run("negative concurrency", func(t *testing.T) {
		assert.Error(t, livequery.Config{MaxConcurrentFetches: -1}.Validate())
	})
	t.Run("zero value is valid", func(t *testing.T) {
		assert.NoError(t, livequery.Config{}.Validate())
	})
}
