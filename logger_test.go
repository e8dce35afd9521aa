package livequery_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/autom8ter/livequery"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger(t *testing.T) {
	t.Run("debug", func(t *testing.T) {
		logger, err := livequery.NewLogger("debug", map[string]any{})
		assert.Nil(t, err)
		assert.NotNil(t, logger)
		logger.Debug(context.Background(), "debug logger", nil)
	})
	t.Run("info", func(t *testing.T) {
		logger, err := livequery.NewLogger("info", map[string]any{"service": "test"})
		assert.Nil(t, err)
		assert.NotNil(t, logger)
		logger.Info(context.Background(), "info logger", nil)
	})
	t.Run("warn", func(t *testing.T) {
		logger, err := livequery.NewLogger("warn", map[string]any{})
		assert.Nil(t, err)
		assert.NotNil(t, logger)
		logger.Warn(context.Background(), "warn logger", nil)
	})
	t.Run("error", func(t *testing.T) {
		logger, err := livequery.NewLogger("error", map[string]any{})
		assert.Nil(t, err)
		assert.NotNil(t, logger)
		logger.Error(context.Background(), "error logger", fmt.Errorf("this is an error"), nil)
	})
	t.Run("tags and metadata", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		logger := livequery.NewZapLogger(zap.New(core))
		ctx := livequery.SetMetadataValues(context.Background(), map[string]any{"user": "alice"})
		logger.Warn(ctx, "warned", map[string]any{"collection": "items"})
		entries := logs.FilterMessage("warned").All()
		assert.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		assert.Equal(t, "items", fields["collection"])
		assert.Equal(t, "alice", fields["user"])
	})
}
