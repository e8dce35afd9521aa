package livequery

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a structured logger. Tags and context metadata are attached to each log line.
type Logger interface {
	Error(ctx context.Context, msg string, err error, tags map[string]any)
	Warn(ctx context.Context, msg string, tags map[string]any)
	Info(ctx context.Context, msg string, tags map[string]any)
	Debug(ctx context.Context, msg string, tags map[string]any)
}

type zapLogger struct {
	logger *zap.Logger
}

// NewLogger returns a structured json logger with the given level and default fields
func NewLogger(level string, defaultFields map[string]any) (Logger, error) {
	cfg := zap.NewProductionConfig()
	var opts = []zap.Option{
		zap.WithCaller(true),
		zap.AddCallerSkip(1),
	}
	for k, v := range defaultFields {
		opts = append(opts, zap.Fields(zap.Any(k, v)))
	}
	cfg.Level = zap.NewAtomicLevelAt(getLevel(level))
	logger, err := cfg.Build(opts...)
	if err != nil {
		return nil, err
	}
	return &zapLogger{logger: logger}, nil
}

// NewZapLogger wraps an existing zap logger
func NewZapLogger(logger *zap.Logger) Logger {
	return &zapLogger{logger: logger}
}

func getTags(ctx context.Context, tags map[string]any) []zap.Field {
	var fields []zap.Field
	for k, v := range tags {
		fields = append(fields, zap.Any(k, v))
	}
	for k, v := range ExtractMetadata(ctx).Value() {
		fields = append(fields, zap.Any(k, v))
	}
	return fields
}

func (z *zapLogger) Error(ctx context.Context, msg string, err error, tags map[string]any) {
	z.logger.Error(msg, append(getTags(ctx, tags), zap.Error(err))...)
}

func (z *zapLogger) Warn(ctx context.Context, msg string, tags map[string]any) {
	z.logger.Warn(msg, getTags(ctx, tags)...)
}

func (z *zapLogger) Info(ctx context.Context, msg string, tags map[string]any) {
	z.logger.Info(msg, getTags(ctx, tags)...)
}

func (z *zapLogger) Debug(ctx context.Context, msg string, tags map[string]any) {
	z.logger.Debug(msg, getTags(ctx, tags)...)
}

func getLevel(level string) zapcore.Level {
	levelMap := map[string]zapcore.Level{
		"error":   zap.ErrorLevel,
		"warn":    zap.WarnLevel,
		"warning": zap.WarnLevel,
		"info":    zap.InfoLevel,
		"debug":   zap.DebugLevel,
	}
	l, ok := levelMap[strings.ToLower(level)]
	if !ok {
		return zap.InfoLevel
	}
	return l
}
