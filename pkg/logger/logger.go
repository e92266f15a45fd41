package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	Logger *zap.Logger
}

var (
	ProductionMode  = "production"
	DevelopmentMode = "development"
)

func New(mode string) *Logger {
	var config zap.Config
	if mode == ProductionMode {
		config = zap.NewProductionConfig()
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zapLogger, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		panic(err)
	}
	return &Logger{Logger: zapLogger}
}

type ctxKey string

var CorrelationIdKey ctxKey = "correlation_id"
var ShardKey ctxKey = "shard"

// WithContext attaches the correlation id and shard index carried on ctx.
func (l *Logger) WithContext(ctx context.Context) *zap.Logger {
	var fields []zap.Field
	if ctx != nil {
		if correlationId, ok := ctx.Value(CorrelationIdKey).(string); ok {
			fields = append(fields, zap.String(string(CorrelationIdKey), correlationId))
		}
		if shard, ok := ctx.Value(ShardKey).(int); ok {
			fields = append(fields, zap.Int(string(ShardKey), shard))
		}
	}
	return l.Logger.With(fields...)
}
