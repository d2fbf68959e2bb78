package logger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

type ctxKey struct{}

type Logger struct {
	l *zap.Logger
}

func New(ctx context.Context) (context.Context, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("error creating new logger: %w", err)
	}
	ctx = context.WithValue(ctx, ctxKey{}, &Logger{logger})

	return ctx, nil
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() *Logger {
	return &Logger{zap.NewNop()}
}

// Wrap adapts an existing zap logger.
func Wrap(l *zap.Logger) *Logger {
	return &Logger{l}
}

func WithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// GetLogger returns the logger stored in ctx, or a no-op logger when none was set.
func GetLogger(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}

func (logger *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{logger.l.With(fields...)}
}

func (logger *Logger) Named(name string) *Logger {
	return &Logger{logger.l.Named(name)}
}

func (logger *Logger) Debug(msg string, fields ...zap.Field) {
	logger.l.Debug(msg, fields...)
}

func (logger *Logger) Info(msg string, fields ...zap.Field) {
	logger.l.Info(msg, fields...)
}

func (logger *Logger) Warn(msg string, fields ...zap.Field) {
	logger.l.Warn(msg, fields...)
}

func (logger *Logger) Error(msg string, fields ...zap.Field) {
	logger.l.Error(msg, fields...)
}

func (logger *Logger) Fatal(msg string, fields ...zap.Field) {
	logger.l.Fatal(msg, fields...)
}

func (logger *Logger) Sync() error {
	return logger.l.Sync()
}

// Zap exposes the underlying logger for libraries that want one.
func (logger *Logger) Zap() *zap.Logger {
	return logger.l
}
