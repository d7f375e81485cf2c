// Package logging builds the process logger and carries request-scoped
// logging fields on a context.
package logging

import (
	"context"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NewLogger creates a logr.Logger backed by zap. LOG_LEVEL "debug" or
// "trace" selects a development config; anything else is production JSON.
// The returned func flushes buffered entries.
func NewLogger() (logr.Logger, func(), error) {
	return newLogger(os.Getenv("LOG_LEVEL"))
}

func newLogger(level string) (logr.Logger, func(), error) {
	z, err := newZapLogger(level)
	if err != nil {
		return logr.Logger{}, nil, err
	}
	return zapr.NewLogger(z), func() { _ = z.Sync() }, nil
}

func newZapLogger(level string) (*zap.Logger, error) {
	if level == "debug" || level == "trace" {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		return cfg.Build()
	}
	return zap.NewProduction()
}

type contextKey string

const (
	keyRequestID contextKey = "request_id"
	keyViewer    contextKey = "viewer"
)

var allKeys = []contextKey{keyRequestID, keyViewer}

// NewRequestID returns a fresh request id.
func NewRequestID() string {
	return uuid.NewString()
}

// WithRequestID returns a context carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

// WithViewer returns a context carrying the reviewer name.
func WithViewer(ctx context.Context, viewer string) context.Context {
	return context.WithValue(ctx, keyViewer, viewer)
}

// RequestID returns the request id on ctx, or "".
func RequestID(ctx context.Context) string {
	s, _ := ctx.Value(keyRequestID).(string)
	return s
}

// Viewer returns the reviewer name on ctx, or "".
func Viewer(ctx context.Context) string {
	s, _ := ctx.Value(keyViewer).(string)
	return s
}

// FromContext returns log enriched with every non-empty field on ctx.
func FromContext(ctx context.Context, log logr.Logger) logr.Logger {
	var kv []any
	for _, k := range allKeys {
		if s, ok := ctx.Value(k).(string); ok && s != "" {
			kv = append(kv, string(k), s)
		}
	}
	if len(kv) == 0 {
		return log
	}
	return log.WithValues(kv...)
}
