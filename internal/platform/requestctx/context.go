// Package requestctx carries per-request logging state between middleware
// layers without import cycles.
package requestctx

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"
)

type contextKey int

const (
	loggerKey contextKey = iota
	traceKey
	annotationsKey
)

var noopLogger = zap.NewNop()

// TraceInfo is the active span as seen by the HTTP layer.
type TraceInfo struct {
	TraceID string
	SpanID  string
	Sampled bool
}

func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// Logger returns the request logger, or a shared no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger is the logger Logger falls back to; compare against it to detect
// a missing request logger.
func NoopLogger() *zap.Logger { return noopLogger }

func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceKey, info)
}

func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey).(TraceInfo)
	return info, ok
}

// TraceID returns "" when no trace is attached.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// Annotations gathers fields that inner layers (auth, idempotency, handlers)
// learn about a request so the outer access log can report them. Context
// values only flow inwards, so the bag is shared by pointer.
type Annotations struct {
	mu     sync.Mutex
	fields []zap.Field
}

// WithAnnotations attaches a fresh bag to ctx.
func WithAnnotations(ctx context.Context) (context.Context, *Annotations) {
	if ctx == nil {
		ctx = context.Background()
	}
	bag := &Annotations{}
	return context.WithValue(ctx, annotationsKey, bag), bag
}

// Annotate records fields on the request bag. Without a bag it does nothing.
// A later field with the same key replaces the earlier one.
func Annotate(ctx context.Context, fields ...zap.Field) {
	if ctx == nil || len(fields) == 0 {
		return
	}
	bag, ok := ctx.Value(annotationsKey).(*Annotations)
	if !ok || bag == nil {
		return
	}
	bag.mu.Lock()
	defer bag.mu.Unlock()
	for _, field := range fields {
		bag.fields = slices.DeleteFunc(bag.fields, func(existing zap.Field) bool {
			return existing.Key == field.Key
		})
		bag.fields = append(bag.fields, field)
	}
}

// Fields returns a copy of the recorded fields in insertion order.
func (a *Annotations) Fields() []zap.Field {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.fields)
}
