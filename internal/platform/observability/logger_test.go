package observability

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hoangphuc3604/my-shop-backend/internal/platform/requestctx"
)

func TestServiceLoggerPrefersRequestLogger(t *testing.T) {
	fallbackCore, fallbackLogs := observer.New(zapcore.DebugLevel)
	requestCore, requestLogs := observer.New(zapcore.DebugLevel)

	log := ServiceLogger(zap.New(fallbackCore))
	ctx := requestctx.WithLogger(context.Background(), zap.New(requestCore))

	log(ctx, "order.event.publish.failed", map[string]any{"orderId": "ord_1", "error": errors.New("boom")})
	log(context.Background(), "order.created", map[string]any{"orderId": "ord_2"})

	if requestLogs.Len() != 1 || fallbackLogs.Len() != 1 {
		t.Fatalf("expected one entry per logger, got request=%d fallback=%d", requestLogs.Len(), fallbackLogs.Len())
	}
	entry := requestLogs.All()[0]
	if entry.Level != zapcore.WarnLevel {
		t.Fatalf("expected failed events at warn, got %s", entry.Level)
	}
	if entry.ContextMap()["error"] != "boom" {
		t.Fatalf("expected error field, got %v", entry.ContextMap())
	}
	if fallbackLogs.All()[0].Message != "order.created" {
		t.Fatalf("unexpected fallback entry %q", fallbackLogs.All()[0].Message)
	}
}
