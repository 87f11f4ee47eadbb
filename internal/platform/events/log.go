package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/hoangphuc3604/my-shop-backend/internal/platform/requestctx"
	"github.com/hoangphuc3604/my-shop-backend/internal/services"
)

// LogPublisher writes events to the log. It backs the "log" events driver used in development.
type LogPublisher struct {
	logger *zap.Logger
}

var _ services.OrderEventPublisher = (*LogPublisher)(nil)

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	envelope := NewEnvelope(event)
	logger := requestctx.Logger(ctx)
	if logger == requestctx.NoopLogger() {
		logger = p.logger
	}
	logger.Info("order event",
		zap.String("event_id", envelope.EventID),
		zap.String("event_type", envelope.Type),
		zap.String("order_id", envelope.OrderID),
		zap.String("previous_status", envelope.PreviousStatus),
		zap.String("current_status", envelope.CurrentStatus),
		zap.String("actor_id", envelope.ActorID),
		zap.Any("metadata", envelope.Metadata),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
