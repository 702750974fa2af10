package notifications

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/feastline/api/internal/services"
)

// LogNotifier writes notifications to the structured log instead of a broker.
// It stands in for Pub/Sub in local runs and environments without a topic.
type LogNotifier struct {
	logger *zap.Logger
}

var _ services.Notifier = (*LogNotifier)(nil)

// NewLogNotifier constructs a logging notifier.
func NewLogNotifier(logger *zap.Logger) (*LogNotifier, error) {
	if logger == nil {
		return nil, errors.New("log notifier: logger is required")
	}
	return &LogNotifier{logger: logger}, nil
}

// Publish records the notification at info level.
func (l *LogNotifier) Publish(_ context.Context, n services.Notification) error {
	l.logger.Info("notification dispatched",
		zap.String("type", n.Type),
		zap.String("order_id", n.OrderID),
		zap.String("order_number", n.OrderNumber),
		zap.String("status", n.Status),
		zap.Time("occurred_at", n.OccurredAt),
	)
	return nil
}
