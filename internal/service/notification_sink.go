package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/groupshare/internal/model"
)

// Deliverer hands a notification to its destination: the notifications
// table or the message broker.
type Deliverer interface {
	Deliver(ctx context.Context, n model.Notification) error
}

// NotificationSink is the best-effort Notifier.  Delivery runs detached from
// the request's cancellation with its own timeout; failures are logged and
// dropped.
type NotificationSink struct {
	target  Deliverer
	log     *zap.Logger
	timeout time.Duration
}

func NewNotificationSink(target Deliverer, log *zap.Logger, timeout time.Duration) *NotificationSink {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &NotificationSink{target: target, log: log, timeout: timeout}
}

// Notify delivers n.  It never returns an error.
func (s *NotificationSink) Notify(ctx context.Context, n model.Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.target.Deliver(ctx, n); err != nil {
		s.log.Warn("notification dropped",
			zap.String("user_id", n.UserID),
			zap.String("type", n.Type),
			zap.String("related_entity_id", n.RelatedEntityID),
			zap.Error(err))
	}
}
