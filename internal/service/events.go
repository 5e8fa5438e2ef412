package service

import (
	"context"
	"time"

	"github.com/Skotchmaster/inventory/pkg/events"
	"github.com/Skotchmaster/inventory/pkg/logging"
)

const publishTimeout = 5 * time.Second

// publish never fails the caller; delivery errors are logged.
func publish(ctx context.Context, p events.Publisher, topic, key string, ev events.Event) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := p.Publish(ctx, topic, key, ev); err != nil {
		logging.FromContext(ctx).Error("publish_event_failed", "topic", topic, "type", ev.Type, "error", err)
	}
}
