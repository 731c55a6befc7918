package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/memberflow/memberflow/internal/config"
	"github.com/memberflow/memberflow/internal/logger"
	"github.com/memberflow/memberflow/internal/pubsub"
	"github.com/memberflow/memberflow/internal/types"
)

// Publisher hands subscription lifecycle events to the external notifier.
// The handoff is fire-and-forget from the caller's point of view: the
// notifier owns delivery and retries, and a failed handoff never rolls
// back the state transition that produced the event.
type Publisher interface {
	Publish(ctx context.Context, event *types.NotificationEvent) error
	Close() error
}

type publisher struct {
	pubSub pubsub.PubSub
	topic  string
	logger *logger.Logger
}

// NewPublisher creates a pubsub-backed notification publisher
func NewPublisher(
	pubSub pubsub.PubSub,
	cfg *config.Configuration,
	logger *logger.Logger,
) (Publisher, error) {
	return &publisher{
		pubSub: pubSub,
		topic:  cfg.Notification.Topic,
		logger: logger,
	}, nil
}

func (p *publisher) Publish(ctx context.Context, event *types.NotificationEvent) error {
	if event.ID == "" {
		event.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_NOTIFICATION)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("tenant_id", event.TenantID)
	msg.Metadata.Set("event_name", string(event.EventName))

	p.logger.Debugw("publishing notification event",
		"event_id", event.ID,
		"event_name", event.EventName,
		"subscription_id", event.SubscriptionID,
		"topic", p.topic,
	)

	return p.pubSub.Publish(ctx, p.topic, msg)
}

func (p *publisher) Close() error {
	return p.pubSub.Close()
}
