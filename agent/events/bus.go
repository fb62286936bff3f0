package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog/log"
)

const correlationIDKey = "conversation_id"

type ctxKey struct{}

// WithConversationID tags every event published under ctx.
func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// Bus is an in-process pub/sub for domain events. Publishing never waits for
// subscribers.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter
}

func NewBus() *Bus {
	logger := newLogger(log.Logger)
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 64,
		}, logger),
		logger: logger,
	}
}

// Publish encodes payload as JSON and publishes it on topic.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event for topic=%s: %w", topic, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	if id, ok := ctx.Value(ctxKey{}).(string); ok && id != "" {
		msg.Metadata.Set(correlationIDKey, id)
	}

	if err := b.pubsub.Publish(topic, msg); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("failed to publish event")
		return err
	}
	log.Trace().Str("topic", topic).Str("message_id", msg.UUID).Msg("published event")
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

// Subscriber exposes the bus to a watermill router.
func (b *Bus) Subscriber() message.Subscriber {
	return b.pubsub
}

func (b *Bus) Logger() watermill.LoggerAdapter {
	return b.logger
}

func (b *Bus) Close() error {
	return b.pubsub.Close()
}
