package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
)

// Forwarder delivers a payload to an external destination. *qstash.Client
// satisfies it.
type Forwarder interface {
	PublishJSON(ctx context.Context, destination string, payload any) (string, error)
}

// Notifier forwards appointment events from the bus to a Forwarder.
type Notifier struct {
	bus         *Bus
	forwarder   Forwarder
	destination string
	topics      []string
	ready       chan struct{}
}

func NewNotifier(bus *Bus, forwarder Forwarder, destination string) (*Notifier, error) {
	if bus == nil {
		return nil, errors.New("notifier needs a bus")
	}
	if forwarder == nil {
		return nil, errors.New("notifier needs a forwarder")
	}
	if strings.TrimSpace(destination) == "" {
		return nil, errors.New("notifier destination is empty")
	}
	return &Notifier{
		bus:         bus,
		forwarder:   forwarder,
		destination: strings.TrimSpace(destination),
		topics:      AppointmentTopics,
		ready:       make(chan struct{}),
	}, nil
}

// Run blocks until ctx is done. Delivery failures are logged and the message
// is acked; notifications are best effort.
func (n *Notifier) Run(ctx context.Context) error {
	router, err := message.NewRouter(message.RouterConfig{}, n.bus.Logger())
	if err != nil {
		return fmt.Errorf("create event router: %w", err)
	}

	for _, topic := range n.topics {
		router.AddNoPublisherHandler("notify_"+topic, topic, n.bus.Subscriber(), n.handle(topic))
	}

	go func() {
		select {
		case <-router.Running():
			close(n.ready)
		case <-ctx.Done():
		}
	}()

	if err := router.Run(ctx); err != nil {
		return fmt.Errorf("run event router: %w", err)
	}
	return nil
}

// Ready is closed once every handler is subscribed.
func (n *Notifier) Ready() <-chan struct{} {
	return n.ready
}

func (n *Notifier) handle(topic string) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		var event AppointmentEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("dropping malformed appointment event")
			return nil
		}

		id, err := n.forwarder.PublishJSON(msg.Context(), n.destination, event)
		if err != nil {
			log.Warn().Err(err).
				Str("topic", topic).
				Str("appointment_id", event.AppointmentID).
				Msg("appointment notification failed")
			return nil
		}
		log.Debug().
			Str("topic", topic).
			Str("appointment_id", event.AppointmentID).
			Str("delivery_id", id).
			Msg("appointment notification sent")
		return nil
	}
}
