package events

import (
	"context"
	"time"

	"ict-engine/internal/logging"
)

// DefaultRelayChannel is the Redis pub/sub channel events are mirrored to
const DefaultRelayChannel = "ict:events"

// Publisher sends a payload on a channel. cache.CacheService satisfies it.
type Publisher interface {
	Publish(ctx context.Context, channel string, value interface{}) error
}

// Relay mirrors bus events to an external pub/sub channel
type Relay struct {
	publisher Publisher
	channel   string
	timeout   time.Duration
	logger    *logging.Logger
}

// NewRelay creates a relay. An empty channel falls back to DefaultRelayChannel.
func NewRelay(publisher Publisher, channel string, logger *logging.Logger) *Relay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Relay{
		publisher: publisher,
		channel:   channel,
		timeout:   2 * time.Second,
		logger:    logger.WithComponent("EventRelay"),
	}
}

// Attach subscribes the relay to every event on the bus
func (r *Relay) Attach(bus *EventBus) {
	bus.SubscribeAll(r.forward)
}

func (r *Relay) forward(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.publisher.Publish(ctx, r.channel, event); err != nil {
		r.logger.Debug("Event relay publish failed",
			"event_type", string(event.Type),
			"channel", r.channel,
			"error", err)
	}
}
