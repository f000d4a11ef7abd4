package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventConfluenceUpdated EventType = "CONFLUENCE_UPDATED"
	EventStructureChanged  EventType = "STRUCTURE_CHANGED"
	EventSignalGenerated   EventType = "SIGNAL_GENERATED"
	EventTradeOutcome      EventType = "TRADE_OUTCOME"
	EventSystemStatus      EventType = "SYSTEM_STATUS"
	EventError             EventType = "ERROR"
)

// Component identifies the producer of an event
type Component string

const (
	ComponentConfluence  Component = "confluence"
	ComponentStructure   Component = "structure"
	ComponentSynthesizer Component = "synthesizer"
	ComponentLearning    Component = "learning"
	ComponentIntegrator  Component = "integrator"
)

// Priority orders events for dashboard consumers
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	}
	return "UNKNOWN"
}

// Event represents a system event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Symbol    string                 `json:"symbol,omitempty"`
	Timeframe string                 `json:"timeframe,omitempty"`
	Component Component              `json:"component,omitempty"`
	Priority  Priority               `json:"priority"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events

	published map[EventType]int64
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
		published:   make(map[EventType]int64),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers. Delivery is asynchronous.
func (eb *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Priority == 0 {
		event.Priority = PriorityNormal
	}

	eb.mu.Lock()
	eb.published[event.Type]++
	subs := append([]Subscriber(nil), eb.subscribers[event.Type]...)
	subs = append(subs, eb.allSubs...)
	eb.mu.Unlock()

	for _, sub := range subs {
		go sub(event)
	}
}

// PublishAnalyticsEvent publishes an event produced by an analytics stage
func (eb *EventBus) PublishAnalyticsEvent(eventType EventType, symbol, timeframe string, component Component, data map[string]interface{}, priority Priority) {
	eb.Publish(Event{
		Type:      eventType,
		Symbol:    symbol,
		Timeframe: timeframe,
		Component: component,
		Priority:  priority,
		Data:      data,
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(component Component, errMsg string, details map[string]interface{}) {
	data := map[string]interface{}{
		"error": errMsg,
	}
	for k, v := range details {
		data[k] = v
	}
	eb.Publish(Event{
		Type:      EventError,
		Component: component,
		Priority:  PriorityHigh,
		Data:      data,
	})
}

// PublishSystemStatus publishes a lifecycle transition
func (eb *EventBus) PublishSystemStatus(status string, details map[string]interface{}) {
	data := map[string]interface{}{
		"status": status,
	}
	for k, v := range details {
		data[k] = v
	}
	eb.Publish(Event{
		Type:      EventSystemStatus,
		Component: ComponentIntegrator,
		Priority:  PriorityNormal,
		Data:      data,
	})
}

// PublishedCount returns the number of events published, per type
func (eb *EventBus) PublishedCount() map[EventType]int64 {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	out := make(map[EventType]int64, len(eb.published))
	for k, v := range eb.published {
		out[k] = v
	}
	return out
}
