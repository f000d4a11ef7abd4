package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ict-engine/internal/logging"
)

func waitEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for event")
	}
	return Event{}
}

func TestPublish_TypedAndAllSubscribers(t *testing.T) {
	bus := NewEventBus()
	typed := make(chan Event, 4)
	all := make(chan Event, 4)

	bus.Subscribe(EventSignalGenerated, func(e Event) { typed <- e })
	bus.SubscribeAll(func(e Event) { all <- e })

	bus.PublishAnalyticsEvent(EventSignalGenerated, "EURUSD", "1h", ComponentSynthesizer,
		map[string]interface{}{"signal": "BUY"}, PriorityHigh)

	got := waitEvent(t, typed)
	if got.Symbol != "EURUSD" || got.Timeframe != "1h" || got.Component != ComponentSynthesizer {
		t.Errorf("Unexpected event %+v", got)
	}
	if got.Priority != PriorityHigh || got.ID == "" || got.Timestamp.IsZero() {
		t.Errorf("Event defaults not filled: %+v", got)
	}
	if got.Data["signal"] != "BUY" {
		t.Errorf("Expected signal BUY, got %v", got.Data["signal"])
	}
	waitEvent(t, all)

	bus.PublishSystemStatus("ACTIVE", nil)
	if ev := waitEvent(t, all); ev.Type != EventSystemStatus || ev.Priority != PriorityNormal {
		t.Errorf("Unexpected status event %+v", ev)
	}
	select {
	case ev := <-typed:
		t.Errorf("Typed subscriber received unrelated event %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}

	counts := bus.PublishedCount()
	if counts[EventSignalGenerated] != 1 || counts[EventSystemStatus] != 1 {
		t.Errorf("Unexpected published counts %v", counts)
	}
}

func TestPriorityString(t *testing.T) {
	tests := map[Priority]string{
		PriorityLow:      "LOW",
		PriorityNormal:   "NORMAL",
		PriorityHigh:     "HIGH",
		PriorityCritical: "CRITICAL",
		Priority(9):      "UNKNOWN",
	}
	for p, want := range tests {
		if got := p.String(); got != want {
			t.Errorf("Priority(%d).String() = %q, want %q", p, got, want)
		}
	}
}

type fakePublisher struct {
	mu       sync.Mutex
	channels []string
	err      error
	done     chan struct{}
}

func (f *fakePublisher) Publish(_ context.Context, channel string, _ interface{}) error {
	f.mu.Lock()
	f.channels = append(f.channels, channel)
	f.mu.Unlock()
	f.done <- struct{}{}
	return f.err
}

func TestRelay_ForwardsEvents(t *testing.T) {
	bus := NewEventBus()
	pub := &fakePublisher{done: make(chan struct{}, 2), err: errors.New("redis down")}
	NewRelay(pub, "", logging.Nop()).Attach(bus)

	bus.PublishError(ComponentLearning, "store unavailable", map[string]interface{}{"symbol": "EURUSD"})

	select {
	case <-pub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("Relay did not forward the event")
	}
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.channels) != 1 || pub.channels[0] != DefaultRelayChannel {
		t.Errorf("Expected publish on %s, got %v", DefaultRelayChannel, pub.channels)
	}
}
