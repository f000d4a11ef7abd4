package circuit

import (
	"math"
	"strings"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestBreaker(cfg Config) (*SignalBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	return newSignalBreaker(cfg, clock.now), clock
}

func TestBreaker_TripsOnConsecutiveLosses(t *testing.T) {
	cfg := Config{Enabled: true, MaxConsecutiveLosses: 3, MaxLossRPerHour: 100, Cooldown: 10 * time.Minute}
	cb, _ := newTestBreaker(cfg)

	tripped := make(chan string, 1)
	cb.OnTrip(func(reason string) { tripped <- reason })

	cb.RecordOutcome(-1)
	cb.RecordOutcome(-1)
	if cb.State() != StateClosed {
		t.Fatal("Two losses should not trip the breaker")
	}
	cb.RecordOutcome(-1)
	if cb.State() != StateOpen {
		t.Fatalf("Expected open after 3 losses, got %s", cb.State())
	}

	select {
	case reason := <-tripped:
		if !strings.Contains(reason, "consecutive losses") {
			t.Errorf("Unexpected trip reason %q", reason)
		}
	case <-time.After(time.Second):
		t.Fatal("OnTrip was not called")
	}

	ok, msg := cb.Allow()
	if ok || !strings.Contains(msg, "cooldown remaining") {
		t.Errorf("Expected open breaker to block, got %v %q", ok, msg)
	}
}

func TestBreaker_WinResetsStreak(t *testing.T) {
	cfg := Config{Enabled: true, MaxConsecutiveLosses: 3, MaxLossRPerHour: 100, Cooldown: time.Minute}
	cb, _ := newTestBreaker(cfg)

	cb.RecordOutcome(-1)
	cb.RecordOutcome(-1)
	cb.RecordOutcome(2)
	cb.RecordOutcome(-1)
	cb.RecordOutcome(-1)
	if cb.State() != StateClosed {
		t.Errorf("A win should reset the streak, got %s", cb.State())
	}
}

func TestBreaker_HourlyLossR(t *testing.T) {
	cfg := Config{Enabled: true, MaxConsecutiveLosses: 10, MaxLossRPerHour: 3, Cooldown: time.Minute}
	cb, clock := newTestBreaker(cfg)

	cb.RecordOutcome(-1.5)
	cb.RecordOutcome(1)
	clock.t = clock.t.Add(2 * time.Hour)
	cb.RecordOutcome(-1.5)
	if cb.State() != StateClosed {
		t.Fatal("Hourly loss should reset after the window")
	}
	cb.RecordOutcome(-2)
	if cb.State() != StateOpen || !strings.Contains(cb.TripReason(), "hourly loss") {
		t.Errorf("Expected hourly trip, got %s %q", cb.State(), cb.TripReason())
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	cfg := Config{Enabled: true, MaxConsecutiveLosses: 2, MaxLossRPerHour: 100, Cooldown: 10 * time.Minute}
	cb, clock := newTestBreaker(cfg)

	cb.RecordOutcome(-1)
	cb.RecordOutcome(-1)
	if cb.State() != StateOpen {
		t.Fatal("Expected open")
	}

	clock.t = clock.t.Add(11 * time.Minute)
	if ok, _ := cb.Allow(); !ok {
		t.Fatal("Cooldown elapsed, expected a half-open trial")
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("Expected half-open, got %s", cb.State())
	}

	// a loss while probing re-trips
	cb.RecordOutcome(-0.5)
	if cb.State() != StateOpen {
		t.Fatalf("Loss during trial should re-open, got %s", cb.State())
	}

	clock.t = clock.t.Add(11 * time.Minute)
	cb.Allow()
	reset := make(chan struct{}, 1)
	cb.OnReset(func() { reset <- struct{}{} })
	cb.RecordOutcome(1.5)
	if cb.State() != StateClosed || cb.TripReason() != "" {
		t.Errorf("Win during trial should close, got %s %q", cb.State(), cb.TripReason())
	}
	select {
	case <-reset:
	case <-time.After(time.Second):
		t.Fatal("OnReset was not called")
	}
}

func TestBreaker_DisabledAndInvalid(t *testing.T) {
	cb, _ := newTestBreaker(Config{Enabled: false, MaxConsecutiveLosses: 1})
	cb.RecordOutcome(-5)
	if ok, _ := cb.Allow(); !ok || cb.State() != StateClosed {
		t.Error("Disabled breaker should never block")
	}

	cb2, _ := newTestBreaker(DefaultConfig())
	cb2.RecordOutcome(math.NaN())
	cb2.RecordOutcome(math.Inf(-1))
	if cb2.Stats()["total_outcomes"] != 0 {
		t.Error("Non-finite outcomes should be ignored")
	}
}

func TestBreaker_ForceReset(t *testing.T) {
	cb, _ := newTestBreaker(Config{Enabled: true, MaxConsecutiveLosses: 1, Cooldown: time.Hour})
	cb.RecordOutcome(-1)
	if cb.State() != StateOpen {
		t.Fatal("Expected open")
	}
	cb.ForceReset()
	if ok, _ := cb.Allow(); !ok || cb.Stats()["consecutive_losses"] != 0 {
		t.Errorf("ForceReset should close the breaker, stats %v", cb.Stats())
	}
}
