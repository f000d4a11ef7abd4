package circuit

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// BreakerState represents the circuit breaker state
type BreakerState string

const (
	StateClosed   BreakerState = "closed"    // Normal operation
	StateOpen     BreakerState = "open"      // Signals halted
	StateHalfOpen BreakerState = "half_open" // Testing recovery
)

// Config holds signal breaker configuration
type Config struct {
	Enabled              bool          `json:"enabled" yaml:"enabled"`
	MaxConsecutiveLosses int           `json:"max_consecutive_losses" yaml:"max_consecutive_losses"`
	MaxLossRPerHour      float64       `json:"max_loss_r_per_hour" yaml:"max_loss_r_per_hour"` // Loss in R within the rolling hour
	Cooldown             time.Duration `json:"cooldown" yaml:"cooldown"`
}

// DefaultConfig returns safe defaults
func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		MaxConsecutiveLosses: 5,
		MaxLossRPerHour:      4.0,
		Cooldown:             30 * time.Minute,
	}
}

// SignalBreaker halts signal publication after a run of losing outcomes.
// Outcomes are reported in R multiples.
type SignalBreaker struct {
	config            Config
	state             BreakerState
	consecutiveLosses int
	hourlyLossR       float64
	totalOutcomes     int
	trips             int
	lastTripTime      time.Time
	hourlyResetTime   time.Time
	tripReason        string
	mu                sync.RWMutex
	onTrip            func(reason string)
	onReset           func()
	now               func() time.Time
}

// NewSignalBreaker creates a new breaker
func NewSignalBreaker(config Config) *SignalBreaker {
	return newSignalBreaker(config, time.Now)
}

func newSignalBreaker(config Config, now func() time.Time) *SignalBreaker {
	return &SignalBreaker{
		config:          config,
		state:           StateClosed,
		hourlyResetTime: now().Add(time.Hour),
		now:             now,
	}
}

// OnTrip sets callback for when breaker trips
func (cb *SignalBreaker) OnTrip(handler func(reason string)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onTrip = handler
}

// OnReset sets callback for when breaker resets
func (cb *SignalBreaker) OnReset(handler func()) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onReset = handler
}

// Allow reports whether signals may be acted on. A breaker whose cooldown
// has elapsed moves to half-open and allows a trial signal.
func (cb *SignalBreaker) Allow() (bool, string) {
	if !cb.config.Enabled {
		return true, ""
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.resetCountersIfNeeded()

	if cb.state == StateOpen {
		elapsed := cb.now().Sub(cb.lastTripTime)
		if elapsed < cb.config.Cooldown {
			remaining := cb.config.Cooldown - elapsed
			return false, fmt.Sprintf("signal breaker open, cooldown remaining: %v (reason: %s)",
				remaining.Round(time.Second), cb.tripReason)
		}

		// Cooldown passed, try half-open
		cb.state = StateHalfOpen
	}

	return true, ""
}

// RecordOutcome feeds one resolved outcome, in R, into the breaker
func (cb *SignalBreaker) RecordOutcome(profitR float64) {
	if !cb.config.Enabled {
		return
	}
	if math.IsNaN(profitR) || math.IsInf(profitR, 0) {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.resetCountersIfNeeded()
	cb.totalOutcomes++

	if profitR < 0 {
		cb.consecutiveLosses++
		cb.hourlyLossR += -profitR

		if cb.state == StateHalfOpen {
			cb.trip("loss during half-open trial")
			return
		}
		cb.checkAndTrip()
		return
	}

	// Winning or flat outcome
	cb.consecutiveLosses = 0
	if cb.state == StateHalfOpen && profitR > 0 {
		cb.state = StateClosed
		cb.tripReason = ""
		cb.hourlyLossR = 0
		if cb.onReset != nil {
			go cb.onReset()
		}
	}
}

// checkAndTrip checks conditions and trips if needed
func (cb *SignalBreaker) checkAndTrip() {
	if cb.state == StateOpen {
		return
	}

	var reason string
	if cb.config.MaxConsecutiveLosses > 0 && cb.consecutiveLosses >= cb.config.MaxConsecutiveLosses {
		reason = fmt.Sprintf("consecutive losses: %d", cb.consecutiveLosses)
	} else if cb.config.MaxLossRPerHour > 0 && cb.hourlyLossR >= cb.config.MaxLossRPerHour {
		reason = fmt.Sprintf("hourly loss: %.2fR", cb.hourlyLossR)
	}

	if reason != "" {
		cb.trip(reason)
	}
}

// trip opens the breaker
func (cb *SignalBreaker) trip(reason string) {
	cb.state = StateOpen
	cb.lastTripTime = cb.now()
	cb.tripReason = reason
	cb.trips++

	if cb.onTrip != nil {
		go cb.onTrip(reason)
	}
}

// resetCountersIfNeeded resets time-based counters
func (cb *SignalBreaker) resetCountersIfNeeded() {
	now := cb.now()
	if now.After(cb.hourlyResetTime) {
		cb.hourlyLossR = 0
		cb.hourlyResetTime = now.Add(time.Hour)
	}
}

// ForceReset manually closes the breaker
func (cb *SignalBreaker) ForceReset() {
	cb.mu.Lock()
	cb.state = StateClosed
	cb.consecutiveLosses = 0
	cb.hourlyLossR = 0
	cb.tripReason = ""
	onReset := cb.onReset
	cb.mu.Unlock()

	if onReset != nil {
		go onReset()
	}
}

// State returns current breaker state
func (cb *SignalBreaker) State() BreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// TripReason returns why the breaker last tripped, empty when closed
func (cb *SignalBreaker) TripReason() string {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.tripReason
}

// Stats returns current statistics
func (cb *SignalBreaker) Stats() map[string]interface{} {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return map[string]interface{}{
		"enabled":            cb.config.Enabled,
		"state":              string(cb.state),
		"consecutive_losses": cb.consecutiveLosses,
		"hourly_loss_r":      cb.hourlyLossR,
		"total_outcomes":     cb.totalOutcomes,
		"trips":              cb.trips,
		"trip_reason":        cb.tripReason,
		"last_trip_time":     cb.lastTripTime,
	}
}

// IsEnabled returns if the breaker is enabled
func (cb *SignalBreaker) IsEnabled() bool {
	return cb.config.Enabled
}
