// Package memory keeps a short recall window of confluence analyses per
// symbol and timeframe.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"ict-engine/internal/cache"
	"ict-engine/internal/confluence"
	"ict-engine/internal/logging"
)

// DefaultCapacity is the number of analyses kept per symbol/timeframe
const DefaultCapacity = 50

// Backend is a capped list store. cache.CacheService satisfies it.
type Backend interface {
	PushCapped(ctx context.Context, key string, value interface{}, max int, ttl time.Duration) error
	Range(ctx context.Context, key string, n int) ([]string, error)
}

// Entry is the remembered summary of one analysis
type Entry struct {
	AnalysisID         string                   `json:"analysis_id"`
	Symbol             string                   `json:"symbol"`
	Timeframe          string                   `json:"timeframe"`
	OverallStrength    float64                  `json:"overall_strength"`
	StrengthLevel      confluence.StrengthLevel `json:"strength_level"`
	MarketBias         confluence.MarketBias    `json:"market_bias"`
	DecisionConfidence float64                  `json:"decision_confidence"`
	RecommendedAction  string                   `json:"recommended_action"`
	PatternCount       int                      `json:"pattern_count"`
	DominantPatterns   []confluence.PatternType `json:"dominant_patterns"`
	Timestamp          time.Time                `json:"timestamp"`
}

func entryFrom(a *confluence.ConfluenceAnalysis) Entry {
	return Entry{
		AnalysisID:         a.AnalysisID,
		Symbol:             a.Symbol,
		Timeframe:          a.Timeframe,
		OverallStrength:    a.OverallStrength,
		StrengthLevel:      a.StrengthLevel,
		MarketBias:         a.MarketBias,
		DecisionConfidence: a.DecisionConfidence,
		RecommendedAction:  a.RecommendedAction,
		PatternCount:       len(a.Patterns),
		DominantPatterns:   a.DominantPatterns,
		Timestamp:          a.Timestamp,
	}
}

// System stores analyses in the backend and falls back to an in-process
// ring when the backend is missing or failing.
type System struct {
	backend  Backend
	fallback *Ring
	capacity int
	ttl      time.Duration
	logger   *logging.Logger
}

// NewSystem creates a memory system. backend may be nil.
func NewSystem(backend Backend, capacity int, ttl time.Duration, logger *logging.Logger) *System {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = cache.DefaultMemoryTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &System{
		backend:  backend,
		fallback: NewRing(capacity),
		capacity: capacity,
		ttl:      ttl,
		logger:   logger.WithComponent("MemorySystem"),
	}
}

// StoreAnalysis remembers a completed analysis. Degraded analyses are skipped.
func (s *System) StoreAnalysis(ctx context.Context, analysis *confluence.ConfluenceAnalysis) error {
	if analysis == nil || analysis.Failed() {
		return nil
	}
	entry := entryFrom(analysis)
	key := cache.AnalysisMemoryKey(analysis.Symbol, analysis.Timeframe)

	if s.backend != nil {
		err := s.backend.PushCapped(ctx, key, entry, s.capacity, s.ttl)
		if err == nil {
			return nil
		}
		s.logger.Warn("Memory backend write failed, using in-process ring",
			"key", key,
			"error", err)
	}
	s.fallback.Push(key, entry)
	return nil
}

// Recent returns up to n remembered analyses, newest first
func (s *System) Recent(ctx context.Context, symbol, timeframe string, n int) ([]Entry, error) {
	if n <= 0 || n > s.capacity {
		n = s.capacity
	}
	key := cache.AnalysisMemoryKey(symbol, timeframe)

	if s.backend != nil {
		raw, err := s.backend.Range(ctx, key, n)
		if err == nil && len(raw) > 0 {
			out := make([]Entry, 0, len(raw))
			for _, r := range raw {
				var e Entry
				if err := json.Unmarshal([]byte(r), &e); err != nil {
					return nil, fmt.Errorf("failed to decode memory entry: %w", err)
				}
				out = append(out, e)
			}
			return out, nil
		}
		if err != nil {
			s.logger.Warn("Memory backend read failed, using in-process ring",
				"key", key,
				"error", err)
		}
	}
	return s.fallback.Recent(key, n), nil
}

// Ring is a bounded per-key list held in process
type Ring struct {
	mu       sync.RWMutex
	capacity int
	entries  map[string][]Entry
}

// NewRing creates a ring holding up to capacity entries per key
func NewRing(capacity int) *Ring {
	return &Ring{capacity: capacity, entries: make(map[string][]Entry)}
}

// Push prepends an entry, evicting the oldest past capacity
func (r *Ring) Push(key string, e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := append([]Entry{e}, r.entries[key]...)
	if len(list) > r.capacity {
		list = list[:r.capacity]
	}
	r.entries[key] = list
}

// Recent returns up to n entries, newest first
func (r *Ring) Recent(key string, n int) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.entries[key]
	if n > len(list) {
		n = len(list)
	}
	out := make([]Entry, n)
	copy(out, list[:n])
	return out
}
