package learning

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"ict-engine/internal/logging"
)

// System records pattern detections and learns from their outcomes
type System struct {
	store  Store
	logger *logging.Logger
	now    func() time.Time
}

// NewSystem creates a learning system over a store
func NewSystem(store Store, logger *logging.Logger) *System {
	if logger == nil {
		logger = logging.Default()
	}
	return &System{
		store:  store,
		logger: logger.WithComponent("Learning"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RecordPatternDetection stores a pending record and returns its id
func (s *System) RecordPatternDetection(ctx context.Context, patternType, symbol, timeframe string, strength, overallStrength float64) (string, error) {
	rec := &Record{
		RecordID:        "lr_" + strings.ReplaceAll(uuid.New().String(), "-", ""),
		PatternType:     patternType,
		Symbol:          symbol,
		Timeframe:       timeframe,
		PatternStrength: strength,
		OverallStrength: overallStrength,
		Outcome:         OutcomePending,
		DetectedAt:      s.now(),
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		return "", fmt.Errorf("failed to record %s detection: %w", patternType, err)
	}
	return rec.RecordID, nil
}

// UpdatePatternOutcome resolves a pending record
func (s *System) UpdatePatternOutcome(ctx context.Context, recordID string, outcome Outcome, profitR float64, feedback string) (*Record, error) {
	if _, err := ParseOutcome(string(outcome)); err != nil {
		return nil, fmt.Errorf("%w: %q", err, outcome)
	}
	if math.IsNaN(profitR) || math.IsInf(profitR, 0) {
		return nil, fmt.Errorf("profit R must be finite, got %f", profitR)
	}

	rec, err := s.store.Resolve(ctx, recordID, outcome, profitR, feedback, s.now())
	if err != nil {
		return nil, err
	}

	s.logger.Info("Pattern outcome recorded",
		"record_id", recordID,
		"pattern_type", rec.PatternType,
		"symbol", rec.Symbol,
		"outcome", string(outcome),
		"profit_r", profitR)
	return rec, nil
}

// GetRecord returns a single record
func (s *System) GetRecord(ctx context.Context, recordID string) (*Record, error) {
	return s.store.Get(ctx, recordID)
}

// RecentRecords returns the latest records for a symbol/timeframe
func (s *System) RecentRecords(ctx context.Context, symbol, timeframe string, limit int) ([]Record, error) {
	return s.store.Recent(ctx, symbol, timeframe, limit)
}

// PatternStats returns win rate and average R per pattern type
func (s *System) PatternStats(ctx context.Context) ([]PatternStats, error) {
	return s.store.Stats(ctx)
}
