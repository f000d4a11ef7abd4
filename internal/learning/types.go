package learning

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRecordNotFound is returned for an unknown record id
	ErrRecordNotFound = errors.New("learning record not found")
	// ErrAlreadyResolved is returned when an outcome was already recorded
	ErrAlreadyResolved = errors.New("learning record already resolved")
	// ErrInvalidOutcome is returned for an outcome outside the closed set
	ErrInvalidOutcome = errors.New("invalid pattern outcome")
)

// Outcome of a detected pattern once the trade idea played out
type Outcome string

const (
	OutcomePending   Outcome = "PENDING"
	OutcomeWin       Outcome = "WIN"
	OutcomeLoss      Outcome = "LOSS"
	OutcomeBreakeven Outcome = "BREAKEVEN"
	OutcomeExpired   Outcome = "EXPIRED"
)

// ParseOutcome validates a resolved outcome name
func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(s); o {
	case OutcomeWin, OutcomeLoss, OutcomeBreakeven, OutcomeExpired:
		return o, nil
	}
	return "", ErrInvalidOutcome
}

// Record is one pattern detection tracked for outcome learning
type Record struct {
	RecordID        string     `json:"record_id"`
	PatternType     string     `json:"pattern_type"`
	Symbol          string     `json:"symbol"`
	Timeframe       string     `json:"timeframe"`
	PatternStrength float64    `json:"pattern_strength"`
	OverallStrength float64    `json:"overall_strength"`
	Outcome         Outcome    `json:"outcome"`
	ProfitR         *float64   `json:"profit_r,omitempty"`
	Feedback        string     `json:"feedback,omitempty"`
	DetectedAt      time.Time  `json:"detected_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}

// PatternStats summarizes resolved outcomes for one pattern type
type PatternStats struct {
	PatternType  string  `json:"pattern_type"`
	Total        int     `json:"total"`
	Resolved     int     `json:"resolved"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	Breakevens   int     `json:"breakevens"`
	Expired      int     `json:"expired"`
	WinRate      float64 `json:"win_rate"`
	TotalProfitR float64 `json:"total_profit_r"`
	AvgProfitR   float64 `json:"avg_profit_r"`
}

// finalize derives the rates from the raw counts
func (s *PatternStats) finalize() {
	s.Resolved = s.Wins + s.Losses + s.Breakevens + s.Expired
	decided := s.Wins + s.Losses
	if decided > 0 {
		s.WinRate = float64(s.Wins) / float64(decided) * 100
	}
	if s.Resolved > 0 {
		s.AvgProfitR = s.TotalProfitR / float64(s.Resolved)
	}
}

// Store persists learning records
type Store interface {
	Insert(ctx context.Context, rec *Record) error
	Get(ctx context.Context, recordID string) (*Record, error)
	Resolve(ctx context.Context, recordID string, outcome Outcome, profitR float64, feedback string, resolvedAt time.Time) (*Record, error)
	Recent(ctx context.Context, symbol, timeframe string, limit int) ([]Record, error)
	Stats(ctx context.Context) ([]PatternStats, error)
}
