package database

import (
	"time"
)

// LearningRecord is a row of pattern_learning_records
type LearningRecord struct {
	ID              int64      `json:"id"`
	RecordID        string     `json:"record_id"`
	PatternType     string     `json:"pattern_type"`
	Symbol          string     `json:"symbol"`
	Timeframe       string     `json:"timeframe"`
	PatternStrength float64    `json:"pattern_strength"`
	OverallStrength float64    `json:"overall_strength"`
	Outcome         string     `json:"outcome"`
	ProfitR         *float64   `json:"profit_r,omitempty"`
	Feedback        *string    `json:"feedback,omitempty"`
	DetectedAt      time.Time  `json:"detected_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// PatternOutcomeSummary aggregates resolved outcomes per pattern type
type PatternOutcomeSummary struct {
	PatternType  string  `json:"pattern_type"`
	Total        int     `json:"total"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	Breakevens   int     `json:"breakevens"`
	Expired      int     `json:"expired"`
	TotalProfitR float64 `json:"total_profit_r"`
}
