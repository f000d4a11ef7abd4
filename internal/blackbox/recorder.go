// Package blackbox writes an append-only JSON lines audit trail of analyses
// and component health.
package blackbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ict-engine/internal/confluence"
	"ict-engine/internal/logging"
)

// Record kinds
const (
	KindConfluenceAnalysis = "confluence_analysis"
	KindHealthStatus       = "health_status"
)

// Recorder is the audit log. Each call emits exactly one JSON line.
type Recorder struct {
	mu     sync.Mutex
	log    zerolog.Logger
	closer io.Closer

	entries int64
}

// NewRecorder writes records to w
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{
		log: zerolog.New(w).With().Timestamp().Logger(),
	}
}

// OpenRecorder appends to the file at path, creating parent directories
func OpenRecorder(path string) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create black box directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open black box file: %w", err)
	}
	r := NewRecorder(f)
	r.closer = f
	return r, nil
}

// LogConfluenceAnalysis records a summary of one confluence analysis
func (r *Recorder) LogConfluenceAnalysis(ctx context.Context, a *confluence.ConfluenceAnalysis) error {
	if a == nil {
		return fmt.Errorf("nil analysis")
	}

	patterns := zerolog.Arr()
	for _, p := range a.Patterns {
		patterns.Dict(zerolog.Dict().
			Str("type", string(p.PatternType)).
			Str("id", p.PatternID).
			Str("direction", p.Direction).
			Float64("strength", p.Strength).
			Float64("confidence", p.Confidence).
			Float64("price_level", p.PriceLevel))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ev := r.log.Info().
		Str("kind", KindConfluenceAnalysis).
		Str("analysis_id", a.AnalysisID).
		Str("symbol", a.Symbol).
		Str("timeframe", a.Timeframe).
		Float64("overall_strength", a.OverallStrength).
		Str("strength_level", string(a.StrengthLevel)).
		Str("market_bias", string(a.MarketBias)).
		Float64("decision_confidence", a.DecisionConfidence).
		Str("recommended_action", a.RecommendedAction).
		Dur("processing_time", a.ProcessingTime).
		Array("patterns", patterns)

	if traceID := logging.TraceIDFromContext(ctx); traceID != "" {
		ev = ev.Str("trace_id", traceID)
	}
	if msg, ok := a.Metadata["error"]; ok {
		ev = ev.Interface("error", msg)
	}
	ev.Send()
	r.entries++
	return nil
}

// LogHealthStatus records a component health snapshot
func (r *Recorder) LogHealthStatus(component string, status map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.log.Info().
		Str("kind", KindHealthStatus).
		Str("component", component).
		Time("observed_at", time.Now().UTC()).
		Fields(status).
		Send()
	r.entries++
	return nil
}

// Entries returns the number of records written
func (r *Recorder) Entries() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries
}

// Close releases the underlying file, if any
func (r *Recorder) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
