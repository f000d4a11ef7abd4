package confluence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"ict-engine/internal/analysis"
	"ict-engine/internal/logging"
	"ict-engine/internal/market"
)

// BlackBox receives an audit record of every completed analysis
type BlackBox interface {
	LogConfluenceAnalysis(ctx context.Context, analysis *ConfluenceAnalysis) error
	LogHealthStatus(component string, status map[string]interface{}) error
}

// MemorySystem stores completed analyses for later recall
type MemorySystem interface {
	StoreAnalysis(ctx context.Context, analysis *ConfluenceAnalysis) error
}

// NopBlackBox discards everything
type NopBlackBox struct{}

func (NopBlackBox) LogConfluenceAnalysis(context.Context, *ConfluenceAnalysis) error { return nil }
func (NopBlackBox) LogHealthStatus(string, map[string]interface{}) error            { return nil }

// NopMemory discards everything
type NopMemory struct{}

func (NopMemory) StoreAnalysis(context.Context, *ConfluenceAnalysis) error { return nil }

// EngineConfig holds confluence engine configuration
type EngineConfig struct {
	Weights                map[PatternType]float64 `json:"weights" yaml:"weights"`
	MaxPatternsPerDetector int                     `json:"max_patterns_per_detector" yaml:"max_patterns_per_detector"`
	MinFVGGapPercent       float64                 `json:"min_fvg_gap_percent" yaml:"min_fvg_gap_percent"`
	OrderBlockLookback     int                     `json:"order_block_lookback" yaml:"order_block_lookback"`
	OrderBlockMinMove      float64                 `json:"order_block_min_move_percent" yaml:"order_block_min_move_percent"`
	SwingLookback          int                     `json:"swing_lookback" yaml:"swing_lookback"`
	ReversalWindow         int                     `json:"reversal_window" yaml:"reversal_window"`
}

// DefaultEngineConfig returns the default engine configuration
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxPatternsPerDetector: DefaultMaxPatternsPerDetector,
		MinFVGGapPercent:       0.1,
		OrderBlockLookback:     100,
		OrderBlockMinMove:      1.0,
		SwingLookback:          3,
		ReversalWindow:         10,
	}
}

// DefaultDetectors builds the FVG, order block and smart money sources
func DefaultDetectors(cfg EngineConfig) []PatternDetector {
	return []PatternDetector{
		NewFVGSource(analysis.NewFVGDetector(cfg.MinFVGGapPercent), cfg.MaxPatternsPerDetector),
		NewOrderBlockSource(analysis.NewOrderBlockDetector(cfg.OrderBlockLookback, cfg.OrderBlockMinMove), cfg.MaxPatternsPerDetector),
		NewSmartMoneySource(analysis.NewSmartMoneyDetector(cfg.SwingLookback, cfg.ReversalWindow), cfg.MaxPatternsPerDetector),
	}
}

// Option customizes an Engine
type Option func(*Engine)

// WithDetectors replaces the default pattern sources
func WithDetectors(detectors ...PatternDetector) Option {
	return func(e *Engine) { e.detectors = detectors }
}

// WithBlackBox sets the audit sink
func WithBlackBox(bb BlackBox) Option {
	return func(e *Engine) {
		if bb != nil {
			e.blackBox = bb
		}
	}
}

// WithMemory sets the memory system
func WithMemory(m MemorySystem) Option {
	return func(e *Engine) {
		if m != nil {
			e.memory = m
		}
	}
}

// Engine aggregates pattern detector output into a confluence analysis
type Engine struct {
	scorer    *Scorer
	detectors []PatternDetector
	blackBox  BlackBox
	memory    MemorySystem
	logger    *logging.Logger

	mu    sync.Mutex
	stats SessionStats
}

// NewEngine creates a confluence engine
func NewEngine(cfg EngineConfig, logger *logging.Logger, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = logging.Default()
	}

	scorer := NewScorer()
	if cfg.Weights != nil {
		if err := scorer.SetWeights(cfg.Weights); err != nil {
			return nil, fmt.Errorf("invalid confluence weights: %w", err)
		}
	}

	e := &Engine{
		scorer:    scorer,
		detectors: DefaultDetectors(cfg),
		blackBox:  NopBlackBox{},
		memory:    NopMemory{},
		logger:    logger.WithComponent("ConfluenceEngine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Scorer exposes the engine's weight table
func (e *Engine) Scorer() *Scorer {
	return e.scorer
}

// AnalyzeConfluence runs every pattern detector and aggregates the results.
// On failure it returns a degraded analysis (zero strength, WAIT, error in
// Metadata) together with the error.
func (e *Engine) AnalyzeConfluence(ctx context.Context, candles []market.Candle, symbol, timeframe string) (result *ConfluenceAnalysis, err error) {
	start := time.Now()
	log := logging.ConfluenceContext(ctx, e.logger, symbol, timeframe)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrAnalysisPanic, r)
			log.Error("Confluence analysis panicked", "panic", fmt.Sprint(r))
			result = e.degraded(symbol, timeframe, start, err)
		}
	}()

	if err := ctx.Err(); err != nil {
		return e.degraded(symbol, timeframe, start, err), err
	}
	if verr := market.Validate(candles); verr != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidCandles, verr)
		log.Warn("Rejected candle series", "error", err)
		return e.degraded(symbol, timeframe, start, err), err
	}

	patterns := e.collectPatterns(ctx, candles, symbol, timeframe)
	result = e.Aggregate(symbol, timeframe, patterns)
	result.ProcessingTime = time.Since(start)
	e.recordSuccess(result)

	if berr := e.blackBox.LogConfluenceAnalysis(ctx, result); berr != nil {
		log.Warn("Black box write failed", "error", berr)
	}
	if merr := e.memory.StoreAnalysis(ctx, result); merr != nil {
		log.Warn("Memory store failed", "error", merr)
	}

	log.Debug("Confluence analysis complete",
		"patterns", len(result.Patterns),
		"strength", result.OverallStrength,
		"bias", string(result.MarketBias),
		"action", result.RecommendedAction)
	return result, nil
}

// Aggregate scores an already detected pattern set
func (e *Engine) Aggregate(symbol, timeframe string, patterns []PatternConfluence) *ConfluenceAnalysis {
	if patterns == nil {
		patterns = []PatternConfluence{}
	}

	overall := e.scorer.CalculateOverallStrength(patterns)
	bias := e.scorer.DetermineMarketBias(patterns)
	dominant, supporting, conflicting := e.scorer.CategorizePatterns(patterns)

	return &ConfluenceAnalysis{
		AnalysisID:          uuid.New().String(),
		Symbol:              symbol,
		Timeframe:           timeframe,
		Patterns:            patterns,
		OverallStrength:     overall,
		StrengthLevel:       StrengthLevelFor(overall),
		MarketBias:          bias,
		DominantPatterns:    dominant,
		SupportingPatterns:  supporting,
		ConflictingPatterns: conflicting,
		DecisionConfidence:  CalculateDecisionConfidence(overall, len(patterns), countUnique(patterns)),
		RecommendedAction:   RecommendAction(overall, bias),
		Timestamp:           time.Now().UTC(),
		Metadata: map[string]interface{}{
			"detectors": len(e.detectors),
		},
	}
}

func (e *Engine) collectPatterns(ctx context.Context, candles []market.Candle, symbol, timeframe string) []PatternConfluence {
	var patterns []PatternConfluence
	for _, d := range e.detectors {
		found, err := safeDetect(d, candles, symbol, timeframe)
		if err != nil {
			logging.PatternContext(ctx, e.logger, symbol, timeframe, d.Name()).Warn("Pattern detector failed", "error", err)
			continue
		}
		for i := range found {
			if found[i].Timeframe == "" {
				found[i].Timeframe = timeframe
			}
		}
		patterns = append(patterns, found...)
	}
	return patterns
}

func safeDetect(d PatternDetector, candles []market.Candle, symbol, timeframe string) (patterns []PatternConfluence, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("detector %s panicked: %v", d.Name(), r)
		}
	}()
	return d.Detect(candles, symbol, timeframe)
}

func (e *Engine) degraded(symbol, timeframe string, start time.Time, cause error) *ConfluenceAnalysis {
	e.recordFailure()
	return &ConfluenceAnalysis{
		AnalysisID:          uuid.New().String(),
		Symbol:              symbol,
		Timeframe:           timeframe,
		Patterns:            []PatternConfluence{},
		OverallStrength:     0,
		StrengthLevel:       StrengthWeak,
		MarketBias:          BiasNeutral,
		DominantPatterns:    []PatternType{},
		SupportingPatterns:  []PatternType{},
		ConflictingPatterns: []PatternType{},
		DecisionConfidence:  0,
		RecommendedAction:   ActionWait,
		Timestamp:           time.Now().UTC(),
		ProcessingTime:      time.Since(start),
		Metadata: map[string]interface{}{
			"error": cause.Error(),
		},
	}
}

func (e *Engine) recordSuccess(a *ConfluenceAnalysis) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stats.TotalAnalyses++
	if a.StrengthLevel == StrengthStrong || a.StrengthLevel == StrengthExtreme {
		e.stats.StrongConfluences++
	}
	ms := float64(a.ProcessingTime) / float64(time.Millisecond)
	n := float64(e.stats.TotalAnalyses)
	e.stats.AvgProcessingTimeMs = (e.stats.AvgProcessingTimeMs*(n-1) + ms) / n
	e.stats.LastAnalysisAt = a.Timestamp
}

func (e *Engine) recordFailure() {
	e.mu.Lock()
	e.stats.FailedAnalyses++
	e.mu.Unlock()
}

// Stats returns a snapshot of the session counters
func (e *Engine) Stats() SessionStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// HealthStatus summarizes the engine for the status endpoint and black box
func (e *Engine) HealthStatus() map[string]interface{} {
	stats := e.Stats()
	names := make([]string, 0, len(e.detectors))
	for _, d := range e.detectors {
		names = append(names, d.Name())
	}
	return map[string]interface{}{
		"total_analyses":         stats.TotalAnalyses,
		"strong_confluences":     stats.StrongConfluences,
		"failed_analyses":        stats.FailedAnalyses,
		"avg_processing_time_ms": stats.AvgProcessingTimeMs,
		"detectors":              names,
	}
}
