package signals

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ict-engine/internal/analysis"
	"ict-engine/internal/confluence"
	"ict-engine/internal/logging"
	"ict-engine/internal/market"
)

// ErrSynthesisPanic wraps a recovered panic inside the synthesizer
var ErrSynthesisPanic = errors.New("signal synthesis panicked")

// ConfluenceAnalyzer produces a confluence analysis for a candle series
type ConfluenceAnalyzer interface {
	AnalyzeConfluence(ctx context.Context, candles []market.Candle, symbol, timeframe string) (*confluence.ConfluenceAnalysis, error)
}

// StructureAnalyzer produces a market structure read for a candle series
type StructureAnalyzer interface {
	AnalyzeMarketStructure(candles []market.Candle, symbol, timeframe string) (*analysis.MarketStructure, error)
}

// Config holds synthesizer configuration. Offsets are percentages of the last close.
type Config struct {
	MaxRiskPercent          float64       `json:"max_risk_percent" yaml:"max_risk_percent"`
	SignalExpiry            time.Duration `json:"signal_expiry" yaml:"signal_expiry"`
	EntryOffsetPercent      float64       `json:"entry_offset_percent" yaml:"entry_offset_percent"`
	StopOffsetPercent       float64       `json:"stop_offset_percent" yaml:"stop_offset_percent"`
	TargetOffsetPercent     float64       `json:"target_offset_percent" yaml:"target_offset_percent"`
	MarketEntryThresholdPct float64       `json:"market_entry_threshold_percent" yaml:"market_entry_threshold_percent"`
}

// DefaultConfig returns the default synthesizer configuration
func DefaultConfig() Config {
	return Config{
		MaxRiskPercent:          2.0,
		SignalExpiry:            4 * time.Hour,
		EntryOffsetPercent:      0.1,
		StopOffsetPercent:       0.5,
		TargetOffsetPercent:     1.5,
		MarketEntryThresholdPct: 0.2,
	}
}

// Synthesizer blends confluence and structure into a trade setup
type Synthesizer struct {
	cfg        Config
	confluence ConfluenceAnalyzer
	structure  StructureAnalyzer
	logger     *logging.Logger

	mu    sync.Mutex
	stats Stats
}

// NewSynthesizer creates a synthesizer. Either collaborator may be nil, in
// which case its score contribution is 0.
func NewSynthesizer(cfg Config, conf ConfluenceAnalyzer, structure StructureAnalyzer, logger *logging.Logger) *Synthesizer {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.SignalExpiry <= 0 {
		cfg.SignalExpiry = 4 * time.Hour
	}
	return &Synthesizer{
		cfg:        cfg,
		confluence: conf,
		structure:  structure,
		logger:     logger.WithComponent("SignalSynthesizer"),
		stats:      Stats{BySignal: make(map[TradingSignal]int64)},
	}
}

// SynthesizeTradingSignals runs both collaborators and builds a setup.
// On failure it returns a WAIT/INVALID setup carrying the error.
func (s *Synthesizer) SynthesizeTradingSignals(ctx context.Context, candles []market.Candle, symbol, timeframe string) (setup *TradeSetup, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSynthesisPanic, r)
			s.logger.Error("Signal synthesis panicked", "symbol", symbol, "panic", fmt.Sprint(r))
			setup = s.degraded(symbol, timeframe, err)
		}
	}()

	if verr := market.Validate(candles); verr != nil {
		err = fmt.Errorf("%w: %w", confluence.ErrInvalidCandles, verr)
		return s.degraded(symbol, timeframe, err), err
	}

	log := logging.SignalContext(ctx, s.logger, symbol, timeframe)

	var ca *confluence.ConfluenceAnalysis
	if s.confluence != nil {
		a, cerr := s.confluence.AnalyzeConfluence(ctx, candles, symbol, timeframe)
		if cerr != nil {
			log.Warn("Confluence unavailable for synthesis", "error", cerr)
		} else {
			ca = a
		}
	}

	var ms *analysis.MarketStructure
	if s.structure != nil {
		m, serr := s.structure.AnalyzeMarketStructure(candles, symbol, timeframe)
		if serr != nil {
			log.Warn("Structure unavailable for synthesis", "error", serr)
		} else {
			ms = m
		}
	}

	return s.SynthesizeFromAnalyses(candles, symbol, timeframe, ca, ms)
}

// SynthesizeFromAnalyses builds a setup from analyses that were already
// computed. Nil analyses contribute a score of 0.
func (s *Synthesizer) SynthesizeFromAnalyses(candles []market.Candle, symbol, timeframe string, ca *confluence.ConfluenceAnalysis, ms *analysis.MarketStructure) (setup *TradeSetup, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSynthesisPanic, r)
			s.logger.Error("Signal synthesis panicked", "symbol", symbol, "panic", fmt.Sprint(r))
			setup = s.degraded(symbol, timeframe, err)
		}
	}()

	now := time.Now().UTC()
	setup = &TradeSetup{
		SetupID:            uuid.New().String(),
		Symbol:             symbol,
		Timeframe:          timeframe,
		AlternativeSignals: []TradingSignal{},
		Recommendations:    []TradingRecommendation{},
		CreatedAt:          now,
		ExpiresAt:          now.Add(s.cfg.SignalExpiry),
	}

	var bullish, bearish bool
	if ca != nil {
		setup.ConfluenceScore = ca.OverallStrength
		setup.MarketBias = ca.MarketBias
		setup.PatternConfirmations = len(ca.Patterns)
		bullish = ca.MarketBias == confluence.BiasBullish
		bearish = ca.MarketBias == confluence.BiasBearish
	}
	if ms != nil {
		setup.StructureScore = ms.TrendStrength
		setup.StructureDirection = ms.TrendDirection
		setup.NextKeyLevel = ms.NextKeyLevel
		bullish = bullish || ms.TrendDirection == analysis.TrendBullish
		bearish = bearish || ms.TrendDirection == analysis.TrendBearish
	}

	setup.OverallScore = BlendScores(setup.ConfluenceScore, setup.StructureScore)
	setup.SetupQuality = QualityFor(setup.OverallScore)
	setup.PrimarySignal = SignalFor(setup.OverallScore, bullish, bearish)
	setup.AlternativeSignals = AlternativeSignals(setup.PrimarySignal)

	if setup.PrimarySignal != SignalWait {
		if rec, ok := s.recommend(setup, market.LastClose(candles), bullish); ok {
			setup.Recommendations = append(setup.Recommendations, rec)
		}
	}
	setup.Narrative = narrative(setup, bullish, bearish)

	s.record(setup)
	logging.SignalContext(context.Background(), s.logger, symbol, timeframe).Debug("Trade setup synthesized",
		"signal", string(setup.PrimarySignal),
		"score", setup.OverallScore,
		"quality", string(setup.SetupQuality),
		"recommendations", len(setup.Recommendations))
	return setup, nil
}

func (s *Synthesizer) recommend(setup *TradeSetup, lastClose float64, bullish bool) (TradingRecommendation, bool) {
	if lastClose <= 0 {
		return TradingRecommendation{}, false
	}

	dir := DirectionShort
	if bullish {
		dir = DirectionLong
	}
	levels := CalculateLevels(lastClose, dir, s.cfg.EntryOffsetPercent, s.cfg.StopOffsetPercent, s.cfg.TargetOffsetPercent)

	entryType := EntryLimit
	if math.Abs(s.cfg.EntryOffsetPercent) < s.cfg.MarketEntryThresholdPct {
		entryType = EntryMarket
	}

	return TradingRecommendation{
		Signal:              setup.PrimarySignal,
		Direction:           dir,
		EntryPrice:          levels.Entry,
		StopLoss:            levels.Stop,
		TakeProfit:          levels.Target,
		RiskRewardRatio:     levels.RiskReward(),
		NominalRiskReward:   NominalRiskReward,
		PositionSizePercent: math.Min(s.cfg.MaxRiskPercent, 1.0),
		EntryType:           entryType,
		Confidence:          setup.OverallScore,
		Reasoning: fmt.Sprintf("%s %s from %.5f: stop %.5f, target %.5f",
			setup.PrimarySignal, dir, lastClose, levels.Stop, levels.Target),
	}, true
}

func narrative(setup *TradeSetup, bullish, bearish bool) string {
	parts := []string{
		fmt.Sprintf("%s %s setup scored %.1f (%s)", setup.Symbol, setup.Timeframe, setup.OverallScore, setup.SetupQuality),
		fmt.Sprintf("confluence %.1f", setup.ConfluenceScore),
		fmt.Sprintf("structure %.1f", setup.StructureScore),
	}
	if setup.MarketBias != "" {
		parts = append(parts, fmt.Sprintf("confluence bias %s", setup.MarketBias))
	}
	if setup.StructureDirection != "" {
		parts = append(parts, fmt.Sprintf("structure trend %s", setup.StructureDirection))
	}
	if setup.PatternConfirmations > 0 {
		parts = append(parts, fmt.Sprintf("%d pattern confirmations", setup.PatternConfirmations))
	}
	if bullish && bearish {
		parts = append(parts, "confluence and structure disagree")
	}
	if setup.NextKeyLevel != nil {
		parts = append(parts, fmt.Sprintf("next key level %.5f", *setup.NextKeyLevel))
	}
	parts = append(parts, fmt.Sprintf("signal %s", setup.PrimarySignal))
	return strings.Join(parts, "; ")
}

func (s *Synthesizer) degraded(symbol, timeframe string, cause error) *TradeSetup {
	now := time.Now().UTC()
	s.mu.Lock()
	s.stats.FailedSetups++
	s.mu.Unlock()

	return &TradeSetup{
		SetupID:            uuid.New().String(),
		Symbol:             symbol,
		Timeframe:          timeframe,
		SetupQuality:       QualityInvalid,
		PrimarySignal:      SignalWait,
		AlternativeSignals: []TradingSignal{},
		Recommendations:    []TradingRecommendation{},
		Narrative:          "setup unavailable: " + cause.Error(),
		CreatedAt:          now,
		ExpiresAt:          now.Add(s.cfg.SignalExpiry),
		Error:              cause.Error(),
	}
}

func (s *Synthesizer) record(setup *TradeSetup) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.TotalSetups++
	s.stats.BySignal[setup.PrimarySignal]++
	s.stats.Recommendations += int64(len(setup.Recommendations))
}

// SynthesizerStats returns a snapshot of the running counters
func (s *Synthesizer) SynthesizerStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.stats
	out.BySignal = make(map[TradingSignal]int64, len(s.stats.BySignal))
	for k, v := range s.stats.BySignal {
		out.BySignal[k] = v
	}
	return out
}
