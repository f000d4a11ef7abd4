// Package analytics runs the confluence, structure and signal stages as one
// pipeline and manages their lifecycle.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ict-engine/internal/analysis"
	"ict-engine/internal/confluence"
	"ict-engine/internal/events"
	"ict-engine/internal/learning"
	"ict-engine/internal/logging"
	"ict-engine/internal/market"
	"ict-engine/internal/signals"
)

// ConfluenceEngine analyzes pattern confluence
type ConfluenceEngine interface {
	AnalyzeConfluence(ctx context.Context, candles []market.Candle, symbol, timeframe string) (*confluence.ConfluenceAnalysis, error)
}

// SignalSynthesizer turns precomputed analyses into a trade setup
type SignalSynthesizer interface {
	SynthesizeFromAnalyses(candles []market.Candle, symbol, timeframe string, ca *confluence.ConfluenceAnalysis, ms *analysis.MarketStructure) (*signals.TradeSetup, error)
}

// LearningRecorder stores pattern detections and their outcomes
type LearningRecorder interface {
	RecordPatternDetection(ctx context.Context, patternType, symbol, timeframe string, strength, overallStrength float64) (string, error)
	UpdatePatternOutcome(ctx context.Context, recordID string, outcome learning.Outcome, profitR float64, feedback string) (*learning.Record, error)
}

// DashboardPublisher receives analytics events. events.EventBus satisfies it.
type DashboardPublisher interface {
	PublishAnalyticsEvent(eventType events.EventType, symbol, timeframe string, component events.Component, data map[string]interface{}, priority events.Priority)
	PublishSystemStatus(status string, details map[string]interface{})
}

// OutcomeBreaker halts signals after losing outcomes. circuit.SignalBreaker satisfies it.
type OutcomeBreaker interface {
	Allow() (bool, string)
	RecordOutcome(profitR float64)
	Stats() map[string]interface{}
}

// Dependencies carry a factory per optional component. A nil factory means
// the component is unavailable.
type Dependencies struct {
	NewConfluenceEngine  func() (ConfluenceEngine, error)
	NewStructureAnalyzer func() (signals.StructureAnalyzer, error)
	NewSynthesizer       func(conf ConfluenceEngine, structure signals.StructureAnalyzer) (SignalSynthesizer, error)
	NewLearningSystem    func() (LearningRecorder, error)
	NewDashboard         func() (DashboardPublisher, error)

	Breaker  OutcomeBreaker
	BlackBox confluence.BlackBox
	Logger   *logging.Logger
}

// Config holds integrator configuration
type Config struct {
	Mode AnalyticsMode `json:"mode" yaml:"mode"`
}

// DefaultConfig returns the default integrator configuration
func DefaultConfig() Config {
	return Config{Mode: ModeFullAnalytics}
}

type components struct {
	confluence  ConfluenceEngine
	structure   signals.StructureAnalyzer
	synthesizer SignalSynthesizer
	learning    LearningRecorder
	dashboard   DashboardPublisher
}

func (c components) names() []string {
	var out []string
	if c.confluence != nil {
		out = append(out, ComponentConfluence)
	}
	if c.structure != nil {
		out = append(out, ComponentStructure)
	}
	if c.synthesizer != nil {
		out = append(out, ComponentSynthesizer)
	}
	if c.learning != nil {
		out = append(out, ComponentLearning)
	}
	if c.dashboard != nil {
		out = append(out, ComponentDashboard)
	}
	return out
}

// Integrator owns the analytics components and their lifecycle
type Integrator struct {
	cfg      Config
	deps     Dependencies
	breaker  OutcomeBreaker
	blackBox confluence.BlackBox
	logger   *logging.Logger

	initMu    sync.Mutex
	mu        sync.RWMutex
	status    IntegrationStatus
	comps     components
	startedAt time.Time

	countersMu sync.Mutex
	counters   Counters
	lastTrend  map[string]analysis.TrendDirection
}

// NewIntegrator creates an integrator. Nothing starts until
// InitializeAnalyticsSystem is called.
func NewIntegrator(cfg Config, deps Dependencies) *Integrator {
	if cfg.Mode == "" {
		cfg.Mode = ModeFullAnalytics
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	bb := deps.BlackBox
	if bb == nil {
		bb = confluence.NopBlackBox{}
	}
	return &Integrator{
		cfg:       cfg,
		deps:      deps,
		breaker:   deps.Breaker,
		blackBox:  bb,
		logger:    logger.WithComponent("AnalyticsIntegrator"),
		status:    StatusNotInitialized,
		lastTrend: make(map[string]analysis.TrendDirection),
	}
}

// Status returns the current lifecycle state
func (ig *Integrator) Status() IntegrationStatus {
	ig.mu.RLock()
	defer ig.mu.RUnlock()
	return ig.status
}

// Mode returns the configured mode
func (ig *Integrator) Mode() AnalyticsMode {
	return ig.cfg.Mode
}

// InitializeAnalyticsSystem starts the components the mode requests. It is
// idempotent and returns false only if no component started.
func (ig *Integrator) InitializeAnalyticsSystem(ctx context.Context) bool {
	ig.initMu.Lock()
	defer ig.initMu.Unlock()

	ig.mu.Lock()
	switch ig.status {
	case StatusActive, StatusPaused:
		ig.mu.Unlock()
		return true
	case StatusShutdown:
		ig.mu.Unlock()
		ig.logger.Warn("Initialize called after shutdown")
		return false
	}
	ig.status = StatusInitializing
	ig.mu.Unlock()

	set, ok := ComponentsFor(ig.cfg.Mode)
	if !ok {
		ig.logger.Error("Unknown analytics mode", "mode", string(ig.cfg.Mode))
		ig.setStatus(StatusError)
		return false
	}

	comps := ig.startComponents(ctx, set)
	started := comps.names()

	if len(started) == 0 {
		ig.logger.Error("No analytics components started", "mode", string(ig.cfg.Mode))
		ig.setStatus(StatusError)
		ig.logHealth()
		return false
	}

	ig.mu.Lock()
	ig.comps = comps
	ig.status = StatusActive
	ig.startedAt = time.Now()
	ig.mu.Unlock()

	ig.logger.Info("Analytics system initialized",
		"mode", string(ig.cfg.Mode),
		"components", strings.Join(started, ","))
	ig.logHealth()
	ig.publishStatus(comps.dashboard, StatusActive)
	return true
}

func (ig *Integrator) startComponents(ctx context.Context, set ComponentSet) components {
	var c components
	log := ig.logger.WithField("mode", string(ig.cfg.Mode))

	start := func(name string, requested bool, fn func() error) {
		if !requested {
			return
		}
		if ctx.Err() != nil {
			log.Warn("Component start skipped, context done", "component", name)
			return
		}
		if err := fn(); err != nil {
			log.Warn("Component failed to start", "component", name, "error", err)
			return
		}
		log.Debug("Component started", "component", name)
	}

	start(ComponentConfluence, set.Confluence && ig.deps.NewConfluenceEngine != nil, func() error {
		e, err := ig.deps.NewConfluenceEngine()
		if err == nil {
			c.confluence = e
		}
		return err
	})
	start(ComponentStructure, set.Structure && ig.deps.NewStructureAnalyzer != nil, func() error {
		s, err := ig.deps.NewStructureAnalyzer()
		if err == nil {
			c.structure = s
		}
		return err
	})
	start(ComponentSynthesizer, set.Synthesizer && ig.deps.NewSynthesizer != nil, func() error {
		s, err := ig.deps.NewSynthesizer(c.confluence, c.structure)
		if err == nil {
			c.synthesizer = s
		}
		return err
	})
	start(ComponentLearning, set.Learning && ig.deps.NewLearningSystem != nil, func() error {
		l, err := ig.deps.NewLearningSystem()
		if err == nil {
			c.learning = l
		}
		return err
	})
	start(ComponentDashboard, set.Dashboard && ig.deps.NewDashboard != nil, func() error {
		d, err := ig.deps.NewDashboard()
		if err == nil {
			c.dashboard = d
		}
		return err
	})
	return c
}

func (ig *Integrator) setStatus(s IntegrationStatus) {
	ig.mu.Lock()
	ig.status = s
	ig.mu.Unlock()
}

func (ig *Integrator) snapshot() (IntegrationStatus, components) {
	ig.mu.RLock()
	defer ig.mu.RUnlock()
	return ig.status, ig.comps
}

// PerformCompleteAnalysis runs every available stage in order. Outside the
// ACTIVE state it returns an error-tagged result wrapping ErrNotActive and
// leaves the counters untouched.
func (ig *Integrator) PerformCompleteAnalysis(ctx context.Context, candles []market.Candle, symbol, timeframe string) (result *AnalyticsResult, err error) {
	start := time.Now()
	result = &AnalyticsResult{
		AnalysisID:        "aa_" + strings.ReplaceAll(uuid.New().String(), "-", ""),
		Symbol:            symbol,
		Timeframe:         timeframe,
		Mode:              ig.cfg.Mode,
		LearningRecordIDs: []string{},
		StageErrors:       make(map[string]string),
		Timestamp:         start.UTC(),
	}

	status, comps := ig.snapshot()
	if status != StatusActive {
		err = fmt.Errorf("%w: status %s", ErrNotActive, status)
		result.Error = err.Error()
		result.Insights = BuildInsights(nil, nil, nil)
		return result, err
	}

	log := logging.AnalyticsContext(ctx, ig.logger, symbol, timeframe, string(ig.cfg.Mode))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrAnalyticsPanic, r)
			log.Error("Analytics pipeline panicked", "panic", fmt.Sprint(r))
			result.Error = err.Error()
			result.ProcessingTime = time.Since(start)
			ig.recordFailure(start)
		}
	}()

	if verr := market.Validate(candles); verr != nil {
		err = fmt.Errorf("%w: %w", confluence.ErrInvalidCandles, verr)
		result.Error = err.Error()
		result.Insights = BuildInsights(nil, nil, nil)
		result.ProcessingTime = time.Since(start)
		ig.recordFailure(start)
		log.Warn("Rejected analysis input", "error", verr)
		return result, err
	}

	if comps.confluence != nil {
		ig.runStage(result, ComponentConfluence, log, func() error {
			ca, cerr := comps.confluence.AnalyzeConfluence(ctx, candles, symbol, timeframe)
			result.Confluence = ca
			return cerr
		})
	}

	if comps.structure != nil {
		ig.runStage(result, ComponentStructure, log, func() error {
			ms, serr := comps.structure.AnalyzeMarketStructure(candles, symbol, timeframe)
			result.Structure = ms
			return serr
		})
	}

	usableCA := result.Confluence
	if usableCA != nil && usableCA.Failed() {
		usableCA = nil
	}

	if comps.synthesizer != nil {
		ig.runStage(result, ComponentSynthesizer, log, func() error {
			setup, serr := comps.synthesizer.SynthesizeFromAnalyses(candles, symbol, timeframe, usableCA, result.Structure)
			result.Setup = setup
			return serr
		})
	}

	if comps.learning != nil && usableCA != nil {
		ig.runStage(result, ComponentLearning, log, func() error {
			var firstErr error
			for _, p := range usableCA.Patterns {
				id, lerr := comps.learning.RecordPatternDetection(ctx, string(p.PatternType), symbol, timeframe, p.Strength, usableCA.OverallStrength)
				if lerr != nil {
					if firstErr == nil {
						firstErr = lerr
					}
					continue
				}
				result.LearningRecordIDs = append(result.LearningRecordIDs, id)
			}
			return firstErr
		})
	}

	if comps.dashboard != nil {
		ig.runStage(result, ComponentDashboard, log, func() error {
			result.EventsPublished = ig.publishAnalysisEvents(comps.dashboard, result, usableCA)
			return nil
		})
	}

	result.Insights = BuildInsights(result.Confluence, result.Structure, result.Setup)
	if ig.breaker != nil {
		if ok, reason := ig.breaker.Allow(); !ok {
			result.Insights.Halted = true
			result.Insights.HaltReason = reason
		}
	}

	result.ProcessingTime = time.Since(start)
	ig.recordSuccess(start, result, usableCA)

	log.WithDuration(result.ProcessingTime).Info("Complete analysis finished",
		"overall_score", result.Insights.OverallScore,
		"recommendation", result.Insights.Recommendation,
		"stage_errors", len(result.StageErrors))
	return result, nil
}

// runStage isolates one stage. A failure or panic is recorded in
// StageErrors and the pipeline continues.
func (ig *Integrator) runStage(result *AnalyticsResult, name string, log *logging.Logger, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			result.StageErrors[name] = fmt.Sprintf("panic: %v", r)
			log.Warn("Analytics stage panicked", "stage", name, "panic", fmt.Sprint(r))
		}
	}()
	if err := fn(); err != nil {
		result.StageErrors[name] = err.Error()
		log.Warn("Analytics stage failed", "stage", name, "error", err)
	}
}

func (ig *Integrator) publishAnalysisEvents(pub DashboardPublisher, result *AnalyticsResult, ca *confluence.ConfluenceAnalysis) int {
	published := 0

	if ca != nil {
		priority := events.PriorityNormal
		if ca.StrengthLevel == confluence.StrengthStrong || ca.StrengthLevel == confluence.StrengthExtreme {
			priority = events.PriorityHigh
		}
		pub.PublishAnalyticsEvent(events.EventConfluenceUpdated, result.Symbol, result.Timeframe, events.ComponentConfluence,
			map[string]interface{}{
				"analysis_id":        ca.AnalysisID,
				"overall_strength":   ca.OverallStrength,
				"strength_level":     string(ca.StrengthLevel),
				"market_bias":        string(ca.MarketBias),
				"pattern_count":      len(ca.Patterns),
				"recommended_action": ca.RecommendedAction,
			}, priority)
		published++
	}

	if ms := result.Structure; ms != nil {
		if prev, changed := ig.trendChanged(result.Symbol, result.Timeframe, ms.TrendDirection); changed {
			pub.PublishAnalyticsEvent(events.EventStructureChanged, result.Symbol, result.Timeframe, events.ComponentStructure,
				map[string]interface{}{
					"analysis_id":        ms.AnalysisID,
					"previous_direction": string(prev),
					"trend_direction":    string(ms.TrendDirection),
					"trend_strength":     ms.TrendStrength,
					"current_phase":      string(ms.CurrentPhase),
				}, events.PriorityHigh)
			published++
		}
	}

	if setup := result.Setup; setup != nil && setup.Error == "" && setup.PrimarySignal != signals.SignalWait {
		priority := events.PriorityHigh
		if setup.PrimarySignal == signals.SignalStrongBuy || setup.PrimarySignal == signals.SignalStrongSell {
			priority = events.PriorityCritical
		}
		pub.PublishAnalyticsEvent(events.EventSignalGenerated, result.Symbol, result.Timeframe, events.ComponentSynthesizer,
			map[string]interface{}{
				"setup_id":       setup.SetupID,
				"primary_signal": string(setup.PrimarySignal),
				"side":           signalSide(setup.PrimarySignal),
				"overall_score":  setup.OverallScore,
				"setup_quality":  string(setup.SetupQuality),
				"expires_at":     setup.ExpiresAt,
			}, priority)
		published++
	}

	return published
}

func signalSide(sig signals.TradingSignal) string {
	switch {
	case sig.IsBuy():
		return "BUY"
	case sig.IsSell():
		return "SELL"
	}
	return "NEUTRAL"
}

// trendChanged records the latest direction and reports whether it differs
// from the previous one seen for the symbol/timeframe.
func (ig *Integrator) trendChanged(symbol, timeframe string, dir analysis.TrendDirection) (analysis.TrendDirection, bool) {
	key := symbol + "|" + timeframe

	ig.countersMu.Lock()
	defer ig.countersMu.Unlock()

	prev, seen := ig.lastTrend[key]
	ig.lastTrend[key] = dir
	return prev, seen && prev != dir
}

func (ig *Integrator) recordSuccess(start time.Time, result *AnalyticsResult, ca *confluence.ConfluenceAnalysis) {
	ig.countersMu.Lock()
	defer ig.countersMu.Unlock()

	ig.counters.TotalAnalyses++
	ig.counters.SuccessfulAnalyses++
	if ca != nil {
		ig.counters.PatternsDetected += int64(len(ca.Patterns))
	}
	if result.Setup != nil && result.Setup.Error == "" && result.Setup.PrimarySignal != signals.SignalWait {
		ig.counters.SignalsGenerated++
	}
	ig.counters.DashboardEvents += int64(result.EventsPublished)
	t := start.UTC()
	ig.counters.LastAnalysisAt = &t
}

func (ig *Integrator) recordFailure(start time.Time) {
	ig.countersMu.Lock()
	defer ig.countersMu.Unlock()

	ig.counters.TotalAnalyses++
	ig.counters.FailedAnalyses++
	t := start.UTC()
	ig.counters.LastAnalysisAt = &t
}

// UpdatePatternOutcome resolves a learning record, feeds the breaker and
// publishes TRADE_OUTCOME.
func (ig *Integrator) UpdatePatternOutcome(ctx context.Context, recordID string, outcome learning.Outcome, profitR float64, feedback string) error {
	status, comps := ig.snapshot()
	if status == StatusShutdown {
		return fmt.Errorf("%w: status %s", ErrNotActive, status)
	}
	if comps.learning == nil {
		return ErrLearningUnavailable
	}

	rec, err := comps.learning.UpdatePatternOutcome(ctx, recordID, outcome, profitR, feedback)
	if err != nil {
		return err
	}

	if ig.breaker != nil && outcome != learning.OutcomeExpired {
		ig.breaker.RecordOutcome(profitR)
	}

	published := 0
	if comps.dashboard != nil {
		comps.dashboard.PublishAnalyticsEvent(events.EventTradeOutcome, rec.Symbol, rec.Timeframe, events.ComponentLearning,
			map[string]interface{}{
				"record_id":    rec.RecordID,
				"pattern_type": rec.PatternType,
				"outcome":      string(rec.Outcome),
				"profit_r":     profitR,
			}, events.PriorityNormal)
		published++
	}

	ig.countersMu.Lock()
	ig.counters.OutcomesRecorded++
	ig.counters.DashboardEvents += int64(published)
	ig.countersMu.Unlock()
	return nil
}

// Counters returns a copy of the running counters
func (ig *Integrator) Counters() Counters {
	ig.countersMu.Lock()
	defer ig.countersMu.Unlock()

	c := ig.counters
	if c.LastAnalysisAt != nil {
		t := *c.LastAnalysisAt
		c.LastAnalysisAt = &t
	}
	return c
}

// GetSystemStatus reports lifecycle, counters and sub-component stats
func (ig *Integrator) GetSystemStatus() SystemStatus {
	ig.mu.RLock()
	status := ig.status
	comps := ig.comps
	startedAt := ig.startedAt
	ig.mu.RUnlock()

	st := SystemStatus{
		Status:         status,
		Mode:           ig.cfg.Mode,
		Components:     comps.names(),
		Counters:       ig.Counters(),
		ComponentStats: make(map[string]interface{}),
	}
	if st.Components == nil {
		st.Components = []string{}
	}
	sort.Strings(st.Components)

	if !startedAt.IsZero() {
		t := startedAt.UTC()
		st.StartedAt = &t
		if status == StatusActive || status == StatusPaused {
			st.UptimeSeconds = time.Since(startedAt).Seconds()
		}
	}

	type healthReporter interface {
		HealthStatus() map[string]interface{}
	}
	if hr, ok := comps.confluence.(healthReporter); ok {
		st.ComponentStats[ComponentConfluence] = hr.HealthStatus()
	}
	if sr, ok := comps.synthesizer.(interface{ SynthesizerStats() signals.Stats }); ok {
		st.ComponentStats[ComponentSynthesizer] = sr.SynthesizerStats()
	}
	if pc, ok := comps.dashboard.(interface {
		PublishedCount() map[events.EventType]int64
	}); ok {
		st.ComponentStats[ComponentDashboard] = pc.PublishedCount()
	}
	if ig.breaker != nil {
		st.ComponentStats["breaker"] = ig.breaker.Stats()
	}
	return st
}

// PauseAnalyticsSystem moves ACTIVE to PAUSED
func (ig *Integrator) PauseAnalyticsSystem() error {
	return ig.transition(StatusActive, StatusPaused)
}

// ResumeAnalyticsSystem moves PAUSED to ACTIVE
func (ig *Integrator) ResumeAnalyticsSystem() error {
	return ig.transition(StatusPaused, StatusActive)
}

func (ig *Integrator) transition(from, to IntegrationStatus) error {
	ig.mu.Lock()
	if ig.status != from {
		current := ig.status
		ig.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s from %s", ErrInvalidTransition, from, to, current)
	}
	ig.status = to
	dashboard := ig.comps.dashboard
	ig.mu.Unlock()

	ig.logger.Info("Analytics status changed", "from", string(from), "to", string(to))
	ig.logHealth()
	ig.publishStatus(dashboard, to)
	return nil
}

// ShutdownAnalyticsSystem stops the system from any state. It is terminal.
func (ig *Integrator) ShutdownAnalyticsSystem() error {
	ig.mu.Lock()
	if ig.status == StatusShutdown {
		ig.mu.Unlock()
		return nil
	}
	from := ig.status
	dashboard := ig.comps.dashboard
	ig.status = StatusShutdown
	ig.comps = components{}
	ig.mu.Unlock()

	ig.logger.Info("Analytics system shut down", "from", string(from))
	ig.logHealth()
	ig.publishStatus(dashboard, StatusShutdown)
	return nil
}

func (ig *Integrator) publishStatus(pub DashboardPublisher, status IntegrationStatus) {
	if pub == nil {
		return
	}
	pub.PublishSystemStatus(string(status), map[string]interface{}{
		"mode": string(ig.cfg.Mode),
	})

	ig.countersMu.Lock()
	ig.counters.DashboardEvents++
	ig.countersMu.Unlock()
}

func (ig *Integrator) logHealth() {
	st := ig.GetSystemStatus()
	health := map[string]interface{}{
		"status":              string(st.Status),
		"mode":                string(st.Mode),
		"components":          st.Components,
		"total_analyses":      st.Counters.TotalAnalyses,
		"successful_analyses": st.Counters.SuccessfulAnalyses,
		"failed_analyses":     st.Counters.FailedAnalyses,
	}
	if err := ig.blackBox.LogHealthStatus("AnalyticsIntegrator", health); err != nil {
		ig.logger.Warn("Black box health log failed", "error", err)
	}
}
