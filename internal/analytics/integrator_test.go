package analytics

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sync"
	"testing"
	"time"

	"ict-engine/internal/analysis"
	"ict-engine/internal/circuit"
	"ict-engine/internal/confluence"
	"ict-engine/internal/events"
	"ict-engine/internal/learning"
	"ict-engine/internal/logging"
	"ict-engine/internal/market"
	"ict-engine/internal/signals"
)

func flatCandles(n int) []market.Candle {
	candles := make([]market.Candle, n)
	for i := range candles {
		candles[i] = market.Candle{
			OpenTime:  int64(i) * 60000,
			Open:      100,
			High:      100.5,
			Low:       99.5,
			Close:     100,
			Volume:    10,
			CloseTime: int64(i+1)*60000 - 1,
		}
	}
	return candles
}

type fakeConfluence struct {
	analysis *confluence.ConfluenceAnalysis
	err      error
}

func (f *fakeConfluence) AnalyzeConfluence(context.Context, []market.Candle, string, string) (*confluence.ConfluenceAnalysis, error) {
	return f.analysis, f.err
}

type fakeStructure struct {
	mu        sync.Mutex
	structure *analysis.MarketStructure
	panicMsg  string
}

func (f *fakeStructure) set(ms *analysis.MarketStructure) {
	f.mu.Lock()
	f.structure = ms
	f.mu.Unlock()
}

func (f *fakeStructure) AnalyzeMarketStructure([]market.Candle, string, string) (*analysis.MarketStructure, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.structure, nil
}

type publishedEvent struct {
	Type     events.EventType
	Priority events.Priority
	Data     map[string]interface{}
}

type recordingBus struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (b *recordingBus) PublishAnalyticsEvent(t events.EventType, _, _ string, _ events.Component, data map[string]interface{}, p events.Priority) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, publishedEvent{Type: t, Priority: p, Data: data})
}

func (b *recordingBus) PublishSystemStatus(status string, details map[string]interface{}) {
	data := map[string]interface{}{"status": status}
	for k, v := range details {
		data[k] = v
	}
	b.PublishAnalyticsEvent(events.EventSystemStatus, "", "", events.ComponentIntegrator, data, events.PriorityNormal)
}

func (b *recordingBus) types() []events.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]events.EventType, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}

func bullishAnalysis() *confluence.ConfluenceAnalysis {
	return &confluence.ConfluenceAnalysis{
		AnalysisID:         "ca_test",
		Symbol:             "EURUSD",
		Timeframe:          "1h",
		OverallStrength:    80,
		StrengthLevel:      confluence.StrengthStrong,
		MarketBias:         confluence.BiasBullish,
		DecisionConfidence: 90,
		RecommendedAction:  confluence.ActionBuy,
		Patterns: []confluence.PatternConfluence{
			{PatternType: confluence.PatternFVG, PatternID: "p1", Strength: 80, Confidence: 80, Direction: "bullish"},
			{PatternType: confluence.PatternOrderBlock, PatternID: "p2", Strength: 70, Confidence: 75, Direction: "bullish"},
		},
		Metadata: map[string]interface{}{},
	}
}

func structureWith(dir analysis.TrendDirection, strength float64) *analysis.MarketStructure {
	return &analysis.MarketStructure{
		AnalysisID:      "ms_test",
		TrendDirection:  dir,
		TrendStrength:   strength,
		CurrentPhase:    analysis.PhaseMarkup,
		PhaseConfidence: 70,
	}
}

type harness struct {
	integrator *Integrator
	conf       *fakeConfluence
	structure  *fakeStructure
	bus        *recordingBus
	learning   *learning.System
}

func newHarness(mode AnalyticsMode, breaker OutcomeBreaker) *harness {
	h := &harness{
		conf:      &fakeConfluence{analysis: bullishAnalysis()},
		structure: &fakeStructure{structure: structureWith(analysis.TrendBullish, 40)},
		bus:       &recordingBus{},
		learning:  learning.NewSystem(learning.NewMemoryStore(0), logging.Nop()),
	}
	deps := Dependencies{
		NewConfluenceEngine:  func() (ConfluenceEngine, error) { return h.conf, nil },
		NewStructureAnalyzer: func() (signals.StructureAnalyzer, error) { return h.structure, nil },
		NewSynthesizer: func(ConfluenceEngine, signals.StructureAnalyzer) (SignalSynthesizer, error) {
			return signals.NewSynthesizer(signals.DefaultConfig(), nil, nil, logging.Nop()), nil
		},
		NewLearningSystem: func() (LearningRecorder, error) { return h.learning, nil },
		NewDashboard:      func() (DashboardPublisher, error) { return h.bus, nil },
		Breaker:           breaker,
		Logger:            logging.Nop(),
	}
	h.integrator = NewIntegrator(Config{Mode: mode}, deps)
	return h
}

func TestPerformCompleteAnalysis_FullPipeline(t *testing.T) {
	ctx := context.Background()
	h := newHarness(ModeFullAnalytics, nil)
	if !h.integrator.InitializeAnalyticsSystem(ctx) {
		t.Fatal("Initialize failed")
	}

	result, err := h.integrator.PerformCompleteAnalysis(ctx, flatCandles(30), "EURUSD", "1h")
	if err != nil {
		t.Fatalf("PerformCompleteAnalysis: %v", err)
	}
	if result.Failed() || len(result.StageErrors) != 0 {
		t.Fatalf("Unexpected failure: %q %v", result.Error, result.StageErrors)
	}

	if result.Setup == nil || result.Setup.PrimarySignal != signals.SignalWeakBuy {
		t.Fatalf("Expected WEAK_BUY setup, got %+v", result.Setup)
	}
	if math.Abs(result.Setup.OverallScore-64) > 1e-9 {
		t.Errorf("Expected setup score 64, got %f", result.Setup.OverallScore)
	}

	in := result.Insights
	if math.Abs(in.OverallScore-(80.0+40.0+64.0)/3) > 1e-9 {
		t.Errorf("Unexpected insight score %f", in.OverallScore)
	}
	if in.RiskAssessment != RiskMedium || in.Recommendation != "WEAK_BUY" {
		t.Errorf("Unexpected insights %+v", in)
	}
	if math.Abs(in.ConfidenceLevel-80) > 1e-9 {
		t.Errorf("Expected confidence 80, got %f", in.ConfidenceLevel)
	}
	if in.Halted {
		t.Error("No breaker configured, insights should not be halted")
	}

	if len(result.LearningRecordIDs) != 2 {
		t.Errorf("Expected one learning record per pattern, got %v", result.LearningRecordIDs)
	}
	if result.EventsPublished != 2 {
		t.Errorf("Expected confluence and signal events, got %d", result.EventsPublished)
	}
	wantTypes := []events.EventType{events.EventSystemStatus, events.EventConfluenceUpdated, events.EventSignalGenerated}
	if got := h.bus.types(); !reflect.DeepEqual(got, wantTypes) {
		t.Errorf("Published %v, want %v", got, wantTypes)
	}
	if side := h.bus.events[2].Data["side"]; side != "BUY" {
		t.Errorf("Expected BUY side on the signal event, got %v", side)
	}

	c := h.integrator.Counters()
	if c.TotalAnalyses != 1 || c.SuccessfulAnalyses != 1 || c.PatternsDetected != 2 || c.SignalsGenerated != 1 || c.DashboardEvents != 3 {
		t.Errorf("Unexpected counters %+v", c)
	}
	if c.LastAnalysisAt == nil {
		t.Error("LastAnalysisAt should be set")
	}
}

func TestPerformCompleteAnalysis_StructureChangedOnlyOnFlip(t *testing.T) {
	ctx := context.Background()
	h := newHarness(ModeFullAnalytics, nil)
	h.integrator.InitializeAnalyticsSystem(ctx)

	run := func() *AnalyticsResult {
		t.Helper()
		r, err := h.integrator.PerformCompleteAnalysis(ctx, flatCandles(30), "EURUSD", "1h")
		if err != nil {
			t.Fatal(err)
		}
		return r
	}

	run()
	run()
	h.structure.set(structureWith(analysis.TrendBearish, 60))
	flipped := run()

	count := 0
	for _, ty := range h.bus.types() {
		if ty == events.EventStructureChanged {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Expected exactly one STRUCTURE_CHANGED, got %d", count)
	}
	// bullish confluence against bearish structure
	if flipped.Setup.PrimarySignal != signals.SignalWait {
		t.Errorf("Conflicting bias should WAIT, got %s", flipped.Setup.PrimarySignal)
	}
	if flipped.EventsPublished != 2 {
		t.Errorf("Expected confluence + structure events, got %d", flipped.EventsPublished)
	}
}

func TestPerformCompleteAnalysis_PausedLeavesCountersUntouched(t *testing.T) {
	ctx := context.Background()
	h := newHarness(ModeFullAnalytics, nil)
	h.integrator.InitializeAnalyticsSystem(ctx)
	if _, err := h.integrator.PerformCompleteAnalysis(ctx, flatCandles(30), "EURUSD", "1h"); err != nil {
		t.Fatal(err)
	}
	if err := h.integrator.PauseAnalyticsSystem(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	before := h.integrator.Counters()
	result, err := h.integrator.PerformCompleteAnalysis(ctx, flatCandles(30), "EURUSD", "1h")
	if !errors.Is(err, ErrNotActive) {
		t.Fatalf("Expected ErrNotActive, got %v", err)
	}
	if !result.Failed() || result.Confluence != nil || result.Setup != nil {
		t.Errorf("Expected an error-tagged empty result, got %+v", result)
	}
	if after := h.integrator.Counters(); !reflect.DeepEqual(before, after) {
		t.Errorf("Counters changed while paused: %+v -> %+v", before, after)
	}
}

func TestPerformCompleteAnalysis_NotInitialized(t *testing.T) {
	h := newHarness(ModeMinimal, nil)
	if _, err := h.integrator.PerformCompleteAnalysis(context.Background(), flatCandles(5), "EURUSD", "1h"); !errors.Is(err, ErrNotActive) {
		t.Errorf("Expected ErrNotActive, got %v", err)
	}
}

func TestPerformCompleteAnalysis_InvalidCandles(t *testing.T) {
	ctx := context.Background()
	h := newHarness(ModeMinimal, nil)
	h.integrator.InitializeAnalyticsSystem(ctx)

	result, err := h.integrator.PerformCompleteAnalysis(ctx, nil, "EURUSD", "1h")
	if !errors.Is(err, confluence.ErrInvalidCandles) {
		t.Fatalf("Expected ErrInvalidCandles, got %v", err)
	}
	if !result.Failed() {
		t.Error("Result should be tagged")
	}
	if c := h.integrator.Counters(); c.FailedAnalyses != 1 || c.SuccessfulAnalyses != 0 {
		t.Errorf("Unexpected counters %+v", c)
	}
}

func TestPerformCompleteAnalysis_StageFailuresAreIsolated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(ModeFullAnalytics, nil)
	h.conf.analysis = nil
	h.conf.err = errors.New("detector backend down")
	h.structure.panicMsg = "boom"
	h.integrator.InitializeAnalyticsSystem(ctx)

	result, err := h.integrator.PerformCompleteAnalysis(ctx, flatCandles(30), "EURUSD", "1h")
	if err != nil {
		t.Fatalf("Stage failures should not fail the call: %v", err)
	}
	if result.StageErrors[ComponentConfluence] == "" || result.StageErrors[ComponentStructure] == "" {
		t.Errorf("Expected confluence and structure stage errors, got %v", result.StageErrors)
	}
	if result.Setup == nil || result.Setup.PrimarySignal != signals.SignalWait {
		t.Errorf("Synthesis should still run with zero inputs, got %+v", result.Setup)
	}
	if len(result.LearningRecordIDs) != 0 {
		t.Errorf("No patterns, no learning records: %v", result.LearningRecordIDs)
	}
	if result.Insights.Recommendation != "WAIT" || result.Insights.RiskAssessment != RiskVeryHigh {
		t.Errorf("Unexpected insights %+v", result.Insights)
	}
	if c := h.integrator.Counters(); c.SuccessfulAnalyses != 1 {
		t.Errorf("Expected a successful analysis, got %+v", c)
	}
}

func TestModeComponents(t *testing.T) {
	tests := []struct {
		mode AnalyticsMode
		want []string
	}{
		{ModeFullAnalytics, []string{"confluence", "dashboard", "learning", "structure", "synthesizer"}},
		{ModePatternOnly, []string{"confluence", "structure"}},
		{ModeSignalsOnly, []string{"confluence", "structure", "synthesizer"}},
		{ModeLearningOnly, []string{"confluence", "learning"}},
		{ModeDashboardOnly, []string{"dashboard"}},
		{ModeMinimal, []string{"confluence"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			h := newHarness(tt.mode, nil)
			if !h.integrator.InitializeAnalyticsSystem(context.Background()) {
				t.Fatal("Initialize failed")
			}
			st := h.integrator.GetSystemStatus()
			if !reflect.DeepEqual(st.Components, tt.want) {
				t.Errorf("Components = %v, want %v", st.Components, tt.want)
			}
			if st.Status != StatusActive || st.Mode != tt.mode {
				t.Errorf("Unexpected status %s / mode %s", st.Status, st.Mode)
			}
		})
	}
}

func TestInitialize_NoComponents(t *testing.T) {
	ig := NewIntegrator(Config{Mode: ModeDashboardOnly}, Dependencies{Logger: logging.Nop()})
	if ig.InitializeAnalyticsSystem(context.Background()) {
		t.Fatal("Expected false with no dashboard available")
	}
	if ig.Status() != StatusError {
		t.Errorf("Expected ERROR, got %s", ig.Status())
	}

	failing := NewIntegrator(Config{Mode: ModeMinimal}, Dependencies{
		Logger:              logging.Nop(),
		NewConfluenceEngine: func() (ConfluenceEngine, error) { return nil, errors.New("bad weights") },
	})
	if failing.InitializeAnalyticsSystem(context.Background()) {
		t.Error("Expected false when the only component fails to start")
	}
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(ModeMinimal, nil)
	ig := h.integrator

	if err := ig.PauseAnalyticsSystem(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Pause before init should fail, got %v", err)
	}
	if !ig.InitializeAnalyticsSystem(ctx) || !ig.InitializeAnalyticsSystem(ctx) {
		t.Fatal("Initialize should be idempotent")
	}
	if err := ig.ResumeAnalyticsSystem(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Resume from ACTIVE should fail, got %v", err)
	}
	if err := ig.PauseAnalyticsSystem(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := ig.PauseAnalyticsSystem(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Double pause should fail, got %v", err)
	}
	if err := ig.ResumeAnalyticsSystem(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if err := ig.ShutdownAnalyticsSystem(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if ig.Status() != StatusShutdown {
		t.Fatalf("Expected SHUTDOWN, got %s", ig.Status())
	}
	if err := ig.ResumeAnalyticsSystem(); err == nil {
		t.Error("Resume after shutdown should fail")
	}
	if ig.InitializeAnalyticsSystem(ctx) {
		t.Error("Initialize after shutdown should fail")
	}
	if err := ig.ShutdownAnalyticsSystem(); err != nil {
		t.Errorf("Shutdown should be idempotent, got %v", err)
	}
	if st := ig.GetSystemStatus(); len(st.Components) != 0 {
		t.Errorf("Components should be released, got %v", st.Components)
	}
}

func TestStatusEventsCountAsDashboardEvents(t *testing.T) {
	ctx := context.Background()
	h := newHarness(ModeFullAnalytics, nil)
	if !h.integrator.InitializeAnalyticsSystem(ctx) {
		t.Fatal("Initialize failed")
	}
	if err := h.integrator.PauseAnalyticsSystem(); err != nil {
		t.Fatal(err)
	}
	if err := h.integrator.ResumeAnalyticsSystem(); err != nil {
		t.Fatal(err)
	}

	if c := h.integrator.Counters(); c.DashboardEvents != 3 {
		t.Errorf("Expected 3 status events counted, got %d", c.DashboardEvents)
	}

	h.bus.mu.Lock()
	defer h.bus.mu.Unlock()
	var statuses []interface{}
	for _, e := range h.bus.events {
		if e.Type != events.EventSystemStatus {
			t.Errorf("Unexpected event %s during lifecycle changes", e.Type)
			continue
		}
		if e.Data["mode"] != string(ModeFullAnalytics) {
			t.Errorf("Status event missing mode: %v", e.Data)
		}
		statuses = append(statuses, e.Data["status"])
	}
	want := []interface{}{string(StatusActive), string(StatusPaused), string(StatusActive)}
	if !reflect.DeepEqual(statuses, want) {
		t.Errorf("Status sequence %v, want %v", statuses, want)
	}
}

func TestUpdatePatternOutcome_FeedsBreakerAndEvents(t *testing.T) {
	ctx := context.Background()
	breaker := circuit.NewSignalBreaker(circuit.Config{Enabled: true, MaxConsecutiveLosses: 1, Cooldown: time.Hour})
	h := newHarness(ModeFullAnalytics, breaker)
	h.integrator.InitializeAnalyticsSystem(ctx)

	first, err := h.integrator.PerformCompleteAnalysis(ctx, flatCandles(30), "EURUSD", "1h")
	if err != nil {
		t.Fatal(err)
	}
	if err := h.integrator.UpdatePatternOutcome(ctx, first.LearningRecordIDs[0], learning.OutcomeLoss, -1, "stopped out"); err != nil {
		t.Fatalf("UpdatePatternOutcome: %v", err)
	}

	types := h.bus.types()
	if types[len(types)-1] != events.EventTradeOutcome {
		t.Errorf("Expected TRADE_OUTCOME last, got %v", types)
	}
	if c := h.integrator.Counters(); c.OutcomesRecorded != 1 {
		t.Errorf("Expected one outcome recorded, got %+v", c)
	}

	second, err := h.integrator.PerformCompleteAnalysis(ctx, flatCandles(30), "EURUSD", "1h")
	if err != nil {
		t.Fatal(err)
	}
	if !second.Insights.Halted || second.Insights.HaltReason == "" {
		t.Errorf("Breaker should halt insights, got %+v", second.Insights)
	}
	if second.Setup.PrimarySignal != signals.SignalWeakBuy {
		t.Error("Signals are still computed while halted")
	}

	if err := h.integrator.UpdatePatternOutcome(ctx, "missing", learning.OutcomeWin, 1, ""); !errors.Is(err, learning.ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}
}

func TestUpdatePatternOutcome_WithoutLearning(t *testing.T) {
	h := newHarness(ModeMinimal, nil)
	h.integrator.InitializeAnalyticsSystem(context.Background())
	if err := h.integrator.UpdatePatternOutcome(context.Background(), "lr_x", learning.OutcomeWin, 1, ""); !errors.Is(err, ErrLearningUnavailable) {
		t.Errorf("Expected ErrLearningUnavailable, got %v", err)
	}
}

func TestStandardDependencies_RealComponents(t *testing.T) {
	ctx := context.Background()
	bus := events.NewEventBus()
	ig := NewIntegrator(Config{Mode: ModeFullAnalytics}, StandardDependencies(Services{
		EngineConfig:      confluence.DefaultEngineConfig(),
		SynthesizerConfig: signals.DefaultConfig(),
		Learning:          learning.NewSystem(learning.NewMemoryStore(0), logging.Nop()),
		Bus:               bus,
		Breaker:           circuit.NewSignalBreaker(circuit.DefaultConfig()),
		Logger:            logging.Nop(),
	}))
	if !ig.InitializeAnalyticsSystem(ctx) {
		t.Fatal("Initialize failed")
	}
	if got := len(ig.GetSystemStatus().Components); got != 5 {
		t.Fatalf("Expected 5 components, got %d", got)
	}

	candles := flatCandles(40)
	// three-candle bullish gap
	candles[37] = market.Candle{Open: 100, High: 100.5, Low: 99.5, Close: 100.4, Volume: 10}
	candles[38] = market.Candle{Open: 100.4, High: 103, Low: 100.3, Close: 102.8, Volume: 30}
	candles[39] = market.Candle{Open: 102.8, High: 103.5, Low: 101.5, Close: 103.2, Volume: 12}

	result, err := ig.PerformCompleteAnalysis(ctx, candles, "EURUSD", "1h")
	if err != nil {
		t.Fatalf("PerformCompleteAnalysis: %v", err)
	}
	if result.Confluence == nil || result.Setup == nil {
		t.Fatalf("Expected confluence and setup, got %+v", result)
	}
	if len(result.LearningRecordIDs) != len(result.Confluence.Patterns) {
		t.Errorf("Expected %d records, got %d", len(result.Confluence.Patterns), len(result.LearningRecordIDs))
	}
	st := ig.GetSystemStatus()
	if _, ok := st.ComponentStats[ComponentConfluence]; !ok {
		t.Error("Expected confluence health in component stats")
	}
	if _, ok := st.ComponentStats["breaker"]; !ok {
		t.Error("Expected breaker stats")
	}
}
