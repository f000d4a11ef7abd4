package confluence

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"ict-engine/internal/logging"
	"ict-engine/internal/market"
)

type staticDetector struct {
	name     string
	patterns []PatternConfluence
	err      error
}

func (d staticDetector) Name() string { return d.name }

func (d staticDetector) Detect([]market.Candle, string, string) ([]PatternConfluence, error) {
	return d.patterns, d.err
}

type panicDetector struct{}

func (panicDetector) Name() string { return "panics" }

func (panicDetector) Detect([]market.Candle, string, string) ([]PatternConfluence, error) {
	panic("boom")
}

type recordingSink struct {
	analyses []*ConfluenceAnalysis
	err      error
}

func (r *recordingSink) LogConfluenceAnalysis(_ context.Context, a *ConfluenceAnalysis) error {
	r.analyses = append(r.analyses, a)
	return r.err
}

func (r *recordingSink) LogHealthStatus(string, map[string]interface{}) error { return nil }

func (r *recordingSink) StoreAnalysis(_ context.Context, a *ConfluenceAnalysis) error {
	r.analyses = append(r.analyses, a)
	return r.err
}

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

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultEngineConfig(), logging.Nop(), opts...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestAnalyzeConfluence_NoPatterns(t *testing.T) {
	e := newTestEngine(t, WithDetectors(staticDetector{name: "empty"}))

	a, err := e.AnalyzeConfluence(context.Background(), flatCandles(30), "EURUSD", "1h")
	if err != nil {
		t.Fatalf("AnalyzeConfluence: %v", err)
	}
	if a.OverallStrength != 0 || a.StrengthLevel != StrengthWeak {
		t.Errorf("Expected 0/WEAK, got %f/%s", a.OverallStrength, a.StrengthLevel)
	}
	if a.MarketBias != BiasNeutral || a.RecommendedAction != ActionWait {
		t.Errorf("Expected NEUTRAL/WAIT, got %s/%s", a.MarketBias, a.RecommendedAction)
	}
	if a.Failed() {
		t.Error("Empty result should not be tagged as failed")
	}
	if a.PriceTarget != nil || a.StopLoss != nil || a.RiskRewardRatio != nil {
		t.Error("Price levels should be unset")
	}
}

func TestAnalyzeConfluence_SingleStrongFVG(t *testing.T) {
	e := newTestEngine(t, WithDetectors(staticDetector{
		name:     "fvg",
		patterns: []PatternConfluence{pattern(PatternFVG, 90, 90, "bullish")},
	}))

	a, err := e.AnalyzeConfluence(context.Background(), flatCandles(30), "EURUSD", "1h")
	if err != nil {
		t.Fatalf("AnalyzeConfluence: %v", err)
	}
	if a.OverallStrength != 100 {
		t.Errorf("Expected strength clamped to 100, got %f", a.OverallStrength)
	}
	if a.StrengthLevel != StrengthExtreme {
		t.Errorf("Expected EXTREME, got %s", a.StrengthLevel)
	}
	if a.MarketBias != BiasBullish || a.RecommendedAction != ActionBuy {
		t.Errorf("Expected BULLISH/BUY, got %s/%s", a.MarketBias, a.RecommendedAction)
	}
	if a.Patterns[0].Timeframe != "1h" {
		t.Errorf("Expected timeframe filled in, got %q", a.Patterns[0].Timeframe)
	}

	stats := e.Stats()
	if stats.TotalAnalyses != 1 || stats.StrongConfluences != 1 || stats.FailedAnalyses != 0 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestAnalyzeConfluence_DominantAndSupportingPartition(t *testing.T) {
	types := []PatternType{PatternFVG, PatternOrderBlock, PatternSmartMoney, PatternLiquiditySweep, PatternBOSCHoCH}

	for _, n := range []int{1, 2, 3, 4, 7, 10, 16} {
		t.Run(fmt.Sprintf("%d patterns", n), func(t *testing.T) {
			patterns := make([]PatternConfluence, n)
			want := make(map[PatternType]int)
			for i := range patterns {
				pt := types[i%len(types)]
				dir := "bullish"
				if i%2 == 1 {
					dir = "bearish"
				}
				patterns[i] = pattern(pt, 10+float64(i)*5, 1, dir)
				want[pt]++
			}
			e := newTestEngine(t, WithDetectors(staticDetector{name: "fixed", patterns: patterns}))

			a, err := e.AnalyzeConfluence(context.Background(), flatCandles(30), "EURUSD", "1h")
			if err != nil {
				t.Fatalf("AnalyzeConfluence: %v", err)
			}

			wantDominant := n / 3
			if wantDominant < 1 {
				wantDominant = 1
			}
			if len(a.DominantPatterns) != wantDominant {
				t.Errorf("Expected %d dominant, got %d", wantDominant, len(a.DominantPatterns))
			}
			if len(a.DominantPatterns)+len(a.SupportingPatterns) != n {
				t.Errorf("Expected %d categorized, got %d+%d", n, len(a.DominantPatterns), len(a.SupportingPatterns))
			}
			if len(a.ConflictingPatterns) != 0 {
				t.Errorf("Expected no conflicting patterns, got %v", a.ConflictingPatterns)
			}

			got := make(map[PatternType]int)
			for _, pt := range a.DominantPatterns {
				got[pt]++
			}
			for _, pt := range a.SupportingPatterns {
				got[pt]++
			}
			if len(got) != len(want) {
				t.Fatalf("Expected types %v, got %v", want, got)
			}
			for pt, c := range want {
				if got[pt] != c {
					t.Errorf("%s: expected %d, got %d", pt, c, got[pt])
				}
			}
		})
	}
}

func TestAnalyzeConfluence_DecisionConfidenceSaturates(t *testing.T) {
	tests := []struct {
		name     string
		strength float64
		want     float64
	}{
		{"count bonus capped", 30, 30 + 20 + 3},
		{"total capped", 90, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patterns := make([]PatternConfluence, 25)
			for i := range patterns {
				patterns[i] = pattern(PatternOrderBlock, tt.strength, 1, "bullish")
			}
			e := newTestEngine(t, WithDetectors(staticDetector{name: "blocks", patterns: patterns}))

			a, err := e.AnalyzeConfluence(context.Background(), flatCandles(30), "EURUSD", "1h")
			if err != nil {
				t.Fatalf("AnalyzeConfluence: %v", err)
			}
			if len(a.Patterns) != 25 {
				t.Fatalf("Expected 25 patterns, got %d", len(a.Patterns))
			}
			if math.Abs(a.DecisionConfidence-tt.want) > 1e-9 {
				t.Errorf("Expected decision confidence %.2f, got %.2f", tt.want, a.DecisionConfidence)
			}
			if a.DecisionConfidence > 100 {
				t.Errorf("Decision confidence above 100: %f", a.DecisionConfidence)
			}
		})
	}
}

func TestAnalyzeConfluence_InvalidCandles(t *testing.T) {
	e := newTestEngine(t)

	a, err := e.AnalyzeConfluence(context.Background(), nil, "EURUSD", "1h")
	if !errors.Is(err, ErrInvalidCandles) {
		t.Fatalf("Expected ErrInvalidCandles, got %v", err)
	}
	if !errors.Is(err, market.ErrNoData) {
		t.Errorf("Expected wrapped ErrNoData, got %v", err)
	}
	if a == nil || !a.Failed() {
		t.Fatal("Expected a degraded result tagged with the error")
	}
	if a.RecommendedAction != ActionWait || a.OverallStrength != 0 {
		t.Errorf("Degraded result should be WAIT/0, got %s/%f", a.RecommendedAction, a.OverallStrength)
	}
	if e.Stats().FailedAnalyses != 1 || e.Stats().TotalAnalyses != 0 {
		t.Errorf("Unexpected stats %+v", e.Stats())
	}
}

func TestAnalyzeConfluence_DetectorFailuresAreIsolated(t *testing.T) {
	e := newTestEngine(t, WithDetectors(
		panicDetector{},
		staticDetector{name: "broken", err: errors.New("no data")},
		staticDetector{name: "fvg", patterns: []PatternConfluence{pattern(PatternFVG, 8, 8, "bearish")}},
	))

	a, err := e.AnalyzeConfluence(context.Background(), flatCandles(30), "GBPUSD", "15m")
	if err != nil {
		t.Fatalf("AnalyzeConfluence: %v", err)
	}
	if len(a.Patterns) != 1 || a.Patterns[0].PatternType != PatternFVG {
		t.Fatalf("Expected only the FVG pattern, got %+v", a.Patterns)
	}
	if a.OverallStrength != 64 || a.MarketBias != BiasBearish {
		t.Errorf("Expected 64/BEARISH, got %f/%s", a.OverallStrength, a.MarketBias)
	}
	if a.RecommendedAction != ActionSell {
		t.Errorf("Expected SELL, got %s", a.RecommendedAction)
	}
}

func TestAnalyzeConfluence_CancelledContext(t *testing.T) {
	e := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a, err := e.AnalyzeConfluence(ctx, flatCandles(30), "EURUSD", "1h")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if !a.Failed() {
		t.Error("Expected degraded result")
	}
}

func TestAnalyzeConfluence_Sinks(t *testing.T) {
	box := &recordingSink{}
	mem := &recordingSink{err: errors.New("redis down")}
	e := newTestEngine(t,
		WithDetectors(staticDetector{name: "empty"}),
		WithBlackBox(box),
		WithMemory(mem),
	)

	if _, err := e.AnalyzeConfluence(context.Background(), flatCandles(10), "EURUSD", "1h"); err != nil {
		t.Fatalf("Sink errors must not fail the analysis: %v", err)
	}
	if len(box.analyses) != 1 || len(mem.analyses) != 1 {
		t.Errorf("Expected one record per sink, got %d/%d", len(box.analyses), len(mem.analyses))
	}
}

func TestNewEngine_RejectsBadWeights(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.Weights = map[PatternType]float64{PatternFVG: 2}
	if _, err := NewEngine(cfg, logging.Nop()); err == nil {
		t.Error("Expected invalid weights to be rejected")
	}
}

func TestDefaultDetectors_FindFVG(t *testing.T) {
	e := newTestEngine(t)
	candles := []market.Candle{
		{Open: 95, High: 100, Low: 94, Close: 98, CloseTime: 1000000},
		{Open: 98, High: 105, Low: 97, Close: 104, CloseTime: 2000000},
		{Open: 104, High: 108, Low: 101, Close: 106, CloseTime: 3000000},
	}

	a, err := e.AnalyzeConfluence(context.Background(), candles, "BTCUSDT", "1h")
	if err != nil {
		t.Fatalf("AnalyzeConfluence: %v", err)
	}

	var fvg *PatternConfluence
	for i := range a.Patterns {
		if a.Patterns[i].PatternType == PatternFVG {
			fvg = &a.Patterns[i]
		}
	}
	if fvg == nil {
		t.Fatalf("Expected an FVG pattern, got %+v", a.Patterns)
	}
	if fvg.Direction != "bullish" || fvg.PriceLevel != 100.5 {
		t.Errorf("Unexpected FVG mapping %+v", fvg)
	}
	if fvg.Metadata["high_price"] != 101.0 || fvg.Metadata["low_price"] != 100.0 {
		t.Errorf("Unexpected FVG metadata %+v", fvg.Metadata)
	}
}

func TestLastN(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}
	got := lastN(items, 3)
	if len(got) != 3 || got[0] != 5 || got[2] != 7 {
		t.Errorf("lastN() = %v", got)
	}
	if len(lastN(items, 10)) != 7 {
		t.Error("lastN should return everything when n exceeds length")
	}
}
