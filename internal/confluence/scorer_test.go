package confluence

import (
	"math/rand"
	"testing"
)

func pattern(pt PatternType, strength, confidence float64, direction string) PatternConfluence {
	return PatternConfluence{
		PatternType: pt,
		PatternID:   string(pt),
		Strength:    strength,
		Confidence:  confidence,
		Direction:   direction,
	}
}

func TestCalculateOverallStrength(t *testing.T) {
	s := NewScorer()

	tests := []struct {
		name     string
		patterns []PatternConfluence
		want     float64
	}{
		{"empty", nil, 0},
		{"single strong FVG clamps", []PatternConfluence{pattern(PatternFVG, 90, 90, "bullish")}, 100},
		{"small values", []PatternConfluence{pattern(PatternFVG, 5, 2, "bullish")}, 10},
		{
			"weighted mix",
			[]PatternConfluence{
				pattern(PatternFVG, 4, 5, "bullish"),        // 20 * 0.25 = 5
				pattern(PatternOrderBlock, 10, 2, "bullish"), // 20 * 0.30 = 6
			},
			11.0 / 0.55,
		},
		{"unknown type ignored", []PatternConfluence{pattern("MYSTERY", 50, 50, "up")}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.CalculateOverallStrength(tt.patterns)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("CalculateOverallStrength() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestStrengthLevelFor(t *testing.T) {
	tests := []struct {
		strength float64
		want     StrengthLevel
	}{
		{0, StrengthWeak},
		{30.9, StrengthWeak},
		{31, StrengthModerate},
		{60.9, StrengthModerate},
		{61, StrengthStrong},
		{80.9, StrengthStrong},
		{81, StrengthExtreme},
		{100, StrengthExtreme},
	}
	for _, tt := range tests {
		if got := StrengthLevelFor(tt.strength); got != tt.want {
			t.Errorf("StrengthLevelFor(%f) = %s, want %s", tt.strength, got, tt.want)
		}
	}
}

func TestDetermineMarketBias(t *testing.T) {
	s := NewScorer()

	tests := []struct {
		name     string
		patterns []PatternConfluence
		want     MarketBias
	}{
		{"no patterns", nil, BiasNeutral},
		{"no direction", []PatternConfluence{pattern(PatternFVG, 50, 50, "sideways")}, BiasNeutral},
		{"all bullish", []PatternConfluence{pattern(PatternFVG, 50, 80, "bullish")}, BiasBullish},
		{"synonyms bearish", []PatternConfluence{pattern(PatternOrderBlock, 50, 80, "SELL"), pattern(PatternFVG, 50, 10, "Down")}, BiasBearish},
		{
			"ratio 0.1 conflicted",
			[]PatternConfluence{pattern(PatternFVG, 50, 55, "bullish"), pattern(PatternFVG, 50, 45, "bearish")},
			BiasConflicted,
		},
		{
			"ratio exactly 0.2 is neutral",
			[]PatternConfluence{pattern(PatternFVG, 50, 60, "bullish"), pattern(PatternFVG, 50, 40, "bearish")},
			BiasNeutral,
		},
		{
			"ratio exactly 0.4 is directional",
			[]PatternConfluence{pattern(PatternFVG, 50, 70, "up"), pattern(PatternFVG, 50, 30, "down")},
			BiasBullish,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.DetermineMarketBias(tt.patterns); got != tt.want {
				t.Errorf("DetermineMarketBias() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCategorizePatterns(t *testing.T) {
	s := NewScorer()

	dominant, supporting, conflicting := s.CategorizePatterns(nil)
	if len(dominant)+len(supporting)+len(conflicting) != 0 {
		t.Fatal("Expected empty categories for no patterns")
	}

	patterns := []PatternConfluence{
		pattern(PatternBOSCHoCH, 50, 50, "bullish"),       // 250
		pattern(PatternOrderBlock, 80, 80, "bullish"),     // 1920
		pattern(PatternFVG, 60, 60, "bullish"),            // 900
		pattern(PatternLiquiditySweep, 90, 90, "bullish"), // 810
		pattern(PatternSmartMoney, 70, 80, "bullish"),     // 1400
		pattern(PatternFVG, 10, 10, "bearish"),            // 25
	}

	dominant, supporting, conflicting = s.CategorizePatterns(patterns)
	if len(dominant) != 2 {
		t.Fatalf("Expected 2 dominant patterns, got %v", dominant)
	}
	if dominant[0] != PatternOrderBlock || dominant[1] != PatternSmartMoney {
		t.Errorf("Unexpected dominant order %v", dominant)
	}
	if len(supporting) != 4 {
		t.Errorf("Expected 4 supporting patterns, got %v", supporting)
	}
	if len(conflicting) != 0 {
		t.Errorf("Conflicting patterns should be empty, got %v", conflicting)
	}

	one := []PatternConfluence{pattern(PatternFVG, 1, 1, "bullish")}
	dominant, supporting, _ = s.CategorizePatterns(one)
	if len(dominant) != 1 || len(supporting) != 0 {
		t.Errorf("A single pattern should be dominant, got %v / %v", dominant, supporting)
	}
}

func TestCalculateDecisionConfidence(t *testing.T) {
	tests := []struct {
		name     string
		overall  float64
		count    int
		unique   int
		expected float64
	}{
		{"nothing", 0, 0, 0, 0},
		{"one pattern", 10, 1, 1, 18},
		{"count saturates at 20", 10, 10, 1, 33},
		{"diversity saturates at 15", 10, 4, 9, 45},
		{"clamped to 100", 95, 4, 5, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateDecisionConfidence(tt.overall, tt.count, tt.unique); got != tt.expected {
				t.Errorf("CalculateDecisionConfidence() = %f, want %f", got, tt.expected)
			}
		})
	}
}

func TestRecommendAction_OnlyStrongDirectionalTrades(t *testing.T) {
	biases := []MarketBias{BiasBullish, BiasBearish, BiasNeutral, BiasConflicted}
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 1000; i++ {
		strength := rng.Float64() * 100
		bias := biases[rng.Intn(len(biases))]
		action := RecommendAction(strength, bias)

		switch action {
		case ActionBuy:
			if strength < 60 || bias != BiasBullish {
				t.Fatalf("BUY for strength %f bias %s", strength, bias)
			}
		case ActionSell:
			if strength < 60 || bias != BiasBearish {
				t.Fatalf("SELL for strength %f bias %s", strength, bias)
			}
		case ActionWait:
			if strength >= 60 && (bias == BiasBullish || bias == BiasBearish) {
				t.Fatalf("WAIT for strength %f bias %s", strength, bias)
			}
		default:
			t.Fatalf("Unexpected action %q", action)
		}
	}

	if got := RecommendAction(60, BiasBullish); got != ActionBuy {
		t.Errorf("Strength 60 should be actionable, got %s", got)
	}
}

func TestSetWeights(t *testing.T) {
	s := NewScorer()

	if err := s.SetWeights(map[PatternType]float64{PatternFVG: 1}); err == nil {
		t.Error("Expected error for missing weights")
	}

	bad := map[PatternType]float64{
		PatternFVG: 0.5, PatternOrderBlock: 0.5, PatternSmartMoney: 0.5,
		PatternLiquiditySweep: 0, PatternBOSCHoCH: 0,
	}
	if err := s.SetWeights(bad); err == nil {
		t.Error("Expected error for weights not summing to 1")
	}
	if s.Weight(PatternFVG) != 0.25 {
		t.Error("Rejected weights must not be applied")
	}

	good := map[PatternType]float64{
		PatternFVG: 0.2, PatternOrderBlock: 0.2, PatternSmartMoney: 0.2,
		PatternLiquiditySweep: 0.2, PatternBOSCHoCH: 0.2,
	}
	if err := s.SetWeights(good); err != nil {
		t.Fatalf("SetWeights: %v", err)
	}
	if s.Weight(PatternOrderBlock) != 0.2 {
		t.Errorf("Expected updated weight 0.2, got %f", s.Weight(PatternOrderBlock))
	}
}

func TestNormalizeDirection(t *testing.T) {
	tests := map[string]string{
		"bullish": "bullish", " BUY ": "bullish", "Up": "bullish",
		"bearish": "bearish", "sell": "bearish", "DOWN": "bearish",
		"": "", "neutral": "",
	}
	for in, want := range tests {
		if got := NormalizeDirection(in); got != want {
			t.Errorf("NormalizeDirection(%q) = %q, want %q", in, got, want)
		}
	}
}
