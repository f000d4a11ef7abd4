package analytics

import (
	"ict-engine/internal/analysis"
	"ict-engine/internal/confluence"
	"ict-engine/internal/signals"
)

// BuildInsights merges whichever stage outputs are present. Degraded stage
// outputs are treated as absent.
func BuildInsights(ca *confluence.ConfluenceAnalysis, ms *analysis.MarketStructure, setup *signals.TradeSetup) Insights {
	var scores, confidences []float64

	usableCA := ca != nil && !ca.Failed()
	usableSetup := setup != nil && setup.Error == ""

	if usableCA {
		scores = append(scores, ca.OverallStrength)
		confidences = append(confidences, ca.DecisionConfidence)
	}
	if ms != nil {
		scores = append(scores, ms.TrendStrength)
		confidences = append(confidences, ms.PhaseConfidence)
	}
	if usableSetup {
		scores = append(scores, setup.OverallScore)
	}

	overall := mean(scores)
	in := Insights{
		OverallScore:    overall,
		ConfidenceLevel: mean(confidences),
		RiskAssessment:  RiskFor(overall),
		Recommendation:  confluence.ActionWait,
	}

	switch {
	case usableSetup:
		in.Recommendation = string(setup.PrimarySignal)
	case usableCA && ca.RecommendedAction != "":
		in.Recommendation = ca.RecommendedAction
	}
	return in
}

// RiskFor buckets an overall score into a risk assessment
func RiskFor(score float64) string {
	switch {
	case score >= 80:
		return RiskLow
	case score >= 60:
		return RiskMedium
	case score >= 40:
		return RiskHigh
	default:
		return RiskVeryHigh
	}
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
