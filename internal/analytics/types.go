package analytics

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ict-engine/internal/analysis"
	"ict-engine/internal/confluence"
	"ict-engine/internal/signals"
)

var (
	// ErrNotActive is returned by analysis calls outside the ACTIVE state
	ErrNotActive = errors.New("analytics system is not active")
	// ErrInvalidTransition is returned for a lifecycle call the current state does not allow
	ErrInvalidTransition = errors.New("invalid analytics state transition")
	// ErrLearningUnavailable is returned when outcomes arrive without a learning system
	ErrLearningUnavailable = errors.New("learning system not available")
	// ErrUnknownMode is returned when parsing an unrecognized mode
	ErrUnknownMode = errors.New("unknown analytics mode")
	// ErrAnalyticsPanic wraps a recovered panic inside the integrator
	ErrAnalyticsPanic = errors.New("analytics pipeline panicked")
)

// IntegrationStatus is the integrator lifecycle state
type IntegrationStatus string

const (
	StatusNotInitialized IntegrationStatus = "NOT_INITIALIZED"
	StatusInitializing   IntegrationStatus = "INITIALIZING"
	StatusActive         IntegrationStatus = "ACTIVE"
	StatusPaused         IntegrationStatus = "PAUSED"
	StatusError          IntegrationStatus = "ERROR"
	StatusShutdown       IntegrationStatus = "SHUTDOWN"
)

// AnalyticsMode selects which components the integrator starts
type AnalyticsMode string

const (
	ModeFullAnalytics AnalyticsMode = "FULL_ANALYTICS"
	ModePatternOnly   AnalyticsMode = "PATTERN_ONLY"
	ModeSignalsOnly   AnalyticsMode = "SIGNALS_ONLY"
	ModeLearningOnly  AnalyticsMode = "LEARNING_ONLY"
	ModeDashboardOnly AnalyticsMode = "DASHBOARD_ONLY"
	ModeMinimal       AnalyticsMode = "MINIMAL"
)

// Component names used in status reports and stage errors
const (
	ComponentConfluence  = "confluence"
	ComponentStructure   = "structure"
	ComponentSynthesizer = "synthesizer"
	ComponentLearning    = "learning"
	ComponentDashboard   = "dashboard"
)

// ComponentSet flags the components a mode requests
type ComponentSet struct {
	Confluence  bool
	Structure   bool
	Synthesizer bool
	Learning    bool
	Dashboard   bool
}

var modeComponents = map[AnalyticsMode]ComponentSet{
	ModeFullAnalytics: {Confluence: true, Structure: true, Synthesizer: true, Learning: true, Dashboard: true},
	ModePatternOnly:   {Confluence: true, Structure: true},
	ModeSignalsOnly:   {Confluence: true, Structure: true, Synthesizer: true},
	ModeLearningOnly:  {Confluence: true, Learning: true},
	ModeDashboardOnly: {Dashboard: true},
	ModeMinimal:       {Confluence: true},
}

// ComponentsFor returns the components a mode requests
func ComponentsFor(mode AnalyticsMode) (ComponentSet, bool) {
	set, ok := modeComponents[mode]
	return set, ok
}

// ParseMode parses a mode name case-insensitively
func ParseMode(s string) (AnalyticsMode, error) {
	mode := AnalyticsMode(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := modeComponents[mode]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
	return mode, nil
}

// Risk assessment buckets
const (
	RiskLow      = "LOW"
	RiskMedium   = "MEDIUM"
	RiskHigh     = "HIGH"
	RiskVeryHigh = "VERY_HIGH"
)

// Insights merges the stage outputs into one read
type Insights struct {
	OverallScore    float64 `json:"overall_score"`
	Recommendation  string  `json:"recommendation"`
	ConfidenceLevel float64 `json:"confidence_level"`
	RiskAssessment  string  `json:"risk_assessment"`
	Halted          bool    `json:"halted"`
	HaltReason      string  `json:"halt_reason,omitempty"`
}

// AnalyticsResult is the output of one complete analysis
type AnalyticsResult struct {
	AnalysisID        string                         `json:"analysis_id"`
	Symbol            string                         `json:"symbol"`
	Timeframe         string                         `json:"timeframe"`
	Mode              AnalyticsMode                  `json:"mode"`
	Confluence        *confluence.ConfluenceAnalysis `json:"confluence,omitempty"`
	Structure         *analysis.MarketStructure      `json:"structure,omitempty"`
	Setup             *signals.TradeSetup            `json:"setup,omitempty"`
	LearningRecordIDs []string                       `json:"learning_record_ids"`
	EventsPublished   int                            `json:"events_published"`
	Insights          Insights                       `json:"insights"`
	StageErrors       map[string]string              `json:"stage_errors,omitempty"`
	ProcessingTime    time.Duration                  `json:"processing_time_ns"`
	Timestamp         time.Time                      `json:"timestamp"`
	Error             string                         `json:"error,omitempty"`
}

// Failed reports whether this result is a degraded one
func (r *AnalyticsResult) Failed() bool {
	return r.Error != ""
}

// Counters are running integration statistics
type Counters struct {
	TotalAnalyses      int64      `json:"total_analyses"`
	SuccessfulAnalyses int64      `json:"successful_analyses"`
	FailedAnalyses     int64      `json:"failed_analyses"`
	PatternsDetected   int64      `json:"patterns_detected"`
	SignalsGenerated   int64      `json:"signals_generated"`
	DashboardEvents    int64      `json:"dashboard_events"`
	OutcomesRecorded   int64      `json:"outcomes_recorded"`
	LastAnalysisAt     *time.Time `json:"last_analysis_at,omitempty"`
}

// SystemStatus is a point-in-time view of the integrator
type SystemStatus struct {
	Status         IntegrationStatus      `json:"status"`
	Mode           AnalyticsMode          `json:"mode"`
	Components     []string               `json:"components"`
	Counters       Counters               `json:"counters"`
	StartedAt      *time.Time             `json:"started_at,omitempty"`
	UptimeSeconds  float64                `json:"uptime_seconds"`
	ComponentStats map[string]interface{} `json:"component_stats"`
}
