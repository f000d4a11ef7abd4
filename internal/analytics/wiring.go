package analytics

import (
	"ict-engine/internal/analysis"
	"ict-engine/internal/circuit"
	"ict-engine/internal/confluence"
	"ict-engine/internal/events"
	"ict-engine/internal/learning"
	"ict-engine/internal/logging"
	"ict-engine/internal/signals"
)

// Services are the concrete collaborators the standard wiring starts from.
// Any pointer may be nil.
type Services struct {
	EngineConfig      confluence.EngineConfig
	SynthesizerConfig signals.Config
	Structure         *analysis.StructureAnalyzer
	Learning          *learning.System
	Bus               *events.EventBus
	Memory            confluence.MemorySystem
	BlackBox          confluence.BlackBox
	Breaker           *circuit.SignalBreaker
	Logger            *logging.Logger
}

// StandardDependencies builds component factories over the given services
func StandardDependencies(s Services) Dependencies {
	deps := Dependencies{
		BlackBox: s.BlackBox,
		Logger:   s.Logger,
	}
	if s.Breaker != nil {
		deps.Breaker = s.Breaker
	}

	deps.NewConfluenceEngine = func() (ConfluenceEngine, error) {
		var opts []confluence.Option
		if s.BlackBox != nil {
			opts = append(opts, confluence.WithBlackBox(s.BlackBox))
		}
		if s.Memory != nil {
			opts = append(opts, confluence.WithMemory(s.Memory))
		}
		e, err := confluence.NewEngine(s.EngineConfig, s.Logger, opts...)
		if err != nil {
			return nil, err
		}
		return e, nil
	}

	deps.NewStructureAnalyzer = func() (signals.StructureAnalyzer, error) {
		if s.Structure != nil {
			return s.Structure, nil
		}
		return analysis.NewStructureAnalyzer(0, 0), nil
	}

	deps.NewSynthesizer = func(conf ConfluenceEngine, structure signals.StructureAnalyzer) (SignalSynthesizer, error) {
		var ca signals.ConfluenceAnalyzer
		if conf != nil {
			ca = conf
		}
		return signals.NewSynthesizer(s.SynthesizerConfig, ca, structure, s.Logger), nil
	}

	if s.Learning != nil {
		deps.NewLearningSystem = func() (LearningRecorder, error) {
			return s.Learning, nil
		}
	}

	if s.Bus != nil {
		deps.NewDashboard = func() (DashboardPublisher, error) {
			return s.Bus, nil
		}
	}

	return deps
}
