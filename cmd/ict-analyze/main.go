package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"ict-engine/internal/analytics"
	"ict-engine/internal/confluence"
	"ict-engine/internal/events"
	"ict-engine/internal/learning"
	"ict-engine/internal/logging"
	"ict-engine/internal/market"
	"ict-engine/internal/signals"
)

type options struct {
	file      string
	symbol    string
	timeframe string
	limit     int
	mode      string
	baseURL   string
	pretty    bool
	verbose   bool
}

func main() {
	var opts options
	flag.StringVar(&opts.file, "file", "", "JSON file with an array of candles (fetches from market data when empty)")
	flag.StringVar(&opts.symbol, "symbol", "BTCUSDT", "symbol to analyze")
	flag.StringVar(&opts.timeframe, "timeframe", "1h", "candle timeframe")
	flag.IntVar(&opts.limit, "limit", 200, "candles to fetch from market data")
	flag.StringVar(&opts.mode, "mode", string(analytics.ModeSignalsOnly), "MINIMAL, SIGNALS_ONLY or FULL_ANALYTICS")
	flag.StringVar(&opts.baseURL, "base-url", "", "market data base URL")
	flag.BoolVar(&opts.pretty, "pretty", false, "indent JSON output")
	flag.BoolVar(&opts.verbose, "v", false, "log to stderr")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "ict-analyze: %v\n", err)
		os.Exit(1)
	}
}

var cliModes = map[analytics.AnalyticsMode]bool{
	analytics.ModeMinimal:       true,
	analytics.ModeSignalsOnly:   true,
	analytics.ModeFullAnalytics: true,
}

func run(ctx context.Context, opts options, out io.Writer) error {
	mode, err := analytics.ParseMode(opts.mode)
	if err != nil {
		return err
	}
	if !cliModes[mode] {
		return fmt.Errorf("mode %s is not supported from the command line", mode)
	}

	logger := logging.Nop()
	if opts.verbose {
		logger = logging.NewWithWriter(&logging.Config{Level: "DEBUG", Component: "cli"}, os.Stderr)
	}
	logging.SetDefault(logger)

	candles, err := loadCandles(ctx, opts)
	if err != nil {
		return err
	}

	deps := analytics.StandardDependencies(analytics.Services{
		EngineConfig:      confluence.DefaultEngineConfig(),
		SynthesizerConfig: signals.DefaultConfig(),
		Learning:          learning.NewSystem(learning.NewMemoryStore(learning.DefaultMemoryStoreCapacity), logger),
		Bus:               events.NewEventBus(),
		Logger:            logger,
	})
	integrator := analytics.NewIntegrator(analytics.Config{Mode: mode}, deps)
	if !integrator.InitializeAnalyticsSystem(ctx) {
		return errors.New("analytics system failed to initialize")
	}
	defer integrator.ShutdownAnalyticsSystem()

	result, err := integrator.PerformCompleteAnalysis(ctx, candles, strings.ToUpper(opts.symbol), opts.timeframe)
	if result != nil {
		enc := json.NewEncoder(out)
		if opts.pretty {
			enc.SetIndent("", "  ")
		}
		if encErr := enc.Encode(result); encErr != nil {
			return encErr
		}
	}
	return err
}

func loadCandles(ctx context.Context, opts options) ([]market.Candle, error) {
	if opts.file != "" {
		data, err := os.ReadFile(opts.file)
		if err != nil {
			return nil, fmt.Errorf("reading candles: %w", err)
		}
		var candles []market.Candle
		if err := json.Unmarshal(data, &candles); err != nil {
			return nil, fmt.Errorf("parsing candles from %s: %w", opts.file, err)
		}
		return candles, nil
	}

	cfg := market.DefaultClientConfig()
	if opts.baseURL != "" {
		cfg.BaseURL = opts.baseURL
	}
	return market.NewClient(cfg).GetCandles(ctx, strings.ToUpper(opts.symbol), opts.timeframe, opts.limit)
}
