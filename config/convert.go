package config

import (
	"ict-engine/internal/analytics"
	"ict-engine/internal/auth"
	"ict-engine/internal/cache"
	"ict-engine/internal/circuit"
	"ict-engine/internal/confluence"
	"ict-engine/internal/database"
	"ict-engine/internal/logging"
	"ict-engine/internal/market"
	"ict-engine/internal/signals"
)

// Logging builds the logger config for a component
func (c *Config) Logging(component string) *logging.Config {
	return &logging.Config{
		Level:         c.LoggingConfig.Level,
		Output:        c.LoggingConfig.Output,
		Component:     component,
		IncludeCaller: c.LoggingConfig.IncludeCaller,
		JSONFormat:    c.LoggingConfig.JSONFormat,
	}
}

func (c *Config) Database() database.Config {
	d := c.DatabaseConfig
	return database.Config{
		Host:     d.Host,
		Port:     d.Port,
		User:     d.User,
		Password: d.Password,
		Database: d.Name,
		SSLMode:  d.SSLMode,
		MaxConns: d.MaxConns,
		MinConns: d.MinConns,
	}
}

func (c *Config) Cache() cache.Config {
	r := c.RedisConfig
	return cache.Config{
		Enabled:  r.Enabled,
		Address:  r.Address,
		Password: r.Password,
		DB:       r.DB,
		PoolSize: r.PoolSize,
	}
}

func (c *Config) MarketClient() market.ClientConfig {
	m := c.MarketDataConfig
	cc := market.DefaultClientConfig()
	if m.BaseURL != "" {
		cc.BaseURL = m.BaseURL
	}
	if m.RequestsPerSecond > 0 {
		cc.RequestsPerSecond = m.RequestsPerSecond
	}
	if m.Burst > 0 {
		cc.Burst = m.Burst
	}
	if m.Timeout > 0 {
		cc.Timeout = m.Timeout.Std()
	}
	if m.MaxRetryTime > 0 {
		cc.MaxRetryTime = m.MaxRetryTime.Std()
	}
	return cc
}

// Engine maps detector settings onto the confluence engine, keeping
// defaults for unset values
func (c *Config) Engine() confluence.EngineConfig {
	a := c.AnalyticsConfig
	e := confluence.DefaultEngineConfig()
	if a.MaxPatternsPerDetector > 0 {
		e.MaxPatternsPerDetector = a.MaxPatternsPerDetector
	}
	if a.MinFVGGapPercent > 0 {
		e.MinFVGGapPercent = a.MinFVGGapPercent
	}
	if a.OrderBlockLookback > 0 {
		e.OrderBlockLookback = a.OrderBlockLookback
	}
	if a.OrderBlockMinMove > 0 {
		e.OrderBlockMinMove = a.OrderBlockMinMove
	}
	if a.SwingLookback > 0 {
		e.SwingLookback = a.SwingLookback
	}
	if a.ReversalWindow > 0 {
		e.ReversalWindow = a.ReversalWindow
	}
	return e
}

func (c *Config) Synthesizer() signals.Config {
	a := c.AnalyticsConfig
	s := signals.DefaultConfig()
	if a.MaxRiskPercent > 0 {
		s.MaxRiskPercent = a.MaxRiskPercent
	}
	if a.SignalExpiry > 0 {
		s.SignalExpiry = a.SignalExpiry.Std()
	}
	s.EntryOffsetPercent = a.EntryOffsetPercent
	s.StopOffsetPercent = a.StopOffsetPercent
	s.TargetOffsetPercent = a.TargetOffsetPercent
	if a.MarketEntryThresholdPct > 0 {
		s.MarketEntryThresholdPct = a.MarketEntryThresholdPct
	}
	return s
}

// Analytics resolves the integrator mode. Validate has already rejected
// unknown names.
func (c *Config) Analytics() analytics.Config {
	mode, err := analytics.ParseMode(c.AnalyticsConfig.Mode)
	if err != nil {
		mode = analytics.ModeFullAnalytics
	}
	return analytics.Config{Mode: mode}
}

func (c *Config) Breaker() circuit.Config {
	b := c.BreakerConfig
	return circuit.Config{
		Enabled:              b.Enabled,
		MaxConsecutiveLosses: b.MaxConsecutiveLosses,
		MaxLossRPerHour:      b.MaxLossRPerHour,
		Cooldown:             b.Cooldown.Std(),
	}
}

func (c *Config) Auth() auth.Config {
	a := c.AuthConfig
	return auth.Config{
		Enabled:              a.Enabled,
		JWTSecret:            a.JWTSecret,
		TokenTTL:             a.TokenTTL.Std(),
		OperatorUser:         a.OperatorUser,
		OperatorPasswordHash: a.OperatorPasswordHash,
	}
}
