package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ict-engine/internal/analytics"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ServerConfig     ServerConfig     `json:"server" yaml:"server"`
	LoggingConfig    LoggingConfig    `json:"logging" yaml:"logging"`
	AuthConfig       AuthConfig       `json:"auth" yaml:"auth"`
	VaultConfig      VaultConfig      `json:"vault" yaml:"vault"`
	DatabaseConfig   DatabaseConfig   `json:"database" yaml:"database"`
	RedisConfig      RedisConfig      `json:"redis" yaml:"redis"`
	MarketDataConfig MarketDataConfig `json:"market_data" yaml:"market_data"`
	AnalyticsConfig  AnalyticsConfig  `json:"analytics" yaml:"analytics"`
	BreakerConfig    BreakerConfig    `json:"breaker" yaml:"breaker"`
}

type ServerConfig struct {
	Port            int      `json:"port" yaml:"port"`
	Host            string   `json:"host" yaml:"host"`
	AllowedOrigins  []string `json:"allowed_origins" yaml:"allowed_origins"` // CORS allowed origins
	RateLimit       float64  `json:"rate_limit" yaml:"rate_limit"`           // Requests per second per client, 0 disables
	RateBurst       int      `json:"rate_burst" yaml:"rate_burst"`
	ReadTimeout     int      `json:"read_timeout" yaml:"read_timeout"`         // Seconds
	WriteTimeout    int      `json:"write_timeout" yaml:"write_timeout"`       // Seconds
	ShutdownTimeout int      `json:"shutdown_timeout" yaml:"shutdown_timeout"` // Seconds
}

type LoggingConfig struct {
	Level         string `json:"level" yaml:"level"`   // DEBUG, INFO, WARN, ERROR
	Output        string `json:"output" yaml:"output"` // stdout, stderr, or file path
	JSONFormat    bool   `json:"json_format" yaml:"json_format"`
	IncludeCaller bool   `json:"include_caller" yaml:"include_caller"`
	BlackBoxPath  string `json:"blackbox_path" yaml:"blackbox_path"` // Audit log file, empty disables
}

type AuthConfig struct {
	Enabled              bool     `json:"enabled" yaml:"enabled"`
	JWTSecret            string   `json:"jwt_secret" yaml:"jwt_secret"`
	TokenTTL             Duration `json:"token_ttl" yaml:"token_ttl"`
	OperatorUser         string   `json:"operator_user" yaml:"operator_user"`
	OperatorPasswordHash string   `json:"operator_password_hash" yaml:"operator_password_hash"` // bcrypt
}

type VaultConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Address    string `json:"address" yaml:"address"`
	Token      string `json:"token" yaml:"token"`
	MountPath  string `json:"mount_path" yaml:"mount_path"`   // KV v2 mount
	SecretPath string `json:"secret_path" yaml:"secret_path"` // Path of the service secret
}

type DatabaseConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	Name     string `json:"name" yaml:"name"`
	SSLMode  string `json:"sslmode" yaml:"sslmode"`
	MaxConns int32  `json:"max_conns" yaml:"max_conns"`
	MinConns int32  `json:"min_conns" yaml:"min_conns"`
}

type RedisConfig struct {
	Enabled      bool     `json:"enabled" yaml:"enabled"`
	Address      string   `json:"address" yaml:"address"`
	Password     string   `json:"password" yaml:"password"`
	DB           int      `json:"db" yaml:"db"`
	PoolSize     int      `json:"pool_size" yaml:"pool_size"`
	EventChannel string   `json:"event_channel" yaml:"event_channel"`
	MemoryTTL    Duration `json:"memory_ttl" yaml:"memory_ttl"`
}

type MarketDataConfig struct {
	BaseURL           string   `json:"base_url" yaml:"base_url"`
	RequestsPerSecond float64  `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int      `json:"burst" yaml:"burst"`
	Timeout           Duration `json:"timeout" yaml:"timeout"`
	MaxRetryTime      Duration `json:"max_retry_time" yaml:"max_retry_time"`
	DefaultLimit      int      `json:"default_limit" yaml:"default_limit"`
}

type AnalyticsConfig struct {
	Mode                    string   `json:"mode" yaml:"mode"`
	MaxRiskPercent          float64  `json:"max_risk_percent" yaml:"max_risk_percent"`
	SignalExpiry            Duration `json:"signal_expiry" yaml:"signal_expiry"`
	EntryOffsetPercent      float64  `json:"entry_offset_percent" yaml:"entry_offset_percent"`
	StopOffsetPercent       float64  `json:"stop_offset_percent" yaml:"stop_offset_percent"`
	TargetOffsetPercent     float64  `json:"target_offset_percent" yaml:"target_offset_percent"`
	MarketEntryThresholdPct float64  `json:"market_entry_threshold_percent" yaml:"market_entry_threshold_percent"`
	MaxPatternsPerDetector  int      `json:"max_patterns_per_detector" yaml:"max_patterns_per_detector"`
	MinFVGGapPercent        float64  `json:"min_fvg_gap_percent" yaml:"min_fvg_gap_percent"`
	OrderBlockLookback      int      `json:"order_block_lookback" yaml:"order_block_lookback"`
	OrderBlockMinMove       float64  `json:"order_block_min_move_percent" yaml:"order_block_min_move_percent"`
	SwingLookback           int      `json:"swing_lookback" yaml:"swing_lookback"`
	ReversalWindow          int      `json:"reversal_window" yaml:"reversal_window"`
	StructureSwingLookback  int      `json:"structure_swing_lookback" yaml:"structure_swing_lookback"`
	MemoryCapacity          int      `json:"memory_capacity" yaml:"memory_capacity"`
	LearningCapacity        int      `json:"learning_capacity" yaml:"learning_capacity"` // In-memory learning records kept
}

type BreakerConfig struct {
	Enabled              bool     `json:"enabled" yaml:"enabled"`
	MaxConsecutiveLosses int      `json:"max_consecutive_losses" yaml:"max_consecutive_losses"`
	MaxLossRPerHour      float64  `json:"max_loss_r_per_hour" yaml:"max_loss_r_per_hour"`
	Cooldown             Duration `json:"cooldown" yaml:"cooldown"`
}

// Default returns a fully populated configuration
func Default() *Config {
	return &Config{
		ServerConfig: ServerConfig{
			Port:            8090,
			Host:            "0.0.0.0",
			AllowedOrigins:  []string{"*"},
			RateLimit:       10,
			RateBurst:       20,
			ReadTimeout:     30,
			WriteTimeout:    30,
			ShutdownTimeout: 10,
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
		AuthConfig: AuthConfig{
			Enabled:      false,
			TokenTTL:     Duration(12 * time.Hour),
			OperatorUser: "operator",
		},
		VaultConfig: VaultConfig{
			Address:    "http://localhost:8200",
			MountPath:  "secret",
			SecretPath: "ict-engine/service",
		},
		DatabaseConfig: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "ict",
			Name:     "ict_engine",
			SSLMode:  "disable",
			MaxConns: 10,
			MinConns: 2,
		},
		RedisConfig: RedisConfig{
			Address:      "localhost:6379",
			PoolSize:     10,
			EventChannel: "ict:events",
			MemoryTTL:    Duration(24 * time.Hour),
		},
		MarketDataConfig: MarketDataConfig{
			BaseURL:           "https://api.binance.com",
			RequestsPerSecond: 5,
			Burst:             5,
			Timeout:           Duration(10 * time.Second),
			MaxRetryTime:      Duration(30 * time.Second),
			DefaultLimit:      200,
		},
		AnalyticsConfig: AnalyticsConfig{
			Mode:                    "FULL_ANALYTICS",
			MaxRiskPercent:          2.0,
			SignalExpiry:            Duration(4 * time.Hour),
			EntryOffsetPercent:      0.1,
			StopOffsetPercent:       0.5,
			TargetOffsetPercent:     1.5,
			MarketEntryThresholdPct: 0.2,
			MaxPatternsPerDetector:  5,
			MinFVGGapPercent:        0.1,
			OrderBlockLookback:      100,
			OrderBlockMinMove:       1.0,
			SwingLookback:           3,
			ReversalWindow:          10,
			StructureSwingLookback:  5,
			MemoryCapacity:          50,
			LearningCapacity:        10000,
		},
		BreakerConfig: BreakerConfig{
			Enabled:              true,
			MaxConsecutiveLosses: 5,
			MaxLossRPerHour:      4.0,
			Cooldown:             Duration(30 * time.Minute),
		},
	}
}

// Load reads .env, then the config file, then environment overrides
func Load() (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	cfg := Default()
	path := os.Getenv("ICT_CONFIG")
	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	for _, name := range []string{"config.json", "config.yaml", "config.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

func loadFromFile(filename string, cfg *Config) error {
	file, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(file, cfg)
	default:
		err = json.Unmarshal(file, cfg)
	}
	if err != nil {
		return fmt.Errorf("error parsing config file %s: %w", filename, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	if origins := os.Getenv("SERVER_ALLOWED_ORIGINS"); origins != "" {
		cfg.ServerConfig.AllowedOrigins = strings.Split(origins, ",")
	}
	cfg.ServerConfig.RateLimit = getEnvFloatOrDefault("SERVER_RATE_LIMIT", cfg.ServerConfig.RateLimit)
	cfg.ServerConfig.RateBurst = getEnvIntOrDefault("SERVER_RATE_BURST", cfg.ServerConfig.RateBurst)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", cfg.ServerConfig.ShutdownTimeout)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)
	cfg.LoggingConfig.IncludeCaller = getEnvBoolOrDefault("LOG_INCLUDE_CALLER", cfg.LoggingConfig.IncludeCaller)
	cfg.LoggingConfig.BlackBoxPath = getEnvOrDefault("BLACKBOX_PATH", cfg.LoggingConfig.BlackBoxPath)

	cfg.AuthConfig.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.AuthConfig.Enabled)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.TokenTTL = getEnvDurationOrDefault("AUTH_TOKEN_TTL", cfg.AuthConfig.TokenTTL)
	cfg.AuthConfig.OperatorUser = getEnvOrDefault("AUTH_OPERATOR_USER", cfg.AuthConfig.OperatorUser)
	cfg.AuthConfig.OperatorPasswordHash = getEnvOrDefault("AUTH_OPERATOR_PASSWORD_HASH", cfg.AuthConfig.OperatorPasswordHash)

	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.VaultConfig.SecretPath)

	cfg.DatabaseConfig.Enabled = getEnvBoolOrDefault("DB_ENABLED", cfg.DatabaseConfig.Enabled)
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Name = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Name)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)

	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDR", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.EventChannel = getEnvOrDefault("REDIS_EVENT_CHANNEL", cfg.RedisConfig.EventChannel)
	cfg.RedisConfig.MemoryTTL = getEnvDurationOrDefault("REDIS_MEMORY_TTL", cfg.RedisConfig.MemoryTTL)

	cfg.MarketDataConfig.BaseURL = getEnvOrDefault("MARKET_DATA_BASE_URL", cfg.MarketDataConfig.BaseURL)
	cfg.MarketDataConfig.RequestsPerSecond = getEnvFloatOrDefault("MARKET_DATA_RPS", cfg.MarketDataConfig.RequestsPerSecond)
	cfg.MarketDataConfig.Timeout = getEnvDurationOrDefault("MARKET_DATA_TIMEOUT", cfg.MarketDataConfig.Timeout)

	cfg.AnalyticsConfig.Mode = strings.ToUpper(getEnvOrDefault("ANALYTICS_MODE", cfg.AnalyticsConfig.Mode))
	cfg.AnalyticsConfig.MaxRiskPercent = getEnvFloatOrDefault("ANALYTICS_MAX_RISK_PERCENT", cfg.AnalyticsConfig.MaxRiskPercent)
	cfg.AnalyticsConfig.SignalExpiry = getEnvDurationOrDefault("ANALYTICS_SIGNAL_EXPIRY", cfg.AnalyticsConfig.SignalExpiry)
	cfg.AnalyticsConfig.LearningCapacity = getEnvIntOrDefault("ANALYTICS_LEARNING_CAPACITY", cfg.AnalyticsConfig.LearningCapacity)

	cfg.BreakerConfig.Enabled = getEnvBoolOrDefault("BREAKER_ENABLED", cfg.BreakerConfig.Enabled)
	cfg.BreakerConfig.MaxConsecutiveLosses = getEnvIntOrDefault("BREAKER_MAX_CONSECUTIVE_LOSSES", cfg.BreakerConfig.MaxConsecutiveLosses)
	cfg.BreakerConfig.MaxLossRPerHour = getEnvFloatOrDefault("BREAKER_MAX_LOSS_R_PER_HOUR", cfg.BreakerConfig.MaxLossRPerHour)
	cfg.BreakerConfig.Cooldown = getEnvDurationOrDefault("BREAKER_COOLDOWN", cfg.BreakerConfig.Cooldown)
}

// Validate rejects settings the service cannot start with
func (c *Config) Validate() error {
	var errs []error
	if c.ServerConfig.Port <= 0 || c.ServerConfig.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", c.ServerConfig.Port))
	}
	if _, err := analytics.ParseMode(c.AnalyticsConfig.Mode); err != nil {
		errs = append(errs, err)
	}
	a := c.AnalyticsConfig
	if a.EntryOffsetPercent < 0 || a.StopOffsetPercent < 0 || a.TargetOffsetPercent < 0 {
		errs = append(errs, errors.New("analytics offsets must not be negative"))
	}
	if a.LearningCapacity < 0 {
		errs = append(errs, errors.New("learning capacity must not be negative"))
	}
	if a.MaxRiskPercent < 0 {
		errs = append(errs, errors.New("max risk percent must not be negative"))
	}
	if c.AuthConfig.Enabled && c.AuthConfig.JWTSecret == "" && !c.VaultConfig.Enabled {
		errs = append(errs, errors.New("auth enabled without a JWT secret"))
	}
	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue Duration) Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return Duration(duration)
		}
	}
	return defaultValue
}

// GenerateSampleConfig writes the default configuration as JSON or YAML
func GenerateSampleConfig(filename string) error {
	cfg := Default()

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
