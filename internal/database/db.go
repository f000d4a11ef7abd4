package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ict-engine/internal/logging"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger *logging.Logger
}

// Config holds database configuration
type Config struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	Database string `json:"database" yaml:"database"`
	SSLMode  string `json:"sslmode" yaml:"sslmode"`
	MaxConns int32  `json:"max_conns" yaml:"max_conns"`
	MinConns int32  `json:"min_conns" yaml:"min_conns"`
}

// DSN builds the connection string
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// NewDB creates a new database connection
func NewDB(ctx context.Context, cfg Config, logger *logging.Logger) (*DB, error) {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.WithComponent("database")

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	poolConfig.MinConns = 2
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger.Info("Connected to PostgreSQL", "database", cfg.Database, "host", cfg.Host)
	return &DB{Pool: pool, logger: logger}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info("Database connection closed")
	}
}

// Migrations are applied in order on every start and must be idempotent
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS pattern_learning_records (
		id BIGSERIAL PRIMARY KEY,
		record_id VARCHAR(64) NOT NULL UNIQUE,
		pattern_type VARCHAR(32) NOT NULL,
		symbol VARCHAR(20) NOT NULL,
		timeframe VARCHAR(10) NOT NULL,
		pattern_strength DECIMAL(10, 4) NOT NULL,
		overall_strength DECIMAL(10, 4) NOT NULL,
		outcome VARCHAR(16) NOT NULL DEFAULT 'PENDING',
		profit_r DECIMAL(12, 4),
		feedback TEXT,
		detected_at TIMESTAMP NOT NULL,
		resolved_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_learning_pattern_type ON pattern_learning_records(pattern_type)`,
	`CREATE INDEX IF NOT EXISTS idx_learning_symbol_tf ON pattern_learning_records(symbol, timeframe)`,
	`CREATE INDEX IF NOT EXISTS idx_learning_outcome ON pattern_learning_records(outcome)`,
	`CREATE INDEX IF NOT EXISTS idx_learning_detected_at ON pattern_learning_records(detected_at DESC)`,

	`CREATE OR REPLACE FUNCTION update_updated_at_column()
	RETURNS TRIGGER AS $$
	BEGIN
		NEW.updated_at = CURRENT_TIMESTAMP;
		RETURN NEW;
	END;
	$$ language 'plpgsql'`,

	`DROP TRIGGER IF EXISTS update_learning_records_updated_at ON pattern_learning_records`,
	`CREATE TRIGGER update_learning_records_updated_at BEFORE UPDATE ON pattern_learning_records
	FOR EACH ROW EXECUTE FUNCTION update_updated_at_column()`,
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	log := logging.DatabaseContext(ctx, db.logger, "migrate", "pattern_learning_records")
	log.Info("Running database migrations", "count", len(Migrations))

	for i, migration := range Migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			log.Error("Migration failed", "index", i+1, "error", err)
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Info("Database migrations completed")
	return nil
}

// HealthCheck performs a database health check
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
