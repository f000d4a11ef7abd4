package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"ict-engine/internal/logging"
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = errors.New("record not found")

// ErrAlreadyResolved is returned when an outcome is set twice
var ErrAlreadyResolved = errors.New("record already resolved")

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck pings the pool backing the repository
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// ============================================================================
// PATTERN LEARNING RECORDS
// ============================================================================

const learningColumns = `id, record_id, pattern_type, symbol, timeframe, pattern_strength, overall_strength,
	outcome, profit_r, feedback, detected_at, resolved_at, created_at, updated_at`

// CreateLearningRecord inserts a new learning record
func (r *Repository) CreateLearningRecord(ctx context.Context, rec *LearningRecord) error {
	query := `
		INSERT INTO pattern_learning_records
			(record_id, pattern_type, symbol, timeframe, pattern_strength, overall_strength, outcome, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		rec.RecordID, rec.PatternType, rec.Symbol, rec.Timeframe,
		rec.PatternStrength, rec.OverallStrength, rec.Outcome, rec.DetectedAt,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
}

// GetLearningRecord retrieves a record by its public id
func (r *Repository) GetLearningRecord(ctx context.Context, recordID string) (*LearningRecord, error) {
	query := `SELECT ` + learningColumns + ` FROM pattern_learning_records WHERE record_id = $1`

	rec, err := scanLearningRecord(r.db.Pool.QueryRow(ctx, query, recordID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get learning record: %w", err)
	}
	return rec, nil
}

// ResolveLearningRecord sets the outcome of a pending record
func (r *Repository) ResolveLearningRecord(ctx context.Context, recordID, outcome string, profitR float64, feedback string, resolvedAt time.Time) (*LearningRecord, error) {
	query := `
		UPDATE pattern_learning_records
		SET outcome = $2, profit_r = $3, feedback = $4, resolved_at = $5
		WHERE record_id = $1 AND outcome = 'PENDING'
		RETURNING ` + learningColumns

	rec, err := scanLearningRecord(r.db.Pool.QueryRow(ctx, query, recordID, outcome, profitR, feedback, resolvedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		// distinguish a missing record from one that was already resolved
		if _, getErr := r.GetLearningRecord(ctx, recordID); getErr != nil {
			return nil, getErr
		}
		logging.DatabaseContext(ctx, r.db.logger, "resolve", "pattern_learning_records").
			Warn("Outcome already recorded", "record_id", recordID)
		return nil, ErrAlreadyResolved
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve learning record: %w", err)
	}
	return rec, nil
}

// GetRecentLearningRecords returns the latest records for a symbol/timeframe
func (r *Repository) GetRecentLearningRecords(ctx context.Context, symbol, timeframe string, limit int) ([]LearningRecord, error) {
	query := `SELECT ` + learningColumns + `
		FROM pattern_learning_records
		WHERE symbol = $1 AND timeframe = $2
		ORDER BY detected_at DESC
		LIMIT $3`

	rows, err := r.db.Pool.Query(ctx, query, symbol, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query learning records: %w", err)
	}
	defer rows.Close()

	var records []LearningRecord
	for rows.Next() {
		rec, err := scanLearningRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// GetPatternOutcomeSummaries aggregates outcomes per pattern type
func (r *Repository) GetPatternOutcomeSummaries(ctx context.Context) ([]PatternOutcomeSummary, error) {
	query := `
		SELECT pattern_type,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE outcome = 'WIN'),
		       COUNT(*) FILTER (WHERE outcome = 'LOSS'),
		       COUNT(*) FILTER (WHERE outcome = 'BREAKEVEN'),
		       COUNT(*) FILTER (WHERE outcome = 'EXPIRED'),
		       COALESCE(SUM(profit_r), 0)::float8
		FROM pattern_learning_records
		GROUP BY pattern_type
		ORDER BY pattern_type
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query pattern outcomes: %w", err)
	}
	defer rows.Close()

	var summaries []PatternOutcomeSummary
	for rows.Next() {
		var s PatternOutcomeSummary
		if err := rows.Scan(&s.PatternType, &s.Total, &s.Wins, &s.Losses, &s.Breakevens, &s.Expired, &s.TotalProfitR); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func scanLearningRecord(row pgx.Row) (*LearningRecord, error) {
	rec := &LearningRecord{}
	err := row.Scan(
		&rec.ID, &rec.RecordID, &rec.PatternType, &rec.Symbol, &rec.Timeframe,
		&rec.PatternStrength, &rec.OverallStrength, &rec.Outcome, &rec.ProfitR, &rec.Feedback,
		&rec.DetectedAt, &rec.ResolvedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
