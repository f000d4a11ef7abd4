package learning

import (
	"context"
	"errors"
	"time"

	"ict-engine/internal/database"
)

// PostgresStore persists learning records in pattern_learning_records
type PostgresStore struct {
	repo *database.Repository
}

// NewPostgresStore creates a store backed by the repository
func NewPostgresStore(repo *database.Repository) *PostgresStore {
	return &PostgresStore{repo: repo}
}

func (p *PostgresStore) Insert(ctx context.Context, rec *Record) error {
	return p.repo.CreateLearningRecord(ctx, &database.LearningRecord{
		RecordID:        rec.RecordID,
		PatternType:     rec.PatternType,
		Symbol:          rec.Symbol,
		Timeframe:       rec.Timeframe,
		PatternStrength: rec.PatternStrength,
		OverallStrength: rec.OverallStrength,
		Outcome:         string(rec.Outcome),
		DetectedAt:      rec.DetectedAt,
	})
}

func (p *PostgresStore) Get(ctx context.Context, recordID string) (*Record, error) {
	row, err := p.repo.GetLearningRecord(ctx, recordID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return fromRow(row), nil
}

func (p *PostgresStore) Resolve(ctx context.Context, recordID string, outcome Outcome, profitR float64, feedback string, resolvedAt time.Time) (*Record, error) {
	row, err := p.repo.ResolveLearningRecord(ctx, recordID, string(outcome), profitR, feedback, resolvedAt)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return fromRow(row), nil
}

func (p *PostgresStore) Recent(ctx context.Context, symbol, timeframe string, limit int) ([]Record, error) {
	rows, err := p.repo.GetRecentLearningRecords(ctx, symbol, timeframe, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for i := range rows {
		out = append(out, *fromRow(&rows[i]))
	}
	return out, nil
}

func (p *PostgresStore) Stats(ctx context.Context) ([]PatternStats, error) {
	summaries, err := p.repo.GetPatternOutcomeSummaries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PatternStats, 0, len(summaries))
	for _, s := range summaries {
		ps := PatternStats{
			PatternType:  s.PatternType,
			Total:        s.Total,
			Wins:         s.Wins,
			Losses:       s.Losses,
			Breakevens:   s.Breakevens,
			Expired:      s.Expired,
			TotalProfitR: s.TotalProfitR,
		}
		ps.finalize()
		out = append(out, ps)
	}
	return out, nil
}

func fromRow(row *database.LearningRecord) *Record {
	rec := &Record{
		RecordID:        row.RecordID,
		PatternType:     row.PatternType,
		Symbol:          row.Symbol,
		Timeframe:       row.Timeframe,
		PatternStrength: row.PatternStrength,
		OverallStrength: row.OverallStrength,
		Outcome:         Outcome(row.Outcome),
		ProfitR:         row.ProfitR,
		DetectedAt:      row.DetectedAt,
		ResolvedAt:      row.ResolvedAt,
	}
	if row.Feedback != nil {
		rec.Feedback = *row.Feedback
	}
	return rec
}

func mapRepoError(err error) error {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return ErrRecordNotFound
	case errors.Is(err, database.ErrAlreadyResolved):
		return ErrAlreadyResolved
	}
	return err
}
