package learning

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultMemoryStoreCapacity applies when NewMemoryStore gets a non-positive capacity
const DefaultMemoryStoreCapacity = 10000

// MemoryStore keeps the most recent learning records in process memory.
// Once full, each insert evicts the oldest record.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]*Record
	order    []string
	capacity int
}

// NewMemoryStore creates an empty in-memory store holding at most capacity records
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryStoreCapacity
	}
	return &MemoryStore{records: make(map[string]*Record), capacity: capacity}
}

func (m *MemoryStore) Insert(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[rec.RecordID]; !exists {
		for len(m.order) >= m.capacity {
			delete(m.records, m.order[0])
			m.order[0] = ""
			m.order = m.order[1:]
		}
		m.order = append(m.order, rec.RecordID)
	}
	cp := *rec
	m.records[rec.RecordID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, recordID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[recordID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) Resolve(_ context.Context, recordID string, outcome Outcome, profitR float64, feedback string, resolvedAt time.Time) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[recordID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	if rec.Outcome != OutcomePending {
		return nil, ErrAlreadyResolved
	}

	r := profitR
	rec.Outcome = outcome
	rec.ProfitR = &r
	rec.Feedback = feedback
	rec.ResolvedAt = &resolvedAt

	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) Recent(_ context.Context, symbol, timeframe string, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for i := len(m.order) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		rec := m.records[m.order[i]]
		if rec.Symbol == symbol && rec.Timeframe == timeframe {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *MemoryStore) Stats(_ context.Context) ([]PatternStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byType := make(map[string]*PatternStats)
	for _, rec := range m.records {
		s, ok := byType[rec.PatternType]
		if !ok {
			s = &PatternStats{PatternType: rec.PatternType}
			byType[rec.PatternType] = s
		}
		s.Total++
		switch rec.Outcome {
		case OutcomeWin:
			s.Wins++
		case OutcomeLoss:
			s.Losses++
		case OutcomeBreakeven:
			s.Breakevens++
		case OutcomeExpired:
			s.Expired++
		}
		if rec.ProfitR != nil {
			s.TotalProfitR += *rec.ProfitR
		}
	}

	out := make([]PatternStats, 0, len(byType))
	for _, s := range byType {
		s.finalize()
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PatternType < out[j].PatternType })
	return out, nil
}
