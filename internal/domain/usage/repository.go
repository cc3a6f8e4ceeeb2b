package usage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository defines the interface for usage data access.
type Repository interface {
	// Create stores one usage record.
	Create(ctx context.Context, rec *Record) error

	// GetUserSummaries returns per (provider, model) aggregates for a user
	// within a date range.
	GetUserSummaries(ctx context.Context, userID string, startDate, endDate time.Time) ([]Summary, error)
}

// MemoryRepository keeps records in process memory. The default when no
// database is configured; aggregates survive only as long as the process.
type MemoryRepository struct {
	mu      sync.Mutex
	nextID  int64
	records []Record
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(ctx context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	rec.ID = r.nextID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	r.records = append(r.records, *rec)
	return nil
}

func (r *MemoryRepository) GetUserSummaries(ctx context.Context, userID string, startDate, endDate time.Time) ([]Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byKey := make(map[string]*Summary)
	for _, rec := range r.records {
		if rec.UserID != userID {
			continue
		}
		if rec.CreatedAt.Before(startDate) || rec.CreatedAt.After(endDate) {
			continue
		}
		key := rec.Provider + "\x00" + rec.Model
		s, ok := byKey[key]
		if !ok {
			s = &Summary{Provider: rec.Provider, Model: rec.Model}
			byKey[key] = s
		}
		s.TotalPromptTokens += int64(rec.PromptTokens)
		s.TotalCompletionTokens += int64(rec.CompletionTokens)
		s.TotalTokens += int64(rec.TotalTokens)
		s.RequestCount++
		s.EstimatedCostUSD = s.EstimatedCostUSD.Add(rec.EstimatedCostUSD)
	}

	out := make([]Summary, 0, len(byKey))
	for _, s := range byKey {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Model < out[j].Model
	})
	return out, nil
}
