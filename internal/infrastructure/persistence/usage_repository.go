// Package persistence implements the domain store interfaces on Postgres
// via GORM. Every repository here has an in-memory sibling in its domain
// package; this layer exists so counters and records survive restarts.
package persistence

import (
	"context"
	"time"

	"gorm.io/gorm"

	"llm-gateway/internal/domain/usage"
)

// UsageRepository implements usage.Repository using GORM.
type UsageRepository struct {
	db *gorm.DB
}

func NewUsageRepository(db *gorm.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// Migrate creates the usage table.
func (r *UsageRepository) Migrate() error {
	return r.db.AutoMigrate(&usage.Record{})
}

// Create stores one usage record.
func (r *UsageRepository) Create(ctx context.Context, rec *usage.Record) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

// GetUserSummaries returns per (provider, model) aggregates for a user
// within a date range.
func (r *UsageRepository) GetUserSummaries(ctx context.Context, userID string, startDate, endDate time.Time) ([]usage.Summary, error) {
	var summaries []usage.Summary
	err := r.db.WithContext(ctx).
		Model(&usage.Record{}).
		Select(`
			provider,
			model,
			SUM(prompt_tokens) as total_prompt_tokens,
			SUM(completion_tokens) as total_completion_tokens,
			SUM(total_tokens) as total_tokens,
			SUM(estimated_cost_usd) as estimated_cost_usd,
			COUNT(*) as request_count
		`).
		Where("user_id = ? AND created_at >= ? AND created_at <= ?", userID, startDate, endDate).
		Group("provider, model").
		Order("provider, model").
		Scan(&summaries).Error
	return summaries, err
}

var _ usage.Repository = (*UsageRepository)(nil)
