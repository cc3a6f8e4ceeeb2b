package persistence

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"llm-gateway/internal/domain/quota"
)

// quotaCounterRow is the persisted form of one provider's daily counter.
type quotaCounterRow struct {
	ProviderID string `gorm:"column:provider_id;primaryKey"`
	DayKey     string `gorm:"column:day_key;not null"`
	Used       int    `gorm:"column:used;not null;default:0"`
	Limit      int    `gorm:"column:daily_limit;not null;default:0"`
	Exceeded   bool   `gorm:"column:exceeded;not null;default:false"`
}

func (quotaCounterRow) TableName() string {
	return "quota_counters"
}

// QuotaStore implements quota.Store using GORM. The tracker flushes on a
// timer and on shutdown, so one row per provider is all that is kept.
type QuotaStore struct {
	db *gorm.DB
}

func NewQuotaStore(db *gorm.DB) *QuotaStore {
	return &QuotaStore{db: db}
}

// Migrate creates the counters table.
func (s *QuotaStore) Migrate() error {
	return s.db.AutoMigrate(&quotaCounterRow{})
}

// LoadQuota reads every persisted counter.
func (s *QuotaStore) LoadQuota(ctx context.Context) ([]quota.CounterState, error) {
	var rows []quotaCounterRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	states := make([]quota.CounterState, 0, len(rows))
	for _, row := range rows {
		states = append(states, quota.CounterState{
			ProviderID: row.ProviderID,
			DayKey:     row.DayKey,
			Used:       row.Used,
			Limit:      row.Limit,
			Exceeded:   row.Exceeded,
		})
	}
	return states, nil
}

// SaveQuota upserts the given counters.
func (s *QuotaStore) SaveQuota(ctx context.Context, states []quota.CounterState) error {
	if len(states) == 0 {
		return nil
	}
	rows := make([]quotaCounterRow, 0, len(states))
	for _, st := range states {
		rows = append(rows, quotaCounterRow{
			ProviderID: st.ProviderID,
			DayKey:     st.DayKey,
			Used:       st.Used,
			Limit:      st.Limit,
			Exceeded:   st.Exceeded,
		})
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_id"}},
			UpdateAll: true,
		}).
		Create(&rows).Error
}

var _ quota.Store = (*QuotaStore)(nil)
