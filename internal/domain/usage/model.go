package usage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is a single completed inference, persisted for accounting.
type Record struct {
	ID               int64           `gorm:"primaryKey;autoIncrement"`
	UserID           string          `gorm:"column:user_id;not null;index"`
	Provider         string          `gorm:"column:provider;not null;index"`
	Model            string          `gorm:"column:model;not null;index"`
	PromptTokens     int             `gorm:"column:prompt_tokens;not null;default:0"`
	CompletionTokens int             `gorm:"column:completion_tokens;not null;default:0"`
	TotalTokens      int             `gorm:"column:total_tokens;not null;default:0"`
	EstimatedCostUSD decimal.Decimal `gorm:"column:estimated_cost_usd;type:decimal(10,6)"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (Record) TableName() string {
	return "usage_records"
}

// Summary is aggregated usage for one (provider, model) pair.
type Summary struct {
	Provider              string          `json:"provider"`
	Model                 string          `json:"model"`
	TotalPromptTokens     int64           `json:"total_prompt_tokens"`
	TotalCompletionTokens int64           `json:"total_completion_tokens"`
	TotalTokens           int64           `json:"total_tokens"`
	RequestCount          int64           `json:"request_count"`
	EstimatedCostUSD      decimal.Decimal `json:"estimated_cost_usd"`
}
