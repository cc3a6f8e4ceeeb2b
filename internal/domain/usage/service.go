package usage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domainmodel "llm-gateway/internal/domain/model"
	"llm-gateway/internal/infrastructure/connector"
	"llm-gateway/internal/infrastructure/logger"
)

var tokensPerCostUnit = decimal.NewFromInt(1_000_000)

// Service records completed inferences and answers usage queries. Cost is
// an estimate derived from the catalog's per-model cost hint (USD per 1M
// tokens), not billing data.
type Service struct {
	repo    Repository
	catalog *domainmodel.Catalog
}

func NewService(repo Repository, catalog *domainmodel.Catalog) *Service {
	return &Service{repo: repo, catalog: catalog}
}

// RecordCompletion stores usage for one successful inference. Called by the
// routing engine after a counted success; accounting failures are logged and
// swallowed so they never fail the request that produced them.
func (s *Service) RecordCompletion(ctx context.Context, userID, providerID, modelID string, u *connector.Usage) {
	rec := &Record{
		UserID:   userID,
		Provider: providerID,
		Model:    modelID,
	}
	if u != nil {
		rec.PromptTokens = u.PromptTokens
		rec.CompletionTokens = u.CompletionTokens
		rec.TotalTokens = u.TotalTokens
	}
	if rec.TotalTokens == 0 {
		rec.TotalTokens = rec.PromptTokens + rec.CompletionTokens
	}
	rec.EstimatedCostUSD = s.estimateCost(modelID, rec.TotalTokens)

	if err := s.repo.Create(ctx, rec); err != nil {
		logger.Component("usage").Error().
			Err(err).
			Str("user_id", userID).
			Str("provider_id", providerID).
			Msg("usage record write failed")
	}
}

// UserSummaries returns per (provider, model) aggregates for a user.
func (s *Service) UserSummaries(ctx context.Context, userID string, startDate, endDate time.Time) ([]Summary, error) {
	return s.repo.GetUserSummaries(ctx, userID, startDate, endDate)
}

func (s *Service) estimateCost(modelID string, totalTokens int) decimal.Decimal {
	if s.catalog == nil || totalTokens == 0 {
		return decimal.Zero
	}
	m := s.catalog.Model(modelID)
	if m == nil || m.CostHint.IsZero() {
		return decimal.Zero
	}
	return m.CostHint.Mul(decimal.NewFromInt(int64(totalTokens))).Div(tokensPerCostUnit)
}
