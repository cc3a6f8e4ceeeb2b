package usage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domainmodel "llm-gateway/internal/domain/model"
	"llm-gateway/internal/infrastructure/connector"
)

func usageCatalog(t *testing.T) *domainmodel.Catalog {
	t.Helper()
	ctx := context.Background()
	c := domainmodel.NewCatalog()
	if err := c.RegisterProvider(ctx, &domainmodel.Provider{
		PublicID:     "openai",
		DisplayName:  "OpenAI",
		Kind:         domainmodel.ProviderOpenAI,
		BaseURL:      "https://api.openai.com/v1",
		Capabilities: []domainmodel.Capability{domainmodel.CapabilityChat},
	}); err != nil {
		t.Fatalf("register provider: %v", err)
	}
	if err := c.RegisterModel(ctx, &domainmodel.ProviderModel{
		ModelID:    "gpt-4o",
		ProviderID: "openai",
		Priority:   1,
		CostHint:   decimal.NewFromInt(5), // USD per 1M tokens
	}); err != nil {
		t.Fatalf("register model: %v", err)
	}
	return c
}

func TestRecordCompletionEstimatesCost(t *testing.T) {
	repo := NewMemoryRepository()
	s := NewService(repo, usageCatalog(t))

	s.RecordCompletion(context.Background(), "u1", "openai", "gpt-4o", &connector.Usage{
		PromptTokens:     400_000,
		CompletionTokens: 600_000,
		TotalTokens:      1_000_000,
	})

	summaries, err := s.UserSummaries(context.Background(), "u1", time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected one summary, got %d", len(summaries))
	}
	if !summaries[0].EstimatedCostUSD.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected 5 USD for 1M tokens at hint 5, got %s", summaries[0].EstimatedCostUSD)
	}
}

func TestRecordCompletionWithoutUsagePayload(t *testing.T) {
	repo := NewMemoryRepository()
	s := NewService(repo, usageCatalog(t))

	s.RecordCompletion(context.Background(), "u1", "openai", "gpt-4o", nil)

	summaries, err := s.UserSummaries(context.Background(), "u1", time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summaries) != 1 || summaries[0].RequestCount != 1 {
		t.Fatalf("expected the request counted even without token counts, got %+v", summaries)
	}
	if !summaries[0].EstimatedCostUSD.IsZero() {
		t.Fatalf("expected zero cost without token counts, got %s", summaries[0].EstimatedCostUSD)
	}
}

func TestUserSummariesAggregatePerModel(t *testing.T) {
	repo := NewMemoryRepository()
	s := NewService(repo, usageCatalog(t))

	for i := 0; i < 3; i++ {
		s.RecordCompletion(context.Background(), "u1", "openai", "gpt-4o", &connector.Usage{TotalTokens: 100})
	}
	s.RecordCompletion(context.Background(), "u2", "openai", "gpt-4o", &connector.Usage{TotalTokens: 100})

	summaries, err := s.UserSummaries(context.Background(), "u1", time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summaries) != 1 || summaries[0].RequestCount != 3 || summaries[0].TotalTokens != 300 {
		t.Fatalf("unexpected aggregate: %+v", summaries)
	}
}
