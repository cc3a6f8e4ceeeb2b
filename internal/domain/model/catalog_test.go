package model

import (
	"context"
	"testing"
)

func testProvider(id string) *Provider {
	return &Provider{
		PublicID:     id,
		DisplayName:  id,
		Kind:         ProviderOpenAI,
		BaseURL:      "https://api.example.com/v1",
		Capabilities: []Capability{CapabilityChat, CapabilityText},
		DefaultModel: "gen-b",
	}
}

func TestCatalogRegisterAndLookup(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog()

	if err := c.RegisterProvider(ctx, testProvider("p1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.RegisterModel(ctx, &ProviderModel{ModelID: "code-a", ProviderID: "p1", Specialties: []ConversationType{TypeTechnical}, Priority: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.Provider("p1") == nil {
		t.Fatal("provider not found after registration")
	}
	if m := c.Model("code-a"); m == nil || m.ProviderID != "p1" {
		t.Fatalf("unexpected model lookup: %+v", m)
	}
}

func TestCatalogRejectsUnknownProvider(t *testing.T) {
	c := NewCatalog()
	err := c.RegisterModel(context.Background(), &ProviderModel{ModelID: "m", ProviderID: "ghost"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestCatalogModelBelongsToOneProvider(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog()
	if err := c.RegisterProvider(ctx, testProvider("p1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.RegisterProvider(ctx, testProvider("p2")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.RegisterModel(ctx, &ProviderModel{ModelID: "dup", ProviderID: "p1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.RegisterModel(ctx, &ProviderModel{ModelID: "dup", ProviderID: "p2"}); err == nil {
		t.Fatal("expected duplicate model registration to fail")
	}
}

func TestCatalogFreezeRejectsRegistration(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog()
	if err := c.RegisterProvider(ctx, testProvider("p1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.Freeze()
	if err := c.RegisterProvider(ctx, testProvider("p2")); err == nil {
		t.Fatal("expected registration after freeze to fail")
	}
}

func TestCatalogModelOrdering(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog()
	if err := c.RegisterProvider(ctx, testProvider("p1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, m := range []*ProviderModel{
		{ModelID: "z-model", ProviderID: "p1", Priority: 1},
		{ModelID: "a-model", ProviderID: "p1", Priority: 1},
		{ModelID: "b-model", ProviderID: "p1", Priority: 0},
	} {
		if err := c.RegisterModel(ctx, m); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	models := c.Models()
	if models[0].ModelID != "b-model" || models[1].ModelID != "a-model" || models[2].ModelID != "z-model" {
		t.Fatalf("unexpected ordering: %v, %v, %v", models[0].ModelID, models[1].ModelID, models[2].ModelID)
	}
}
