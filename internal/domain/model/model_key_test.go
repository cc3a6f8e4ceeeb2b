package model

import "testing"

func TestNormalizeModelKeyOwnerModel(t *testing.T) {
	got := NormalizeModelKey(ProviderOpenRouter, "anthropic/claude-3.5-sonnet")
	if got != "anthropic/claude-3.5-sonnet" {
		t.Fatalf("unexpected key: %s", got)
	}
}

func TestNormalizeModelKeyOllamaFamilyTag(t *testing.T) {
	got := NormalizeModelKey(ProviderOllama, "llama3:8b-instruct")
	if got != "meta/llama3-8b-instruct" {
		t.Fatalf("unexpected key: %s", got)
	}
}

func TestNormalizeModelKeyGoogleModelsPrefix(t *testing.T) {
	got := NormalizeModelKey(ProviderGoogle, "models/gemini-1.5-flash")
	if got != "google/gemini-1.5-flash" {
		t.Fatalf("unexpected key: %s", got)
	}
}

func TestNormalizeModelKeyBareProviderDefault(t *testing.T) {
	got := NormalizeModelKey(ProviderOpenAI, "GPT-4o Mini")
	if got != "openai/gpt-4o-mini" {
		t.Fatalf("unexpected key: %s", got)
	}
}

func TestNormalizeModelKeyFamilyInference(t *testing.T) {
	got := NormalizeModelKey(ProviderGroq, "mixtral-8x7b-32768")
	if got != "mistral/mixtral-8x7b-32768" {
		t.Fatalf("unexpected key: %s", got)
	}
}

func TestNormalizeModelKeyEmpty(t *testing.T) {
	if got := NormalizeModelKey(ProviderCustom, "  "); got != "" {
		t.Fatalf("expected empty key, got %q", got)
	}
}
