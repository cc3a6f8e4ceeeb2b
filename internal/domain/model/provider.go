package model

import "time"

type ProviderKind string

const (
	ProviderOpenAI      ProviderKind = "openai"
	ProviderOpenRouter  ProviderKind = "openrouter"
	ProviderAnthropic   ProviderKind = "anthropic"
	ProviderGoogle      ProviderKind = "google"
	ProviderMistral     ProviderKind = "mistral"
	ProviderGroq        ProviderKind = "groq"
	ProviderCohere      ProviderKind = "cohere"
	ProviderOllama      ProviderKind = "ollama"
	ProviderAzureOpenAI ProviderKind = "azure_openai"
	ProviderLocal       ProviderKind = "local" // self-hosted OpenAI-compatible inference server
	ProviderCustom      ProviderKind = "custom"
)

// Capability is an operation family a provider supports.
type Capability string

const (
	CapabilityChat       Capability = "chat"
	CapabilityText       Capability = "text"
	CapabilityEmbeddings Capability = "embeddings"
)

// Provider is an immutable descriptor of one external LLM family. Descriptors
// are registered at process init and never mutated afterwards; credentials
// live in the credential store, not here.
type Provider struct {
	PublicID        string       `json:"public_id" yaml:"id" validate:"required"`
	DisplayName     string       `json:"display_name" yaml:"display_name" validate:"required"`
	Kind            ProviderKind `json:"kind" yaml:"kind" validate:"required"`
	BaseURL         string       `json:"base_url" yaml:"base_url" validate:"required,url"`
	SupportedModels []string     `json:"supported_models" yaml:"supported_models"`
	Capabilities    []Capability `json:"capabilities" yaml:"capabilities" validate:"min=1,dive,oneof=chat text embeddings"`
	DefaultModel    string       `json:"default_model" yaml:"default_model"`
	DailyLimit      int          `json:"daily_limit" yaml:"daily_limit"` // 0 = unlimited
	RegisteredAt    time.Time    `json:"-" yaml:"-"`
}

// HasCapability reports whether the provider supports the given operation
// family.
func (p *Provider) HasCapability(c Capability) bool {
	for _, have := range p.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// SupportsModel reports whether modelID is in the provider's supported set.
// An empty supported set means the provider does not enumerate models and
// accepts any id.
func (p *Provider) SupportsModel(modelID string) bool {
	if len(p.SupportedModels) == 0 {
		return true
	}
	for _, id := range p.SupportedModels {
		if id == modelID {
			return true
		}
	}
	return false
}
