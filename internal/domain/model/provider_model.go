package model

import "github.com/shopspring/decimal"

// ProviderModel is an immutable descriptor of one model offered by one
// provider. Smaller priority means more preferred. CostHint is an
// order-of-magnitude USD cost per 1M tokens used for tie-breaking hints and
// usage accounting, not billing.
type ProviderModel struct {
	ModelID          string             `json:"model_id" yaml:"id" validate:"required"`
	ProviderID       string             `json:"provider_id" yaml:"provider_id" validate:"required"`
	Specialties      []ConversationType `json:"specialties" yaml:"specialties" validate:"dive,oneof=conversational reasoning technical educational creative research problem_solving"`
	Priority         int                `json:"priority" yaml:"priority" validate:"min=0"`
	CostHint         decimal.Decimal    `json:"cost_hint" yaml:"cost_hint"`
	MaxContextTokens int                `json:"max_context_tokens" yaml:"max_context_tokens"`
}

// HasSpecialty reports whether the model is tagged for the given
// conversation type.
func (m *ProviderModel) HasSpecialty(t ConversationType) bool {
	for _, s := range m.Specialties {
		if s == t {
			return true
		}
	}
	return false
}
