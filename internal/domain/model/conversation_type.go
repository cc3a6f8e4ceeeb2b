package model

// ConversationType is the fixed tag set describing the nature of a user
// query for routing purposes. Model specialties and classifier output share
// this vocabulary.
type ConversationType string

const (
	TypeConversational ConversationType = "conversational"
	TypeReasoning      ConversationType = "reasoning"
	TypeTechnical      ConversationType = "technical"
	TypeEducational    ConversationType = "educational"
	TypeCreative       ConversationType = "creative"
	TypeResearch       ConversationType = "research"
	TypeProblemSolving ConversationType = "problem_solving"
)

// AllConversationTypes lists every valid tag, in a stable order.
var AllConversationTypes = []ConversationType{
	TypeConversational,
	TypeReasoning,
	TypeTechnical,
	TypeEducational,
	TypeCreative,
	TypeResearch,
	TypeProblemSolving,
}

// IsValid reports whether t is one of the fixed tags.
func (t ConversationType) IsValid() bool {
	for _, known := range AllConversationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Complexity grades how demanding a query is.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// IsValid reports whether c is a known complexity grade.
func (c Complexity) IsValid() bool {
	return c == ComplexityLow || c == ComplexityMedium || c == ComplexityHigh
}
