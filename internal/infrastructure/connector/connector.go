// Package connector defines the uniform provider contract and its
// OpenAI-compatible implementation. A connector encapsulates authentication,
// transport, per-call timeouts and bounded retry; everything above it sees
// only messages in, plain text out.
package connector

import (
	"context"
	"strings"
	"time"
)

// Roles of the normalized message shape.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is the normalized chat message every connector sends.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NormalizeMessages coerces arbitrary role strings into the
// system/user/assistant set and drops empty messages.
func NormalizeMessages(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := strings.ToLower(strings.TrimSpace(m.Role))
		switch role {
		case RoleSystem, RoleAssistant:
		case "bot", "ai", "model":
			role = RoleAssistant
		default:
			role = RoleUser
		}
		out = append(out, Message{Role: role, Content: m.Content})
	}
	return out
}

// ChatOptions tunes a single generation call. Zero values mean provider
// defaults.
type ChatOptions struct {
	Model       string
	Temperature float32
	MaxTokens   int
	StopAfter   []string
}

// Usage reports token consumption as the provider counted it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResult is the uniform generation result.
type ChatResult struct {
	Text          string
	ModelReported string
	Usage         *Usage
}

// HealthStatus is the result of a lightweight probe. Probes have no side
// effects on quota bookkeeping.
type HealthStatus struct {
	OK        bool
	LatencyMs int64
	Error     string
}

// Connector is the uniform contract every provider implementation honors.
type Connector interface {
	GenerateChat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResult, error)
	GenerateText(ctx context.Context, prompt string, opts ChatOptions) (*ChatResult, error)
	ListModels(ctx context.Context) ([]string, error)
	HealthCheck(ctx context.Context) HealthStatus
}

// RetryPolicy bounds transient-failure retries inside a connector.
type RetryPolicy struct {
	MaxAttempts uint          // total attempts, including the first
	BaseDelay   time.Duration // first backoff step
	Jitter      time.Duration // max random delay added per step
}

// DefaultRetryPolicy retries twice after the initial attempt with
// exponential backoff starting at 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		Jitter:      250 * time.Millisecond,
	}
}
