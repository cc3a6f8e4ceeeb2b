// Package routing orchestrates one request end to end: classify the query,
// rank candidates, invoke the first usable connector, and walk down the
// fallback list on failure. The engine never panics across its boundary;
// every outcome, including total exhaustion, is expressed as an envelope
// carrying the reason chain.
package routing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"llm-gateway/internal/domain/classifier"
	domainmodel "llm-gateway/internal/domain/model"
	"llm-gateway/internal/domain/selector"
	"llm-gateway/internal/domain/websearch"
	"llm-gateway/internal/infrastructure/connector"
	"llm-gateway/internal/infrastructure/logger"
	"llm-gateway/internal/infrastructure/metrics"
	"llm-gateway/internal/infrastructure/registry"
	"llm-gateway/internal/utils/platformerrors"
)

// Attempt outcomes recorded in the reason chain.
const (
	OutcomeSuccess       = "success"
	OutcomeAuthFailure   = "auth_failure"
	OutcomeQuotaExceeded = "quota_exceeded"
	OutcomeTransient     = "transient_failure"
	OutcomeMalformed     = "malformed_response"
	OutcomeNotConfigured = "not_configured"
	OutcomeDeadline      = "deadline_exceeded"
)

// Failure kinds for the terminal envelope.
const (
	FailureNoProvider = "no_provider"
	FailureExhausted  = "exhausted"
	FailureDeadline   = "deadline"
)

// Attempt is one (provider, model, outcome) entry of the reason chain.
type Attempt struct {
	ProviderID string `json:"provider_id"`
	ModelID    string `json:"model_id"`
	Outcome    string `json:"outcome"`
	Detail     string `json:"detail,omitempty"`
}

func (a Attempt) String() string {
	if a.Detail == "" {
		return fmt.Sprintf("%s/%s: %s", a.ProviderID, a.ModelID, a.Outcome)
	}
	return fmt.Sprintf("%s/%s: %s (%s)", a.ProviderID, a.ModelID, a.Outcome, a.Detail)
}

// Request is one routed chat request.
type Request struct {
	UserID      string
	Messages    []connector.Message
	Temperature float32
	MaxTokens   int

	// PreferredModels biases selection toward explicit user choices.
	PreferredModels []string

	// SkipWebSearchAnalysis leaves the web-search verdict out of the
	// envelope.
	SkipWebSearchAnalysis bool
}

// Prompt returns the newest user message, the text that gets classified.
func (r Request) Prompt() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if strings.EqualFold(r.Messages[i].Role, connector.RoleUser) {
			return r.Messages[i].Content
		}
	}
	return ""
}

// History returns every message before the newest user message as
// classifier context.
func (r Request) History() []classifier.Turn {
	last := -1
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if strings.EqualFold(r.Messages[i].Role, connector.RoleUser) {
			last = i
			break
		}
	}
	if last <= 0 {
		return nil
	}
	turns := make([]classifier.Turn, 0, last)
	for _, m := range r.Messages[:last] {
		turns = append(turns, classifier.Turn{Role: m.Role, Content: m.Content})
	}
	return turns
}

// Envelope is the uniform response. Callers never see raw provider
// payloads; failures land here instead of propagating as errors.
type Envelope struct {
	Success        bool
	Text           string
	ModelUsed      string
	ProviderUsed   string
	Classification *classifier.Result
	WebSearch      *websearch.Decision
	ReasonChain    []Attempt
	FollowUps      []string
	QuotaWarning   string
	FailureKind    string
	FailureMessage string
	Usage          *connector.Usage
	ElapsedMs      int64
}

// HandleSource is the registry surface the engine needs.
type HandleSource interface {
	Acquire(ctx context.Context, userID, providerID string) (*registry.Handle, error)
	Invalidate(userID string, providerIDs ...string)
	MarkDown(userID, providerID string)
	AvailableProvidersFor(ctx context.Context, userID string, quota registry.QuotaView) []string
	PreferredModelsFor(ctx context.Context, userID string) []string
}

// QuotaTracker is the quota surface the engine needs.
type QuotaTracker interface {
	MayUse(providerID string) bool
	RecordSuccess(providerID string)
	RecordFailure(providerID string, kind platformerrors.ErrorType)
	Warning(providerID string) string
}

// UsageRecorder observes successful completions, for accounting.
type UsageRecorder interface {
	RecordCompletion(ctx context.Context, userID, providerID, modelID string, usage *connector.Usage)
}

type Engine struct {
	classifier *classifier.Classifier
	websearch  *websearch.Analyzer
	registry   HandleSource
	quota      QuotaTracker
	catalog    *domainmodel.Catalog
	usage      UsageRecorder
}

// Option customizes an Engine.
type Option func(*Engine)

// WithUsageRecorder attaches completion accounting.
func WithUsageRecorder(u UsageRecorder) Option {
	return func(e *Engine) { e.usage = u }
}

func New(cls *classifier.Classifier, ws *websearch.Analyzer, reg HandleSource, quota QuotaTracker, catalog *domainmodel.Catalog, opts ...Option) *Engine {
	e := &Engine{
		classifier: cls,
		websearch:  ws,
		registry:   reg,
		quota:      quota,
		catalog:    catalog,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Route runs the full pipeline for one request. Classification happens at
// most once; each fallback hop reuses it. The returned envelope is always
// non-nil.
func (e *Engine) Route(ctx context.Context, req Request) *Envelope {
	started := time.Now()
	log := logger.Component("routing")

	if e.catalog.Empty() {
		metrics.RecordRouting(FailureNoProvider, "")
		return &Envelope{
			FailureKind:    FailureNoProvider,
			FailureMessage: "no providers registered",
		}
	}

	prompt := req.Prompt()
	history := req.History()

	classification := e.classifier.Classify(ctx, prompt, history)
	metrics.RecordClassification(string(classification.Type))

	envelope := &Envelope{Classification: classification}
	if !req.SkipWebSearchAnalysis && e.websearch != nil {
		decision := e.websearch.Needs(ctx, prompt)
		envelope.WebSearch = &decision
		metrics.RecordWebSearchDecision(decision.NeedsWebSearch, decision.QueryType)
	}

	// Quota filtering happens in the selector, not here, so an exceeded
	// provider stays distinguishable from one the user never configured.
	available := e.registry.AvailableProvidersFor(ctx, req.UserID, nil)

	// Per-request preferences first, then the preferred models stored on the
	// user's credentials.
	preferred := append([]string{}, req.PreferredModels...)
	preferred = append(preferred, e.registry.PreferredModelsFor(ctx, req.UserID)...)
	sel := selector.Select(classification, selector.Preferences{PreferredModels: preferred}, available, e.quota, e.catalog)
	if sel.Empty() {
		if blocked := sel.QuotaExclusions(); len(blocked) > 0 {
			envelope.FailureKind = FailureExhausted
			envelope.FailureMessage = "all providers quota exceeded"
			seen := make(map[string]bool, len(blocked))
			for _, ex := range blocked {
				if seen[ex.ProviderID] {
					continue
				}
				seen[ex.ProviderID] = true
				envelope.ReasonChain = append(envelope.ReasonChain, Attempt{
					ProviderID: ex.ProviderID,
					ModelID:    ex.ModelID,
					Outcome:    OutcomeQuotaExceeded,
					Detail:     ex.Detail,
				})
				metrics.RecordQuotaExceeded(ex.ProviderID)
			}
			envelope.ElapsedMs = time.Since(started).Milliseconds()
			metrics.RecordRouting(FailureExhausted, string(classification.Type))
			return envelope
		}
		envelope.FailureKind = FailureNoProvider
		envelope.FailureMessage = "no usable provider for user"
		for _, ex := range sel.Excluded {
			envelope.ReasonChain = append(envelope.ReasonChain, Attempt{
				ProviderID: ex.ProviderID,
				ModelID:    ex.ModelID,
				Outcome:    OutcomeNotConfigured,
				Detail:     ex.Detail,
			})
		}
		metrics.RecordRouting(FailureNoProvider, string(classification.Type))
		return envelope
	}

	for _, candidate := range sel.Candidates() {
		if err := ctx.Err(); err != nil {
			envelope.FailureKind = FailureDeadline
			envelope.FailureMessage = err.Error()
			metrics.RecordRouting(FailureDeadline, string(classification.Type))
			return envelope
		}

		attempt := Attempt{ProviderID: candidate.ProviderID, ModelID: candidate.ModelID}

		handle, err := e.registry.Acquire(ctx, req.UserID, candidate.ProviderID)
		if err != nil {
			attempt.Outcome = outcomeFor(platformerrors.TypeOf(err))
			attempt.Detail = err.Error()
			envelope.ReasonChain = append(envelope.ReasonChain, attempt)
			metrics.RecordFallback(candidate.ProviderID, string(platformerrors.TypeOf(err)))
			continue
		}

		invokeStarted := time.Now()
		result, err := handle.Connector.GenerateChat(ctx, req.Messages, connector.ChatOptions{
			Model:       candidate.ModelID,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		})
		if err == nil {
			e.quota.RecordSuccess(candidate.ProviderID)
			attempt.Outcome = OutcomeSuccess
			envelope.ReasonChain = append(envelope.ReasonChain, attempt)
			envelope.Success = true
			envelope.Text = result.Text
			envelope.ModelUsed = candidate.ModelID
			if result.ModelReported != "" {
				envelope.ModelUsed = result.ModelReported
			}
			envelope.ProviderUsed = candidate.ProviderID
			envelope.Usage = result.Usage
			envelope.QuotaWarning = e.quota.Warning(candidate.ProviderID)
			envelope.FollowUps = followUpsFor(classification.Type)
			envelope.ElapsedMs = time.Since(started).Milliseconds()

			metrics.RecordLLMDuration(candidate.ModelID, candidate.ProviderID, time.Since(invokeStarted).Seconds())
			metrics.RecordRouting(OutcomeSuccess, string(classification.Type))
			if result.Usage != nil {
				metrics.RecordTokens(candidate.ModelID, candidate.ProviderID, result.Usage.PromptTokens, result.Usage.CompletionTokens)
			}
			if e.usage != nil {
				e.usage.RecordCompletion(ctx, req.UserID, candidate.ProviderID, envelope.ModelUsed, result.Usage)
			}
			return envelope
		}

		kind := platformerrors.TypeOf(err)
		attempt.Outcome = outcomeFor(kind)
		attempt.Detail = err.Error()
		envelope.ReasonChain = append(envelope.ReasonChain, attempt)
		metrics.RecordFallback(candidate.ProviderID, string(kind))

		switch kind {
		case platformerrors.ErrorTypeAuth:
			// Stale or revoked credentials; drop the handle so the next
			// acquire re-reads the store.
			e.registry.Invalidate(req.UserID, candidate.ProviderID)
			e.quota.RecordFailure(candidate.ProviderID, kind)
		case platformerrors.ErrorTypeQuota:
			e.quota.RecordFailure(candidate.ProviderID, kind)
			metrics.RecordQuotaExceeded(candidate.ProviderID)
		case platformerrors.ErrorTypeDeadline:
			if ctx.Err() != nil {
				envelope.FailureKind = FailureDeadline
				envelope.FailureMessage = err.Error()
				metrics.RecordRouting(FailureDeadline, string(classification.Type))
				return envelope
			}
			e.quota.RecordFailure(candidate.ProviderID, platformerrors.ErrorTypeTransient)
		case platformerrors.ErrorTypeTransient:
			e.quota.RecordFailure(candidate.ProviderID, kind)
		default:
			// Malformed and friends: the provider is reachable, just
			// unhelpful for this request. Next candidate.
		}

		log.Warn().
			Str("user_id", req.UserID).
			Str("provider_id", candidate.ProviderID).
			Str("model_id", candidate.ModelID).
			Str("error_type", string(kind)).
			Msg("candidate failed, falling back")
	}

	envelope.FailureKind = FailureExhausted
	envelope.FailureMessage = "all candidates failed"
	envelope.ElapsedMs = time.Since(started).Milliseconds()
	metrics.RecordRouting(FailureExhausted, string(classification.Type))
	return envelope
}

func outcomeFor(kind platformerrors.ErrorType) string {
	switch kind {
	case platformerrors.ErrorTypeAuth:
		return OutcomeAuthFailure
	case platformerrors.ErrorTypeQuota:
		return OutcomeQuotaExceeded
	case platformerrors.ErrorTypeTransient:
		return OutcomeTransient
	case platformerrors.ErrorTypeMalformed:
		return OutcomeMalformed
	case platformerrors.ErrorTypeNotConfigured:
		return OutcomeNotConfigured
	case platformerrors.ErrorTypeDeadline:
		return OutcomeDeadline
	default:
		return OutcomeTransient
	}
}

var followUpTable = map[domainmodel.ConversationType][]string{
	domainmodel.TypeConversational: {"Anything else on your mind?"},
	domainmodel.TypeTechnical:      {"Want me to walk through the code?", "Should I suggest tests for this?"},
	domainmodel.TypeEducational:    {"Would an example help?", "Want a deeper explanation of any part?"},
	domainmodel.TypeCreative:       {"Want a different tone or style?"},
	domainmodel.TypeReasoning:      {"Should I lay out the counterarguments?"},
	domainmodel.TypeResearch:       {"Want sources for any of these points?"},
	domainmodel.TypeProblemSolving: {"Did that resolve the issue?", "Want me to break it into steps?"},
}

func followUpsFor(t domainmodel.ConversationType) []string {
	return followUpTable[t]
}
