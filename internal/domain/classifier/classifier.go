// Package classifier assigns a conversation type and confidence to a user
// query. A rule table answers the common cases without a network call; an
// analyzer LLM covers the rest. Results are cached briefly keyed by the
// query fingerprint, intent is query-specific so the TTL stays short.
package classifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	domainmodel "llm-gateway/internal/domain/model"
	"llm-gateway/internal/infrastructure/logger"
	"llm-gateway/internal/utils/llmjson"
)

const (
	// DefaultCacheTTL bounds how long one classification is reused.
	DefaultCacheTTL = 10 * time.Minute

	// fastPathThreshold is the rule score above which the analyzer LLM is
	// skipped entirely.
	fastPathThreshold = 0.7

	// contextOverrideDamping caps a history-driven override so it cannot
	// outrank a very confident direct match.
	contextOverrideDamping = 0.8

	fingerprintMaxLen = 100
	historyTurnMaxLen = 100
)

// Turn is one prior message considered as classification context.
type Turn struct {
	Role    string
	Content string
}

// Result is an immutable classification of one query.
type Result struct {
	Type            domainmodel.ConversationType
	Confidence      float64
	SecondaryTypes  []domainmodel.ConversationType
	Complexity      domainmodel.Complexity
	MatchedKeywords []string
	Reasoning       string
}

// TextAnalyzer is the slow-path dependency: something that can answer a
// single analysis prompt with text. Optional; without it the classifier is
// rule-only.
type TextAnalyzer interface {
	AnalyzeText(ctx context.Context, prompt string) (string, error)
}

type Classifier struct {
	analyzer TextAnalyzer
	cache    *gocache.Cache
}

// Option customizes a Classifier.
type Option func(*Classifier)

// WithCacheTTL overrides the result cache TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Classifier) { c.cache = gocache.New(ttl, ttl) }
}

// New builds a Classifier. analyzer may be nil.
func New(analyzer TextAnalyzer, opts ...Option) *Classifier {
	c := &Classifier{
		analyzer: analyzer,
		cache:    gocache.New(DefaultCacheTTL, 5*time.Minute),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify resolves the conversation type for prompt given recent history.
// Cached results are returned as-is within the TTL.
func (c *Classifier) Classify(ctx context.Context, prompt string, history []Turn) *Result {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return &Result{
			Type:       domainmodel.TypeConversational,
			Confidence: 0.5,
			Complexity: domainmodel.ComplexityLow,
		}
	}

	key := Fingerprint(trimmed, history)
	if cached, ok := c.cache.Get(key); ok {
		return cached.(*Result)
	}

	result := c.classify(ctx, trimmed, history)
	c.cache.SetDefault(key, result)
	return result
}

func (c *Classifier) classify(ctx context.Context, prompt string, history []Turn) *Result {
	scores := scoreRules(prompt)
	best := scores[0]

	if override, ok := contextOverride(best, history); ok {
		override.Complexity = complexityOf(prompt, override.Type)
		return override
	}

	if best.score > fastPathThreshold {
		return &Result{
			Type:            best.conversationType,
			Confidence:      best.score,
			SecondaryTypes:  secondaryTypes(scores),
			Complexity:      complexityOf(prompt, best.conversationType),
			MatchedKeywords: best.matchedKeywords,
		}
	}

	if c.analyzer != nil {
		if result := c.analyze(ctx, prompt, history); result != nil {
			return result
		}
	}

	// Inconclusive rules and no (or failed) analyzer: best rule guess, with
	// a floor so downstream scoring still has a signal to work with.
	confidence := best.score
	if confidence < 0.3 {
		confidence = 0.3
		best.conversationType = domainmodel.TypeConversational
	}
	return &Result{
		Type:            best.conversationType,
		Confidence:      confidence,
		SecondaryTypes:  secondaryTypes(scores),
		Complexity:      complexityOf(prompt, best.conversationType),
		MatchedKeywords: best.matchedKeywords,
	}
}

// contextOverride applies recent history when it strongly indicates a type.
// The override confidence is damped and capped at the type's rule ceiling.
func contextOverride(direct ruleScore, history []Turn) (*Result, bool) {
	contextText := historyText(history)
	if contextText == "" {
		return nil, false
	}
	ctxScores := scoreRules(contextText)
	ctxBest := ctxScores[0]
	if ctxBest.score < fastPathThreshold || ctxBest.conversationType == direct.conversationType {
		return nil, false
	}

	confidence := contextOverrideDamping * ctxBest.score
	if ceiling := ceilingFor(ctxBest.conversationType); confidence > ceiling {
		confidence = ceiling
	}
	if confidence <= direct.score {
		return nil, false
	}
	return &Result{
		Type:            ctxBest.conversationType,
		Confidence:      confidence,
		MatchedKeywords: ctxBest.matchedKeywords,
		Reasoning:       "recent conversation context",
	}, true
}

type llmClassification struct {
	Type           string   `json:"type"`
	Confidence     float64  `json:"confidence"`
	Reasoning      string   `json:"reasoning"`
	SecondaryTypes []string `json:"secondaryTypes"`
	Complexity     string   `json:"complexity"`
}

func (c *Classifier) analyze(ctx context.Context, prompt string, history []Turn) *Result {
	log := logger.Component("classifier")

	raw, err := c.analyzer.AnalyzeText(ctx, buildAnalysisPrompt(prompt, history))
	if err != nil {
		log.Warn().Err(err).Msg("analyzer call failed, falling back to rules")
		return nil
	}

	var parsed llmClassification
	if err := llmjson.Unmarshal(raw, &parsed); err != nil {
		log.Warn().Err(err).Msg("analyzer output unparseable, falling back to rules")
		return nil
	}

	t := domainmodel.ConversationType(strings.ToLower(strings.TrimSpace(parsed.Type)))
	if !t.IsValid() {
		log.Warn().Str("type", parsed.Type).Msg("analyzer returned unknown type, falling back to rules")
		return nil
	}

	result := &Result{
		Type:       t,
		Confidence: clamp01(parsed.Confidence),
		Reasoning:  parsed.Reasoning,
		Complexity: domainmodel.Complexity(strings.ToLower(parsed.Complexity)),
	}
	if !result.Complexity.IsValid() {
		result.Complexity = complexityOf(prompt, t)
	}
	for _, s := range parsed.SecondaryTypes {
		st := domainmodel.ConversationType(strings.ToLower(strings.TrimSpace(s)))
		if st.IsValid() && st != t {
			result.SecondaryTypes = append(result.SecondaryTypes, st)
		}
	}
	return result
}

func buildAnalysisPrompt(prompt string, history []Turn) string {
	var b strings.Builder
	b.WriteString("Classify the user query below into exactly one conversation type from this set: ")
	for i, t := range domainmodel.AllConversationTypes {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(t))
	}
	b.WriteString(".\nAnswer with a single JSON object, no prose, shaped as ")
	b.WriteString(`{"type":"...","confidence":0.0,"reasoning":"...","secondaryTypes":[],"complexity":"low|medium|high"}.`)
	if text := historyText(history); text != "" {
		fmt.Fprintf(&b, "\n\nRecent conversation:\n%s", text)
	}
	fmt.Fprintf(&b, "\n\nQuery:\n%s", prompt)
	return b.String()
}

// Fingerprint derives the cache key: the normalized prompt joined with a
// digest of the last two history turns, truncated to a fixed length.
func Fingerprint(prompt string, history []Turn) string {
	norm := strings.Join(strings.Fields(strings.ToLower(prompt)), " ")

	h := sha256.New()
	for _, t := range lastTurns(history, 2) {
		content := t.Content
		if len(content) > historyTurnMaxLen {
			content = content[:historyTurnMaxLen]
		}
		h.Write([]byte(t.Role))
		h.Write([]byte{0})
		h.Write([]byte(content))
		h.Write([]byte{0})
	}
	key := norm + "#" + hex.EncodeToString(h.Sum(nil))[:16]
	if len(key) > fingerprintMaxLen {
		key = key[:fingerprintMaxLen]
	}
	return key
}

func historyText(history []Turn) string {
	turns := lastTurns(history, 2)
	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		if s := strings.TrimSpace(t.Content); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

func lastTurns(history []Turn, n int) []Turn {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

func complexityOf(prompt string, t domainmodel.ConversationType) domainmodel.Complexity {
	words := len(strings.Fields(prompt))
	demanding := t == domainmodel.TypeReasoning || t == domainmodel.TypeProblemSolving || t == domainmodel.TypeResearch
	switch {
	case words >= 60 || (demanding && words >= 30):
		return domainmodel.ComplexityHigh
	case words >= 15 || demanding:
		return domainmodel.ComplexityMedium
	default:
		return domainmodel.ComplexityLow
	}
}

// secondaryTypes picks up to two runner-up types with a meaningful score.
func secondaryTypes(scores []ruleScore) []domainmodel.ConversationType {
	var out []domainmodel.ConversationType
	for _, s := range scores[1:] {
		if s.score < 0.3 {
			break
		}
		out = append(out, s.conversationType)
		if len(out) == 2 {
			break
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
