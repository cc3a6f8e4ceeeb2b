// Package websearch decides whether a query needs live web context before
// the model call. The decision is orthogonal to classification; both run
// against the same prompt. Pattern rules answer clearly time-sensitive or
// clearly encyclopedic queries; an analyzer LLM covers the middle ground,
// defaulting to no search when its answer cannot be parsed.
package websearch

import (
	"context"
	"regexp"
	"strings"

	"llm-gateway/internal/infrastructure/logger"
	"llm-gateway/internal/utils/llmjson"
)

// Query type labels reported alongside the decision.
const (
	QueryTypeCurrentEvents    = "current_events"
	QueryTypeGeneralKnowledge = "general_knowledge"
	QueryTypeUnknown          = "unknown"
)

// Decision is the binary web-search verdict for one query.
type Decision struct {
	NeedsWebSearch bool
	Confidence     float64
	QueryType      string
	TimeRelevance  string
	Reasoning      string
	SearchKeywords []string
}

// ConfidenceLabel buckets the confidence for display and logging.
func (d Decision) ConfidenceLabel() string {
	switch {
	case d.Confidence >= 0.75:
		return "high"
	case d.Confidence >= 0.5:
		return "medium"
	default:
		return "low"
	}
}

// TextAnalyzer is the slow-path dependency. Optional; without it the
// analyzer is rule-only.
type TextAnalyzer interface {
	AnalyzeText(ctx context.Context, prompt string) (string, error)
}

var timeSensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(today|tonight|yesterday|tomorrow|right now|currently)\b`),
	regexp.MustCompile(`(?i)\b(latest|newest|recent|breaking|live)\b`),
	regexp.MustCompile(`(?i)\bcurrent\b`),
	regexp.MustCompile(`(?i)\b(price|prices|stock|exchange rate|market)\b`),
	regexp.MustCompile(`(?i)\b(news|headline|headlines)\b`),
	regexp.MustCompile(`(?i)\b(weather|forecast)\b`),
	regexp.MustCompile(`(?i)\b(schedule|timetable|fixtures|opening hours)\b`),
	regexp.MustCompile(`\b20\d\d\b`),
}

var generalKnowledgePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bhow to\b`),
	regexp.MustCompile(`(?i)\bwhat (is|are)\b`),
	regexp.MustCompile(`(?i)\b(explain|explained)\b`),
	regexp.MustCompile(`(?i)\b(tutorial|walkthrough|guide)\b`),
	regexp.MustCompile(`(?i)\b(definition|meaning) of\b`),
	regexp.MustCompile(`(?i)\bhistory of\b`),
}

type Analyzer struct {
	analyzer TextAnalyzer
}

// New builds an Analyzer. analyzer may be nil.
func New(analyzer TextAnalyzer) *Analyzer {
	return &Analyzer{analyzer: analyzer}
}

// Needs resolves the web-search decision for prompt.
func (a *Analyzer) Needs(ctx context.Context, prompt string) Decision {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return Decision{NeedsWebSearch: false, Confidence: 0.9, QueryType: QueryTypeGeneralKnowledge}
	}

	timeHits := countMatches(timeSensitivePatterns, trimmed)
	generalHits := countMatches(generalKnowledgePatterns, trimmed)

	switch {
	case timeHits > 0 && timeHits >= generalHits:
		return Decision{
			NeedsWebSearch: true,
			Confidence:     boundedConfidence(timeHits),
			QueryType:      QueryTypeCurrentEvents,
			TimeRelevance:  "high",
			Reasoning:      "time-sensitive phrasing",
			SearchKeywords: keywordsFrom(trimmed),
		}
	case generalHits > 0 && timeHits == 0:
		return Decision{
			NeedsWebSearch: false,
			Confidence:     boundedConfidence(generalHits),
			QueryType:      QueryTypeGeneralKnowledge,
			TimeRelevance:  "low",
			Reasoning:      "general-knowledge phrasing",
		}
	}

	if a.analyzer != nil {
		if d, ok := a.analyze(ctx, trimmed); ok {
			return d
		}
	}

	// Unknown and unanswerable: skipping a needed search degrades one
	// answer, while a spurious search costs latency on every query.
	return Decision{NeedsWebSearch: false, Confidence: 0.4, QueryType: QueryTypeUnknown}
}

type llmDecision struct {
	NeedsWebSearch bool     `json:"needsWebSearch"`
	Confidence     float64  `json:"confidence"`
	Reasoning      string   `json:"reasoning"`
	QueryType      string   `json:"queryType"`
	TimeRelevance  string   `json:"timeRelevance"`
	SearchKeywords []string `json:"searchKeywords"`
}

func (a *Analyzer) analyze(ctx context.Context, prompt string) (Decision, bool) {
	log := logger.Component("websearch")

	raw, err := a.analyzer.AnalyzeText(ctx, buildPrompt(prompt))
	if err != nil {
		log.Warn().Err(err).Msg("analyzer call failed, defaulting to no search")
		return Decision{}, false
	}

	var parsed llmDecision
	if err := llmjson.Unmarshal(raw, &parsed); err != nil {
		log.Warn().Err(err).Msg("analyzer output unparseable, defaulting to no search")
		return Decision{}, false
	}

	d := Decision{
		NeedsWebSearch: parsed.NeedsWebSearch,
		Confidence:     parsed.Confidence,
		QueryType:      parsed.QueryType,
		TimeRelevance:  parsed.TimeRelevance,
		Reasoning:      parsed.Reasoning,
		SearchKeywords: parsed.SearchKeywords,
	}
	if d.Confidence < 0 {
		d.Confidence = 0
	}
	if d.Confidence > 1 {
		d.Confidence = 1
	}
	if d.QueryType == "" {
		d.QueryType = QueryTypeUnknown
	}
	return d, true
}

func buildPrompt(prompt string) string {
	var b strings.Builder
	b.WriteString("Decide whether answering the query below requires live web search results.\n")
	b.WriteString("Answer with a single JSON object, no prose, shaped as ")
	b.WriteString(`{"needsWebSearch":false,"confidence":0.0,"reasoning":"...","queryType":"current_events|general_knowledge","timeRelevance":"high|medium|low","searchKeywords":[]}.`)
	b.WriteString("\n\nQuery:\n")
	b.WriteString(prompt)
	return b.String()
}

func countMatches(patterns []*regexp.Regexp, s string) int {
	hits := 0
	for _, p := range patterns {
		if p.MatchString(s) {
			hits++
		}
	}
	return hits
}

// boundedConfidence maps rule hits to confidence. A single unambiguous
// pattern hit is already a high-confidence verdict; more hits push toward
// the 0.9 cap.
func boundedConfidence(hits int) float64 {
	c := 0.7 + 0.1*float64(hits)
	if c > 0.9 {
		c = 0.9
	}
	return c
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "in": true, "on": true,
	"for": true, "to": true, "is": true, "are": true, "what": true,
	"whats": true, "how": true, "me": true, "my": true, "please": true,
}

// keywordsFrom reduces the prompt to the terms worth feeding a search API.
func keywordsFrom(prompt string) []string {
	fields := strings.Fields(strings.ToLower(prompt))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?\"'()")
		if f == "" || stopwords[f] {
			continue
		}
		out = append(out, f)
		if len(out) == 6 {
			break
		}
	}
	return out
}
