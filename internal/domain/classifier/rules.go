package classifier

import (
	"regexp"
	"sort"
	"strings"

	domainmodel "llm-gateway/internal/domain/model"
)

// rule is one row of the fast-path table. Hit ratios saturate: matching
// keywordSat keywords (or patternSat patterns) counts as a full hit, so a
// short greeting scores as high as a long one. The ceiling bounds how
// confident the rule pass may ever be for the type.
type rule struct {
	conversationType domainmodel.ConversationType
	keywords         []string
	patterns         []*regexp.Regexp
	ceiling          float64
	keywordSat       int
	patternSat       int
}

var ruleTable = []rule{
	{
		conversationType: domainmodel.TypeConversational,
		keywords: []string{
			"hello", "hi", "hey", "thanks", "thank you", "bye",
			"good morning", "good evening", "how are you", "nice to meet",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^\s*(hi|hello|hey|yo|sup)\b`),
			regexp.MustCompile(`(?i)\b(thanks|thank you|appreciate it)\b`),
		},
		ceiling:    0.80,
		keywordSat: 1,
		patternSat: 1,
	},
	{
		conversationType: domainmodel.TypeReasoning,
		keywords: []string{
			"why", "analyze", "compare", "evaluate", "reason", "argue",
			"implications", "trade-off", "tradeoff", "pros and cons",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bwhy\b.+\?`),
			regexp.MustCompile(`(?i)\b(compare|contrast)\b.+\b(and|vs\.?|versus)\b`),
		},
		ceiling:    0.90,
		keywordSat: 2,
		patternSat: 1,
	},
	{
		conversationType: domainmodel.TypeTechnical,
		keywords: []string{
			"code", "function", "api", "error", "debug", "compile",
			"server", "database", "deploy", "bug", "stack trace", "library",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile("```"),
			regexp.MustCompile(`(?i)\b(exception|traceback|panic|segfault|NullPointer)\b`),
			regexp.MustCompile(`(?i)\b(implement|refactor|optimi[sz]e)\b.+\b(code|function|query|method)\b`),
		},
		ceiling:    0.95,
		keywordSat: 2,
		patternSat: 1,
	},
	{
		conversationType: domainmodel.TypeEducational,
		keywords: []string{
			"explain", "what is", "what are", "how does", "teach", "learn",
			"tutorial", "definition", "meaning of", "example of",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^\s*(what|how|when|where|who)\b.+\?`),
			regexp.MustCompile(`(?i)\bexplain\b.+\b(to me|like|simply|in simple)\b`),
		},
		ceiling:    0.85,
		keywordSat: 2,
		patternSat: 1,
	},
	{
		conversationType: domainmodel.TypeCreative,
		keywords: []string{
			"write a story", "poem", "imagine", "creative", "brainstorm",
			"slogan", "lyrics", "fictional", "character", "plot",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bwrite (me )?a\b.+\b(story|poem|song|script|tagline)\b`),
			regexp.MustCompile(`(?i)\b(imagine|invent|make up)\b`),
		},
		ceiling:    0.90,
		keywordSat: 1,
		patternSat: 1,
	},
	{
		conversationType: domainmodel.TypeResearch,
		keywords: []string{
			"research", "sources", "study", "studies", "paper", "literature",
			"evidence", "citation", "findings", "survey",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(summari[sz]e|review)\b.+\b(paper|literature|research|studies)\b`),
			regexp.MustCompile(`(?i)\b(peer.?reviewed|meta.?analysis)\b`),
		},
		ceiling:    0.85,
		keywordSat: 2,
		patternSat: 1,
	},
	{
		conversationType: domainmodel.TypeProblemSolving,
		keywords: []string{
			"solve", "fix", "issue", "problem", "troubleshoot",
			"step by step", "how do i", "not working", "help me",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bhow (do|can|should) i\b`),
			regexp.MustCompile(`(?i)\b(fix|solve|resolve)\b.+\b(issue|problem|error)\b`),
		},
		ceiling:    0.85,
		keywordSat: 2,
		patternSat: 1,
	},
}

// ruleScore is one type's fast-path outcome for a prompt.
type ruleScore struct {
	conversationType domainmodel.ConversationType
	score            float64
	matchedKeywords  []string
}

const (
	keywordWeight = 0.6
	patternWeight = 0.4
)

// scoreRules runs the full rule table against a lowercased prompt and
// returns per-type scores, best first.
func scoreRules(prompt string) []ruleScore {
	lower := strings.ToLower(prompt)
	out := make([]ruleScore, 0, len(ruleTable))
	for _, r := range ruleTable {
		var matched []string
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				matched = append(matched, kw)
			}
		}
		patternHits := 0
		for _, p := range r.patterns {
			if p.MatchString(prompt) {
				patternHits++
			}
		}

		keywordRatio := saturate(len(matched), r.keywordSat)
		patternRatio := saturate(patternHits, r.patternSat)
		score := keywordWeight*keywordRatio + patternWeight*patternRatio
		if score > r.ceiling {
			score = r.ceiling
		}
		out = append(out, ruleScore{
			conversationType: r.conversationType,
			score:            score,
			matchedKeywords:  matched,
		})
	}
	sortScores(out)
	return out
}

func saturate(hits, sat int) float64 {
	if sat <= 0 {
		sat = 1
	}
	if hits >= sat {
		return 1
	}
	return float64(hits) / float64(sat)
}

func sortScores(scores []ruleScore) {
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
}

func ceilingFor(t domainmodel.ConversationType) float64 {
	for _, r := range ruleTable {
		if r.conversationType == t {
			return r.ceiling
		}
	}
	return 1
}
