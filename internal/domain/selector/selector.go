// Package selector ranks (provider, model) candidates for a classified
// query. Selection is a pure function over the catalog snapshot, so the
// routing engine can call it without holding any lock or touching the
// network.
package selector

import (
	"fmt"
	"sort"
	"strings"

	"llm-gateway/internal/domain/classifier"
	domainmodel "llm-gateway/internal/domain/model"
)

// Scoring terms. Specialty match dominates, the priority bonus breaks up
// otherwise equal models, and an explicit user preference beats everything
// except a specialty match.
const (
	specialtyBonus  = 10.0
	secondaryBonus  = 5.0
	confidenceScale = 3.0
	preferenceBonus = 8.0
)

// Preferences carries the user's explicit model choices.
type Preferences struct {
	PreferredModels []string
}

// prefers matches an explicit preference against a candidate model, either
// verbatim or through normalized "vendor/model" keys so a preference written
// against one provider's naming still matches the same model elsewhere.
func (p Preferences) prefers(kind domainmodel.ProviderKind, modelID string) bool {
	key := domainmodel.NormalizeModelKey(kind, modelID)
	for _, m := range p.PreferredModels {
		if m == modelID {
			return true
		}
		if key != "" && domainmodel.NormalizeModelKey(domainmodel.ProviderCustom, m) == key {
			return true
		}
	}
	return false
}

// QuotaView is the read side of the quota tracker consulted during
// filtering.
type QuotaView interface {
	MayUse(providerID string) bool
}

// Candidate is one scored (provider, model) pair.
type Candidate struct {
	ProviderID string
	ModelID    string
	Score      float64
	Reason     string
}

// Exclusion records one (provider, model) pair ruled out before scoring.
// Quota marks pairs dropped by the quota filter, which callers report
// differently from providers the user never configured.
type Exclusion struct {
	ProviderID string
	ModelID    string
	Quota      bool
	Detail     string
}

func (e Exclusion) String() string {
	return fmt.Sprintf("%s/%s: %s", e.ProviderID, e.ModelID, e.Detail)
}

// Selection is the ordered outcome. When no provider is usable, Primary is
// nil and Excluded explains why each path was ruled out.
type Selection struct {
	Primary   *Candidate
	Fallbacks []Candidate
	Excluded  []Exclusion
}

// Empty reports whether no candidate at all was produced.
func (s Selection) Empty() bool { return s.Primary == nil }

// QuotaExclusions returns the exclusions caused by the quota filter.
func (s Selection) QuotaExclusions() []Exclusion {
	var out []Exclusion
	for _, ex := range s.Excluded {
		if ex.Quota {
			out = append(out, ex)
		}
	}
	return out
}

// Candidates returns primary plus fallbacks in order.
func (s Selection) Candidates() []Candidate {
	if s.Primary == nil {
		return nil
	}
	out := make([]Candidate, 0, 1+len(s.Fallbacks))
	out = append(out, *s.Primary)
	out = append(out, s.Fallbacks...)
	return out
}

// Select ranks every model of the available providers for the classified
// query. availableProviders is the registry snapshot for the calling user;
// quota may be nil.
func Select(classification *classifier.Result, prefs Preferences, availableProviders []string, quota QuotaView, catalog *domainmodel.Catalog) Selection {
	available := make(map[string]bool, len(availableProviders))
	for _, p := range availableProviders {
		available[p] = true
	}

	maxPriority := catalog.MaxPriority()
	var excluded []Exclusion
	var candidates []Candidate
	var priorities []int

	for _, m := range catalog.Models() {
		if !available[m.ProviderID] {
			excluded = append(excluded, Exclusion{ProviderID: m.ProviderID, ModelID: m.ModelID, Detail: "provider not available for user"})
			continue
		}
		if quota != nil && !quota.MayUse(m.ProviderID) {
			excluded = append(excluded, Exclusion{ProviderID: m.ProviderID, ModelID: m.ModelID, Quota: true, Detail: "provider quota exceeded or cooling off"})
			continue
		}

		kind := domainmodel.ProviderCustom
		if p := catalog.Provider(m.ProviderID); p != nil {
			kind = p.Kind
		}
		score, why := scoreModel(classification, prefs, kind, m, maxPriority)
		candidates = append(candidates, Candidate{
			ProviderID: m.ProviderID,
			ModelID:    m.ModelID,
			Score:      score,
			Reason:     why,
		})
		priorities = append(priorities, m.Priority)
	}

	if len(candidates) == 0 {
		if len(excluded) == 0 {
			excluded = []Exclusion{{Detail: "no models registered"}}
		}
		return Selection{Excluded: excluded}
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ca, cb := candidates[order[a]], candidates[order[b]]
		if ca.Score != cb.Score {
			return ca.Score > cb.Score
		}
		pa, pb := priorities[order[a]], priorities[order[b]]
		if pa != pb {
			return pa < pb
		}
		return ca.ModelID < cb.ModelID
	})

	ranked := make([]Candidate, len(order))
	for i, idx := range order {
		ranked[i] = candidates[idx]
	}
	return Selection{
		Primary:   &ranked[0],
		Fallbacks: ranked[1:],
		Excluded:  excluded,
	}
}

func scoreModel(classification *classifier.Result, prefs Preferences, kind domainmodel.ProviderKind, m *domainmodel.ProviderModel, maxPriority int) (float64, string) {
	var score float64
	var parts []string

	if classification != nil {
		if m.HasSpecialty(classification.Type) {
			score += specialtyBonus
			parts = append(parts, fmt.Sprintf("specialty %s", classification.Type))
		}
		for _, s := range classification.SecondaryTypes {
			if m.HasSpecialty(s) {
				score += secondaryBonus
				parts = append(parts, fmt.Sprintf("secondary %s", s))
			}
		}
		score += confidenceScale * classification.Confidence
	}

	score += float64(maxPriority - m.Priority)
	parts = append(parts, fmt.Sprintf("priority %d", m.Priority))

	if prefs.prefers(kind, m.ModelID) {
		score += preferenceBonus
		parts = append(parts, "user preferred")
	}

	return score, strings.Join(parts, ", ")
}
