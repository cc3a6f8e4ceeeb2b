package model

import (
	"regexp"
	"strings"
)

// NormalizeModelKey returns a canonical "<vendor>/<model>" key so user
// preferences expressed against one provider's naming still match the same
// model exposed elsewhere.
//
// Examples:
//
//	NormalizeModelKey(ProviderOpenRouter, "anthropic/claude-3.5-sonnet") => "anthropic/claude-3.5-sonnet"
//	NormalizeModelKey(ProviderOllama, "llama3:8b-instruct") => "meta/llama3-8b-instruct"
//	NormalizeModelKey(ProviderGoogle, "models/gemini-1.5-flash") => "google/gemini-1.5-flash"
//	NormalizeModelKey(ProviderGroq, "mixtral-8x7b-32768") => "mistral/mixtral-8x7b-32768"
func NormalizeModelKey(pk ProviderKind, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	// "vendor:model" with a recognizable vendor prefix
	if v, m, ok := splitPair(raw, ":"); ok && isKnownVendor(v) {
		return joinKM(slug(v), slug(m))
	}

	if pk == ProviderGoogle && strings.HasPrefix(strings.ToLower(raw), "models/") {
		return joinKM("google", slug(strings.TrimPrefix(raw, "models/")))
	}

	// "owner/model[:version]", common for aggregators
	if owner, name, ok := splitPair(raw, "/"); ok && owner != "" && name != "" && !strings.Contains(owner, " ") {
		if n, ver, has := splitPair(name, ":"); has && n != "" {
			name = n + "-" + ver
		}
		vendor := remapVendor(slug(owner), slug(name))
		return joinKM(vendor, slug(name))
	}

	// Ollama "family:tag"
	if pk == ProviderOllama && strings.Contains(raw, ":") {
		base, tag, _ := splitPair(raw, ":")
		return joinKM(vendorFromFamily(base), slug(base+"-"+tag))
	}

	return normalizeByProvider(pk, raw)
}

func normalizeByProvider(pk ProviderKind, raw string) string {
	switch pk {
	case ProviderOpenAI, ProviderAzureOpenAI:
		return joinKM("openai", slug(raw))
	case ProviderAnthropic:
		return joinKM("anthropic", slug(raw))
	case ProviderGoogle:
		return joinKM("google", slug(raw))
	case ProviderMistral:
		return joinKM("mistral", slug(raw))
	case ProviderCohere:
		return joinKM("cohere", slug(raw))
	case ProviderOpenRouter:
		return joinKM("openrouter", slug(raw))
	default:
		return inferFromFamily(raw)
	}
}

var knownVendors = map[string]bool{
	"openai":     true,
	"anthropic":  true,
	"google":     true,
	"gemini":     true,
	"mistral":    true,
	"mistralai":  true,
	"meta":       true,
	"meta-llama": true,
	"cohere":     true,
	"qwen":       true,
	"microsoft":  true,
	"deepseek":   true,
}

var nonAlnumDashDot = regexp.MustCompile(`[^a-z0-9\-\.:\/]`)

func slug(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.Join(strings.Fields(s), "-")
	return nonAlnumDashDot.ReplaceAllString(s, "")
}

func joinKM(vendor, model string) string {
	vendor = strings.Trim(vendor, "/")
	model = strings.Trim(model, "/")
	if vendor == "" {
		vendor = "unknown"
	}
	return vendor + "/" + model
}

func splitPair(s, sep string) (string, string, bool) {
	i := strings.Index(s, sep)
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

func isKnownVendor(s string) bool {
	return knownVendors[strings.ToLower(s)]
}

func vendorFromFamily(modelBase string) string {
	m := strings.ToLower(modelBase)
	switch {
	case strings.HasPrefix(m, "llama"):
		return "meta"
	case strings.HasPrefix(m, "gemma"):
		return "google"
	case strings.HasPrefix(m, "mixtral"), strings.HasPrefix(m, "mistral"):
		return "mistral"
	case strings.HasPrefix(m, "qwen"):
		return "qwen"
	case strings.HasPrefix(m, "phi"):
		return "microsoft"
	case strings.HasPrefix(m, "deepseek"):
		return "deepseek"
	default:
		return "unknown"
	}
}

// remapVendor prefers the brand vendor when the owner looks like a model
// family alias (meta-llama, mistralai), otherwise keeps the owner.
func remapVendor(owner, model string) string {
	switch owner {
	case "meta-llama", "meta":
		return "meta"
	case "mistralai", "mistral":
		return "mistral"
	case "google", "deepmind", "gemini":
		return "google"
	default:
		if isKnownVendor(owner) {
			return owner
		}
		if v := vendorFromFamily(model); v != "unknown" {
			return v
		}
		return owner
	}
}

// inferFromFamily guesses the vendor from a bare model name as a last resort.
func inferFromFamily(raw string) string {
	r := strings.ToLower(raw)
	if base, tag, ok := splitPair(r, ":"); ok {
		r = base + "-" + tag
	}
	model := slug(strings.ReplaceAll(r, "/", "-"))
	family := model
	if i := strings.IndexAny(model, "-_."); i > 0 {
		family = model[:i]
	}
	vendor := vendorFromFamily(family)
	if strings.Contains(model, "claude") {
		vendor = "anthropic"
	}
	if strings.Contains(model, "gpt") || strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") {
		vendor = "openai"
	}
	if strings.HasPrefix(model, "gemini") {
		vendor = "google"
	}
	return joinKM(vendor, model)
}
