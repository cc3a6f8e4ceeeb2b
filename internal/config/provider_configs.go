package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	domainmodel "llm-gateway/internal/domain/model"
	"llm-gateway/internal/infrastructure/logger"
)

const DefaultProviderConfigFile = "config/providers.yml"

// ProviderBootstrapEntry describes a provider registered on startup,
// together with its models and optional shared API key.
type ProviderBootstrapEntry struct {
	Provider domainmodel.Provider
	Models   []domainmodel.ProviderModel
	// APIKey, when set, becomes the process-wide shared credential for
	// this provider. ${VAR} references are expanded from the environment.
	APIKey string
}

// ProviderBootstrapConfig maintains all configured provider sets.
type ProviderBootstrapConfig struct {
	sets map[string][]ProviderBootstrapEntry
}

// ProvidersForSet returns a copy of the providers defined for the requested
// set.
func (c *ProviderBootstrapConfig) ProvidersForSet(name string) []ProviderBootstrapEntry {
	if c == nil {
		return nil
	}
	set := strings.TrimSpace(name)
	if set == "" {
		set = "default"
	}
	list := c.sets[set]
	if len(list) == 0 {
		return nil
	}
	result := make([]ProviderBootstrapEntry, len(list))
	copy(result, list)
	return result
}

// LoadProviderBootstrapConfig parses the yaml file at the provided path.
func LoadProviderBootstrapConfig(path string) (*ProviderBootstrapConfig, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("provider config path is empty")
	}

	log := logger.GetLogger()
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read provider config %q: %w", cleanPath, err)
	}
	log.Info().Str("path", cleanPath).Msg("loading provider config file")

	var doc providerConfigDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse provider config %q: %w", cleanPath, err)
	}
	if len(doc.Providers) == 0 {
		return nil, fmt.Errorf("provider config %q has no providers defined", cleanPath)
	}

	result := &ProviderBootstrapConfig{
		sets: make(map[string][]ProviderBootstrapEntry),
	}

	for rawSet, entries := range doc.Providers {
		setName := strings.TrimSpace(rawSet)
		if setName == "" || len(entries) == 0 {
			continue
		}
		for idx, entry := range entries {
			entryLog := log.With().Str("set", setName).Int("index", idx).Str("id", entry.ID).Logger()
			enabled, err := parseEnabled(entry.EnableRaw)
			if err != nil {
				return nil, fmt.Errorf("providers.%s[%d]: %w", setName, idx, err)
			}
			if !enabled {
				entryLog.Info().Msg("skipping provider (enable=false)")
				continue
			}
			normalized, err := normalizeProviderEntry(entry)
			if err != nil {
				return nil, fmt.Errorf("providers.%s[%d]: %w", setName, idx, err)
			}
			entryLog.Info().
				Str("kind", string(normalized.Provider.Kind)).
				Str("base_url", normalized.Provider.BaseURL).
				Int("models", len(normalized.Models)).
				Msg("including provider for bootstrap")
			result.sets[setName] = append(result.sets[setName], normalized)
		}
	}

	if len(result.sets) == 0 {
		return nil, fmt.Errorf("provider config %q has no valid provider entries", cleanPath)
	}
	return result, nil
}

type providerConfigDocument struct {
	Providers map[string][]providerConfigEntry `yaml:"providers"`
}

type providerConfigEntry struct {
	EnableRaw    string                `yaml:"enable"`
	ID           string                `yaml:"id"`
	DisplayName  string                `yaml:"display_name"`
	Kind         string                `yaml:"kind"`
	BaseURL      string                `yaml:"base_url"`
	APIKey       string                `yaml:"api_key"`
	DefaultModel string                `yaml:"default_model"`
	DailyLimit   int                   `yaml:"daily_limit"`
	Capabilities []string              `yaml:"capabilities"`
	Models       []providerConfigModel `yaml:"models"`
}

type providerConfigModel struct {
	ID               string   `yaml:"id"`
	Specialties      []string `yaml:"specialties"`
	Priority         int      `yaml:"priority"`
	CostHint         string   `yaml:"cost_hint"`
	MaxContextTokens int      `yaml:"max_context_tokens"`
}

func normalizeProviderEntry(entry providerConfigEntry) (ProviderBootstrapEntry, error) {
	id := strings.TrimSpace(entry.ID)
	if id == "" {
		return ProviderBootstrapEntry{}, errors.New("provider id is required")
	}

	kind := strings.TrimSpace(strings.ToLower(entry.Kind))
	if kind == "" {
		return ProviderBootstrapEntry{}, errors.New("provider kind is required")
	}

	baseURL := strings.TrimSpace(os.ExpandEnv(entry.BaseURL))
	if baseURL == "" {
		return ProviderBootstrapEntry{}, errors.New("provider base_url is required")
	}

	displayName := strings.TrimSpace(entry.DisplayName)
	if displayName == "" {
		displayName = id
	}

	capabilities := make([]domainmodel.Capability, 0, len(entry.Capabilities))
	for _, c := range entry.Capabilities {
		capabilities = append(capabilities, domainmodel.Capability(strings.TrimSpace(c)))
	}
	if len(capabilities) == 0 {
		capabilities = []domainmodel.Capability{domainmodel.CapabilityChat}
	}

	provider := domainmodel.Provider{
		PublicID:     id,
		DisplayName:  displayName,
		Kind:         domainmodel.ProviderKind(kind),
		BaseURL:      baseURL,
		Capabilities: capabilities,
		DefaultModel: strings.TrimSpace(entry.DefaultModel),
		DailyLimit:   entry.DailyLimit,
	}

	models := make([]domainmodel.ProviderModel, 0, len(entry.Models))
	for i, m := range entry.Models {
		modelID := strings.TrimSpace(m.ID)
		if modelID == "" {
			return ProviderBootstrapEntry{}, fmt.Errorf("models[%d]: model id is required", i)
		}
		specialties := make([]domainmodel.ConversationType, 0, len(m.Specialties))
		for _, s := range m.Specialties {
			specialties = append(specialties, domainmodel.ConversationType(strings.TrimSpace(s)))
		}
		costHint := decimal.Zero
		if raw := strings.TrimSpace(m.CostHint); raw != "" {
			parsed, err := decimal.NewFromString(raw)
			if err != nil {
				return ProviderBootstrapEntry{}, fmt.Errorf("models[%d]: invalid cost_hint %q: %w", i, raw, err)
			}
			costHint = parsed
		}
		models = append(models, domainmodel.ProviderModel{
			ModelID:          modelID,
			ProviderID:       id,
			Specialties:      specialties,
			Priority:         m.Priority,
			CostHint:         costHint,
			MaxContextTokens: m.MaxContextTokens,
		})
		provider.SupportedModels = append(provider.SupportedModels, modelID)
	}

	apiKey := strings.TrimSpace(entry.APIKey)
	if apiKey != "" {
		apiKey = strings.TrimSpace(expandWithDefault(apiKey))
	}

	return ProviderBootstrapEntry{
		Provider: provider,
		Models:   models,
		APIKey:   apiKey,
	}, nil
}

func parseEnabled(raw string) (bool, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return true, nil
	}

	resolved := strings.TrimSpace(expandWithDefault(value))
	if resolved == "" {
		return true, nil
	}

	parsed, err := strconv.ParseBool(resolved)
	if err != nil {
		return false, fmt.Errorf("enable: %w", err)
	}
	return parsed, nil
}

// expandWithDefault expands ${VAR} and ${VAR:-default} syntax using os envs.
func expandWithDefault(raw string) string {
	if !strings.Contains(raw, "${") {
		return os.ExpandEnv(raw)
	}
	start := strings.Index(raw, "${")
	end := strings.Index(raw[start:], "}")
	if start == -1 || end == -1 {
		return os.ExpandEnv(raw)
	}
	end = start + end
	expr := raw[start+2 : end]
	defaultVal := ""
	varName := expr
	if strings.Contains(expr, ":-") {
		parts := strings.SplitN(expr, ":-", 2)
		varName = parts[0]
		defaultVal = parts[1]
	}
	val := os.Getenv(varName)
	if val == "" {
		val = defaultVal
	}
	resolved := raw[:start] + val + raw[end+1:]
	return os.ExpandEnv(resolved)
}
