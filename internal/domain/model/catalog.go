package model

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"llm-gateway/internal/utils/platformerrors"
)

// Catalog holds the provider and model descriptors registered at process
// init. Registration is rejected once the catalog is frozen by the first
// routing call; reads after that point need no locking discipline from
// callers because the data is immutable.
type Catalog struct {
	mu        sync.RWMutex
	frozen    bool
	providers map[string]*Provider
	models    map[string]*ProviderModel
	validate  *validator.Validate
}

func NewCatalog() *Catalog {
	return &Catalog{
		providers: make(map[string]*Provider),
		models:    make(map[string]*ProviderModel),
		validate:  validator.New(),
	}
}

// RegisterProvider adds a provider descriptor. Only valid before Freeze.
func (c *Catalog) RegisterProvider(ctx context.Context, p *Provider) error {
	if err := c.validate.Struct(p); err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "invalid provider descriptor", err, "")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "catalog is frozen, providers must be registered before first route", nil, "")
	}
	if _, exists := c.providers[p.PublicID]; exists {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "provider already registered: "+p.PublicID, nil, "")
	}
	cp := *p
	cp.RegisteredAt = time.Now().UTC()
	c.providers[p.PublicID] = &cp
	return nil
}

// RegisterModel adds a model descriptor. The provider must already be
// registered; a model id belongs to exactly one provider.
func (c *Catalog) RegisterModel(ctx context.Context, m *ProviderModel) error {
	if err := c.validate.Struct(m); err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "invalid model descriptor", err, "")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "catalog is frozen, models must be registered before first route", nil, "")
	}
	if _, ok := c.providers[m.ProviderID]; !ok {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "model references unknown provider: "+m.ProviderID, nil, "")
	}
	if existing, ok := c.models[m.ModelID]; ok {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "model "+m.ModelID+" already registered under provider "+existing.ProviderID, nil, "")
	}
	cp := *m
	c.models[m.ModelID] = &cp
	return nil
}

// Freeze marks the catalog immutable. Idempotent.
func (c *Catalog) Freeze() {
	c.mu.Lock()
	c.frozen = true
	c.mu.Unlock()
}

// Provider returns the descriptor for id, or nil.
func (c *Catalog) Provider(id string) *Provider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.providers[id]
}

// Model returns the descriptor for id, or nil.
func (c *Catalog) Model(id string) *ProviderModel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.models[id]
}

// Providers returns all provider descriptors ordered by id.
func (c *Catalog) Providers() []*Provider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Provider, 0, len(c.providers))
	for _, p := range c.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublicID < out[j].PublicID })
	return out
}

// Models returns all model descriptors ordered by priority, then model id.
func (c *Catalog) Models() []*ProviderModel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*ProviderModel, 0, len(c.models))
	for _, m := range c.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ModelID < out[j].ModelID
	})
	return out
}

// ModelsForProvider returns the models of one provider, priority ordered.
func (c *Catalog) ModelsForProvider(providerID string) []*ProviderModel {
	all := c.Models()
	out := make([]*ProviderModel, 0, len(all))
	for _, m := range all {
		if m.ProviderID == providerID {
			out = append(out, m)
		}
	}
	return out
}

// MaxPriority returns the largest registered model priority, used by the
// selector's priority bonus term.
func (c *Catalog) MaxPriority() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	max := 0
	for _, m := range c.models {
		if m.Priority > max {
			max = m.Priority
		}
	}
	return max
}

// Empty reports whether no providers are registered.
func (c *Catalog) Empty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.providers) == 0
}
