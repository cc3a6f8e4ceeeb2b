// Package gateway is the embeddable facade over the routing core. Callers
// register providers and models, install credentials per user, and route
// chat requests; everything else (classification, selection, fallback,
// quota, handle lifecycle) happens behind Route.
package gateway

import (
	"context"
	"sync"
	"time"

	"llm-gateway/internal/domain/classifier"
	"llm-gateway/internal/domain/credential"
	domainmodel "llm-gateway/internal/domain/model"
	"llm-gateway/internal/domain/quota"
	"llm-gateway/internal/domain/routing"
	"llm-gateway/internal/domain/usage"
	"llm-gateway/internal/domain/websearch"
	"llm-gateway/internal/infrastructure/connector"
	"llm-gateway/internal/infrastructure/logger"
	"llm-gateway/internal/infrastructure/registry"
	"llm-gateway/internal/utils/platformerrors"
)

// Re-exported types so embedders never import internal packages.
type (
	Request    = routing.Request
	Envelope   = routing.Envelope
	Attempt    = routing.Attempt
	Message    = connector.Message
	Credential = credential.Record
	Provider   = domainmodel.Provider
	Model      = domainmodel.ProviderModel
	Turn       = classifier.Turn
)

// SharedCredentialStore is the optional store capability for process-wide
// credentials.
type SharedCredentialStore interface {
	SetShared(ctx context.Context, providerID string, rec credential.Record) error
	MarkSharedUser(ctx context.Context, userID string) error
}

// Options configures a Gateway. The zero value runs fully in memory with
// rule-only analysis.
type Options struct {
	// Store overrides the credential store. Default: in-memory.
	Store credential.Store
	// QuotaStore persists daily counters across restarts. Optional.
	QuotaStore quota.Store
	// UsageRepository persists completion accounting. Default: in-memory.
	UsageRepository usage.Repository

	ConnectorTimeout time.Duration
	Retry            connector.RetryPolicy
	IdleHandleTTL    time.Duration
	CacheTTL         time.Duration
	CoolOff          time.Duration

	// DefaultDailyLimit applies to providers without their own limit.
	// 0 means unlimited.
	DefaultDailyLimit int

	// ConnectorFactory overrides connector construction, for custom
	// transports. Default: the OpenAI-compatible connector.
	ConnectorFactory registry.Factory

	// Analyzer LLM for the classification and web-search slow paths.
	// Leave AnalyzerProviderID empty to run rule-only.
	AnalyzerProviderID string
	AnalyzerModel      string
	AnalyzerUserID     string
}

func (o *Options) fillDefaults() {
	if o.Store == nil {
		o.Store = credential.NewMemoryStore()
	}
	if o.UsageRepository == nil {
		o.UsageRepository = usage.NewMemoryRepository()
	}
	if o.ConnectorTimeout == 0 {
		o.ConnectorTimeout = 30 * time.Second
	}
	if o.Retry.MaxAttempts == 0 {
		o.Retry = connector.DefaultRetryPolicy()
	}
	if o.IdleHandleTTL == 0 {
		o.IdleHandleTTL = registry.DefaultIdleTTL
	}
	if o.CacheTTL == 0 {
		o.CacheTTL = classifier.DefaultCacheTTL
	}
	if o.CoolOff == 0 {
		o.CoolOff = quota.DefaultCoolOff
	}
	if o.AnalyzerUserID == "" {
		o.AnalyzerUserID = "system"
	}
}

// Gateway is the composition root. Registration happens before the first
// Route; the catalog freezes when routing starts.
type Gateway struct {
	opts    Options
	catalog *domainmodel.Catalog
	store   credential.Store

	startOnce sync.Once
	startErr  error

	tracker    *quota.Tracker
	registry   *registry.Registry
	classifier *classifier.Classifier
	websearch  *websearch.Analyzer
	usage      *usage.Service
	engine     *routing.Engine
}

func New(opts Options) *Gateway {
	opts.fillDefaults()
	return &Gateway{
		opts:    opts,
		catalog: domainmodel.NewCatalog(),
		store:   opts.Store,
	}
}

// RegisterProvider adds a provider descriptor. Must happen before the first
// Route.
func (g *Gateway) RegisterProvider(ctx context.Context, p *Provider) error {
	return g.catalog.RegisterProvider(ctx, p)
}

// RegisterModel adds a model descriptor. Must happen before the first
// Route.
func (g *Gateway) RegisterModel(ctx context.Context, m *Model) error {
	return g.catalog.RegisterModel(ctx, m)
}

// SetCredentials installs or replaces one user's record for a provider and
// drops any cached handle built from the old material.
func (g *Gateway) SetCredentials(ctx context.Context, userID, providerID string, rec Credential) error {
	if err := g.store.Set(ctx, userID, providerID, rec); err != nil {
		return err
	}
	if g.registry != nil {
		g.registry.Invalidate(userID, providerID)
	}
	return nil
}

// SetSharedCredentials installs the process-wide record for a provider.
// Fails when the configured store cannot hold shared credentials.
func (g *Gateway) SetSharedCredentials(ctx context.Context, providerID string, rec Credential) error {
	shared, ok := g.store.(SharedCredentialStore)
	if !ok {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "credential store does not support shared credentials", nil, "")
	}
	return shared.SetShared(ctx, providerID, rec)
}

// UseSharedCredentials flags a user to resolve every provider through the
// shared credential set.
func (g *Gateway) UseSharedCredentials(ctx context.Context, userID string) error {
	shared, ok := g.store.(SharedCredentialStore)
	if !ok {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "credential store does not support shared credentials", nil, "")
	}
	if err := shared.MarkSharedUser(ctx, userID); err != nil {
		return err
	}
	if g.registry != nil {
		g.registry.Invalidate(userID)
	}
	return nil
}

// Start freezes the catalog and builds the routing core. Idempotent; Route
// calls it implicitly.
func (g *Gateway) Start(ctx context.Context) error {
	g.startOnce.Do(func() { g.startErr = g.start(ctx) })
	return g.startErr
}

func (g *Gateway) start(ctx context.Context) error {
	g.catalog.Freeze()

	limits := make(map[string]int)
	for _, p := range g.catalog.Providers() {
		if p.DailyLimit > 0 {
			limits[p.PublicID] = p.DailyLimit
		}
	}
	g.tracker = quota.NewTracker(limits, g.opts.DefaultDailyLimit, quota.WithCoolOff(g.opts.CoolOff))
	if g.opts.QuotaStore != nil {
		if err := g.tracker.LoadFrom(ctx, g.opts.QuotaStore); err != nil {
			logger.Component("gateway").Warn().Err(err).Msg("quota restore failed, starting from zero")
		}
	}

	factory := g.opts.ConnectorFactory
	if factory == nil {
		factory = func(p *domainmodel.Provider, rec credential.Record) connector.Connector {
			return connector.NewOpenAICompatible(p, rec, g.opts.Retry, g.opts.ConnectorTimeout)
		}
	}
	g.registry = registry.New(g.store, g.catalog, factory, registry.WithIdleTTL(g.opts.IdleHandleTTL))

	var analyzer *registryAnalyzer
	if g.opts.AnalyzerProviderID != "" {
		analyzer = &registryAnalyzer{
			registry:   g.registry,
			userID:     g.opts.AnalyzerUserID,
			providerID: g.opts.AnalyzerProviderID,
			model:      g.opts.AnalyzerModel,
		}
	}

	// A nil *registryAnalyzer must not become a non-nil interface.
	var textAnalyzer classifier.TextAnalyzer
	var searchAnalyzer websearch.TextAnalyzer
	if analyzer != nil {
		textAnalyzer = analyzer
		searchAnalyzer = analyzer
	}

	g.classifier = classifier.New(textAnalyzer, classifier.WithCacheTTL(g.opts.CacheTTL))
	g.websearch = websearch.New(searchAnalyzer)
	g.usage = usage.NewService(g.opts.UsageRepository, g.catalog)
	g.engine = routing.New(g.classifier, g.websearch, g.registry, g.tracker, g.catalog, routing.WithUsageRecorder(g.usage))
	return nil
}

// Route classifies, selects, and invokes with fallback. Always returns a
// non-nil envelope; failures are reported inside it.
func (g *Gateway) Route(ctx context.Context, req Request) *Envelope {
	if err := g.Start(ctx); err != nil {
		return &Envelope{
			FailureKind:    routing.FailureNoProvider,
			FailureMessage: err.Error(),
		}
	}
	return g.engine.Route(ctx, req)
}

// Classify resolves the conversation type for a prompt without routing.
func (g *Gateway) Classify(ctx context.Context, prompt string, history []Turn) (*classifier.Result, error) {
	if err := g.Start(ctx); err != nil {
		return nil, err
	}
	return g.classifier.Classify(ctx, prompt, history), nil
}

// NeedsWebSearch resolves the web-search verdict for a prompt without
// routing.
func (g *Gateway) NeedsWebSearch(ctx context.Context, prompt string) (websearch.Decision, error) {
	if err := g.Start(ctx); err != nil {
		return websearch.Decision{}, err
	}
	return g.websearch.Needs(ctx, prompt), nil
}

// AvailableProviders returns the provider ids the user can route to right
// now.
func (g *Gateway) AvailableProviders(ctx context.Context, userID string) ([]string, error) {
	if err := g.Start(ctx); err != nil {
		return nil, err
	}
	return g.registry.AvailableProvidersFor(ctx, userID, g.tracker), nil
}

// QuotaSnapshots returns the current per-provider counters.
func (g *Gateway) QuotaSnapshots(ctx context.Context) ([]quota.Snapshot, error) {
	if err := g.Start(ctx); err != nil {
		return nil, err
	}
	return g.tracker.SnapshotAll(), nil
}

// UserUsage returns per (provider, model) accounting for a user.
func (g *Gateway) UserUsage(ctx context.Context, userID string, start, end time.Time) ([]usage.Summary, error) {
	if err := g.Start(ctx); err != nil {
		return nil, err
	}
	return g.usage.UserSummaries(ctx, userID, start, end)
}

// Registry exposes the handle registry for background maintenance wiring.
// Nil before Start.
func (g *Gateway) Registry() *registry.Registry { return g.registry }

// QuotaTracker exposes the tracker for background maintenance wiring. Nil
// before Start.
func (g *Gateway) QuotaTracker() *quota.Tracker { return g.tracker }

// registryAnalyzer funnels analyzer prompts through a regular connector
// handle, so the slow paths obey the same credential, retry, and quota
// rules as user traffic.
type registryAnalyzer struct {
	registry   *registry.Registry
	userID     string
	providerID string
	model      string
}

func (a *registryAnalyzer) AnalyzeText(ctx context.Context, prompt string) (string, error) {
	h, err := a.registry.Acquire(ctx, a.userID, a.providerID)
	if err != nil {
		return "", err
	}
	result, err := h.Connector.GenerateText(ctx, prompt, connector.ChatOptions{
		Model:       a.model,
		Temperature: 0.1,
		MaxTokens:   512,
	})
	if err != nil {
		return "", err
	}
	return result.Text, nil
}
