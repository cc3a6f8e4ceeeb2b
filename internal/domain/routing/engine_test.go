package routing

import (
	"context"
	"sync"
	"testing"

	"llm-gateway/internal/domain/classifier"
	domainmodel "llm-gateway/internal/domain/model"
	"llm-gateway/internal/domain/websearch"
	"llm-gateway/internal/infrastructure/connector"
	"llm-gateway/internal/infrastructure/registry"
	"llm-gateway/internal/utils/platformerrors"
)

type scriptedConnector struct {
	text string
	err  error
}

func (s *scriptedConnector) GenerateChat(ctx context.Context, messages []connector.Message, opts connector.ChatOptions) (*connector.ChatResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &connector.ChatResult{
		Text:  s.text,
		Usage: &connector.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}, nil
}

func (s *scriptedConnector) GenerateText(ctx context.Context, prompt string, opts connector.ChatOptions) (*connector.ChatResult, error) {
	return s.GenerateChat(ctx, []connector.Message{{Role: connector.RoleUser, Content: prompt}}, opts)
}

func (s *scriptedConnector) ListModels(ctx context.Context) ([]string, error) { return nil, nil }

func (s *scriptedConnector) HealthCheck(ctx context.Context) connector.HealthStatus {
	return connector.HealthStatus{OK: true}
}

type fakeRegistry struct {
	mu          sync.Mutex
	connectors  map[string]connector.Connector
	acquireErr  map[string]error
	preferred   []string
	invalidated []string
}

func (f *fakeRegistry) Acquire(ctx context.Context, userID, providerID string) (*registry.Handle, error) {
	if err, ok := f.acquireErr[providerID]; ok {
		return nil, err
	}
	conn, ok := f.connectors[providerID]
	if !ok {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRegistry, platformerrors.ErrorTypeNotConfigured, "provider not configured for user", nil, "")
	}
	return &registry.Handle{ProviderID: providerID, UserID: userID, Connector: conn}, nil
}

func (f *fakeRegistry) Invalidate(userID string, providerIDs ...string) {
	f.mu.Lock()
	f.invalidated = append(f.invalidated, providerIDs...)
	f.mu.Unlock()
}

func (f *fakeRegistry) MarkDown(userID, providerID string) {}

func (f *fakeRegistry) AvailableProvidersFor(ctx context.Context, userID string, quota registry.QuotaView) []string {
	out := make([]string, 0, len(f.connectors))
	for id := range f.connectors {
		out = append(out, id)
	}
	for id := range f.acquireErr {
		out = append(out, id)
	}
	return out
}

func (f *fakeRegistry) PreferredModelsFor(ctx context.Context, userID string) []string {
	return f.preferred
}

type fakeQuota struct {
	mu        sync.Mutex
	blocked   map[string]bool
	successes []string
	failures  map[string][]platformerrors.ErrorType
}

func newFakeQuota() *fakeQuota {
	return &fakeQuota{failures: make(map[string][]platformerrors.ErrorType)}
}

func (f *fakeQuota) MayUse(providerID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.blocked[providerID]
}

func (f *fakeQuota) RecordSuccess(providerID string) {
	f.mu.Lock()
	f.successes = append(f.successes, providerID)
	f.mu.Unlock()
}

func (f *fakeQuota) RecordFailure(providerID string, kind platformerrors.ErrorType) {
	f.mu.Lock()
	f.failures[providerID] = append(f.failures[providerID], kind)
	f.mu.Unlock()
}

func (f *fakeQuota) Warning(providerID string) string { return "" }

func routingCatalog(t *testing.T) *domainmodel.Catalog {
	t.Helper()
	ctx := context.Background()
	c := domainmodel.NewCatalog()
	for _, id := range []string{"alpha", "beta"} {
		err := c.RegisterProvider(ctx, &domainmodel.Provider{
			PublicID:     id,
			DisplayName:  id,
			Kind:         domainmodel.ProviderOpenAI,
			BaseURL:      "https://api.example.com/v1",
			Capabilities: []domainmodel.Capability{domainmodel.CapabilityChat},
		})
		if err != nil {
			t.Fatalf("register provider: %v", err)
		}
	}
	models := []*domainmodel.ProviderModel{
		{ModelID: "alpha-large", ProviderID: "alpha", Specialties: []domainmodel.ConversationType{domainmodel.TypeTechnical}, Priority: 1},
		{ModelID: "beta-large", ProviderID: "beta", Specialties: []domainmodel.ConversationType{domainmodel.TypeTechnical}, Priority: 2},
	}
	for _, m := range models {
		if err := c.RegisterModel(ctx, m); err != nil {
			t.Fatalf("register model: %v", err)
		}
	}
	return c
}

func technicalRequest() Request {
	return Request{
		UserID: "u1",
		Messages: []connector.Message{
			{Role: connector.RoleUser, Content: "debug this code error:\n```\npanic: nil\n```"},
		},
	}
}

func newEngine(reg HandleSource, quota QuotaTracker, catalog *domainmodel.Catalog, opts ...Option) *Engine {
	return New(classifier.New(nil), websearch.New(nil), reg, quota, catalog, opts...)
}

func TestRouteSuccessOnPrimary(t *testing.T) {
	reg := &fakeRegistry{connectors: map[string]connector.Connector{
		"alpha": &scriptedConnector{text: "answer from alpha"},
		"beta":  &scriptedConnector{text: "answer from beta"},
	}}
	quota := newFakeQuota()
	e := newEngine(reg, quota, routingCatalog(t))

	env := e.Route(context.Background(), technicalRequest())
	if !env.Success {
		t.Fatalf("expected success, got %+v", env)
	}
	if env.ProviderUsed != "alpha" || env.ModelUsed != "alpha-large" {
		t.Fatalf("expected primary candidate, got %s/%s", env.ProviderUsed, env.ModelUsed)
	}
	if len(env.ReasonChain) != 1 || env.ReasonChain[0].Outcome != OutcomeSuccess {
		t.Fatalf("unexpected reason chain: %+v", env.ReasonChain)
	}
	if len(quota.successes) != 1 || quota.successes[0] != "alpha" {
		t.Fatalf("expected one counted success on alpha, got %v", quota.successes)
	}
	if env.Classification == nil || env.Classification.Type != domainmodel.TypeTechnical {
		t.Fatalf("unexpected classification: %+v", env.Classification)
	}
}

func TestRouteAuthFailureInvalidatesAndFallsBack(t *testing.T) {
	ctx := context.Background()
	authErr := platformerrors.NewError(ctx, platformerrors.LayerConnector, platformerrors.ErrorTypeAuth, "api key rejected", nil, "")
	reg := &fakeRegistry{connectors: map[string]connector.Connector{
		"alpha": &scriptedConnector{err: authErr},
		"beta":  &scriptedConnector{text: "answer from beta"},
	}}
	quota := newFakeQuota()
	e := newEngine(reg, quota, routingCatalog(t))

	env := e.Route(ctx, technicalRequest())
	if !env.Success || env.ProviderUsed != "beta" {
		t.Fatalf("expected fallback success on beta, got %+v", env)
	}
	if len(env.ReasonChain) != 2 {
		t.Fatalf("expected two attempts, got %+v", env.ReasonChain)
	}
	if env.ReasonChain[0].Outcome != OutcomeAuthFailure {
		t.Fatalf("expected auth failure first, got %s", env.ReasonChain[0].Outcome)
	}
	if len(reg.invalidated) != 1 || reg.invalidated[0] != "alpha" {
		t.Fatalf("expected alpha handle invalidated, got %v", reg.invalidated)
	}
	if len(quota.successes) != 1 {
		t.Fatalf("expected exactly one counted success, got %v", quota.successes)
	}
}

func TestRouteQuotaFailureMarksExceeded(t *testing.T) {
	ctx := context.Background()
	quotaErr := platformerrors.NewError(ctx, platformerrors.LayerConnector, platformerrors.ErrorTypeQuota, "daily quota exhausted", nil, "")
	reg := &fakeRegistry{connectors: map[string]connector.Connector{
		"alpha": &scriptedConnector{err: quotaErr},
		"beta":  &scriptedConnector{text: "answer from beta"},
	}}
	quota := newFakeQuota()
	e := newEngine(reg, quota, routingCatalog(t))

	env := e.Route(ctx, technicalRequest())
	if !env.Success || env.ProviderUsed != "beta" {
		t.Fatalf("expected fallback success, got %+v", env)
	}
	kinds := quota.failures["alpha"]
	if len(kinds) != 1 || kinds[0] != platformerrors.ErrorTypeQuota {
		t.Fatalf("expected quota failure recorded for alpha, got %v", kinds)
	}
}

func TestRouteAllCandidatesExhausted(t *testing.T) {
	ctx := context.Background()
	transientErr := platformerrors.NewError(ctx, platformerrors.LayerConnector, platformerrors.ErrorTypeTransient, "upstream 503", nil, "")
	reg := &fakeRegistry{connectors: map[string]connector.Connector{
		"alpha": &scriptedConnector{err: transientErr},
		"beta":  &scriptedConnector{err: transientErr},
	}}
	quota := newFakeQuota()
	e := newEngine(reg, quota, routingCatalog(t))

	env := e.Route(ctx, technicalRequest())
	if env.Success {
		t.Fatal("expected failure envelope")
	}
	if env.FailureKind != FailureExhausted {
		t.Fatalf("expected exhausted, got %s", env.FailureKind)
	}
	if len(env.ReasonChain) != 2 {
		t.Fatalf("expected every attempt recorded, got %+v", env.ReasonChain)
	}
	if len(quota.successes) != 0 {
		t.Fatalf("no success should be counted, got %v", quota.successes)
	}
}

func TestRouteAllProvidersQuotaBlocked(t *testing.T) {
	reg := &fakeRegistry{connectors: map[string]connector.Connector{
		"alpha": &scriptedConnector{text: "answer"},
		"beta":  &scriptedConnector{text: "answer"},
	}}
	quota := newFakeQuota()
	quota.blocked = map[string]bool{"alpha": true, "beta": true}
	e := newEngine(reg, quota, routingCatalog(t))

	env := e.Route(context.Background(), technicalRequest())
	if env.Success {
		t.Fatal("expected failure envelope")
	}
	if env.FailureKind != FailureExhausted {
		t.Fatalf("expected exhausted when every provider is over quota, got %s", env.FailureKind)
	}
	if len(env.ReasonChain) != 2 {
		t.Fatalf("expected one entry per blocked provider, got %+v", env.ReasonChain)
	}
	seen := make(map[string]bool)
	for _, a := range env.ReasonChain {
		if a.Outcome != OutcomeQuotaExceeded {
			t.Fatalf("expected quota_exceeded entries, got %+v", a)
		}
		seen[a.ProviderID] = true
	}
	if !seen["alpha"] || !seen["beta"] {
		t.Fatalf("expected both providers in the chain, got %+v", env.ReasonChain)
	}
}

func TestRoutePartialQuotaBlockFallsThrough(t *testing.T) {
	reg := &fakeRegistry{connectors: map[string]connector.Connector{
		"alpha": &scriptedConnector{text: "answer from alpha"},
		"beta":  &scriptedConnector{text: "answer from beta"},
	}}
	quota := newFakeQuota()
	quota.blocked = map[string]bool{"alpha": true}
	e := newEngine(reg, quota, routingCatalog(t))

	env := e.Route(context.Background(), technicalRequest())
	if !env.Success || env.ProviderUsed != "beta" {
		t.Fatalf("expected beta to serve while alpha is over quota, got %+v", env)
	}
}

func TestRouteCredentialPreferredModelBiasesSelection(t *testing.T) {
	reg := &fakeRegistry{
		connectors: map[string]connector.Connector{
			"alpha": &scriptedConnector{text: "answer from alpha"},
			"beta":  &scriptedConnector{text: "answer from beta"},
		},
		preferred: []string{"beta-large"},
	}
	quota := newFakeQuota()
	e := newEngine(reg, quota, routingCatalog(t))

	// Without the stored preference alpha-large wins on priority; the +8
	// preference bonus flips the order.
	env := e.Route(context.Background(), technicalRequest())
	if !env.Success || env.ProviderUsed != "beta" || env.ModelUsed != "beta-large" {
		t.Fatalf("expected credential-preferred model to win, got %+v", env)
	}
}

func TestRouteRequestPreferenceBeatsStoredPreference(t *testing.T) {
	reg := &fakeRegistry{
		connectors: map[string]connector.Connector{
			"alpha": &scriptedConnector{text: "answer from alpha"},
			"beta":  &scriptedConnector{text: "answer from beta"},
		},
		preferred: []string{"beta-large"},
	}
	quota := newFakeQuota()
	e := newEngine(reg, quota, routingCatalog(t))

	req := technicalRequest()
	req.PreferredModels = []string{"alpha-large"}
	env := e.Route(context.Background(), req)
	// Both carry the preference bonus; alpha-large keeps its priority edge.
	if !env.Success || env.ProviderUsed != "alpha" {
		t.Fatalf("expected request preference to hold, got %+v", env)
	}
}

func TestRouteNoProvider(t *testing.T) {
	reg := &fakeRegistry{connectors: map[string]connector.Connector{}}
	quota := newFakeQuota()
	e := newEngine(reg, quota, routingCatalog(t))

	env := e.Route(context.Background(), technicalRequest())
	if env.Success || env.FailureKind != FailureNoProvider {
		t.Fatalf("expected no_provider failure, got %+v", env)
	}
	if len(env.ReasonChain) == 0 {
		t.Fatal("expected reasons explaining the empty selection")
	}
}

func TestRouteNotConfiguredProviderSkipped(t *testing.T) {
	ctx := context.Background()
	ncErr := platformerrors.NewError(ctx, platformerrors.LayerRegistry, platformerrors.ErrorTypeNotConfigured, "provider not configured for user", nil, "")
	reg := &fakeRegistry{
		connectors: map[string]connector.Connector{"beta": &scriptedConnector{text: "answer from beta"}},
		acquireErr: map[string]error{"alpha": ncErr},
	}
	quota := newFakeQuota()
	e := newEngine(reg, quota, routingCatalog(t))

	env := e.Route(ctx, technicalRequest())
	if !env.Success || env.ProviderUsed != "beta" {
		t.Fatalf("expected beta to serve, got %+v", env)
	}
	if env.ReasonChain[0].Outcome != OutcomeNotConfigured {
		t.Fatalf("expected not_configured attempt first, got %+v", env.ReasonChain)
	}
}

type countingAnalyzer struct {
	mu    sync.Mutex
	calls int
}

func (c *countingAnalyzer) AnalyzeText(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return `{"type":"research","confidence":0.9,"complexity":"medium"}`, nil
}

func TestRouteClassifiesOnceAcrossFallbacks(t *testing.T) {
	ctx := context.Background()
	transientErr := platformerrors.NewError(ctx, platformerrors.LayerConnector, platformerrors.ErrorTypeTransient, "upstream 503", nil, "")
	reg := &fakeRegistry{connectors: map[string]connector.Connector{
		"alpha": &scriptedConnector{err: transientErr},
		"beta":  &scriptedConnector{text: "answer from beta"},
	}}
	quota := newFakeQuota()

	analyzer := &countingAnalyzer{}
	e := New(classifier.New(analyzer), websearch.New(nil), reg, quota, routingCatalog(t))

	req := Request{
		UserID:   "u1",
		Messages: []connector.Message{{Role: connector.RoleUser, Content: "tell me about dolphins"}},
	}
	env := e.Route(ctx, req)
	if !env.Success {
		t.Fatalf("expected fallback success, got %+v", env)
	}
	if analyzer.calls != 1 {
		t.Fatalf("classification must run once per request, analyzer ran %d times", analyzer.calls)
	}
}

func TestRouteDeadlineStopsFallbackWalk(t *testing.T) {
	reg := &fakeRegistry{connectors: map[string]connector.Connector{
		"alpha": &scriptedConnector{text: "answer"},
		"beta":  &scriptedConnector{text: "answer"},
	}}
	quota := newFakeQuota()
	e := newEngine(reg, quota, routingCatalog(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	env := e.Route(ctx, technicalRequest())
	if env.Success || env.FailureKind != FailureDeadline {
		t.Fatalf("expected deadline failure, got %+v", env)
	}
}

type recordedUsage struct {
	userID, providerID, modelID string
	usage                       *connector.Usage
}

type fakeUsage struct {
	mu      sync.Mutex
	records []recordedUsage
}

func (f *fakeUsage) RecordCompletion(ctx context.Context, userID, providerID, modelID string, usage *connector.Usage) {
	f.mu.Lock()
	f.records = append(f.records, recordedUsage{userID, providerID, modelID, usage})
	f.mu.Unlock()
}

func TestRouteRecordsUsage(t *testing.T) {
	reg := &fakeRegistry{connectors: map[string]connector.Connector{
		"alpha": &scriptedConnector{text: "answer"},
		"beta":  &scriptedConnector{text: "answer"},
	}}
	quota := newFakeQuota()
	usage := &fakeUsage{}
	e := newEngine(reg, quota, routingCatalog(t), WithUsageRecorder(usage))

	env := e.Route(context.Background(), technicalRequest())
	if !env.Success {
		t.Fatalf("expected success, got %+v", env)
	}
	if len(usage.records) != 1 || usage.records[0].providerID != "alpha" {
		t.Fatalf("expected one usage record for alpha, got %+v", usage.records)
	}
	if usage.records[0].usage == nil || usage.records[0].usage.TotalTokens != 30 {
		t.Fatalf("unexpected usage payload: %+v", usage.records[0].usage)
	}
}
