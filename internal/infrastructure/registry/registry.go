// Package registry owns the mapping (userId, providerId) -> materialized
// connector handle. Handles are created lazily from the credential store,
// health-checked once on construction, and evicted after an idle TTL or on
// explicit invalidation.
package registry

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"llm-gateway/internal/domain/credential"
	domainmodel "llm-gateway/internal/domain/model"
	"llm-gateway/internal/infrastructure/connector"
	"llm-gateway/internal/infrastructure/logger"
	"llm-gateway/internal/utils/platformerrors"
)

// DefaultIdleTTL is how long an unused handle stays cached.
const DefaultIdleTTL = 30 * time.Minute

// Availability of a cached handle.
type Availability string

const (
	AvailabilityOK       Availability = "ok"
	AvailabilityDegraded Availability = "degraded"
	AvailabilityDown     Availability = "down"
)

// Handle is a materialized connector bound to one user's credentials. The
// registry exclusively owns handles; callers borrow them for the duration of
// a single invocation.
type Handle struct {
	ProviderID   string
	UserID       string
	Connector    connector.Connector
	Digest       string
	CreatedAt    time.Time
	Availability Availability

	// lastUsedNano is touched on every acquire, possibly concurrently
	// with a sweep, hence the atomic.
	lastUsedNano atomic.Int64

	// notConfigured marks a sentinel cached after an auth-class
	// construction failure, so broken credentials are not re-tried on
	// every acquire.
	notConfigured bool
}

// LastUsedAt reports when the handle was last borrowed.
func (h *Handle) LastUsedAt() time.Time {
	return time.Unix(0, h.lastUsedNano.Load())
}

// Factory materializes a connector from a provider descriptor and one
// credential record.
type Factory func(p *domainmodel.Provider, rec credential.Record) connector.Connector

// QuotaView is the read side of the quota tracker the registry consults for
// AvailableProvidersFor.
type QuotaView interface {
	MayUse(providerID string) bool
}

// Registry caches connector handles per (user, provider). Construction for
// the same key is serialized through singleflight so concurrent acquires
// never materialize duplicate connectors.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]*Handle

	group   singleflight.Group
	store   credential.Store
	catalog *domainmodel.Catalog
	factory Factory

	idleTTL       time.Duration
	healthTimeout time.Duration
	now           func() time.Time
}

// Option customizes a Registry.
type Option func(*Registry)

// WithIdleTTL overrides the idle eviction threshold.
func WithIdleTTL(ttl time.Duration) Option {
	return func(r *Registry) { r.idleTTL = ttl }
}

// WithClock overrides the clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func New(store credential.Store, catalog *domainmodel.Catalog, factory Factory, opts ...Option) *Registry {
	r := &Registry{
		handles:       make(map[string]*Handle),
		store:         store,
		catalog:       catalog,
		factory:       factory,
		idleTTL:       DefaultIdleTTL,
		healthTimeout: 5 * time.Second,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func key(userID, providerID string) string {
	return userID + "\x00" + providerID
}

// Acquire returns the cached handle for (userID, providerID), materializing
// it from the credential store on first use. A pair whose credentials were
// rejected is cached as a not-configured sentinel until invalidated.
func (r *Registry) Acquire(ctx context.Context, userID, providerID string) (*Handle, error) {
	k := key(userID, providerID)

	r.mu.RLock()
	h, ok := r.handles[k]
	r.mu.RUnlock()
	if ok {
		if h.notConfigured {
			return nil, notConfiguredError(ctx, userID, providerID)
		}
		if h.Availability == AvailabilityDown || r.expired(h) {
			r.Invalidate(userID, providerID)
		} else {
			r.touch(h)
			return h, nil
		}
	}

	v, err, _ := r.group.Do(k, func() (any, error) {
		// Re-check under singleflight: another flight may have built it.
		r.mu.RLock()
		cached, ok := r.handles[k]
		r.mu.RUnlock()
		if ok && !cached.notConfigured && cached.Availability != AvailabilityDown && !r.expired(cached) {
			return cached, nil
		}
		return r.materialize(ctx, userID, providerID)
	})
	if err != nil {
		return nil, err
	}

	h = v.(*Handle)
	if h.notConfigured {
		return nil, notConfiguredError(ctx, userID, providerID)
	}
	r.touch(h)
	return h, nil
}

func (r *Registry) materialize(ctx context.Context, userID, providerID string) (*Handle, error) {
	log := logger.Component("registry")

	provider := r.catalog.Provider(providerID)
	if provider == nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRegistry, platformerrors.ErrorTypeNotConfigured, "unknown provider: "+providerID, nil, "")
	}

	creds, err := r.store.Get(ctx, userID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRegistry, err, "credential store read failed")
	}
	rec, ok := creds[providerID]
	if !ok || rec.Empty() {
		return r.cacheSentinel(userID, providerID), nil
	}

	conn := r.factory(provider, rec)

	healthCtx, cancel := context.WithTimeout(ctx, r.healthTimeout)
	status := conn.HealthCheck(healthCtx)
	cancel()
	if !status.OK {
		if looksLikeAuthFailure(status.Error) {
			log.Warn().
				Str("user_id", userID).
				Str("provider_id", providerID).
				Str("error", status.Error).
				Msg("credentials rejected, caching not-configured sentinel")
			return r.cacheSentinel(userID, providerID), nil
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRegistry, platformerrors.ErrorTypeTransient, "provider health check failed: "+status.Error, nil, "")
	}

	now := r.now()
	h := &Handle{
		ProviderID:   providerID,
		UserID:       userID,
		Connector:    conn,
		Digest:       rec.Digest(),
		CreatedAt:    now,
		Availability: AvailabilityOK,
	}
	h.lastUsedNano.Store(now.UnixNano())
	r.mu.Lock()
	r.handles[key(userID, providerID)] = h
	r.mu.Unlock()

	log.Debug().
		Str("user_id", userID).
		Str("provider_id", providerID).
		Int64("health_latency_ms", status.LatencyMs).
		Msg("handle materialized")
	return h, nil
}

func (r *Registry) cacheSentinel(userID, providerID string) *Handle {
	h := &Handle{
		ProviderID:    providerID,
		UserID:        userID,
		CreatedAt:     r.now(),
		notConfigured: true,
	}
	h.lastUsedNano.Store(r.now().UnixNano())
	r.mu.Lock()
	r.handles[key(userID, providerID)] = h
	r.mu.Unlock()
	return h
}

// MarkDown flags a cached handle so the next acquire rebuilds it.
func (r *Registry) MarkDown(userID, providerID string) {
	r.mu.Lock()
	if h, ok := r.handles[key(userID, providerID)]; ok {
		h.Availability = AvailabilityDown
	}
	r.mu.Unlock()
}

// Invalidate drops cached handles for the user. With no provider ids it
// drops every handle the user owns; called whenever credentials change.
func (r *Registry) Invalidate(userID string, providerIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(providerIDs) == 0 {
		for k, h := range r.handles {
			if h.UserID == userID {
				delete(r.handles, k)
			}
		}
		return
	}
	for _, providerID := range providerIDs {
		delete(r.handles, key(userID, providerID))
	}
}

// Sweep removes handles idle longer than the TTL and returns how many were
// evicted. Safe to run concurrently with Acquire.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for k, h := range r.handles {
		if r.expired(h) {
			delete(r.handles, k)
			evicted++
		}
	}
	if evicted > 0 {
		logger.Component("registry").Info().Int("evicted", evicted).Msg("idle handles swept")
	}
	return evicted
}

// AvailableProvidersFor returns the provider ids the user can currently
// route to: configured credentials and a non-exceeded, non-down quota state.
func (r *Registry) AvailableProvidersFor(ctx context.Context, userID string, quota QuotaView) []string {
	creds, err := r.store.Get(ctx, userID)
	if err != nil {
		logger.Component("registry").Error().Err(err).Str("user_id", userID).Msg("credential store read failed")
		return nil
	}

	out := make([]string, 0, len(creds))
	for _, p := range r.catalog.Providers() {
		rec, ok := creds[p.PublicID]
		if !ok || rec.Empty() {
			continue
		}
		if r.isNotConfigured(userID, p.PublicID) {
			continue
		}
		if quota != nil && !quota.MayUse(p.PublicID) {
			continue
		}
		out = append(out, p.PublicID)
	}
	return out
}

// PreferredModelsFor collects the preferred model each of the user's
// credentials names, in catalog order. Selection treats these like explicit
// per-request preferences.
func (r *Registry) PreferredModelsFor(ctx context.Context, userID string) []string {
	creds, err := r.store.Get(ctx, userID)
	if err != nil {
		logger.Component("registry").Error().Err(err).Str("user_id", userID).Msg("credential store read failed")
		return nil
	}

	var out []string
	seen := make(map[string]bool)
	for _, p := range r.catalog.Providers() {
		rec, ok := creds[p.PublicID]
		if !ok || rec.PreferredModel == "" || seen[rec.PreferredModel] {
			continue
		}
		seen[rec.PreferredModel] = true
		out = append(out, rec.PreferredModel)
	}
	return out
}

// ActiveHandleCounts returns the number of live handles per user, for
// diagnostics.
func (r *Registry) ActiveHandleCounts() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int)
	for _, h := range r.handles {
		if !h.notConfigured {
			out[h.UserID]++
		}
	}
	return out
}

func (r *Registry) isNotConfigured(userID, providerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[key(userID, providerID)]
	return ok && h.notConfigured
}

func (r *Registry) expired(h *Handle) bool {
	return r.now().Sub(h.LastUsedAt()) > r.idleTTL
}

func (r *Registry) touch(h *Handle) {
	h.lastUsedNano.Store(r.now().UnixNano())
}

func looksLikeAuthFailure(msg string) bool {
	return strings.Contains(msg, "[AUTH]") ||
		strings.Contains(msg, "status 401") ||
		strings.Contains(msg, "status 403")
}

func notConfiguredError(ctx context.Context, userID, providerID string) error {
	return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerRegistry, platformerrors.ErrorTypeNotConfigured,
		"provider not configured for user", nil, "", map[string]any{
			"user_id":     userID,
			"provider_id": providerID,
		})
}
