// Package quota tracks per-provider daily usage counters and provider
// health. Counters are partitioned by UTC calendar day and reset implicitly
// on rollover.
package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"llm-gateway/internal/infrastructure/logger"
	"llm-gateway/internal/utils/platformerrors"
)

const (
	// DayKeyFormat is the UTC calendar-day partition key layout.
	DayKeyFormat = "2006-01-02"

	// consecutiveFailureThreshold flips the provider health flag to down.
	consecutiveFailureThreshold = 5

	// DefaultCoolOff is how long a provider stays down after persistent
	// failures.
	DefaultCoolOff = 2 * time.Minute

	warningPercent = 75.0
)

// CounterState is the persistable form of one provider's daily counter.
type CounterState struct {
	ProviderID string `json:"provider_id"`
	DayKey     string `json:"day_key"`
	Used       int    `json:"used"`
	Limit      int    `json:"limit"`
	Exceeded   bool   `json:"exceeded"`
}

// Store persists counters across restarts. Optional: a nil store keeps
// counters in memory only.
type Store interface {
	LoadQuota(ctx context.Context) ([]CounterState, error)
	SaveQuota(ctx context.Context, states []CounterState) error
}

// Snapshot is the externally visible view of one counter.
type Snapshot struct {
	ProviderID  string    `json:"provider_id"`
	DayKey      string    `json:"day_key"`
	Used        int       `json:"used"`
	Limit       int       `json:"limit"`
	Remaining   int       `json:"remaining"`
	PercentUsed float64   `json:"percent_used"`
	Exceeded    bool      `json:"exceeded"`
	Down        bool      `json:"down"`
	ResetAt     time.Time `json:"reset_at"`
}

type counter struct {
	dayKey              string
	used                int
	limit               int
	exceeded            bool
	consecutiveFailures int
	downUntil           time.Time
}

// Tracker maintains one counter per provider. All state transitions happen
// under a single mutex; the rollover check reads dayKey and resets under the
// same lock that increments.
type Tracker struct {
	mu           sync.Mutex
	counters     map[string]*counter
	limits       map[string]int
	defaultLimit int
	coolOff      time.Duration
	now          func() time.Time
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithCoolOff overrides the down cool-off window.
func WithCoolOff(d time.Duration) Option {
	return func(t *Tracker) { t.coolOff = d }
}

// NewTracker builds a tracker with per-provider daily limits. A limit of 0
// means unlimited.
func NewTracker(limits map[string]int, defaultLimit int, opts ...Option) *Tracker {
	t := &Tracker{
		counters:     make(map[string]*counter),
		limits:       make(map[string]int, len(limits)),
		defaultLimit: defaultLimit,
		coolOff:      DefaultCoolOff,
		now:          time.Now,
	}
	for id, limit := range limits {
		t.limits[id] = limit
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) limitFor(providerID string) int {
	if limit, ok := t.limits[providerID]; ok {
		return limit
	}
	return t.defaultLimit
}

// get returns the counter for providerID, creating and rolling it as needed.
// Caller must hold t.mu.
func (t *Tracker) get(providerID string) *counter {
	today := t.now().UTC().Format(DayKeyFormat)
	c, ok := t.counters[providerID]
	if !ok {
		c = &counter{dayKey: today, limit: t.limitFor(providerID)}
		t.counters[providerID] = c
		return c
	}
	if c.dayKey != today {
		c.dayKey = today
		c.used = 0
		c.exceeded = false
		c.consecutiveFailures = 0
		logger.Component("quota").Info().
			Str("provider_id", providerID).
			Str("day_key", today).
			Msg("quota counter rolled over")
	}
	return c
}

// MayUse reports whether the provider is usable right now: under its daily
// limit and not in a cool-off window.
func (t *Tracker) MayUse(providerID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.get(providerID)
	if c.exceeded {
		return false
	}
	if c.limit > 0 && c.used >= c.limit {
		return false
	}
	if t.now().Before(c.downUntil) {
		return false
	}
	return true
}

// RecordSuccess increments the daily counter and clears the transient
// failure streak.
func (t *Tracker) RecordSuccess(providerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.get(providerID)
	c.used++
	c.consecutiveFailures = 0
	c.downUntil = time.Time{}
	if c.limit > 0 && c.used >= c.limit {
		c.exceeded = true
	}
}

// RecordFailure updates health bookkeeping for a failed invocation. A quota
// failure marks the day exceeded; the fifth consecutive transient failure
// takes the provider down for the cool-off window. Other kinds leave the
// counter untouched.
func (t *Tracker) RecordFailure(providerID string, kind platformerrors.ErrorType) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.get(providerID)
	switch kind {
	case platformerrors.ErrorTypeQuota:
		c.exceeded = true
	case platformerrors.ErrorTypeTransient:
		c.consecutiveFailures++
		if c.consecutiveFailures >= consecutiveFailureThreshold {
			c.downUntil = t.now().Add(t.coolOff)
			c.consecutiveFailures = 0
			logger.Component("quota").Warn().
				Str("provider_id", providerID).
				Dur("cool_off", t.coolOff).
				Msg("provider marked down after persistent failures")
		}
	}
}

// Snapshot returns the current view of one counter.
func (t *Tracker) Snapshot(providerID string) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(providerID)
}

func (t *Tracker) snapshotLocked(providerID string) Snapshot {
	c := t.get(providerID)
	s := Snapshot{
		ProviderID: providerID,
		DayKey:     c.dayKey,
		Used:       c.used,
		Limit:      c.limit,
		Exceeded:   c.exceeded,
		Down:       t.now().Before(c.downUntil),
		ResetAt:    nextUTCMidnight(t.now()),
	}
	if c.limit > 0 {
		s.Remaining = c.limit - c.used
		if s.Remaining < 0 {
			s.Remaining = 0
		}
		s.PercentUsed = float64(c.used) / float64(c.limit) * 100
	}
	return s
}

// SnapshotAll returns every tracked counter, for diagnostics.
func (t *Tracker) SnapshotAll() []Snapshot {
	t.mu.Lock()
	ids := make([]string, 0, len(t.counters))
	for id := range t.counters {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	out := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.Snapshot(id))
	}
	return out
}

// Warning returns a human-readable usage warning once the provider has
// consumed 75% of its daily limit, and "" below that.
func (t *Tracker) Warning(providerID string) string {
	s := t.Snapshot(providerID)
	if s.Limit <= 0 || s.PercentUsed < warningPercent {
		return ""
	}
	return fmt.Sprintf("provider %s has used %.0f%% of its daily quota (%d/%d), resets at %s",
		providerID, s.PercentUsed, s.Used, s.Limit, s.ResetAt.Format(time.RFC3339))
}

// LoadFrom restores counters from the store, discarding stale day keys.
func (t *Tracker) LoadFrom(ctx context.Context, store Store) error {
	if store == nil {
		return nil
	}
	states, err := store.LoadQuota(ctx)
	if err != nil {
		return err
	}

	today := t.now().UTC().Format(DayKeyFormat)
	t.mu.Lock()
	defer t.mu.Unlock()
	restored := 0
	for _, st := range states {
		if st.DayKey != today {
			continue
		}
		t.counters[st.ProviderID] = &counter{
			dayKey:   st.DayKey,
			used:     st.Used,
			limit:    t.limitFor(st.ProviderID),
			exceeded: st.Exceeded,
		}
		restored++
	}
	logger.Component("quota").Info().
		Int("restored", restored).
		Int("discarded", len(states)-restored).
		Msg("quota counters loaded")
	return nil
}

// FlushTo persists the current counters.
func (t *Tracker) FlushTo(ctx context.Context, store Store) error {
	if store == nil {
		return nil
	}
	t.mu.Lock()
	states := make([]CounterState, 0, len(t.counters))
	for id, c := range t.counters {
		states = append(states, CounterState{
			ProviderID: id,
			DayKey:     c.dayKey,
			Used:       c.used,
			Limit:      c.limit,
			Exceeded:   c.exceeded,
		})
	}
	t.mu.Unlock()
	return store.SaveQuota(ctx, states)
}

func nextUTCMidnight(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}
