package quota

import (
	"context"
	"strings"
	"testing"
	"time"

	"llm-gateway/internal/utils/platformerrors"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestMayUseUnderLimit(t *testing.T) {
	tr := NewTracker(map[string]int{"p1": 2}, 0)
	if !tr.MayUse("p1") {
		t.Fatal("expected provider usable before any use")
	}
	tr.RecordSuccess("p1")
	if !tr.MayUse("p1") {
		t.Fatal("expected provider usable at 1/2")
	}
	tr.RecordSuccess("p1")
	if tr.MayUse("p1") {
		t.Fatal("expected provider blocked at 2/2")
	}
}

func TestUnlimitedProvider(t *testing.T) {
	tr := NewTracker(nil, 0)
	for i := 0; i < 100; i++ {
		tr.RecordSuccess("p1")
	}
	if !tr.MayUse("p1") {
		t.Fatal("expected unlimited provider to stay usable")
	}
}

func TestQuotaFailureMarksExceeded(t *testing.T) {
	tr := NewTracker(map[string]int{"p1": 100}, 0)
	tr.RecordFailure("p1", platformerrors.ErrorTypeQuota)
	if tr.MayUse("p1") {
		t.Fatal("expected provider blocked after quota failure")
	}
	if !tr.Snapshot("p1").Exceeded {
		t.Fatal("expected snapshot to report exceeded")
	}
}

func TestConsecutiveTransientFailuresTakeProviderDown(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	clock := now
	tr := NewTracker(nil, 0, WithClock(func() time.Time { return clock }), WithCoolOff(2*time.Minute))

	for i := 0; i < 4; i++ {
		tr.RecordFailure("p1", platformerrors.ErrorTypeTransient)
		if !tr.MayUse("p1") {
			t.Fatalf("expected provider usable after %d transient failures", i+1)
		}
	}
	tr.RecordFailure("p1", platformerrors.ErrorTypeTransient)
	if tr.MayUse("p1") {
		t.Fatal("expected provider down after 5 consecutive transient failures")
	}

	clock = now.Add(3 * time.Minute)
	if !tr.MayUse("p1") {
		t.Fatal("expected provider back after cool-off")
	}
}

func TestSuccessClearsFailureStreak(t *testing.T) {
	tr := NewTracker(nil, 0)
	for i := 0; i < 4; i++ {
		tr.RecordFailure("p1", platformerrors.ErrorTypeTransient)
	}
	tr.RecordSuccess("p1")
	tr.RecordFailure("p1", platformerrors.ErrorTypeTransient)
	if !tr.MayUse("p1") {
		t.Fatal("expected success to reset the transient streak")
	}
}

func TestDayRollover(t *testing.T) {
	day1 := time.Date(2026, 8, 24, 23, 0, 0, 0, time.UTC)
	clock := day1
	tr := NewTracker(map[string]int{"p1": 1}, 0, WithClock(func() time.Time { return clock }))

	tr.RecordSuccess("p1")
	if tr.MayUse("p1") {
		t.Fatal("expected provider exhausted on day 1")
	}

	clock = day1.Add(2 * time.Hour) // 01:00 UTC next day
	if !tr.MayUse("p1") {
		t.Fatal("expected counter reset after UTC rollover")
	}
	s := tr.Snapshot("p1")
	if s.Used != 0 || s.Exceeded {
		t.Fatalf("expected fresh counter, got %+v", s)
	}
}

func TestSnapshotAndWarning(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(map[string]int{"p1": 4}, 0, WithClock(fixedClock(now)))
	for i := 0; i < 3; i++ {
		tr.RecordSuccess("p1")
	}

	s := tr.Snapshot("p1")
	if s.Used != 3 || s.Remaining != 1 || s.PercentUsed != 75 {
		t.Fatalf("unexpected snapshot: %+v", s)
	}
	if want := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC); !s.ResetAt.Equal(want) {
		t.Fatalf("unexpected reset time: %v", s.ResetAt)
	}

	warning := tr.Warning("p1")
	if warning == "" || !strings.Contains(warning, "75%") {
		t.Fatalf("expected 75%% warning, got %q", warning)
	}
	if tr.Warning("p2") != "" {
		t.Fatal("expected no warning for unused provider")
	}
}

type fakeStore struct {
	states []CounterState
	saved  []CounterState
}

func (f *fakeStore) LoadQuota(ctx context.Context) ([]CounterState, error) { return f.states, nil }
func (f *fakeStore) SaveQuota(ctx context.Context, states []CounterState) error {
	f.saved = states
	return nil
}

func TestLoadDiscardsStaleDays(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{states: []CounterState{
		{ProviderID: "p1", DayKey: "2026-08-24", Used: 5, Limit: 10},
		{ProviderID: "p2", DayKey: "2026-08-23", Used: 9, Limit: 10},
	}}
	tr := NewTracker(map[string]int{"p1": 10, "p2": 10}, 0, WithClock(fixedClock(now)))
	if err := tr.LoadFrom(context.Background(), store); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := tr.Snapshot("p1").Used; got != 5 {
		t.Fatalf("expected restored counter, got used=%d", got)
	}
	if got := tr.Snapshot("p2").Used; got != 0 {
		t.Fatalf("expected stale counter discarded, got used=%d", got)
	}
}

func TestFlushPersistsCounters(t *testing.T) {
	store := &fakeStore{}
	tr := NewTracker(map[string]int{"p1": 10}, 0)
	tr.RecordSuccess("p1")
	if err := tr.FlushTo(context.Background(), store); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.saved) != 1 || store.saved[0].Used != 1 {
		t.Fatalf("unexpected persisted states: %+v", store.saved)
	}
}
