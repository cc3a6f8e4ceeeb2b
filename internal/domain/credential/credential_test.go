package credential

import (
	"context"
	"testing"
)

func TestDigestChangesWithKey(t *testing.T) {
	a := Record{APIKey: "sk-old", BaseURL: "https://api.example.com/v1"}
	b := Record{APIKey: "sk-new", BaseURL: "https://api.example.com/v1"}
	if a.Digest() == b.Digest() {
		t.Fatal("expected different digests for different keys")
	}
	if a.Digest() != (Record{APIKey: "sk-old", BaseURL: "https://api.example.com/v1"}).Digest() {
		t.Fatal("expected digest to be stable")
	}
}

func TestMemoryStoreSharedSubstitution(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.SetShared(ctx, "p1", Record{APIKey: "shared-key", BaseURL: "https://shared.example.com/v1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := store.Set(ctx, "u1", "p1", Record{UseShared: true, PreferredModel: "gen-b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	recs, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec, ok := recs["p1"]
	if !ok {
		t.Fatal("expected shared record substitution")
	}
	if rec.APIKey != "shared-key" {
		t.Fatalf("expected shared key, got %q", rec.APIKey)
	}
	if rec.PreferredModel != "gen-b" {
		t.Fatalf("expected preferred model carried over, got %q", rec.PreferredModel)
	}
}

func TestMemoryStoreSharedUserBypass(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.SetShared(ctx, "p1", Record{APIKey: "shared-key"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.MarkSharedUser(ctx, "guest"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	recs, err := store.Get(ctx, "guest")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recs["p1"].APIKey != "shared-key" {
		t.Fatalf("expected shared credentials for flagged user, got %+v", recs)
	}
}

func TestMemoryStoreChangeNotification(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var notified []string
	store.SubscribeChanges("u1", func(providerID string) {
		notified = append(notified, providerID)
	})

	if err := store.Set(ctx, "u1", "p1", Record{APIKey: "k"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notified) != 1 || notified[0] != "p1" {
		t.Fatalf("unexpected notifications: %v", notified)
	}
}
