// Package credential models per-user provider credentials and the store the
// registry reads them from. The gateway never authenticates users; it trusts
// the caller-supplied user id.
package credential

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Record holds one user's access to one provider. An absent record means "no
// access via this provider for this user". UseShared selects the
// process-wide credential set instead of the per-user fields.
type Record struct {
	APIKey         string `json:"api_key,omitempty"`
	BaseURL        string `json:"base_url,omitempty"`
	PreferredModel string `json:"preferred_model,omitempty"`
	UseShared      bool   `json:"use_shared,omitempty"`
}

// Empty reports whether the record grants no access on its own.
func (r Record) Empty() bool {
	return r.APIKey == "" && r.BaseURL == "" && !r.UseShared
}

// Digest returns a stable fingerprint of the credential material. The
// registry compares digests to detect rotation; the raw key never leaves the
// record.
func (r Record) Digest() string {
	h := sha256.New()
	h.Write([]byte(r.APIKey))
	h.Write([]byte{0})
	h.Write([]byte(r.BaseURL))
	return hex.EncodeToString(h.Sum(nil))
}

// Store is the external credential collaborator the registry consumes.
type Store interface {
	// Get returns every provider record the user can access. Stores backing
	// shared credentials resolve the UseShared substitution before returning.
	Get(ctx context.Context, userID string) (map[string]Record, error)
	// Set installs or replaces the record for (userID, providerID).
	Set(ctx context.Context, userID, providerID string, rec Record) error
}

// ChangeNotifier is an optional store capability. Stores that can push
// credential-change events let the registry invalidate handles eagerly
// instead of waiting for the next acquire.
type ChangeNotifier interface {
	SubscribeChanges(userID string, fn func(providerID string))
}
