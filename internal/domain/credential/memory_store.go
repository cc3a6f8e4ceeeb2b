package credential

import (
	"context"
	"sync"
)

// MemoryStore is the default in-process credential store. It also owns the
// process-wide shared credential set: users flagged for shared credentials
// (or records with UseShared) resolve to it transparently.
type MemoryStore struct {
	mu          sync.RWMutex
	perUser     map[string]map[string]Record // userID -> providerID -> record
	shared      map[string]Record            // providerID -> record
	sharedUsers map[string]bool
	subscribers map[string][]func(providerID string)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		perUser:     make(map[string]map[string]Record),
		shared:      make(map[string]Record),
		sharedUsers: make(map[string]bool),
		subscribers: make(map[string][]func(string)),
	}
}

// SetShared installs the process-wide credential record for a provider.
func (s *MemoryStore) SetShared(ctx context.Context, providerID string, rec Record) error {
	s.mu.Lock()
	s.shared[providerID] = rec
	s.mu.Unlock()
	return nil
}

// MarkSharedUser flags a user to bypass per-user lookup entirely.
func (s *MemoryStore) MarkSharedUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	s.sharedUsers[userID] = true
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (map[string]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Record)
	if s.sharedUsers[userID] {
		for providerID, rec := range s.shared {
			out[providerID] = rec
		}
		return out, nil
	}

	for providerID, rec := range s.perUser[userID] {
		if rec.UseShared {
			if shared, ok := s.shared[providerID]; ok {
				shared.PreferredModel = rec.PreferredModel
				out[providerID] = shared
			}
			continue
		}
		out[providerID] = rec
	}
	return out, nil
}

func (s *MemoryStore) Set(ctx context.Context, userID, providerID string, rec Record) error {
	s.mu.Lock()
	if s.perUser[userID] == nil {
		s.perUser[userID] = make(map[string]Record)
	}
	s.perUser[userID][providerID] = rec
	subs := append([]func(string){}, s.subscribers[userID]...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(providerID)
	}
	return nil
}

// SubscribeChanges registers a callback fired after every Set for userID.
func (s *MemoryStore) SubscribeChanges(userID string, fn func(providerID string)) {
	s.mu.Lock()
	s.subscribers[userID] = append(s.subscribers[userID], fn)
	s.mu.Unlock()
}

var _ Store = (*MemoryStore)(nil)
var _ ChangeNotifier = (*MemoryStore)(nil)
