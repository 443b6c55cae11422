package vault

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore holds credentials in memory. After Lock it reports ErrLocked
// until Unlock is called.
type MemoryStore struct {
	mu     sync.RWMutex
	creds  []CredentialView
	locked bool
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(creds ...CredentialView) *MemoryStore {
	return &MemoryStore{creds: slices.Clone(creds)}
}

func (m *MemoryStore) ListAll(ctx context.Context) ([]CredentialView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.locked {
		return nil, ErrLocked
	}
	return cloneViews(m.creds), nil
}

func (m *MemoryStore) Lock(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locked = true
	return nil
}

// Unlock makes credentials available again.
func (m *MemoryStore) Unlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locked = false
}

// Locked reports whether Lock has been called since the last Unlock.
func (m *MemoryStore) Locked() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.locked
}

func cloneViews(in []CredentialView) []CredentialView {
	out := make([]CredentialView, len(in))
	for i, c := range in {
		c.OriginPatterns = slices.Clone(c.OriginPatterns)
		out[i] = c
	}
	return out
}
