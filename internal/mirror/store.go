package mirror

import (
	"context"
	"sync"
)

// Store persists mirror state on the device. Load returns nil, nil when the
// identifier has no record.
type Store interface {
	Load(ctx context.Context, identifier string) (*State, error)
	Save(ctx context.Context, st *State) error
	Delete(ctx context.Context, identifier string) error
}

// MemoryStore keeps state for the life of the process
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]*State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]*State)}
}

func (m *MemoryStore) Load(ctx context.Context, identifier string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[identifier]
	if !ok {
		return nil, nil
	}
	return st.clone(), nil
}

func (m *MemoryStore) Save(ctx context.Context, st *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.Identifier] = st.clone()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, identifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, identifier)
	return nil
}
