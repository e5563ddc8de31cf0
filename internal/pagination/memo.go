package pagination

import (
	"sync"

	"github.com/IshaanNene/blogscope/internal/types"
)

// Memo remembers the detected pattern per cache key. It is owned by the
// orchestrator and handed to adapters through FetchOptions.
type Memo struct {
	mu     sync.RWMutex
	states map[string]types.PaginationState
}

// NewMemo creates an empty Memo.
func NewMemo() *Memo {
	return &Memo{states: make(map[string]types.PaginationState)}
}

// Get returns the state for key.
func (m *Memo) Get(key string) (types.PaginationState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[key]
	return st, ok
}

// Record notes a fetched page and, when non-empty, the detected pattern.
// A known pattern is not replaced by an empty one.
func (m *Memo) Record(key, pattern string, page int) types.PaginationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.states[key]
	if pattern != "" {
		st.CurrentPatternURL = pattern
	}
	if page > st.PagesFetched {
		st.PagesFetched = page
	}
	m.states[key] = st
	return st
}

// Forget drops the state for key.
func (m *Memo) Forget(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, key)
}
