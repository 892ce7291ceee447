package store

import (
	"context"
	"sort"
	"sync"

	"github.com/candorops/signoff/model"
)

type stateKey struct {
	incidentID string
	kind       model.WorkflowKind
}

// MemoryStateStore is an in-memory StateStore for tests and single-shot
// deployments that accept losing state on restart.
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[stateKey]model.WorkflowState
}

// NewMemoryStateStore creates a new in-memory state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[stateKey]model.WorkflowState)}
}

// Save upserts the state, last write wins.
func (s *MemoryStateStore) Save(_ context.Context, state model.WorkflowState) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[stateKey{state.IncidentID, state.Kind}] = state.Clone()
	return state.IncidentID, nil
}

// LoadByIncident retrieves a persisted state, absence reported via the bool.
func (s *MemoryStateStore) LoadByIncident(_ context.Context, incidentID string, kind model.WorkflowKind) (model.WorkflowState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[stateKey{incidentID, kind}]
	if !ok {
		return model.WorkflowState{}, false, nil
	}
	return state.Clone(), true, nil
}

// ListOpen returns every persisted state whose step is not completed.
func (s *MemoryStateStore) ListOpen(_ context.Context) ([]model.WorkflowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.WorkflowState
	for _, state := range s.states {
		if state.Step == model.StepCompleted {
			continue
		}
		result = append(result, state.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.Before(result[j].UpdatedAt)
	})
	return result, nil
}

// Len returns the total number of persisted states. For testing.
func (s *MemoryStateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

// Compile-time interface check.
var _ StateStore = (*MemoryStateStore)(nil)
