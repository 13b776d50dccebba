package memory

import (
	"context"
	"sync"

	"github.com/samirrijal/pourzone/internal/core/domain"
)

// SelectionStore implements ports.SelectionStore in process memory. Selections are lost
// on restart.
type SelectionStore struct {
	mu   sync.Mutex
	sels map[string]domain.Selection
}

// NewSelectionStore creates an empty SelectionStore.
func NewSelectionStore() *SelectionStore {
	return &SelectionStore{sels: make(map[string]domain.Selection)}
}

func (s *SelectionStore) Load(ctx context.Context, sessionID string) (domain.Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sels[sessionID], nil
}

func (s *SelectionStore) Save(ctx context.Context, sessionID string, sel domain.Selection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sels[sessionID] = sel
	return nil
}

func (s *SelectionStore) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sels, sessionID)
	return nil
}
