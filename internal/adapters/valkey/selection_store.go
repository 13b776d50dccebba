package valkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/samirrijal/pourzone/internal/core/domain"
)

const selectionTTL = 30 * 24 * 60 * 60

// SelectionStore implements ports.SelectionStore on top of Cache. Each session has one
// fixed key holding its selection as JSON.
type SelectionStore struct {
	cache *Cache
}

// NewSelectionStore creates a new SelectionStore.
func NewSelectionStore(cache *Cache) *SelectionStore {
	return &SelectionStore{cache: cache}
}

func selectionKey(sessionID string) string {
	return "selection:" + sessionID
}

// Load returns the persisted selection, or an empty one.
func (s *SelectionStore) Load(ctx context.Context, sessionID string) (domain.Selection, error) {
	data, err := s.cache.Get(ctx, selectionKey(sessionID))
	if errors.Is(err, ErrMiss) {
		return domain.Selection{}, nil
	}
	if err != nil {
		return domain.Selection{}, fmt.Errorf("load selection: %w", err)
	}
	var sel domain.Selection
	if err := json.Unmarshal(data, &sel); err != nil {
		return domain.Selection{}, fmt.Errorf("decode selection: %w", err)
	}
	return sel, nil
}

// Save persists the selection for 30 days.
func (s *SelectionStore) Save(ctx context.Context, sessionID string, sel domain.Selection) error {
	data, err := json.Marshal(sel)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, selectionKey(sessionID), data, selectionTTL)
}

// Clear removes the persisted selection.
func (s *SelectionStore) Clear(ctx context.Context, sessionID string) error {
	return s.cache.Delete(ctx, selectionKey(sessionID))
}
