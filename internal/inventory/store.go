package inventory

import (
	"errors"
	"fmt"
	"sync"
)

// Store errors
var (
	ErrNotFound    = errors.New("inventory: item not found")
	ErrDuplicateID = errors.New("inventory: duplicate item id")
)

// Store is the in-memory item collection. Contents live for the process
// lifetime only; a restart starts from an empty inventory. Items keep
// their insertion order.
type Store struct {
	mu    sync.RWMutex
	items []*FoodItem
	index map[string]int
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{index: make(map[string]int)}
}

// Add appends an item. The id must be unique and the name non-empty.
func (s *Store) Add(item *FoodItem) error {
	if item.ID == "" {
		return fmt.Errorf("inventory: item id is required")
	}
	if item.Name == "" {
		return fmt.Errorf("inventory: item name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[item.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, item.ID)
	}

	copied := *item
	s.index[item.ID] = len(s.items)
	s.items = append(s.items, &copied)
	return nil
}

// Get returns a copy of the item with the given id
func (s *Store) Get(id string) (*FoodItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, exists := s.index[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	copied := *s.items[pos]
	return &copied, nil
}

// List returns all items in insertion order. The returned slice and its
// elements are copies; callers may mutate them freely.
func (s *Store) List() []*FoodItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*FoodItem, len(s.items))
	for i, item := range s.items {
		copied := *item
		result[i] = &copied
	}
	return result
}

// ToggleConsumed flips the consumed flag and returns the updated item
func (s *Store) ToggleConsumed(id string) (*FoodItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, exists := s.index[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.items[pos].Consumed = !s.items[pos].Consumed
	copied := *s.items[pos]
	return &copied, nil
}

// Remove deletes an item, preserving the order of the remainder
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, exists := s.index[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.items = append(s.items[:pos], s.items[pos+1:]...)
	delete(s.index, id)
	for i := pos; i < len(s.items); i++ {
		s.index[s.items[i].ID] = i
	}
	return nil
}

// Len returns the number of items
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
