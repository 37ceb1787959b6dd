package inventory

import (
	"fmt"
	"sync"
)

// ImageStore keeps the source image for each item so listings can show
// what was scanned. Like the item store it is memory-only and cleared
// on restart.
type ImageStore struct {
	mu     sync.RWMutex
	images map[string][]byte
}

// NewImageStore creates an empty image store
func NewImageStore() *ImageStore {
	return &ImageStore{images: make(map[string][]byte)}
}

// Save stores PNG data under an item id and returns the serving path
func (s *ImageStore) Save(id string, png []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]byte, len(png))
	copy(copied, png)
	s.images[id] = copied
	return fmt.Sprintf("/api/items/%s/image", id)
}

// Get returns the PNG data for an item id
func (s *ImageStore) Get(id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	png, exists := s.images[id]
	if !exists {
		return nil, fmt.Errorf("%w: no image for %s", ErrNotFound, id)
	}
	return png, nil
}

// Delete removes the image for an item id. Missing entries are ignored.
func (s *ImageStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.images, id)
}
