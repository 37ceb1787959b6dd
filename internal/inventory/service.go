package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/freshkeep/freshkeep/internal/imaging"
	"github.com/freshkeep/freshkeep/internal/vision"
)

// Service errors
var (
	ErrScanInProgress  = errors.New("inventory: a scan is already in progress")
	ErrSessionNotFound = errors.New("inventory: review session not found")
)

// IDGenerator generates unique IDs for items and sessions
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// Recognizer runs food detection on a normalized image
type Recognizer interface {
	Recognize(ctx context.Context, bitmap *imaging.Bitmap, precision vision.Precision) ([]vision.Candidate, error)
}

// defaultIDGenerator generates UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles inventory operations: scanning images into review
// sessions, promoting accepted candidates into the store, and serving
// filtered listings.
type Service struct {
	store       *Store
	images      *ImageStore
	recognizer  Recognizer
	idGenerator IDGenerator
	timeSource  TimeSource

	// scanning is the single-flight gate: at most one recognition runs
	// at a time and further scan requests fail fast
	scanning atomic.Bool

	sessionMu sync.Mutex
	sessions  map[string]*ReviewSession
}

// NewService creates a new Service with default ID generator and time source
func NewService(store *Store, images *ImageStore, recognizer Recognizer) *Service {
	return NewServiceWithDeps(store, images, recognizer, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(store *Store, images *ImageStore, recognizer Recognizer, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		store:       store,
		images:      images,
		recognizer:  recognizer,
		idGenerator: idGen,
		timeSource:  timeSrc,
		sessions:    make(map[string]*ReviewSession),
	}
}

// ScanFile normalizes an uploaded file and runs recognition on it
func (s *Service) ScanFile(ctx context.Context, data []byte, contentType string, precision vision.Precision) (*ReviewSession, error) {
	if !s.scanning.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}
	defer s.scanning.Store(false)

	bitmap, err := imaging.Normalize(data, contentType)
	if err != nil {
		slog.Error("Failed to decode scan upload",
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return nil, fmt.Errorf("decoding upload: %w", err)
	}

	return s.recognize(ctx, bitmap, precision)
}

// ScanBitmap runs recognition on an already-captured frame
func (s *Service) ScanBitmap(ctx context.Context, bitmap *imaging.Bitmap, precision vision.Precision) (*ReviewSession, error) {
	if !s.scanning.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}
	defer s.scanning.Store(false)

	return s.recognize(ctx, bitmap, precision)
}

// recognize runs detection and opens a review session. Nothing here
// touches the item store; a failed scan leaves the inventory exactly as
// it was.
func (s *Service) recognize(ctx context.Context, bitmap *imaging.Bitmap, precision vision.Precision) (*ReviewSession, error) {
	candidates, err := s.recognizer.Recognize(ctx, bitmap, precision)
	if err != nil {
		slog.Error("Recognition failed", "error", err)
		return nil, fmt.Errorf("recognizing image: %w", err)
	}

	session := newReviewSession(s.idGenerator.Generate(), candidates, bitmap.PNG, s.idGenerator, s.timeSource.Now())

	s.sessionMu.Lock()
	s.sessions[session.ID] = session
	s.sessionMu.Unlock()

	slog.Info("Opened review session", "session_id", session.ID, "candidates", len(session.Candidates))
	return session, nil
}

// GetSession returns a pending review session
func (s *Service) GetSession(id string) (*ReviewSession, error) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	session, exists := s.sessions[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return session, nil
}

// AcceptSession promotes every candidate in a session into the store
// with fresh item ids and the given expiry date. Promotion is all or
// nothing: if any item cannot be added, the ones before it are rolled
// back, the session is restored, and the inventory is exactly as it
// was. A successful accept consumes the session.
func (s *Service) AcceptSession(id string, expiry time.Time) ([]*FoodItem, error) {
	s.sessionMu.Lock()
	session, exists := s.sessions[id]
	if exists {
		delete(s.sessions, id)
	}
	s.sessionMu.Unlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	now := s.timeSource.Now()
	items := make([]*FoodItem, 0, len(session.Candidates))
	for _, candidate := range session.Candidates {
		item := &FoodItem{
			ID:         s.idGenerator.Generate(),
			Name:       candidate.Name,
			Category:   candidate.Category,
			ExpiryDate: expiry,
			Consumed:   false,
			Source:     SourceScanned,
			CreatedAt:  now,
		}
		if len(session.Image) > 0 {
			item.ImageURL = s.images.Save(item.ID, session.Image)
		}
		if err := s.store.Add(item); err != nil {
			s.images.Delete(item.ID)
			for _, undo := range items {
				s.store.Remove(undo.ID)
				s.images.Delete(undo.ID)
			}
			s.sessionMu.Lock()
			s.sessions[id] = session
			s.sessionMu.Unlock()
			return nil, fmt.Errorf("adding item %q: %w", item.Name, err)
		}
		items = append(items, item)
	}

	slog.Info("Accepted review session", "session_id", id, "items", len(items))
	return items, nil
}

// CancelSession discards a review session without touching the store
func (s *Service) CancelSession(id string) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	if _, exists := s.sessions[id]; !exists {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(s.sessions, id)
	slog.Info("Cancelled review session", "session_id", id)
	return nil
}

// AddItem creates a manually-entered item
func (s *Service) AddItem(name, category string, expiry time.Time) (*FoodItem, error) {
	if name == "" {
		return nil, fmt.Errorf("item name is required")
	}
	normalized := NormalizeCategory(category)
	if normalized == "" {
		normalized = GuessCategory(name)
	}

	item := &FoodItem{
		ID:         s.idGenerator.Generate(),
		Name:       name,
		Category:   normalized,
		ExpiryDate: expiry,
		Consumed:   false,
		Source:     SourceManual,
		CreatedAt:  s.timeSource.Now(),
	}
	if err := s.store.Add(item); err != nil {
		return nil, fmt.Errorf("adding item: %w", err)
	}
	return item, nil
}

// GetItem returns a single item by id
func (s *Service) GetItem(id string) (*FoodItem, error) {
	return s.store.Get(id)
}

// ListItems returns items matching the criteria, in insertion order
func (s *Service) ListItems(criteria Criteria) []*FoodItem {
	return Filter(s.store.List(), criteria, s.timeSource.Now())
}

// ToggleConsumed flips an item's consumed flag
func (s *Service) ToggleConsumed(id string) (*FoodItem, error) {
	return s.store.ToggleConsumed(id)
}

// RemoveItem deletes an item and its stored image
func (s *Service) RemoveItem(id string) error {
	if err := s.store.Remove(id); err != nil {
		return err
	}
	s.images.Delete(id)
	return nil
}

// GetItemImage returns the stored source image for an item
func (s *Service) GetItemImage(id string) ([]byte, error) {
	return s.images.Get(id)
}

// Summary counts unconsumed items per expiry bucket
type Summary struct {
	Total        int `json:"total"`
	Expired      int `json:"expired"`
	ExpiringSoon int `json:"expiring_soon"`
	Safe         int `json:"safe"`
}

// Summarize builds bucket counts over the unconsumed inventory
func (s *Service) Summarize() Summary {
	now := s.timeSource.Now()
	var summary Summary
	for _, item := range s.store.List() {
		if item.Consumed {
			continue
		}
		summary.Total++
		switch BucketOf(item.ExpiryDate, now) {
		case BucketExpired:
			summary.Expired++
		case BucketExpiringSoon:
			summary.ExpiringSoon++
		case BucketSafe:
			summary.Safe++
		}
	}
	return summary
}
