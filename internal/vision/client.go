package vision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/freshkeep/freshkeep/internal/imaging"
)

// minConfidence is the fixed cut-off for returned candidates. Detections
// at or below it are dropped silently; callers cannot change this.
const minConfidence = 0.5

// defaultTimeout bounds a single recognition call. Model load plus
// inference can take seconds; it must not hang forever.
const defaultTimeout = 60 * time.Second

// Client wraps a detection backend and owns the recognition policy:
// the strict confidence cut-off, the per-call timeout, and the guarantee
// that callers see either a complete filtered list or a failure, never a
// partially-filled one.
type Client struct {
	backend Detector
	timeout time.Duration
}

// NewClient creates a recognition client over a backend detector
func NewClient(backend Detector) *Client {
	return &Client{backend: backend, timeout: defaultTimeout}
}

// NewClientWithTimeout creates a client with a custom per-call timeout
func NewClientWithTimeout(backend Detector, timeout time.Duration) *Client {
	return &Client{backend: backend, timeout: timeout}
}

// Recognize runs object detection on a bitmap and returns candidates with
// confidence strictly greater than 0.5, in backend order, bounding boxes
// untouched. Errors wrap ErrRecognition.
func (c *Client) Recognize(ctx context.Context, bitmap *imaging.Bitmap, precision Precision) ([]Candidate, error) {
	if bitmap == nil || len(bitmap.PNG) == 0 {
		return nil, fmt.Errorf("%w: empty bitmap", ErrRecognition)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	raw, err := c.backend.Detect(ctx, bitmap, precision)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecognition, err)
	}

	confident := make([]Candidate, 0, len(raw))
	for _, candidate := range raw {
		if candidate.Confidence > minConfidence {
			confident = append(confident, candidate)
		}
	}

	slog.Debug("vision: recognition complete",
		"detections", len(raw),
		"confident", len(confident),
		"precision", precision,
		"elapsed", time.Since(started),
	)

	return confident, nil
}

// Close releases the backend's resources
func (c *Client) Close() error {
	return c.backend.Close()
}
