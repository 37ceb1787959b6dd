package capture

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Errors surfaced by camera acquisition. Both are recoverable: the caller
// stays in idle and may retry or fall back to a file upload.
var (
	ErrPermissionDenied  = errors.New("capture: camera permission denied")
	ErrDeviceUnavailable = errors.New("capture: camera device unavailable")
)

// Facing is the preferred camera facing mode
type Facing string

const (
	// FacingUser is the front-facing (selfie) camera
	FacingUser Facing = "user"
	// FacingEnvironment is the rear-facing camera, preferred on handhelds
	FacingEnvironment Facing = "environment"
)

// ParseFacing validates a facing mode string
func ParseFacing(s string) (Facing, error) {
	switch Facing(s) {
	case FacingUser, FacingEnvironment:
		return Facing(s), nil
	case "":
		return FacingEnvironment, nil
	default:
		return "", fmt.Errorf("invalid facing mode %q (valid: user, environment)", s)
	}
}

// Constraints describe the media stream request: preferred facing mode and
// target resolution.
type Constraints struct {
	Facing Facing
	Width  int
	Height int
}

// withDefaults fills unset constraint fields
func (c Constraints) withDefaults() Constraints {
	if c.Facing == "" {
		c.Facing = FacingEnvironment
	}
	if c.Width <= 0 {
		c.Width = 1280
	}
	if c.Height <= 0 {
		c.Height = 720
	}
	return c
}

// Frame is a single video frame in packed RGB form
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	// Data contains width*height*3 bytes of packed RGB pixels
	Data []byte
}

// Device grants access to camera hardware. A device is exclusively owned:
// while one stream is open, further Open calls fail with
// ErrDeviceUnavailable until the stream is stopped.
type Device interface {
	// Open requests a live stream matching the constraints. It blocks until
	// the hardware grant succeeds or fails with ErrPermissionDenied /
	// ErrDeviceUnavailable.
	Open(ctx context.Context, constraints Constraints) (Stream, error)
}

// Stream is a live camera stream handle
type Stream interface {
	// Frames returns the channel frames arrive on. The channel closes when
	// the stream stops.
	Frames() <-chan Frame

	// Stop releases the underlying hardware handle. Idempotent.
	Stop() error
}
