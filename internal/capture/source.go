package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/freshkeep/freshkeep/internal/imaging"
)

// State is the capture source lifecycle state
type State int

const (
	// StateIdle means no camera handle is held
	StateIdle State = iota
	// StateActive means the camera stream is live
	StateActive
	// StateCaptured means a frame or file was taken and the handle released
	StateCaptured
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateCaptured:
		return "captured"
	default:
		return "unknown"
	}
}

// grantTimeout bounds how long Start waits for the first frame after the
// device opens. A stream that never delivers is treated as unavailable.
const grantTimeout = 10 * time.Second

// Source acquires a still image either from a live camera stream or a file
// upload. The camera handle is a scoped resource: acquired by Start,
// released on Capture, Cancel, Reset and Close, on every exit path
// including errors.
//
// States: idle → active → captured → idle, with idle → active → idle when
// the user cancels. FromFile bypasses the camera states entirely.
type Source struct {
	device Device

	mu       sync.Mutex
	state    State
	stream   Stream
	pumpStop chan struct{}
	pumpDone chan struct{}

	frameMu sync.Mutex
	latest  Frame

	captured *imaging.Bitmap
}

// NewSource creates a capture source over a camera device
func NewSource(device Device) *Source {
	return &Source{device: device, state: StateIdle}
}

// State returns the current lifecycle state
func (s *Source) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start requests camera access and transitions idle → active. It blocks
// until the hardware grant succeeds and the stream delivers its first
// frame. On failure the source remains idle and holds no handle; the
// caller may retry or fall back to FromFile.
func (s *Source) Start(ctx context.Context, constraints Constraints) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("capture: start is only valid in idle state (currently %s)", s.state)
	}
	s.mu.Unlock()

	constraints = constraints.withDefaults()
	stream, err := s.device.Open(ctx, constraints)
	if err != nil {
		return err
	}

	// Wait for the first frame as proof the grant is live
	waitCtx, cancel := context.WithTimeout(ctx, grantTimeout)
	defer cancel()

	var first Frame
	select {
	case frame, ok := <-stream.Frames():
		if !ok {
			stream.Stop()
			return fmt.Errorf("%w: stream closed before first frame", ErrDeviceUnavailable)
		}
		first = frame
	case <-waitCtx.Done():
		stream.Stop()
		return fmt.Errorf("%w: no frame within %s", ErrDeviceUnavailable, grantTimeout)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		// A concurrent Reset or Start won; give the handle back
		stream.Stop()
		return fmt.Errorf("capture: state changed during start")
	}

	s.stream = stream
	s.state = StateActive
	s.captured = nil
	s.frameMu.Lock()
	s.latest = first
	s.frameMu.Unlock()

	s.pumpStop = make(chan struct{})
	s.pumpDone = make(chan struct{})
	go s.pump(stream, s.pumpStop, s.pumpDone)

	slog.Info("capture: camera active",
		"facing", constraints.Facing,
		"resolution", fmt.Sprintf("%dx%d", constraints.Width, constraints.Height),
	)
	return nil
}

// pump keeps the most recent frame available for Capture
func (s *Source) pump(stream Stream, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case frame, ok := <-stream.Frames():
			if !ok {
				return
			}
			s.frameMu.Lock()
			s.latest = frame
			s.frameMu.Unlock()
		}
	}
}

// Capture takes the current frame, releases the camera handle and
// transitions active → captured. Valid only in active state.
func (s *Source) Capture() (*imaging.Bitmap, error) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return nil, fmt.Errorf("capture: capture is only valid in active state (currently %s)", s.state)
	}

	s.frameMu.Lock()
	frame := s.latest
	s.frameMu.Unlock()

	// Release the handle before decoding: the hardware must not stay
	// locked if conversion fails
	s.releaseLocked()

	bitmap, err := imaging.FromRGB(frame.Data, frame.Width, frame.Height)
	if err != nil {
		s.state = StateIdle
		s.mu.Unlock()
		return nil, err
	}

	s.captured = bitmap
	s.state = StateCaptured
	s.mu.Unlock()

	slog.Debug("capture: frame captured", "seq", frame.Seq, "size", fmt.Sprintf("%dx%d", frame.Width, frame.Height))
	return bitmap, nil
}

// FromFile decodes a user-selected file directly to the captured state,
// bypassing the camera states entirely. The file is decoded first;
// only a successful decode touches the source, releasing any held
// camera handle and committing the bitmap in one step. On decode
// failure the source is left exactly as it was.
func (s *Source) FromFile(data []byte, contentType string) (*imaging.Bitmap, error) {
	bitmap, err := imaging.Normalize(data, contentType)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
	s.captured = bitmap
	s.state = StateCaptured
	return bitmap, nil
}

// Bitmap returns the captured bitmap, or nil outside the captured state
func (s *Source) Bitmap() *imaging.Bitmap {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCaptured {
		return nil
	}
	return s.captured
}

// Cancel releases any held camera handle and returns to idle. Valid from
// any state.
func (s *Source) Cancel() {
	s.Reset()
}

// Reset releases any held camera handle and returns to idle. Valid from
// any state.
func (s *Source) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
	s.state = StateIdle
	s.captured = nil
}

// Close is component teardown; it behaves like Reset
func (s *Source) Close() error {
	s.Reset()
	return nil
}

// releaseLocked stops the stream and pump. Caller holds s.mu.
func (s *Source) releaseLocked() {
	if s.stream == nil {
		return
	}
	if s.pumpStop != nil {
		close(s.pumpStop)
		<-s.pumpDone
		s.pumpStop = nil
		s.pumpDone = nil
	}
	if err := s.stream.Stop(); err != nil {
		slog.Warn("capture: failed to stop stream", "error", err)
	}
	s.stream = nil
}
