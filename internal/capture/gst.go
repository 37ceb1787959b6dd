package capture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// GstDevice grants access to a local camera through a GStreamer pipeline:
//
//	v4l2src → videoconvert → videoscale → videorate → capsfilter(RGB) → appsink
//
// The device is exclusively owned: Open fails with ErrDeviceUnavailable
// while a previous stream is still live.
type GstDevice struct {
	// device node per facing mode; a missing entry falls back to the other
	envPath  string
	userPath string

	inUse atomic.Bool
}

// NewGstDevice creates a camera device over V4L2 device nodes. envPath is
// used for the environment (rear) facing mode, userPath for the user
// (front) facing mode; either may be empty.
func NewGstDevice(envPath, userPath string) (*GstDevice, error) {
	if envPath == "" && userPath == "" {
		return nil, fmt.Errorf("capture: at least one camera device node is required")
	}

	// Fail fast if GStreamer itself is missing
	gst.Init(nil)
	probe, err := gst.NewElement("fakesrc")
	if err != nil {
		return nil, fmt.Errorf("%w: GStreamer not available: %v", ErrDeviceUnavailable, err)
	}
	probe.SetState(gst.StateNull)

	return &GstDevice{envPath: envPath, userPath: userPath}, nil
}

// pathFor picks the device node for a facing preference
func (d *GstDevice) pathFor(facing Facing) string {
	switch facing {
	case FacingUser:
		if d.userPath != "" {
			return d.userPath
		}
		return d.envPath
	default:
		if d.envPath != "" {
			return d.envPath
		}
		return d.userPath
	}
}

// Open builds and starts the capture pipeline. It blocks until the
// pipeline reaches the PLAYING state or the bus reports an error, which
// is mapped onto ErrPermissionDenied / ErrDeviceUnavailable.
func (d *GstDevice) Open(ctx context.Context, constraints Constraints) (Stream, error) {
	if !d.inUse.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: camera already in use", ErrDeviceUnavailable)
	}

	constraints = constraints.withDefaults()
	path := d.pathFor(constraints.Facing)

	stream, err := d.open(ctx, path, constraints)
	if err != nil {
		d.inUse.Store(false)
		return nil, err
	}
	return stream, nil
}

func (d *GstDevice) open(ctx context.Context, path string, constraints Constraints) (*gstStream, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("%w: creating pipeline: %v", ErrDeviceUnavailable, err)
	}

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, fmt.Errorf("%w: v4l2src not available: %v", ErrDeviceUnavailable, err)
	}
	src.SetProperty("device", path)

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("%w: creating videoconvert: %v", ErrDeviceUnavailable, err)
	}

	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("%w: creating videoscale: %v", ErrDeviceUnavailable, err)
	}

	videorate, err := gst.NewElement("videorate")
	if err != nil {
		return nil, fmt.Errorf("%w: creating videorate: %v", ErrDeviceUnavailable, err)
	}
	videorate.SetProperty("drop-only", true)
	videorate.SetProperty("skip-to-first", true)

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("%w: creating capsfilter: %v", ErrDeviceUnavailable, err)
	}
	capsStr := fmt.Sprintf("video/x-raw,format=RGB,width=%d,height=%d", constraints.Width, constraints.Height)
	capsfilter.SetProperty("caps", gst.NewCapsFromString(capsStr))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("%w: creating appsink: %v", ErrDeviceUnavailable, err)
	}
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", 1) // Keep only the latest frame
	appsink.SetProperty("drop", true)

	pipeline.AddMany(src, converter, scaler, videorate, capsfilter, appsink.Element)
	if err := gst.ElementLinkMany(src, converter, scaler, videorate, capsfilter, appsink.Element); err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("%w: linking pipeline: %v", ErrDeviceUnavailable, err)
	}

	s := &gstStream{
		device:   d,
		pipeline: pipeline,
		frames:   make(chan Frame, 4),
		width:    constraints.Width,
		height:   constraints.Height,
	}

	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: s.onNewSample,
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("%w: starting pipeline: %v", ErrDeviceUnavailable, err)
	}

	// Block until PLAYING or a bus error: this is the hardware grant
	if err := waitForPlaying(ctx, pipeline); err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, err
	}

	go s.monitorBus()

	slog.Info("capture: camera stream open", "device", path, "caps", capsStr)
	return s, nil
}

// waitForPlaying waits for the pipeline state change, classifying bus
// errors into the capture error taxonomy.
func waitForPlaying(ctx context.Context, pipeline *gst.Pipeline) error {
	bus := pipeline.GetPipelineBus()
	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrDeviceUnavailable, ctx.Err())
		}
		msg := bus.TimedPop(100 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			return classifyGstError(gerr.Error())
		case gst.MessageStateChanged:
			if msg.Source() == pipeline.GetName() {
				_, newState := msg.ParseStateChanged()
				if newState == gst.StatePlaying {
					return nil
				}
			}
		}
	}
	return fmt.Errorf("%w: pipeline did not reach PLAYING state", ErrDeviceUnavailable)
}

// classifyGstError maps a GStreamer error string onto the capture taxonomy
func classifyGstError(message string) error {
	lower := strings.ToLower(message)
	if strings.Contains(lower, "permission") || strings.Contains(lower, "not authorized") || strings.Contains(lower, "access denied") {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, message)
	}
	return fmt.Errorf("%w: %s", ErrDeviceUnavailable, message)
}

// gstStream is a live camera stream backed by a GStreamer pipeline
type gstStream struct {
	device   *GstDevice
	pipeline *gst.Pipeline
	frames   chan Frame
	width    int
	height   int

	seq     uint64
	stopped atomic.Bool
	stopMu  sync.Mutex
}

// onNewSample is invoked by GStreamer for every frame reaching the appsink
func (s *gstStream) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		// A single bad sample should not kill the stream
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		return gst.FlowOK
	}

	// Copy out: GStreamer reuses the buffer
	frameData := make([]byte, len(data))
	copy(frameData, data)
	buffer.Unmap()

	frame := Frame{
		Seq:       atomic.AddUint64(&s.seq, 1),
		Timestamp: time.Now(),
		Width:     s.width,
		Height:    s.height,
		Data:      frameData,
	}

	if s.stopped.Load() {
		return gst.FlowEOS
	}

	// Non-blocking send: drop when the consumer lags
	select {
	case s.frames <- frame:
	default:
	}

	return gst.FlowOK
}

// monitorBus watches for pipeline errors and stops the stream on failure
func (s *gstStream) monitorBus() {
	bus := s.pipeline.GetPipelineBus()
	for !s.stopped.Load() {
		msg := bus.TimedPop(200 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			slog.Info("capture: camera stream ended")
			s.Stop()
			return
		case gst.MessageError:
			gerr := msg.ParseError()
			slog.Error("capture: pipeline error", "error", gerr.Error())
			s.Stop()
			return
		}
	}
}

// Frames returns the frame channel
func (s *gstStream) Frames() <-chan Frame {
	return s.frames
}

// Stop releases the camera. Idempotent.
func (s *gstStream) Stop() error {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}

	if err := s.pipeline.SetState(gst.StateNull); err != nil {
		slog.Warn("capture: failed to set pipeline to NULL", "error", err)
	}
	close(s.frames)
	s.device.inUse.Store(false)

	slog.Info("capture: camera stream stopped", "frames", atomic.LoadUint64(&s.seq))
	return nil
}
