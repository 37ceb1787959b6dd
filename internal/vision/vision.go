package vision

import (
	"context"
	"errors"
	"fmt"

	"github.com/freshkeep/freshkeep/internal/imaging"
)

// ErrRecognition indicates that object detection failed: the model could
// not be loaded, inference failed, or the backend returned a malformed
// response. Recoverable; the caller may retry with a new scan.
var ErrRecognition = errors.New("vision: recognition failed")

// Candidate is a single detected-but-not-yet-accepted item proposed by the
// detection backend. Candidates are transient: they live only until the
// review session that carries them is accepted or cancelled.
type Candidate struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"` // in [0,1]
	Box        *Box    `json:"box,omitempty"`
}

// Box is a detection bounding box in the backend's native coordinate
// format, passed through unchanged.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Precision selects the numeric precision the inference backend runs at.
// It trades latency for quality and never changes the detection contract.
type Precision string

const (
	PrecisionFP32 Precision = "fp32"
	PrecisionFP16 Precision = "fp16"
	PrecisionInt8 Precision = "int8"
	PrecisionQ8   Precision = "q8"
)

// ParsePrecision validates a precision mode string
func ParsePrecision(s string) (Precision, error) {
	switch Precision(s) {
	case PrecisionFP32, PrecisionFP16, PrecisionInt8, PrecisionQ8:
		return Precision(s), nil
	case "":
		return PrecisionFP32, nil
	default:
		return "", fmt.Errorf("invalid precision %q (valid: fp32, fp16, int8, q8)", s)
	}
}

// Detector is the interface detection backends implement.
//
// Detect returns the raw candidate list for a bitmap. Backends own their
// model handle: it is loaded on the first call and cached for the process
// lifetime. Confidence filtering is NOT a backend concern; the Client
// applies the fixed policy on top.
type Detector interface {
	// Detect analyzes a bitmap and returns detected candidates
	Detect(ctx context.Context, bitmap *imaging.Bitmap, precision Precision) ([]Candidate, error)
	// Close closes the detector and releases resources
	Close() error
}
