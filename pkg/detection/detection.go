// Package detection defines the per-frame object detection types shared by
// detectors, the presence tracker and renderers.
package detection

import (
	"errors"
	"io"
)

var (
	// ErrUnsupportedFrame is returned by detectors that cannot read the
	// pixel buffer of the frame they were given.
	ErrUnsupportedFrame = errors.New("detection: unsupported frame type")

	// ErrNoFrame is returned by a Source when a read produced no frame.
	// Callers skip the tick and retry.
	ErrNoFrame = errors.New("detection: no frame received")
)

// Detection represents one detected object in pixel coordinates.
type Detection struct {
	X1         int     `json:"x1"` // Top-left corner
	Y1         int     `json:"y1"`
	X2         int     `json:"x2"` // Bottom-right corner
	Y2         int     `json:"y2"`
	Label      string  `json:"label"`      // Object class name
	Confidence float64 `json:"confidence"` // Detection confidence (0-1)
}

// CenterX returns the horizontal center of the bounding box.
func (d Detection) CenterX() float64 {
	return float64(d.X1+d.X2) / 2
}

// Width returns the width of the bounding box in pixels.
func (d Detection) Width() int {
	return d.X2 - d.X1
}

// Height returns the height of the bounding box in pixels.
func (d Detection) Height() int {
	return d.Y2 - d.Y1
}

// Valid reports whether the box is well formed, the label is set and the
// confidence is within [0, 1].
func (d Detection) Valid() bool {
	return d.X1 < d.X2 && d.Y1 < d.Y2 && d.Label != "" &&
		d.Confidence >= 0 && d.Confidence <= 1
}

// Frame is a captured video frame. Detectors and renderers that need the
// pixel buffer assert a richer interface provided by the capture package.
type Frame interface {
	Width() int
	Height() int
	io.Closer
}

// Source produces frames of a constant width.
type Source interface {
	Read() (Frame, error)
	Width() int
	io.Closer
}

// Detector is the interface for object detection backends.
type Detector interface {
	// Detect finds objects in the frame at or above the detector's
	// confidence threshold.
	Detect(frame Frame) ([]Detection, error)

	// Close releases resources
	Close() error
}

// FilterConfidence returns the detections whose confidence is at least min.
func FilterConfidence(dets []Detection, min float64) []Detection {
	out := dets[:0:0]
	for _, d := range dets {
		if d.Confidence >= min {
			out = append(out, d)
		}
	}
	return out
}

// FilterLabel returns the detections with the given label.
func FilterLabel(dets []Detection, label string) []Detection {
	var out []Detection
	for _, d := range dets {
		if d.Label == label {
			out = append(out, d)
		}
	}
	return out
}
