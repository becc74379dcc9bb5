// Package capture provides OpenCV-backed video frame sources.
//
// Every frame produced by a Source is normalised to the source's configured
// width, so downstream direction buckets stay stable for the whole session.
package capture

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-narrator/pkg/detection"
)

// Sentinel errors for common error conditions.
var (
	// ErrNoFrame is returned when the device produced no frame this read.
	ErrNoFrame = detection.ErrNoFrame

	// ErrClosed is returned when reading from a closed source.
	ErrClosed = errors.New("capture: source closed")

	// ErrInvalidWidth is returned for a non-positive frame width.
	ErrInvalidWidth = errors.New("capture: frame width must be positive")
)

// MatFrame is a Frame backed by an OpenCV matrix.
type MatFrame interface {
	detection.Frame
	Mat() gocv.Mat
}

// Frame is a captured frame that owns its matrix.
type Frame struct {
	mat gocv.Mat
	at  time.Time
}

// NewFrame wraps mat. The frame takes ownership and closes mat on Close.
func NewFrame(mat gocv.Mat, at time.Time) *Frame {
	return &Frame{mat: mat, at: at}
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int { return f.mat.Cols() }

// Height returns the frame height in pixels.
func (f *Frame) Height() int { return f.mat.Rows() }

// Mat returns the underlying matrix. It stays valid until Close.
func (f *Frame) Mat() gocv.Mat { return f.mat }

// At returns the capture time.
func (f *Frame) At() time.Time { return f.at }

// Close releases the matrix.
func (f *Frame) Close() error { return f.mat.Close() }

// Config holds camera configuration.
type Config struct {
	Device     int           // Video device index (0 = default webcam)
	FrameWidth int           // Output width; frames are resized to this
	WarmUp     time.Duration // Delay after opening before the first read
}

// DefaultConfig returns the defaults for a laptop webcam.
func DefaultConfig() Config {
	return Config{
		Device:     0,
		FrameWidth: 640,
		WarmUp:     1500 * time.Millisecond,
	}
}

// Camera reads frames from a local video device.
type Camera struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	vc     *gocv.VideoCapture
	closed bool
}

// OpenCamera opens the configured video device and waits out the warm-up.
func OpenCamera(cfg Config, logger *slog.Logger) (*Camera, error) {
	if cfg.FrameWidth <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWidth, cfg.FrameWidth)
	}
	if logger == nil {
		logger = slog.Default()
	}

	vc, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("capture: open device %d: %w", cfg.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("capture: device %d did not open, check camera permissions", cfg.Device)
	}

	if cfg.WarmUp > 0 {
		time.Sleep(cfg.WarmUp)
	}

	logger = logger.With("component", "capture.camera")
	logger.Info("camera initialized", "device", cfg.Device, "frame_width", cfg.FrameWidth)

	return &Camera{cfg: cfg, logger: logger, vc: vc}, nil
}

// Width returns the session frame width.
func (c *Camera) Width() int {
	return c.cfg.FrameWidth
}

// Read grabs the next frame, resized to the session width.
// It returns ErrNoFrame when the device had nothing to give.
func (c *Camera) Read() (detection.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	raw := gocv.NewMat()
	if ok := c.vc.Read(&raw); !ok || raw.Empty() {
		raw.Close()
		return nil, ErrNoFrame
	}

	mat, err := Normalize(raw, c.cfg.FrameWidth)
	if err != nil {
		return nil, err
	}
	return NewFrame(mat, time.Now()), nil
}

// Close releases the device. It is safe to call Close multiple times.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.logger.Info("camera released")
	return c.vc.Close()
}

// Normalize resizes src to width, preserving the aspect ratio. src is
// consumed: it is either returned as is or closed.
func Normalize(src gocv.Mat, width int) (gocv.Mat, error) {
	if width <= 0 {
		src.Close()
		return gocv.Mat{}, fmt.Errorf("%w: %d", ErrInvalidWidth, width)
	}
	if src.Cols() == width {
		return src, nil
	}

	scale := float64(width) / float64(src.Cols())
	height := int(float64(src.Rows()) * scale)
	if height < 1 {
		height = 1
	}

	dst := gocv.NewMat()
	gocv.Resize(src, &dst, image.Pt(width, height), 0, 0, gocv.InterpolationLinear)
	src.Close()
	return dst, nil
}

var (
	_ MatFrame         = (*Frame)(nil)
	_ detection.Source = (*Camera)(nil)
)
