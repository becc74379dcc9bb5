package overlay

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-narrator/pkg/capture"
	"github.com/teslashibe/go-narrator/pkg/detection"
	"github.com/teslashibe/go-narrator/pkg/narrator"
	"github.com/teslashibe/go-narrator/pkg/presence"
)

// ErrInvalidQuality is returned for a JPEG quality outside 1..100.
var ErrInvalidQuality = errors.New("overlay: jpeg quality must be in 1..100")

// Encoder renders annotated frames to JPEG and hands them to a sink, such
// as the dashboard's camera hub.
type Encoder struct {
	quality int
	sink    func(jpeg []byte)

	// Every encodes one frame in this many; the dashboard does not need
	// the full camera rate.
	every int

	mu sync.Mutex
	n  int
}

// NewEncoder creates an encoder that passes every nth frame to sink.
func NewEncoder(quality, every int, sink func(jpeg []byte)) (*Encoder, error) {
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuality, quality)
	}
	if every < 1 {
		every = 1
	}
	return &Encoder{quality: quality, sink: sink, every: every}, nil
}

// Render implements narrator.Renderer.
func (e *Encoder) Render(frame detection.Frame, obs []presence.Observation) error {
	e.mu.Lock()
	e.n++
	skip := (e.n-1)%e.every != 0
	e.mu.Unlock()
	if skip || e.sink == nil {
		return nil
	}

	data, err := e.Encode(frame, obs)
	if err != nil {
		return err
	}
	e.sink(data)
	return nil
}

// Encode returns the annotated frame as JPEG bytes.
func (e *Encoder) Encode(frame detection.Frame, obs []presence.Observation) ([]byte, error) {
	mf, ok := frame.(capture.MatFrame)
	if !ok {
		return nil, fmt.Errorf("overlay: %w: %T", detection.ErrUnsupportedFrame, frame)
	}

	img := mf.Mat().Clone()
	defer img.Close()
	Draw(&img, obs)

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{int(gocv.IMWriteJpegQuality), e.quality})
	if err != nil {
		return nil, fmt.Errorf("overlay: encode jpeg: %w", err)
	}
	defer buf.Close()

	// The native buffer is freed on Close.
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

var _ narrator.Renderer = (*Encoder)(nil)
