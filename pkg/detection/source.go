package detection

import (
	"errors"
	"sync"
)

// ErrSourceClosed is returned by Read after Close.
var ErrSourceClosed = errors.New("detection: source closed")

// BlankFrame is a Frame without pixels. Pair it with a Static detector to
// drive the pipeline without a camera.
type BlankFrame struct {
	W, H int
}

// Width returns the frame width.
func (f BlankFrame) Width() int { return f.W }

// Height returns the frame height.
func (f BlankFrame) Height() int { return f.H }

// Close is a no-op.
func (BlankFrame) Close() error { return nil }

// BlankSource produces BlankFrames of a fixed size. Reads listed with DropAt
// return ErrNoFrame instead.
type BlankSource struct {
	w, h int

	mu     sync.Mutex
	drops  map[int]bool
	reads  int
	closed bool
}

// NewBlankSource creates a source of w×h blank frames.
func NewBlankSource(w, h int) *BlankSource {
	return &BlankSource{w: w, h: h, drops: make(map[int]bool)}
}

// DropAt makes the given reads (zero based) fail with ErrNoFrame.
func (s *BlankSource) DropAt(reads ...int) *BlankSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range reads {
		s.drops[i] = true
	}
	return s
}

// Read returns the next frame.
func (s *BlankSource) Read() (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSourceClosed
	}
	i := s.reads
	s.reads++
	if s.drops[i] {
		return nil, ErrNoFrame
	}
	return BlankFrame{W: s.w, H: s.h}, nil
}

// Width returns the frame width.
func (s *BlankSource) Width() int { return s.w }

// Reads returns the number of Read calls.
func (s *BlankSource) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Close stops the source.
func (s *BlankSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ Source = (*BlankSource)(nil)
