package detection

import (
	"sync"
)

// Static is a Detector that replays a scripted sequence of results, one per
// call. After the script is exhausted it keeps returning the last entry.
// It is used for tests and for running the narrator without a model.
type Static struct {
	mu     sync.Mutex
	script [][]Detection
	errs   []error
	calls  int
	closed bool
}

// NewStatic creates a detector that returns script[i] on the i-th call.
func NewStatic(script ...[]Detection) *Static {
	return &Static{script: script}
}

// FailAt makes the i-th call (zero based) return err instead of detections.
func (s *Static) FailAt(i int, err error) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.errs) <= i {
		s.errs = append(s.errs, nil)
	}
	s.errs[i] = err
	return s
}

// Detect returns the next scripted result.
func (s *Static) Detect(Frame) ([]Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.calls
	s.calls++

	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if len(s.script) == 0 {
		return nil, nil
	}
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	out := make([]Detection, len(s.script[i]))
	copy(out, s.script[i])
	return out, nil
}

// Calls returns how many times Detect was called.
func (s *Static) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Closed reports whether Close was called.
func (s *Static) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close marks the detector closed.
func (s *Static) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Verify Static implements Detector at compile time.
var _ Detector = (*Static)(nil)
