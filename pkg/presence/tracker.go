// Package presence turns the noisy per-frame detection stream into edge
// events: an identity key is reported once when it appears, and again only
// after it has been absent for longer than the absence reset.
//
// A Tracker is owned by a single frame loop. It is not safe for concurrent
// use and never blocks.
package presence

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-narrator/pkg/detection"
)

// Sentinel errors for invalid configuration.
var (
	ErrInvalidWidth   = errors.New("presence: frame width must be positive")
	ErrInvalidAbsence = errors.New("presence: absence reset must not be negative")
	ErrInvalidGrace   = errors.New("presence: grace margin must not be negative")
)

// Config holds tracker parameters.
type Config struct {
	// FrameWidth is the session-constant width used for direction buckets.
	FrameWidth int

	// AbsenceReset is how long a key must be unseen before its next
	// appearance counts as new.
	AbsenceReset time.Duration

	// GraceMargin is added to AbsenceReset before a key is forgotten.
	GraceMargin time.Duration

	// MinConfidence drops weaker detections before keying.
	MinConfidence float64
}

// DefaultConfig returns the defaults for a 640 px wide stream.
func DefaultConfig() Config {
	return Config{
		FrameWidth:   640,
		AbsenceReset: 1500 * time.Millisecond,
		GraceMargin:  500 * time.Millisecond,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.FrameWidth <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWidth, c.FrameWidth)
	}
	if c.AbsenceReset < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAbsence, c.AbsenceReset)
	}
	if c.GraceMargin < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidGrace, c.GraceMargin)
	}
	return nil
}

// Tracker keeps the last-seen time of every identity key.
type Tracker struct {
	cfg      Config
	lastSeen map[Key]time.Time
}

// New creates a tracker. Invalid configuration is rejected here so that
// Update never fails.
func New(cfg Config) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Tracker{
		cfg:      cfg,
		lastSeen: make(map[Key]time.Time),
	}, nil
}

// Config returns the tracker configuration.
func (t *Tracker) Config() Config {
	return t.cfg
}

// Update records the detections of one frame observed at now and returns
// the keys that are newly present: never seen, or unseen for longer than
// AbsenceReset. The result is sorted and holds each key once.
func (t *Tracker) Update(dets []detection.Detection, now time.Time) []Key {
	var newly []Key
	seen := make(map[Key]struct{}, len(dets))

	for _, d := range dets {
		if !d.Valid() || d.Confidence < t.cfg.MinConfidence {
			continue
		}
		key := KeyOf(d, t.cfg.FrameWidth)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		last, known := t.lastSeen[key]
		if !known || now.Sub(last) > t.cfg.AbsenceReset {
			newly = append(newly, key)
		}
		t.lastSeen[key] = now
	}

	t.prune(now)

	SortKeys(newly)
	return newly
}

// prune forgets keys unseen for longer than AbsenceReset + GraceMargin.
func (t *Tracker) prune(now time.Time) {
	horizon := t.cfg.AbsenceReset + t.cfg.GraceMargin
	for key, last := range t.lastSeen {
		if now.Sub(last) > horizon {
			delete(t.lastSeen, key)
		}
	}
}

// LastSeen returns when key was last observed.
func (t *Tracker) LastSeen(key Key) (time.Time, bool) {
	last, ok := t.lastSeen[key]
	return last, ok
}

// Tracked returns the keys currently held in the presence record, sorted.
func (t *Tracker) Tracked() []Key {
	keys := make([]Key, 0, len(t.lastSeen))
	for key := range t.lastSeen {
		keys = append(keys, key)
	}
	SortKeys(keys)
	return keys
}

// Len returns the number of keys in the presence record.
func (t *Tracker) Len() int {
	return len(t.lastSeen)
}

// Reset forgets every key.
func (t *Tracker) Reset() {
	clear(t.lastSeen)
}
