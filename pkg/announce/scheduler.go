// Package announce batches newly present identity keys into spoken
// messages on a fixed cadence, deferring (never dropping) them while the
// speech sink is backed up.
//
// A Scheduler is owned by the same single-threaded frame loop as the
// presence tracker. It only performs non-blocking calls on its Sink.
package announce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-narrator/pkg/observe"
	"github.com/teslashibe/go-narrator/pkg/presence"
)

// Sentinel errors for invalid configuration.
var (
	ErrInvalidCadence    = errors.New("announce: cadence must be positive")
	ErrInvalidQueueDepth = errors.New("announce: max queue depth must be at least 1")
	ErrNoSink            = errors.New("announce: sink is required")
)

// Sink is the downstream speech queue. Both methods must not block.
type Sink interface {
	// Enqueue offers text for speaking and reports whether it was accepted.
	Enqueue(text string) bool

	// Depth returns the number of messages waiting to be spoken.
	Depth() int
}

// Message is one emitted announcement.
type Message struct {
	ID   uuid.UUID
	Text string
	Keys []presence.Key
	At   time.Time
}

// Config holds scheduler parameters.
type Config struct {
	// Cadence is the minimum interval between flush attempts.
	Cadence time.Duration

	// MaxQueueDepth defers flushing while the sink holds this many messages.
	MaxQueueDepth int

	// Logger receives emit and deferral diagnostics. Defaults to slog.Default.
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *observe.Metrics

	// OnDefer, if set, is called with the pending count on every deferral.
	OnDefer func(pending int)
}

// DefaultConfig returns a 2s cadence with a queue ceiling of 3.
func DefaultConfig() Config {
	return Config{
		Cadence:       2 * time.Second,
		MaxQueueDepth: 3,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Cadence <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidCadence, c.Cadence)
	}
	if c.MaxQueueDepth < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidQueueDepth, c.MaxQueueDepth)
	}
	return nil
}

// Scheduler accumulates pending keys and flushes them to a Sink.
type Scheduler struct {
	cfg    Config
	sink   Sink
	logger *slog.Logger

	pending   map[presence.Key]struct{}
	lastFlush time.Time

	emitted   int
	deferrals int
}

// New creates a scheduler whose cadence clock starts at start, so the first
// flush attempt happens one cadence later.
func New(cfg Config, sink Sink, start time.Time) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, ErrNoSink
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:       cfg,
		sink:      sink,
		logger:    logger.With("component", "announce"),
		pending:   make(map[presence.Key]struct{}),
		lastFlush: start,
	}, nil
}

// Start re-anchors the cadence clock at now.
func (s *Scheduler) Start(now time.Time) {
	s.lastFlush = now
}

// Tick merges newly present keys into the pending set and, once per
// cadence, tries to flush them as a single message. It returns the message
// when one was accepted by the sink.
func (s *Scheduler) Tick(newly []presence.Key, now time.Time) (Message, bool) {
	for _, key := range newly {
		s.pending[key] = struct{}{}
	}

	if now.Sub(s.lastFlush) < s.cfg.Cadence {
		return Message{}, false
	}
	// The cadence clock advances on every attempt, sent or not.
	s.lastFlush = now

	if len(s.pending) == 0 {
		return Message{}, false
	}

	if depth := s.sink.Depth(); depth >= s.cfg.MaxQueueDepth {
		s.deferred(now, "queue full", depth)
		return Message{}, false
	}

	keys := s.Pending()
	text := Render(keys)
	if !s.sink.Enqueue(text) {
		s.deferred(now, "enqueue rejected", s.sink.Depth())
		return Message{}, false
	}

	clear(s.pending)
	s.emitted++

	msg := Message{ID: uuid.New(), Text: text, Keys: keys, At: now}
	s.logger.Info("speak", "text", text, "keys", len(keys), "id", msg.ID)
	s.cfg.Metrics.RecordAnnouncement(context.Background(), len(keys))
	return msg, true
}

func (s *Scheduler) deferred(now time.Time, reason string, depth int) {
	s.deferrals++
	s.logger.Info("queue full, postponing announcement",
		"reason", reason,
		"depth", depth,
		"max_depth", s.cfg.MaxQueueDepth,
		"pending", len(s.pending),
	)
	s.cfg.Metrics.RecordDeferral(context.Background())
	if s.cfg.OnDefer != nil {
		s.cfg.OnDefer(len(s.pending))
	}
}

// Pending returns a sorted snapshot of the keys awaiting announcement.
func (s *Scheduler) Pending() []presence.Key {
	keys := make([]presence.Key, 0, len(s.pending))
	for key := range s.pending {
		keys = append(keys, key)
	}
	presence.SortKeys(keys)
	return keys
}

// LastFlush returns the time of the last flush attempt.
func (s *Scheduler) LastFlush() time.Time {
	return s.lastFlush
}

// Emitted returns how many messages were accepted by the sink.
func (s *Scheduler) Emitted() int {
	return s.emitted
}

// Deferrals returns how many flush attempts were deferred by backpressure.
func (s *Scheduler) Deferrals() int {
	return s.deferrals
}

// Render formats sorted keys as a spoken sentence: "I see <k>" for one key,
// "I see: <k1>, <k2>" for several. It returns "" for no keys.
func Render(keys []presence.Key) string {
	switch len(keys) {
	case 0:
		return ""
	case 1:
		return "I see " + keys[0].String()
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return "I see: " + strings.Join(parts, ", ")
}
