// Package narrator runs the frame loop: read a frame, detect objects, update
// presence, schedule announcements and render.
//
// A Loop is the single owner of its presence tracker and announcement
// scheduler. Everything else (dashboard, metrics, speech) sees the loop
// through callbacks and the non-blocking speech sink.
package narrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/teslashibe/go-narrator/pkg/announce"
	"github.com/teslashibe/go-narrator/pkg/detection"
	"github.com/teslashibe/go-narrator/pkg/observe"
	"github.com/teslashibe/go-narrator/pkg/presence"
)

// ErrQuit is returned by a Renderer when the user asked to exit. Run treats
// it as a clean shutdown.
var ErrQuit = errors.New("narrator: quit requested")

// Sentinel errors for construction.
var (
	ErrNoSource   = errors.New("narrator: frame source is required")
	ErrNoDetector = errors.New("narrator: detector is required")
	ErrNoSink     = errors.New("narrator: speech sink is required")
)

// Renderer draws one processed frame. It must not retain frame after
// returning.
type Renderer interface {
	Render(frame detection.Frame, obs []presence.Observation) error
}

// Config holds loop parameters.
type Config struct {
	Presence presence.Config
	Announce announce.Config

	// RetryDelay is the back-off after a read that produced no frame.
	RetryDelay time.Duration

	// MaxFrames stops the loop after this many processed frames. Zero means
	// run until cancelled.
	MaxFrames int64

	Renderers []Renderer

	Logger  *slog.Logger
	Metrics *observe.Metrics
	Clock   clock.Clock

	// OnFrame, if set, receives a snapshot after every processed frame.
	OnFrame func(Snapshot)

	// OnAnnouncement, if set, receives every message accepted by the sink.
	OnAnnouncement func(announce.Message)
}

// DefaultConfig returns the defaults for a 640px camera.
func DefaultConfig() Config {
	return Config{
		Presence:   presence.DefaultConfig(),
		Announce:   announce.DefaultConfig(),
		RetryDelay: 50 * time.Millisecond,
	}
}

// Snapshot is the observable state after one frame.
type Snapshot struct {
	Session      uuid.UUID              `json:"session"`
	Frame        int64                  `json:"frame"`
	At           time.Time              `json:"at"`
	Observations []presence.Observation `json:"observations"`
	Newly        []presence.Key         `json:"newly"`
	Tracked      []presence.Key         `json:"tracked"`
	Pending      []presence.Key         `json:"pending"`
	Emitted      int                    `json:"emitted"`
	Deferrals    int                    `json:"deferrals"`
}

// Loop is the narrator frame loop.
type Loop struct {
	cfg     Config
	source  detection.Source
	det     detection.Detector
	tracker *presence.Tracker
	sched   *announce.Scheduler
	clock   clock.Clock
	logger  *slog.Logger
	session uuid.UUID

	frames  atomic.Int64
	skipped atomic.Int64
}

// New creates a loop. The tracker's frame width is taken from the source.
func New(cfg Config, source detection.Source, det detection.Detector, sink announce.Sink) (*Loop, error) {
	if source == nil {
		return nil, ErrNoSource
	}
	if det == nil {
		return nil, ErrNoDetector
	}
	if sink == nil {
		return nil, ErrNoSink
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	session := uuid.New()
	logger = logger.With("session", session.String())

	cfg.Presence.FrameWidth = source.Width()
	tracker, err := presence.New(cfg.Presence)
	if err != nil {
		return nil, fmt.Errorf("narrator: %w", err)
	}

	acfg := cfg.Announce
	if acfg.Logger == nil {
		acfg.Logger = logger
	}
	if acfg.Metrics == nil {
		acfg.Metrics = cfg.Metrics
	}
	sched, err := announce.New(acfg, sink, clk.Now())
	if err != nil {
		return nil, fmt.Errorf("narrator: %w", err)
	}

	return &Loop{
		cfg:     cfg,
		source:  source,
		det:     det,
		tracker: tracker,
		sched:   sched,
		clock:   clk,
		logger:  logger.With("component", "narrator"),
		session: session,
	}, nil
}

// Session returns the loop's session ID.
func (l *Loop) Session() uuid.UUID {
	return l.session
}

// Stats returns processed and skipped frame counts.
func (l *Loop) Stats() (frames, skipped int64) {
	return l.frames.Load(), l.skipped.Load()
}

// Run processes frames until ctx is done, a renderer returns ErrQuit,
// MaxFrames is reached or the source fails. Only a source failure is
// returned as an error.
func (l *Loop) Run(ctx context.Context) error {
	l.sched.Start(l.clock.Now())
	l.logger.Info("narrator started",
		"frame_width", l.source.Width(),
		"cadence", l.cfg.Announce.Cadence,
		"max_queue_depth", l.cfg.Announce.MaxQueueDepth,
	)
	defer func() {
		frames, skipped := l.Stats()
		l.logger.Info("narrator stopped",
			"frames", frames,
			"skipped", skipped,
			"emitted", l.sched.Emitted(),
			"deferrals", l.sched.Deferrals(),
		)
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if l.cfg.MaxFrames > 0 && l.frames.Load() >= l.cfg.MaxFrames {
			return nil
		}

		_, err := l.Step(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrQuit):
			l.logger.Info("quit requested")
			return nil
		case errors.Is(err, detection.ErrNoFrame):
			select {
			case <-ctx.Done():
				return nil
			case <-l.clock.After(l.cfg.RetryDelay):
			}
		default:
			return err
		}
	}
}

// Step processes one frame. It returns a wrapped detection.ErrNoFrame when
// the source had nothing to give, ErrQuit when a renderer asked to exit and
// any other source error unchanged. Detector and renderer failures are
// logged and swallowed.
func (l *Loop) Step(ctx context.Context) (Snapshot, error) {
	frame, err := l.source.Read()
	if err != nil {
		if errors.Is(err, detection.ErrNoFrame) {
			l.skipped.Add(1)
			l.cfg.Metrics.RecordFrame(ctx, true)
			return Snapshot{}, fmt.Errorf("narrator: %w", err)
		}
		return Snapshot{}, fmt.Errorf("narrator: read frame: %w", err)
	}
	defer frame.Close()

	dets, err := l.det.Detect(frame)
	if err != nil {
		l.skipped.Add(1)
		l.cfg.Metrics.RecordFrame(ctx, true)
		l.logger.Warn("detection failed, skipping frame", "error", err)
		return Snapshot{}, nil
	}

	now := l.clock.Now()
	newly := l.tracker.Update(dets, now)
	msg, emitted := l.sched.Tick(newly, now)

	n := l.frames.Add(1)
	l.cfg.Metrics.RecordFrame(ctx, false)
	l.cfg.Metrics.RecordDetections(ctx, len(dets), len(newly))

	obs := presence.Annotate(dets, l.source.Width())

	snap := Snapshot{
		Session:      l.session,
		Frame:        n,
		At:           now,
		Observations: obs,
		Newly:        newly,
		Tracked:      l.tracker.Tracked(),
		Pending:      l.sched.Pending(),
		Emitted:      l.sched.Emitted(),
		Deferrals:    l.sched.Deferrals(),
	}

	if emitted && l.cfg.OnAnnouncement != nil {
		l.cfg.OnAnnouncement(msg)
	}
	if l.cfg.OnFrame != nil {
		l.cfg.OnFrame(snap)
	}

	for _, r := range l.cfg.Renderers {
		if err := r.Render(frame, obs); err != nil {
			if errors.Is(err, ErrQuit) {
				return snap, ErrQuit
			}
			l.logger.Warn("render failed", "error", err)
		}
	}

	return snap, nil
}

// Close releases the source and the detector.
func (l *Loop) Close() error {
	return errors.Join(l.source.Close(), l.det.Close())
}
