// Package speech runs the speech sink: a bounded FIFO of announcement text
// serviced by one worker goroutine that synthesizes and plays each message
// in order.
//
// Enqueue and Depth never block, so the frame loop can offer messages and
// read backpressure without stalling. Stop performs a sentinel handshake:
// messages ahead of the sentinel are spoken, messages behind it are
// discarded.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-narrator/pkg/audio"
	"github.com/teslashibe/go-narrator/pkg/observe"
	"github.com/teslashibe/go-narrator/pkg/tts"
)

// Sentinel errors.
var (
	ErrInvalidCapacity = errors.New("speech: queue capacity must be at least 1")
	ErrInvalidPoll     = errors.New("speech: poll interval must be positive")
	ErrNoProvider      = errors.New("speech: provider is required")
	ErrNoPlayer        = errors.New("speech: player is required")
	ErrAlreadyRunning  = errors.New("speech: worker already running")
)

// Config holds worker parameters.
type Config struct {
	// Capacity bounds the queue, including the shutdown sentinel.
	Capacity int

	// PollInterval bounds how long an idle worker waits before re-checking
	// for cancellation.
	PollInterval time.Duration

	// Timeout bounds synthesis plus playback of one message. Zero disables.
	Timeout time.Duration

	Logger  *slog.Logger
	Metrics *observe.Metrics

	// Clock defaults to the wall clock.
	Clock clock.Clock

	// OnSpoken, if set, is called from the worker goroutine after every
	// message, successful or not.
	OnSpoken func(Result)
}

// DefaultConfig returns an 8-slot queue polled every second.
func DefaultConfig() Config {
	return Config{
		Capacity:     8,
		PollInterval: time.Second,
		Timeout:      30 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidCapacity, c.Capacity)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidPoll, c.PollInterval)
	}
	return nil
}

// Result describes one serviced message.
type Result struct {
	Text     string
	Provider string
	Queued   time.Duration // time spent waiting in the queue
	Elapsed  time.Duration // synthesis plus playback
	Err      error
}

type item struct {
	text     string
	enqueued time.Time
	stop     bool
}

// Worker is the speech sink.
type Worker struct {
	cfg      Config
	provider tts.Provider
	player   audio.Player
	clock    clock.Clock
	logger   *slog.Logger

	queue chan item

	running  atomic.Bool
	stopping atomic.Bool
	speaking atomic.Bool
	stopOnce sync.Once
	done     chan struct{}

	spoken    atomic.Int64
	failures  atomic.Int64
	discarded atomic.Int64
}

// NewWorker creates a worker. Call Run to start servicing the queue.
func NewWorker(cfg Config, provider tts.Provider, player audio.Player) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, ErrNoProvider
	}
	if player == nil {
		return nil, ErrNoPlayer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Worker{
		cfg:      cfg,
		provider: provider,
		player:   player,
		clock:    clk,
		logger:   logger.With("component", "speech"),
		queue:    make(chan item, cfg.Capacity),
		done:     make(chan struct{}),
	}, nil
}

// Enqueue offers text without blocking. It returns false when the queue is
// full or the worker is stopping.
func (w *Worker) Enqueue(text string) bool {
	if w.stopping.Load() {
		return false
	}
	select {
	case w.queue <- item{text: text, enqueued: w.clock.Now()}:
		return true
	default:
		return false
	}
}

// Depth returns the number of queued messages, not counting the one being
// spoken.
func (w *Worker) Depth() int {
	return len(w.queue)
}

// Capacity returns the queue bound.
func (w *Worker) Capacity() int {
	return cap(w.queue)
}

// Speaking reports whether a message is being synthesized or played.
func (w *Worker) Speaking() bool {
	return w.speaking.Load()
}

// Stats returns counters of spoken, failed and discarded messages.
func (w *Worker) Stats() (spoken, failures, discarded int64) {
	return w.spoken.Load(), w.failures.Load(), w.discarded.Load()
}

// Run services the queue until the sentinel is seen or ctx is done. It
// returns nil after a sentinel shutdown and ctx.Err() after cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(w.done)

	ticker := w.clock.Ticker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.logger.Info("speech worker started",
		"capacity", w.cfg.Capacity,
		"provider", tts.Name(w.provider),
	)

	for {
		select {
		case <-ctx.Done():
			w.stopping.Store(true)
			w.logger.Info("speech worker cancelled", "queued", len(w.queue))
			return ctx.Err()
		case it := <-w.queue:
			if it.stop {
				w.drain()
				return nil
			}
			w.speak(ctx, it)
		case <-ticker.C:
		}
	}
}

// drain discards everything queued behind the sentinel.
func (w *Worker) drain() {
	var n int64
	for {
		select {
		case <-w.queue:
			n++
		default:
			w.discarded.Add(n)
			w.logger.Info("speech worker stopped", "discarded", n)
			return
		}
	}
}

// speak synthesizes and plays one message. Failures, including provider
// panics, are contained to the message.
func (w *Worker) speak(ctx context.Context, it item) {
	start := w.clock.Now()
	res := Result{Text: it.text, Queued: start.Sub(it.enqueued)}

	w.speaking.Store(true)
	defer w.speaking.Store(false)

	stage, err := w.synthesizeAndPlay(ctx, it.text, &res)
	res.Elapsed = w.clock.Now().Sub(start)
	res.Err = err

	if err != nil {
		w.failures.Add(1)
		w.cfg.Metrics.RecordSpeechFailure(context.Background(), stage)
		w.logger.Error("speech failed",
			"stage", stage,
			"text", it.text,
			"error", err,
		)
	} else {
		w.spoken.Add(1)
		w.cfg.Metrics.RecordSpeechDuration(context.Background(), res.Elapsed)
		w.logger.Debug("spoke",
			"text", it.text,
			"provider", res.Provider,
			"queued", res.Queued,
			"elapsed", res.Elapsed,
		)
	}

	if w.cfg.OnSpoken != nil {
		w.cfg.OnSpoken(res)
	}
}

func (w *Worker) synthesizeAndPlay(ctx context.Context, text string, res *Result) (stage string, err error) {
	stage = "synthesize"
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("speech: panic during %s: %v", stage, r)
			w.logger.Error("recovered panic", "stage", stage, "stack", string(debug.Stack()))
		}
	}()

	if w.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.Timeout)
		defer cancel()
	}

	result, err := w.provider.Synthesize(ctx, text)
	if err != nil {
		return stage, err
	}
	res.Provider = result.Provider

	stage = "play"
	return stage, w.player.Play(ctx, result)
}

// Stop places the sentinel on the queue and waits for the worker to exit.
// Enqueue returns false from the moment Stop is called. If the queue is
// full, Stop waits for room until ctx is done. Stop is safe to call more
// than once; it must not be called before Run unless ctx can expire.
func (w *Worker) Stop(ctx context.Context) error {
	var sendErr error
	w.stopOnce.Do(func() {
		w.stopping.Store(true)
		select {
		case w.queue <- item{stop: true}:
		case <-w.done:
		case <-ctx.Done():
			sendErr = fmt.Errorf("speech: stop: %w", ctx.Err())
		}
	})
	if sendErr != nil {
		return sendErr
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("speech: stop: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}
