// Package audio plays synthesized speech on the local machine.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-narrator/pkg/tts"
)

// ErrNoCommand is returned when a CommandPlayer has no command configured.
var ErrNoCommand = errors.New("audio: player command required")

// Player plays one synthesis result to completion.
type Player interface {
	Play(ctx context.Context, result *tts.AudioResult) error
}

// DefaultCommand pipes any container ffmpeg understands to the default
// output device.
var DefaultCommand = []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", "-"}

const waitDelay = 500 * time.Millisecond

// CommandPlayer writes audio to the stdin of an external player process,
// one process per message.
type CommandPlayer struct {
	command []string
	logger  *slog.Logger

	// Callbacks receive the name of the provider that produced the audio.
	OnPlaybackStart func(provider string)
	OnPlaybackEnd   func(provider string, err error)

	mu       sync.Mutex
	cmd      *exec.Cmd
	speaking atomic.Bool
}

// NewCommandPlayer creates a player for command, e.g. DefaultCommand or
// {"aplay", "-q", "-"}.
func NewCommandPlayer(command []string, logger *slog.Logger) (*CommandPlayer, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, ErrNoCommand
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandPlayer{
		command: append([]string(nil), command...),
		logger:  logger.With("component", "audio.player"),
	}, nil
}

// Play blocks until the player process exits or ctx is done.
func (p *CommandPlayer) Play(ctx context.Context, result *tts.AudioResult) error {
	if result == nil || len(result.Audio) == 0 {
		return nil
	}

	cmd := exec.CommandContext(ctx, p.command[0], p.command[1:]...)
	cmd.Stdin = bytes.NewReader(result.Audio)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// Children of a killed player may hold stderr open.
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.command[0], err)
	}

	p.mu.Lock()
	p.cmd = cmd
	p.mu.Unlock()
	p.speaking.Store(true)
	if p.OnPlaybackStart != nil {
		p.OnPlaybackStart(result.Provider)
	}

	err := cmd.Wait()

	p.speaking.Store(false)
	p.mu.Lock()
	p.cmd = nil
	p.mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		} else if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%s: %w: %s", p.command[0], err, msg)
		} else {
			err = fmt.Errorf("%s: %w", p.command[0], err)
		}
	}
	if p.OnPlaybackEnd != nil {
		p.OnPlaybackEnd(result.Provider, err)
	}

	p.logger.Debug("played audio",
		"bytes", len(result.Audio),
		"duration", result.Duration,
		"error", err,
	)
	return err
}

// Cancel kills the current playback, if any.
func (p *CommandPlayer) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

// IsSpeaking reports whether a player process is running.
func (p *CommandPlayer) IsSpeaking() bool {
	return p.speaking.Load()
}

// Discard is a Player that drops audio. Used with the mock provider and in
// headless runs.
type Discard struct{}

// Play implements Player.
func (Discard) Play(ctx context.Context, _ *tts.AudioResult) error {
	return ctx.Err()
}

var (
	_ Player = (*CommandPlayer)(nil)
	_ Player = Discard{}
)
