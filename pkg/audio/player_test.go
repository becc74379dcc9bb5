package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/teslashibe/go-narrator/internal/log"
	"github.com/teslashibe/go-narrator/pkg/tts"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
}

func TestNewCommandPlayer(t *testing.T) {
	if _, err := NewCommandPlayer(nil, nil); !errors.Is(err, ErrNoCommand) {
		t.Errorf("expected ErrNoCommand, got %v", err)
	}
	if _, err := NewCommandPlayer([]string{""}, nil); !errors.Is(err, ErrNoCommand) {
		t.Errorf("expected ErrNoCommand, got %v", err)
	}
}

func TestCommandPlayerPipesAudio(t *testing.T) {
	skipWithoutShell(t)
	out := filepath.Join(t.TempDir(), "played")

	p, err := NewCommandPlayer([]string{"sh", "-c", "cat > " + out}, log.Discard())
	if err != nil {
		t.Fatal(err)
	}

	var started, ended int
	p.OnPlaybackStart = func(string) { started++ }
	p.OnPlaybackEnd = func(_ string, err error) {
		ended++
		if err != nil {
			t.Errorf("unexpected playback error: %v", err)
		}
	}

	result := tts.SilentResult("hi")
	if err := p.Play(context.Background(), result); err != nil {
		t.Fatalf("Play: %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(result.Audio) {
		t.Errorf("player received %d bytes, want %d", len(got), len(result.Audio))
	}
	if started != 1 || ended != 1 {
		t.Errorf("callbacks start=%d end=%d", started, ended)
	}
	if p.IsSpeaking() {
		t.Error("should not be speaking after Play returns")
	}
}

func TestCommandPlayerFailure(t *testing.T) {
	skipWithoutShell(t)
	p, _ := NewCommandPlayer([]string{"sh", "-c", "cat >/dev/null; echo no device >&2; exit 3"}, log.Discard())

	err := p.Play(context.Background(), tts.SilentResult("hi"))
	if err == nil {
		t.Fatal("expected error")
	}
	var exitErr interface{ ExitCode() int }
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 3 {
		t.Errorf("expected exit code 3, got %v", err)
	}
}

func TestCommandPlayerCancel(t *testing.T) {
	skipWithoutShell(t)
	p, _ := NewCommandPlayer([]string{"sh", "-c", "cat >/dev/null; sleep 10"}, log.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.Play(ctx, tts.SilentResult("hi"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("playback was not interrupted")
	}
}

func TestPlayEmptyIsNoop(t *testing.T) {
	p, _ := NewCommandPlayer([]string{"narrator-no-such-player"}, log.Discard())
	if err := p.Play(context.Background(), nil); err != nil {
		t.Errorf("expected nil for empty audio, got %v", err)
	}
}

func TestDiscard(t *testing.T) {
	if err := (Discard{}).Play(context.Background(), tts.SilentResult("x")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (Discard{}).Play(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected canceled, got %v", err)
	}
}
