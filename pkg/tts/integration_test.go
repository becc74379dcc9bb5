//go:build integration

package tts_test

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/teslashibe/go-narrator/pkg/tts"
)

// Run with: go test -tags=integration -v ./pkg/tts/...

func TestEspeakIntegration(t *testing.T) {
	if _, err := exec.LookPath("espeak-ng"); err != nil {
		t.Skip("espeak-ng not installed")
	}

	provider, err := tts.NewEspeak()
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	defer provider.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := provider.Synthesize(ctx, "I see person on the center")
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	t.Logf("✅ Synthesized: %d bytes, %v audio", len(result.Audio), result.Duration)

	if string(result.Audio[:4]) != "RIFF" {
		t.Error("expected WAV output")
	}
	if result.Duration < 500*time.Millisecond {
		t.Errorf("audio too short: %v", result.Duration)
	}
}

func TestOpenAIIntegration(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY not set")
	}

	provider, err := tts.NewOpenAI(tts.WithAPIKey(apiKey))
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	defer provider.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	t.Run("Health", func(t *testing.T) {
		if err := provider.Health(ctx); err != nil {
			t.Fatalf("health check failed: %v", err)
		}
	})

	t.Run("Synthesize", func(t *testing.T) {
		result, err := provider.Synthesize(ctx, "I see: cup on the left, person on the center")
		if err != nil {
			t.Fatalf("synthesize failed: %v", err)
		}
		t.Logf("✅ Synthesized: %d bytes in %v", len(result.Audio), result.Latency)
		if len(result.Audio) < 1000 {
			t.Error("audio too short, expected at least 1KB")
		}
	})
}
