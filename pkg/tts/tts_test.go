package tts_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-narrator/pkg/tts"
)

func TestMockProvider(t *testing.T) {
	mock := tts.NewMock()
	ctx := context.Background()

	t.Run("Synthesize returns WAV audio", func(t *testing.T) {
		result, err := mock.Synthesize(ctx, "I see cup on the left")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(result.Audio[:4]) != "RIFF" {
			t.Error("expected RIFF header")
		}
		if result.CharCount != 21 {
			t.Errorf("expected 21 chars, got %d", result.CharCount)
		}
		if result.Format.Encoding != tts.EncodingWAV || result.Format.SampleRate != 22050 {
			t.Errorf("unexpected format %+v", result.Format)
		}
		if result.Duration <= 0 {
			t.Error("expected a positive duration")
		}
	})

	t.Run("Health returns nil", func(t *testing.T) {
		if err := mock.Health(ctx); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("Calls are tracked", func(t *testing.T) {
		if got := len(mock.Calls()); got != 2 {
			t.Errorf("expected 2 calls, got %d", got)
		}
		texts := mock.Texts()
		if len(texts) != 1 || texts[0] != "I see cup on the left" {
			t.Errorf("unexpected texts %v", texts)
		}
	})

	t.Run("Reset clears calls", func(t *testing.T) {
		mock.Reset()
		if len(mock.Calls()) != 0 {
			t.Error("expected calls to be cleared")
		}
	})
}

func TestMockWithError(t *testing.T) {
	testErr := errors.New("test error")
	mock := tts.WithError(testErr)
	ctx := context.Background()

	if _, err := mock.Synthesize(ctx, "Hello"); !errors.Is(err, testErr) {
		t.Errorf("expected test error, got %v", err)
	}
	if err := mock.Health(ctx); err == nil {
		t.Error("expected health error")
	}
}

func TestMockWithLatency(t *testing.T) {
	mock := tts.WithLatency(tts.NewMock(), 50*time.Millisecond)

	t.Run("Synthesize has latency", func(t *testing.T) {
		start := time.Now()
		if _, err := mock.Synthesize(context.Background(), "Hello"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
			t.Errorf("expected at least 50ms latency, got %v", elapsed)
		}
	})

	t.Run("Context cancellation works", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		if _, err := mock.Synthesize(ctx, "Hello"); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline error, got %v", err)
		}
	})
}

func TestFunctionalOptions(t *testing.T) {
	cfg := tts.DefaultConfig()
	cfg.Apply(
		tts.WithVoice("en-us"),
		tts.WithModel("test-model"),
		tts.WithRate(200),
		tts.WithTimeout(5*time.Second),
		tts.WithRetry(4, time.Second),
	)

	if cfg.VoiceID != "en-us" {
		t.Errorf("expected voice en-us, got %s", cfg.VoiceID)
	}
	if cfg.ModelID != "test-model" {
		t.Errorf("expected model test-model, got %s", cfg.ModelID)
	}
	if cfg.Rate != 200 {
		t.Errorf("expected rate 200, got %d", cfg.Rate)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %v", cfg.Timeout)
	}
	if cfg.MaxRetries != 4 || cfg.RetryDelay != time.Second {
		t.Errorf("unexpected retry config %d/%v", cfg.MaxRetries, cfg.RetryDelay)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := tts.DefaultConfig()
	if cfg.Rate != 170 {
		t.Errorf("expected default rate 170, got %d", cfg.Rate)
	}
	if cfg.Binary != "espeak-ng" {
		t.Errorf("expected espeak-ng, got %s", cfg.Binary)
	}
	if err := cfg.Validate(); !errors.Is(err, tts.ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestAPIError(t *testing.T) {
	t.Run("IsRateLimited", func(t *testing.T) {
		err := &tts.APIError{StatusCode: 429, Message: "rate limited"}
		if !err.IsRateLimited() || !err.IsRetryable() {
			t.Error("expected rate limited and retryable")
		}
		if err.IsUnauthorized() {
			t.Error("expected IsUnauthorized false")
		}
	})

	t.Run("IsUnauthorized", func(t *testing.T) {
		err := &tts.APIError{StatusCode: 401}
		if !err.IsUnauthorized() || err.IsRetryable() {
			t.Error("expected unauthorized and not retryable")
		}
	})

	t.Run("IsServerError", func(t *testing.T) {
		for _, code := range []int{500, 502, 503, 504} {
			err := &tts.APIError{StatusCode: code}
			if !err.IsServerError() || !err.IsRetryable() {
				t.Errorf("expected retryable server error for %d", code)
			}
		}
	})

	t.Run("Error message format", func(t *testing.T) {
		err := &tts.APIError{
			StatusCode: 400,
			Message:    "bad request",
			Code:       "invalid_input",
			Provider:   "openai",
		}
		if msg := err.Error(); msg != "tts [openai]: API error 400 (invalid_input): bad request" {
			t.Errorf("unexpected error message: %s", msg)
		}
	})
}

func TestProviderError(t *testing.T) {
	inner := errors.New("connection failed")
	err := tts.WrapError("espeak", inner)

	if err.Error() != "tts [espeak]: connection failed" {
		t.Errorf("unexpected error message: %s", err.Error())
	}
	var pe *tts.ProviderError
	if !errors.As(err, &pe) || pe.Provider != "espeak" {
		t.Errorf("expected ProviderError for espeak, got %v", err)
	}
	if !errors.Is(err, inner) {
		t.Error("expected Unwrap to expose inner error")
	}
	if tts.WrapError("espeak", nil) != nil {
		t.Error("expected nil for nil error")
	}
}

func TestEstimateDuration(t *testing.T) {
	wav := tts.AudioFormat{Encoding: tts.EncodingWAV, SampleRate: 22050, Channels: 1, BitDepth: 16}

	tests := []struct {
		name   string
		format tts.AudioFormat
		bytes  int
		want   time.Duration
	}{
		{"one second wav", wav, 44 + 44100, time.Second},
		{"header only", wav, 44, 0},
		{"mp3 unknown", tts.AudioFormat{Encoding: tts.EncodingMP3, SampleRate: 44100}, 10000, 0},
		{"raw pcm", tts.AudioFormat{Encoding: tts.EncodingPCM24, SampleRate: 24000, Channels: 1}, 48000, time.Second},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tts.EstimateDuration(tc.format, tc.bytes); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestChain(t *testing.T) {
	ctx := context.Background()

	t.Run("NewChain requires providers", func(t *testing.T) {
		if _, err := tts.NewChain(); !errors.Is(err, tts.ErrProviderUnavailable) {
			t.Errorf("expected ErrProviderUnavailable, got %v", err)
		}
	})

	t.Run("First provider succeeds", func(t *testing.T) {
		mock1 := tts.NewMock()
		mock2 := tts.NewMock()

		chain, err := tts.NewChain(mock1, mock2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer chain.Close()

		if _, err := chain.Synthesize(ctx, "Hello"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if mock1.CallCount("Synthesize") != 1 {
			t.Error("expected first provider to be called")
		}
		if mock2.CallCount("Synthesize") != 0 {
			t.Error("expected second provider not to be called")
		}
	})

	t.Run("Fallback on failure", func(t *testing.T) {
		chain, err := tts.NewChain(tts.WithError(errors.New("provider 1 failed")), tts.NewMock())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		result, err := chain.Synthesize(ctx, "Hello")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result == nil {
			t.Error("expected result from fallback provider")
		}
	})

	t.Run("All providers fail", func(t *testing.T) {
		fail1 := errors.New("fail 1")
		fail2 := errors.New("fail 2")
		chain, err := tts.NewChain(tts.WithError(fail1), tts.WithError(fail2))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		_, err = chain.Synthesize(ctx, "Hello")
		var ce *tts.ChainError
		if !errors.As(err, &ce) || len(ce.Errors) != 2 {
			t.Fatalf("expected ChainError with 2 errors, got %v", err)
		}
		if !errors.Is(err, fail1) || !errors.Is(err, fail2) {
			t.Error("expected both provider errors to be reachable")
		}
		var pe *tts.ProviderError
		if !errors.As(ce.Errors[0], &pe) || pe.Provider != tts.NameMock {
			t.Errorf("expected provider-tagged error, got %v", ce.Errors[0])
		}
	})

	t.Run("Health passes with one healthy provider", func(t *testing.T) {
		chain, _ := tts.NewChain(tts.WithError(errors.New("down")), tts.NewMock())
		if err := chain.Health(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("Health fails when all unhealthy", func(t *testing.T) {
		down := errors.New("down")
		chain, _ := tts.NewChain(tts.WithError(down))
		err := chain.Health(ctx)
		if !errors.Is(err, down) || !errors.Is(err, tts.ErrProviderUnavailable) {
			t.Fatalf("expected wrapped health error, got %v", err)
		}
	})
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		opts     []tts.Option
		want     string
		wantErr  error
	}{
		{"default is espeak", "", nil, tts.NameEspeak, nil},
		{"espeak", tts.NameEspeak, nil, tts.NameEspeak, nil},
		{"mock", tts.NameMock, nil, tts.NameMock, nil},
		{"openai needs key", tts.NameOpenAI, nil, "", tts.ErrNoAPIKey},
		{"openai", tts.NameOpenAI, []tts.Option{tts.WithAPIKey("k")}, tts.NameOpenAI, nil},
		{"chain without key", tts.NameChain, nil, tts.NameChain, nil},
		{"chain with key", tts.NameChain, []tts.Option{tts.WithAPIKey("k"), tts.WithVoice("en-us")}, tts.NameChain, nil},
		{"bad rate", tts.NameEspeak, []tts.Option{tts.WithRate(0)}, "", tts.ErrInvalidRate},
		{"unknown", "festival", nil, "", tts.ErrUnknownProvider},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := tts.New(tc.provider, tc.opts...)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer p.Close()
			if got := tts.Name(p); got != tc.want {
				t.Errorf("Name = %q, want %q", got, tc.want)
			}
		})
	}

	t.Run("chain order", func(t *testing.T) {
		p, err := tts.New(tts.NameChain, tts.WithAPIKey("k"))
		if err != nil {
			t.Fatal(err)
		}
		providers := p.(*tts.Chain).Providers()
		if len(providers) != 2 || tts.Name(providers[0]) != tts.NameOpenAI || tts.Name(providers[1]) != tts.NameEspeak {
			t.Errorf("unexpected chain %v", providers)
		}
	})
}
