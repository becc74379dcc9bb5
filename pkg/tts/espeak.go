package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const providerEspeak = "espeak"

// DefaultRate is the local engine's speaking rate in words per minute.
const DefaultRate = 170

// Espeak implements Provider with a local espeak-ng process. Text is passed
// on stdin and a WAV container is read back from stdout.
type Espeak struct {
	config *Config
	logger *slog.Logger
}

// NewEspeak creates a local provider. It does not require the binary to be
// installed until Synthesize or Health is called.
func NewEspeak(opts ...Option) (*Espeak, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.Rate <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRate, cfg.Rate)
	}
	if cfg.Binary == "" {
		cfg.Binary = "espeak-ng"
	}

	return &Espeak{
		config: cfg,
		logger: cfg.Logger.With("component", "tts.espeak"),
	}, nil
}

// Synthesize runs the engine once for text.
func (e *Espeak) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, WrapError(providerEspeak, ErrEmptyText)
	}

	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	start := time.Now()

	cmd := exec.CommandContext(ctx, e.config.Binary, e.args()...)
	cmd.Stdin = strings.NewReader(text)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, WrapError(providerEspeak, fmt.Errorf("%w: %s", ErrEngineNotFound, e.config.Binary))
		}
		if ctx.Err() != nil {
			return nil, WrapError(providerEspeak, ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, WrapError(providerEspeak, fmt.Errorf("%w: %s", err, msg))
		}
		return nil, WrapError(providerEspeak, err)
	}

	audio := stdout.Bytes()
	if len(audio) == 0 {
		return nil, WrapError(providerEspeak, ErrNoAudio)
	}

	format := parseWAVFormat(audio)
	latency := time.Since(start)

	e.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency.Milliseconds(),
		"rate", e.config.Rate,
	)

	return &AudioResult{
		Audio:     audio,
		Format:    format,
		Duration:  EstimateDuration(format, len(audio)),
		CharCount: len(text),
		Latency:   latency,
		Provider:  providerEspeak,
	}, nil
}

func (e *Espeak) args() []string {
	args := []string{"--stdout", "-s", strconv.Itoa(e.config.Rate)}
	if e.config.VoiceID != "" {
		args = append(args, "-v", e.config.VoiceID)
	}
	return args
}

// Health checks that the engine binary is on PATH.
func (e *Espeak) Health(ctx context.Context) error {
	if _, err := exec.LookPath(e.config.Binary); err != nil {
		return WrapError(providerEspeak, fmt.Errorf("%w: %s", ErrEngineNotFound, e.config.Binary))
	}
	return ctx.Err()
}

// Close is a no-op; each call runs its own process.
func (e *Espeak) Close() error {
	return nil
}

// Rate returns the configured speaking rate.
func (e *Espeak) Rate() int {
	return e.config.Rate
}

// parseWAVFormat reads the fmt chunk of a canonical RIFF header. espeak-ng
// emits 22050Hz mono PCM16, which is assumed when the header is unreadable.
func parseWAVFormat(b []byte) AudioFormat {
	f := AudioFormat{Encoding: EncodingWAV, SampleRate: 22050, Channels: 1, BitDepth: 16}
	if len(b) < wavHeaderSize || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return f
	}
	if ch := int(binary.LittleEndian.Uint16(b[22:24])); ch > 0 {
		f.Channels = ch
	}
	if sr := int(binary.LittleEndian.Uint32(b[24:28])); sr > 0 {
		f.SampleRate = sr
	}
	if bd := int(binary.LittleEndian.Uint16(b[34:36])); bd > 0 {
		f.BitDepth = bd
	}
	return f
}

var _ Provider = (*Espeak)(nil)
