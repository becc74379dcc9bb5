// Package tts turns announcement text into playable audio.
//
// Providers hide the engine behind a single interface so the speech worker
// can switch between the local espeak-ng engine, OpenAI's speech endpoint,
// or a fallback chain of both without changing caller code.
//
//	provider, _ := tts.NewEspeak(tts.WithRate(170))
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, "I see person on the center")
//	// result.Audio holds a WAV container
package tts

import (
	"context"
	"time"
)

// Provider synthesizes speech. Implementations must be safe for use by a
// single worker goroutine; Chain and Mock are also safe for concurrent use.
type Provider interface {
	// Synthesize converts text to a complete audio buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Health checks that the engine or API is reachable.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioResult is a complete synthesis result.
type AudioResult struct {
	// Audio is the encoded audio in Format.
	Audio []byte

	Format AudioFormat

	// Duration is the estimated playback duration, zero when unknown.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// Latency is the wall time the provider spent synthesizing.
	Latency time.Duration

	// Provider names the engine that produced the audio.
	Provider string
}

// AudioFormat describes the audio encoding.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	BitDepth   int
}

// Encoding names an audio container or codec.
type Encoding string

const (
	EncodingWAV   Encoding = "wav"       // RIFF/WAVE, PCM16
	EncodingMP3   Encoding = "mp3"       // MPEG layer 3
	EncodingPCM24 Encoding = "pcm_24000" // raw 24kHz mono PCM16
)

// ContentType returns the MIME type for the encoding.
func (e Encoding) ContentType() string {
	switch e {
	case EncodingWAV:
		return "audio/wav"
	case EncodingMP3:
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}

// EstimateDuration approximates playback time for PCM16 audio. It returns
// zero for compressed formats.
func EstimateDuration(f AudioFormat, bytes int) time.Duration {
	if f.Encoding == EncodingMP3 || f.SampleRate <= 0 {
		return 0
	}
	channels := max(f.Channels, 1)
	depth := f.BitDepth
	if depth <= 0 {
		depth = 16
	}
	bytesPerSecond := f.SampleRate * channels * depth / 8
	if f.Encoding == EncodingWAV {
		bytes -= wavHeaderSize
	}
	if bytes <= 0 {
		return 0
	}
	return time.Duration(float64(bytes) / float64(bytesPerSecond) * float64(time.Second))
}

// wavHeaderSize is the canonical 44-byte RIFF header.
const wavHeaderSize = 44
