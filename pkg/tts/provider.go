package tts

import "fmt"

// Provider names accepted by New.
const (
	NameEspeak = "espeak"
	NameOpenAI = "openai"
	NameChain  = "chain"
	NameMock   = "mock"
)

// New builds the provider registered under name. The chain tries OpenAI
// first and falls back to espeak-ng; without an API key it degrades to
// espeak-ng alone.
func New(name string, opts ...Option) (Provider, error) {
	switch name {
	case NameEspeak, "":
		return NewEspeak(opts...)
	case NameOpenAI:
		return NewOpenAI(opts...)
	case NameMock:
		return NewMock(), nil
	case NameChain:
		cfg := DefaultConfig()
		cfg.Apply(opts...)

		local, err := NewEspeak(opts...)
		if err != nil {
			return nil, err
		}
		if cfg.APIKey == "" {
			cfg.Logger.Warn("no API key for openai, chain uses espeak only",
				"component", "tts.chain")
			return NewChainWithLogger(cfg.Logger, local)
		}
		voice := cfg.VoiceID
		if !IsOpenAIVoice(voice) {
			voice = VoiceAlloy
		}
		remote, err := NewOpenAI(append(opts, WithVoice(voice))...)
		if err != nil {
			return nil, err
		}
		return NewChainWithLogger(cfg.Logger, remote, local)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
}

// Name reports the engine name of a provider built by New.
func Name(p Provider) string {
	switch p.(type) {
	case *Espeak:
		return NameEspeak
	case *OpenAI:
		return NameOpenAI
	case *Chain:
		return NameChain
	case *Mock:
		return NameMock
	}
	return fmt.Sprintf("%T", p)
}
