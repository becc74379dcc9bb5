package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Chain implements Provider by trying providers in order. The first
// success wins; if all fail, a ChainError aggregates the failures.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

// NewChain creates a chain. At least one provider is required.
func NewChain(providers ...Provider) (*Chain, error) {
	return NewChainWithLogger(slog.Default(), providers...)
}

// NewChainWithLogger creates a chain with a custom logger.
func NewChainWithLogger(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		providers: providers,
		logger:    logger.With("component", "tts.chain"),
	}, nil
}

// Synthesize asks each provider in turn. A cancelled ctx ends the walk
// early; the caller's deadline is shared by every attempt.
func (c *Chain) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	errs := make([]error, 0, len(c.providers))

	for i, p := range c.providers {
		result, err := p.Synthesize(ctx, text)
		if err == nil {
			if i > 0 {
				c.logger.Info("announcement voiced by fallback",
					"provider", Name(p),
					"skipped", i,
					"chars", len(text),
				)
			}
			return result, nil
		}

		errs = append(errs, &ProviderError{Provider: Name(p), Err: err})
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if i+1 < len(c.providers) {
			c.logger.Warn("falling back",
				"from", Name(p),
				"to", Name(c.providers[i+1]),
				"error", err,
			)
		}
	}

	return nil, &ChainError{Errors: errs}
}

// Health reports nil while any provider can still voice announcements.
func (c *Chain) Health(ctx context.Context) error {
	var errs []error
	for _, p := range c.providers {
		err := p.Health(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", Name(p), err))
	}
	return fmt.Errorf("%w: %w", ErrProviderUnavailable, errors.Join(errs...))
}

// Close closes every provider.
func (c *Chain) Close() error {
	var errs []error
	for _, p := range c.providers {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}

// Providers returns the providers in order.
func (c *Chain) Providers() []Provider {
	return c.providers
}

// ChainError aggregates errors from all providers in a chain.
type ChainError struct {
	Errors []error
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "tts chain: no errors recorded"
	case 1:
		return fmt.Sprintf("tts chain: %v", e.Errors[0])
	}
	return fmt.Sprintf("tts chain: all %d providers failed, last error: %v", len(e.Errors), e.Errors[len(e.Errors)-1])
}

// Unwrap exposes every provider error to errors.Is and errors.As.
func (e *ChainError) Unwrap() []error {
	return e.Errors
}

var _ Provider = (*Chain)(nil)
