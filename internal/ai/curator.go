package ai

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/tracgallery/gallery/internal/logging"
	"github.com/tracgallery/gallery/internal/types"
)

// rawExcerptLen bounds how much of an unparseable reply is logged
const rawExcerptLen = 200

// Curator rates inscriptions through one vision provider chosen at construction
type Curator struct {
	provider   VisionProvider
	resilience *resilience
	log        *zerolog.Logger
}

// NewCurator wraps a provider with the retry, circuit breaker and concurrency policy.
// A zero RetryConfig selects DefaultRetryConfig.
func NewCurator(provider VisionProvider, retry RetryConfig, logger *zerolog.Logger) (*Curator, error) {
	if provider == nil {
		return nil, errors.New("vision provider is required")
	}
	if retry == (RetryConfig{}) {
		retry = DefaultRetryConfig()
	}
	log := logging.Component(logger, "curator")
	log.Info().
		Str("provider", provider.Name()).
		Int("max_retries", retry.MaxRetries).
		Int("max_concurrent", retry.MaxConcurrentCalls).
		Bool("circuit_breaker", retry.CircuitBreakerEnabled).
		Msg("curator initialized")

	return &Curator{
		provider:   provider,
		resilience: newResilience(retry, log),
		log:        log,
	}, nil
}

// ProviderName returns the configured provider's name
func (c *Curator) ProviderName() string {
	return c.provider.Name()
}

// Analyze sends an item's content to the provider and parses the reply.
// Every failure is logged and yields nil; callers store the item unscored.
func (c *Curator) Analyze(ctx context.Context, content []byte, mediaType string, item *types.CuratedItem) *types.AnalysisResult {
	if len(content) == 0 {
		return nil
	}
	prompt := BuildPrompt(item)
	itemID := ""
	if item != nil {
		itemID = item.ID
	}

	var text string
	err := c.resilience.do(ctx, "analyze", func(attemptCtx context.Context) error {
		out, err := c.provider.Analyze(attemptCtx, content, mediaType, prompt)
		if err != nil {
			return err
		}
		text = out
		return nil
	})
	if err != nil {
		c.log.Error().Err(err).Str("provider", c.provider.Name()).Str("id", itemID).Msg("provider API error")
		return nil
	}

	result, err := ParseAnalysis(text)
	if err != nil {
		c.log.Error().Err(err).Str("id", itemID).Str("raw", truncate(text, rawExcerptLen)).Msg("failed to parse AI response")
		return nil
	}
	return result
}

// Healthy reports whether the provider's circuit breaker is accepting calls
func (c *Curator) Healthy() bool {
	if c.resilience.circuitBreaker == nil {
		return true
	}
	return c.resilience.circuitBreaker.State() != CircuitOpen
}
