package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracgallery/gallery/internal/logging"
	"github.com/tracgallery/gallery/internal/types"
)

func fastRetryConfig() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	cfg.Timeout = time.Second
	return cfg
}

func anthropicError(status int) error {
	return &anthropic.Error{
		StatusCode: status,
		Request:    httptest.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil),
		Response:   &http.Response{StatusCode: status},
	}
}

func TestIsRetriableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"upstream 429", &types.UpstreamError{Service: "openai", StatusCode: 429}, true},
		{"upstream 503", &types.UpstreamError{Service: "openai", StatusCode: 503}, true},
		{"upstream 401", &types.UpstreamError{Service: "openai", StatusCode: 401}, false},
		{"upstream 400 wrapped", fmt.Errorf("call: %w", &types.UpstreamError{Service: "ollama", StatusCode: 400}), false},
		{"anthropic 529", anthropicError(529), true},
		{"anthropic 403", anthropicError(http.StatusForbidden), false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"rate limit text", errors.New("Rate limit exceeded"), true},
		{"unknown", errors.New("something odd"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetriableError(tt.err))
		})
	}
}

func TestCircuitBreaker_Transitions(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(2, 2, 30*time.Second, logging.Nop())
	cb.now = func() time.Time { return now }

	require.NoError(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State())
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	now = now.Add(31 * time.Second)
	require.NoError(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.State())

	// failure while probing reopens immediately
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())

	now = now.Add(31 * time.Second)
	require.NoError(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, CircuitHalfOpen, cb.State())
	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())

	_, failures, successes := cb.Metrics()
	assert.Zero(t, failures)
	assert.Zero(t, successes)
}

func TestCircuitStateString(t *testing.T) {
	assert.Equal(t, "CLOSED", CircuitClosed.String())
	assert.Equal(t, "OPEN", CircuitOpen.String())
	assert.Equal(t, "HALF_OPEN", CircuitHalfOpen.String())
	assert.Equal(t, "UNKNOWN", CircuitState(42).String())
}

func TestResilience_RetriesTransientErrors(t *testing.T) {
	r := newResilience(fastRetryConfig(), logging.Nop())

	calls := 0
	err := r.do(context.Background(), "test", func(context.Context) error {
		calls++
		if calls < 3 {
			return &types.UpstreamError{Service: "x", StatusCode: 503}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestResilience_StopsOnPermanentError(t *testing.T) {
	r := newResilience(fastRetryConfig(), logging.Nop())

	calls := 0
	err := r.do(context.Background(), "test", func(context.Context) error {
		calls++
		return &types.UpstreamError{Service: "x", StatusCode: 401, Message: "bad key"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, CircuitClosed, r.circuitBreaker.State(), "permanent errors do not trip the breaker")
}

func TestResilience_ExhaustsRetries(t *testing.T) {
	cfg := fastRetryConfig()
	cfg.MaxRetries = 2
	r := newResilience(cfg, logging.Nop())

	calls := 0
	err := r.do(context.Background(), "test", func(context.Context) error {
		calls++
		return errors.New("HTTP 502 bad gateway")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, calls)
}

func TestResilience_FailsFastWhenOpen(t *testing.T) {
	cfg := fastRetryConfig()
	cfg.MaxRetries = 0
	cfg.FailureThreshold = 1
	r := newResilience(cfg, logging.Nop())

	_ = r.do(context.Background(), "test", func(context.Context) error {
		return errors.New("503 service unavailable")
	})

	called := false
	err := r.do(context.Background(), "test", func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}
