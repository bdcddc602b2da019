package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/tracgallery/gallery/internal/types"
)

// RetryConfig holds retry configuration for provider calls
type RetryConfig struct {
	MaxRetries        int           // Maximum number of retries (default: 2)
	InitialBackoff    time.Duration // Initial backoff duration (default: 1s)
	MaxBackoff        time.Duration // Maximum backoff duration (default: 30s)
	BackoffMultiplier float64       // Backoff multiplier (default: 2.0)
	Timeout           time.Duration // Per-attempt timeout (default: 90s)

	// Circuit breaker settings
	CircuitBreakerEnabled bool          // Enable circuit breaker (default: true)
	FailureThreshold      int           // Failures before opening circuit (default: 5)
	SuccessThreshold      int           // Successes in half-open before closing (default: 2)
	OpenTimeout           time.Duration // How long to keep circuit open (default: 30s)

	MaxConcurrentCalls int // Maximum concurrent provider calls (default: 2, 0 = unlimited)
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:            2,
		InitialBackoff:        1 * time.Second,
		MaxBackoff:            30 * time.Second,
		BackoffMultiplier:     2.0,
		Timeout:               90 * time.Second,
		CircuitBreakerEnabled: true,
		FailureThreshold:      5,
		SuccessThreshold:      2,
		OpenTimeout:           30 * time.Second,
		MaxConcurrentCalls:    2,
	}
}

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation, requests pass through
	CircuitOpen                         // Too many failures, block requests (fail fast)
	CircuitHalfOpen                     // Testing recovery, allow limited requests
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker stops calling a provider that keeps failing
type CircuitBreaker struct {
	mu sync.Mutex

	state            CircuitState
	failureCount     int
	successCount     int
	lastFailureTime  time.Time
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
	now              func() time.Time
	log              *zerolog.Logger
}

// NewCircuitBreaker creates a new circuit breaker with the given thresholds
func NewCircuitBreaker(failureThreshold, successThreshold int, openTimeout time.Duration, logger *zerolog.Logger) *CircuitBreaker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &CircuitBreaker{
		state:            CircuitClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		openTimeout:      openTimeout,
		now:              time.Now,
		log:              logger,
	}
}

// Allow returns ErrCircuitOpen while the circuit is open and the open timeout has not elapsed
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed, CircuitHalfOpen:
		return nil
	case CircuitOpen:
		if cb.now().Sub(cb.lastFailureTime) > cb.openTimeout {
			cb.transition(CircuitHalfOpen)
			return nil
		}
		return ErrCircuitOpen
	default:
		return ErrCircuitOpen
	}
}

// RecordSuccess records a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failureCount = 0
	case CircuitHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.transition(CircuitClosed)
		}
	}
}

// RecordFailure records a failed request
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = cb.now()

	switch cb.state {
	case CircuitClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		// any failure while probing reopens
		cb.transition(CircuitOpen)
	}
}

// State returns the current state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Metrics returns the state and counters for status reporting
func (cb *CircuitBreaker) Metrics() (state CircuitState, failures, successes int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state, cb.failureCount, cb.successCount
}

// transition must be called with the lock held
func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.successCount = 0
	if to == CircuitClosed {
		cb.failureCount = 0
	}
	cb.log.Info().
		Stringer("from", from).
		Stringer("to", to).
		Int("failures", cb.failureCount).
		Dur("open_timeout", cb.openTimeout).
		Msg("circuit breaker state transition")
}

// resilience wraps provider calls with a concurrency cap, a circuit breaker
// and bounded retries with exponential backoff.
type resilience struct {
	retry          RetryConfig
	circuitBreaker *CircuitBreaker
	concurrencySem *semaphore.Weighted
	log            *zerolog.Logger
}

func newResilience(retry RetryConfig, logger *zerolog.Logger) *resilience {
	r := &resilience{retry: retry, log: logger}
	if retry.CircuitBreakerEnabled {
		r.circuitBreaker = NewCircuitBreaker(retry.FailureThreshold, retry.SuccessThreshold, retry.OpenTimeout, logger)
	}
	if retry.MaxConcurrentCalls > 0 {
		r.concurrencySem = semaphore.NewWeighted(int64(retry.MaxConcurrentCalls))
	}
	return r
}

// do executes fn with retry and exponential backoff
func (r *resilience) do(ctx context.Context, operation string, fn func(context.Context) error) error {
	if r.concurrencySem != nil {
		if err := r.concurrencySem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("failed to acquire concurrency slot for %s: %w", operation, err)
		}
		defer r.concurrencySem.Release(1)
	}

	var lastErr error
	backoff := r.retry.InitialBackoff

	for attempt := 0; attempt <= r.retry.MaxRetries; attempt++ {
		if r.circuitBreaker != nil {
			if err := r.circuitBreaker.Allow(); err != nil {
				state, failures, _ := r.circuitBreaker.Metrics()
				r.log.Warn().Str("operation", operation).Stringer("state", state).Int("failures", failures).
					Msg("provider call blocked by circuit breaker")
				return fmt.Errorf("%s failed: %w", operation, err)
			}
		}

		attemptCtx := ctx
		cancel := func() {}
		if r.retry.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, r.retry.Timeout)
		}
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			if r.circuitBreaker != nil {
				r.circuitBreaker.RecordSuccess()
			}
			if attempt > 0 {
				r.log.Info().Str("operation", operation).Int("retries", attempt).Msg("provider call succeeded after retries")
			}
			return nil
		}

		lastErr = err
		retriable := isRetriableError(err)

		// auth and request errors do not count against the breaker
		if r.circuitBreaker != nil && retriable {
			r.circuitBreaker.RecordFailure()
		}
		if !retriable {
			return err
		}
		if attempt == r.retry.MaxRetries {
			break
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s failed: context canceled: %w", operation, ctx.Err())
		}

		r.log.Warn().Err(err).Str("operation", operation).
			Int("attempt", attempt+1).Int("max_attempts", r.retry.MaxRetries+1).Dur("backoff", backoff).
			Msg("provider call failed, retrying")

		select {
		case <-time.After(backoff):
			backoff = time.Duration(float64(backoff) * r.retry.BackoffMultiplier)
			if r.retry.MaxBackoff > 0 && backoff > r.retry.MaxBackoff {
				backoff = r.retry.MaxBackoff
			}
		case <-ctx.Done():
			return fmt.Errorf("%s failed: context canceled during backoff: %w", operation, ctx.Err())
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, r.retry.MaxRetries+1, lastErr)
}

// isRetriableError determines if an error is transient
func isRetriableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var upstream *types.UpstreamError
	if errors.As(err, &upstream) && upstream.StatusCode != 0 {
		return retriableStatus(upstream.StatusCode)
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		return retriableStatus(apiErr.StatusCode)
	}

	errStr := strings.ToLower(err.Error())
	for _, s := range []string{
		"429", "rate limit", "500", "502", "503", "504",
		"internal server error", "bad gateway", "service unavailable", "gateway timeout",
		"connection refused", "connection reset", "timeout", "temporary failure",
	} {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}

func retriableStatus(code int) bool {
	return code == 429 || code >= 500
}
