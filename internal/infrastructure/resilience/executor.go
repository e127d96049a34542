package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// Executor runs backend calls through a per-operation guard: an optional
// circuit breaker around a rate limited retry loop.
type Executor struct {
	cfg Config

	mu     sync.Mutex
	guards map[string]*guard
}

type guard struct {
	breaker *gobreaker.CircuitBreaker[struct{}]
	limiter *rate.Limiter
}

func NewExecutor(cfg Config) *Executor {
	return &Executor{
		cfg:    cfg.normalize(),
		guards: make(map[string]*guard),
	}
}

// Execute calls fn until it succeeds, the classifier declares the error
// permanent or the attempts are spent. The breaker of operation is created on
// first use with the classifier of that call.
func (e *Executor) Execute(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classifier == nil {
		classifier = defaultClassifier
	}

	g := e.guardFor(op, classifier)
	if g.breaker == nil {
		return e.retry(ctx, op, g.limiter, fn, classifier)
	}
	_, err := g.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, e.retry(ctx, op, g.limiter, fn, classifier)
	})
	return err
}

func (e *Executor) retry(
	ctx context.Context,
	op string,
	limiter *rate.Limiter,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	delay := e.cfg.RetryInitialBackoff
	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if limiter != nil {
			if waitErr := limiter.Wait(ctx); waitErr != nil {
				return fmt.Errorf("resilience: rate limit wait for %s: %w", op, waitErr)
			}
		}

		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt >= e.cfg.RetryMaxAttempts || !classifier(err).Retryable {
			return err
		}

		wait := min(delay, e.cfg.RetryMaxBackoff)
		e.cfg.Logger.Warn("retry_attempt",
			"operation", op,
			"attempt", attempt,
			"max_attempts", e.cfg.RetryMaxAttempts,
			"backoff_ms", float64(wait.Microseconds())/1000.0,
			"error", err,
		)
		if !sleep(ctx, wait) {
			return err
		}
		delay = time.Duration(float64(delay) * e.cfg.RetryMultiplier)
	}
}

func (e *Executor) guardFor(op string, classifier ErrorClassifier) *guard {
	e.mu.Lock()
	defer e.mu.Unlock()

	if g, ok := e.guards[op]; ok {
		return g
	}
	g := &guard{}
	if e.cfg.BreakerEnabled {
		g.breaker = e.newBreaker(op, classifier)
	}
	if e.cfg.RateLimitPerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(e.cfg.RateLimitPerSecond), e.cfg.RateLimitBurst)
	}
	e.guards[op] = g
	return g
}

func (e *Executor) newBreaker(op string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[struct{}] {
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        op,
		MaxRequests: e.cfg.BreakerHalfOpenMaxCalls,
		Timeout:     e.cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < e.cfg.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= e.cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier(err).RecordFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.cfg.Logger.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
		},
	})
}

// sleep waits d and reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func defaultClassifier(error) ErrorClassification {
	return ErrorClassification{RecordFailure: true}
}
