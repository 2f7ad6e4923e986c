package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RetryableError markiert transiente Fehler (429, 5xx, Transportfehler).
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Retryable verpackt err als wiederholbaren Fehler.
func Retryable(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable meldet, ob err wiederholt werden darf.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// RetryPolicy steuert Rate-Limit und Backoff eines HTTP-Clients.
type RetryPolicy struct {
	Limiter     *rate.Limiter
	MaxRetries  int
	BaseBackoff time.Duration
}

// NewRetryPolicy erstellt eine Policy mit perSecond Aufrufen pro Sekunde.
func NewRetryPolicy(perSecond float64, burst, maxRetries int) RetryPolicy {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return RetryPolicy{
		Limiter:     rate.NewLimiter(rate.Limit(perSecond), burst),
		MaxRetries:  maxRetries,
		BaseBackoff: time.Second,
	}
}

// Do führt fn mit Rate-Limit und exponentiellem Backoff aus.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.Limiter != nil {
		if err := p.Limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter error: %w", err)
		}
	}
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := p.BaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
