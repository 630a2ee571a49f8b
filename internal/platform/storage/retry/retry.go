// Package retry wraps store writes with bounded retry under lock contention.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted indicates a write stayed contended past the retry budget.
var ErrExhausted = errors.New("retry budget exhausted")

// Class tags a storage failure for retry decisions.
type Class int

const (
	// ClassFatal failures propagate immediately without a retry.
	ClassFatal Class = iota
	// ClassRetryable failures are transient lock contention and may be retried.
	ClassRetryable
)

// Classifier maps a storage error to a retry class. It keeps the retry loop
// agnostic of the storage engine's error representation.
type Classifier func(error) Class

// Policy bounds how contended writes are retried. Delays grow linearly:
// attempt n waits (n+1) * BaseDelay before the next try.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Classify    Classifier
}

// DefaultPolicy mirrors the store's expected contention profile.
func DefaultPolicy(classify Classifier) Policy {
	return Policy{
		MaxAttempts: 8,
		BaseDelay:   10 * time.Millisecond,
		Classify:    classify,
	}
}

// Do runs op, retrying when the classifier tags the failure as retryable.
// Fatal failures return immediately. Once MaxAttempts retries are spent the
// last contention error is wrapped with ErrExhausted.
func (p Policy) Do(ctx context.Context, op func() error) error {
	if op == nil {
		return fmt.Errorf("retry op is required")
	}
	classify := p.Classify
	if classify == nil {
		classify = func(error) Class { return ClassFatal }
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	baseDelay := p.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 10 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if classify(err) != ClassRetryable {
			return err
		}
		lastErr = err
		if attempt == maxAttempts-1 {
			break
		}
		if waitErr := waitForRetry(ctx, attempt, baseDelay); waitErr != nil {
			return waitErr
		}
	}
	return fmt.Errorf("write remained contended after %d attempts: %w: %w", maxAttempts, ErrExhausted, lastErr)
}

func waitForRetry(ctx context.Context, attempt int, baseDelay time.Duration) error {
	delay := time.Duration(attempt+1) * baseDelay
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
