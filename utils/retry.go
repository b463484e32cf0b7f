package utils

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"syscall"
	"time"

	"shorturl-analytics/logging"
)

// isRecoverableError reports whether a dependency that failed to answer may
// answer on a later attempt.
func isRecoverableError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "temporarily unavailable") ||
		strings.Contains(msg, "connection refused")
}

// RetryWithExponentialBackoff runs operation until it succeeds, returns an
// unrecoverable error, maxRetries attempts are used or ctx ends. It is meant
// for connecting to dependencies at startup; scans and bulk writes are never
// retried.
func RetryWithExponentialBackoff(ctx context.Context, name string, operation func() error, maxRetries int, initialDelay time.Duration) error {
	delay := initialDelay
	var err error

	for i := 0; i < maxRetries; i++ {
		if err = operation(); err == nil {
			return nil
		}
		if !isRecoverableError(err) || i == maxRetries-1 {
			break
		}

		logging.AuditLogger.Printf("%s: attempt %d failed: %v. Retrying in %v", name, i+1, err, delay)

		// Apply jitter: add a random duration between 0 and half the current delay.
		wait := delay
		if half := int64(delay / 2); half > 0 {
			wait += time.Duration(rand.Int63n(half))
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w (last error: %v)", name, ctx.Err(), err)
		case <-timer.C:
		}
		delay *= 2
	}
	return fmt.Errorf("%s failed: %w", name, err)
}
