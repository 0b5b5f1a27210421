package ledger

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// Transient submission failures the gateway may retry. Real nodes surface
// most of these as text errors; classify matches both wrapped sentinels and
// message fragments.
var (
	ErrNonceConflict = errors.New("nonce conflict")
	ErrUnderpriced   = errors.New("transaction underpriced")
	ErrAlreadyKnown  = errors.New("already known")
	ErrNetwork       = errors.New("network error")
)

var transientFragments = []string{
	"nonce too low",
	"nonce conflict",
	"invalid sequence",
	"underpriced",
	"replacement transaction underpriced",
	"replacement fee too low",
	"already known",
	"timeout",
	"connection refused",
	"connection reset",
}

// isTransient reports whether a submission failure may be retried under the
// bounded policy. Everything else propagates immediately.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	// Caller deadlines abort the retry loop, they are not transient causes.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrNonceConflict) || errors.Is(err, ErrUnderpriced) ||
		errors.Is(err, ErrAlreadyKnown) || errors.Is(err, ErrNetwork) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range transientFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// isAlreadyKnown reports whether the node claims it has seen this
// transaction before. A prior attempt may have landed, so the gateway checks
// for an existing receipt before re-submitting.
func isAlreadyKnown(err error) bool {
	if errors.Is(err, ErrAlreadyKnown) {
		return true
	}
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "already known")
}

// retryPolicy bounds submission attempts with doubling backoff.
type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

func newRetryPolicy(maxAttempts int, baseDelay time.Duration) retryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return retryPolicy{maxAttempts: maxAttempts, baseDelay: baseDelay, sleep: sleepCtx}
}

// delay returns the backoff before attempt n (1-based); attempt 1 runs
// immediately, attempt 2 waits baseDelay, attempt 3 waits 2*baseDelay.
func (p retryPolicy) delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	return p.baseDelay << (attempt - 2)
}

// sleepCtx waits without blocking other in-flight operations, aborting when
// the caller's deadline expires.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
