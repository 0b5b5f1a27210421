package ratelimit

import (
	"context"
	"log/slog"
	"time"

	dErrors "veritas/pkg/domain-errors"
	"veritas/pkg/requestcontext"
)

// BucketStore is the counter backend. Reserve and ReserveN must treat
// the limit check and the increment as one atomic step per recipient:
// either every requested slot is consumed or none are.
type BucketStore interface {
	Reserve(ctx context.Context, recipient string, now time.Time, limits Limits) (*Denial, error)
	ReserveN(ctx context.Context, recipient string, now time.Time, limits Limits, n int) (*Denial, error)
	Release(ctx context.Context, recipient string, now time.Time, n int) error
	Counts(ctx context.Context, recipient string, now time.Time) (hour, day int, err error)
	Reset(ctx context.Context, recipient string) error
}

// Limiter enforces per-recipient issuance quotas over hourly and daily
// fixed windows.
type Limiter struct {
	store  BucketStore
	limits Limits
	logger *slog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets the logger used for denial events.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// New creates a Limiter backed by the given store.
func New(store BucketStore, limits Limits, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "ratelimit: store is required")
	}
	if limits.MaxPerHour <= 0 || limits.MaxPerDay <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "ratelimit: limits must be positive")
	}
	if limits.MaxPerDay < limits.MaxPerHour {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "ratelimit: daily limit below hourly limit")
	}

	l := &Limiter{
		store:  store,
		limits: limits,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// CheckAndReserve consumes one issuance slot for the recipient, or
// returns a CodeRateLimited error naming the exhausted window and when
// it resets. A denied call consumes nothing.
func (l *Limiter) CheckAndReserve(ctx context.Context, recipient string) error {
	return l.CheckAndReserveN(ctx, recipient, 1)
}

// CheckAndReserveN consumes n slots for the recipient as one atomic
// reservation: all n fit in both windows or none are consumed.
func (l *Limiter) CheckAndReserveN(ctx context.Context, recipient string, n int) error {
	if n < 1 {
		return dErrors.New(dErrors.CodeInvalidInput, "ratelimit: reservation count must be positive")
	}
	now := requestcontext.Now(ctx)

	denial, err := l.store.ReserveN(ctx, recipient, now, l.limits, n)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "ratelimit: reservation failed")
	}
	if denial != nil {
		denials.WithLabelValues(string(denial.Period)).Inc()
		l.logger.WarnContext(ctx, "issuance rate limit exceeded",
			"recipient", recipient,
			"requested", n,
			"period", denial.Period,
			"limit", denial.Limit,
			"reset_at", denial.ResetAt,
		)
		return dErrors.New(dErrors.CodeRateLimited, "issuance limit reached for recipient").
			WithDetails(
				"period", string(denial.Period),
				"limit", denial.Limit,
				"reset_at", denial.ResetAt.UTC(),
			)
	}

	reservations.Add(float64(n))
	return nil
}

// Release hands back n reserved slots that will not be used, so an
// aborted multi-recipient reservation leaves no residue.
func (l *Limiter) Release(ctx context.Context, recipient string, n int) error {
	if n < 1 {
		return dErrors.New(dErrors.CodeInvalidInput, "ratelimit: release count must be positive")
	}
	if err := l.store.Release(ctx, recipient, requestcontext.Now(ctx), n); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "ratelimit: release failed")
	}
	return nil
}

// Usage reports how many slots the recipient has used in the current
// hour and day windows.
func (l *Limiter) Usage(ctx context.Context, recipient string) (hour, day int, err error) {
	hour, day, err = l.store.Counts(ctx, recipient, requestcontext.Now(ctx))
	if err != nil {
		return 0, 0, dErrors.Wrap(err, dErrors.CodeInternal, "ratelimit: usage lookup failed")
	}
	return hour, day, nil
}

// Reset clears the recipient's counters. Operator escape hatch.
func (l *Limiter) Reset(ctx context.Context, recipient string) error {
	if err := l.store.Reset(ctx, recipient); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "ratelimit: reset failed")
	}
	return nil
}

// Limits returns the configured quotas.
func (l *Limiter) Limits() Limits {
	return l.limits
}
