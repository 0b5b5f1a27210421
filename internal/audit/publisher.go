package audit

import (
	"context"
	"log/slog"

	"veritas/pkg/requestcontext"
)

// Publisher captures structured audit events. It is append-only and
// delegates persistence to a sink so tests can swap implementations.
// Emit never fails the calling operation: a sink error is logged and
// swallowed, because losing an audit line must not fail an issuance.
type Publisher struct {
	sink   Sink
	logger *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger used when the sink rejects an event.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(sink Sink, opts ...Option) *Publisher {
	p := &Publisher{sink: sink, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit records an event, filling timestamp, actor and request ID from
// the context when the caller left them empty.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.Actor == "" {
		event.Actor = requestcontext.Actor(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	if err := p.sink.Append(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "audit sink rejected event",
			"action", event.Action,
			"error", err,
		)
	}
}
