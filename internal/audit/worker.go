package audit

import (
	"context"
	"log/slog"

	dErrors "veritas/pkg/domain-errors"
)

// Worker consumes audit events from a channel and persists them. Lets
// hot paths hand events off without blocking on the sink. A sink
// failure drops that event with a log line; the worker keeps draining.
type Worker struct {
	sink   Sink
	inbox  <-chan Event
	logger *slog.Logger
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithWorkerLogger sets the logger for dropped-event reports.
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) { w.logger = logger }
}

func NewWorker(sink Sink, inbox <-chan Event, opts ...WorkerOption) *Worker {
	w := &Worker{sink: sink, inbox: inbox, logger: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.sink.Append(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "audit event dropped",
					"action", event.Action,
					"error", err,
				)
			}
		}
	}
}

// ChannelSink hands events to a background Worker's inbox. Append never
// blocks the caller; a full inbox is reported as an error for the
// Publisher to log and swallow.
type ChannelSink struct {
	inbox chan<- Event
}

func NewChannelSink(inbox chan<- Event) *ChannelSink {
	return &ChannelSink{inbox: inbox}
}

func (s *ChannelSink) Append(ctx context.Context, event Event) error {
	select {
	case s.inbox <- event:
		return nil
	default:
		return dErrors.New(dErrors.CodeInternal, "audit inbox full")
	}
}
