package events

import (
	"context"
	"log/slog"
)

// Publisher ships events to durable storage or a stream.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Worker drains an event channel into a Publisher. Publish failures are
// logged and the event is dropped; settlement outcomes are best effort.
type Worker struct {
	publisher Publisher
	inbox     <-chan Event
	logger    *slog.Logger
}

func NewWorker(publisher Publisher, inbox <-chan Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Worker{publisher: publisher, inbox: inbox, logger: logger}
}

// Run returns when ctx is cancelled or the inbox is closed.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if err := w.publisher.Publish(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "failed to publish settlement event",
					"kind", event.Kind,
					"account_id", event.AccountID,
					"error", err,
				)
			}
		}
	}
}
