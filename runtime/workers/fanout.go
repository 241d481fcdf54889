package workers

import (
	"context"
	"log/slog"

	"supportdesk/contract"
	"supportdesk/domain/event"
)

// FanoutWorker drains the bus telemetry feed into the permanent sinks
// (metrics, audit log). It provides best-effort fan-out with no delivery
// or ordering guarantee: subscriber delivery happens on the bus itself,
// this path only exists for observability side effects.
type FanoutWorker struct {
	log   *slog.Logger
	feed  <-chan event.DomainEvent
	sinks []contract.EventSink
}

func NewFanoutWorker(log *slog.Logger, feed <-chan event.DomainEvent, sinks ...contract.EventSink) *FanoutWorker {
	return &FanoutWorker{log: log, feed: feed, sinks: sinks}
}

func (w *FanoutWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping fanout")
			return nil
		case evt := <-w.feed:
			for _, sink := range w.sinks {
				if err := sink.Consume(ctx, evt); err != nil {
					w.log.Debug("Permanent sink rejected event", "err", err)
				}
			}
		}
	}
}
