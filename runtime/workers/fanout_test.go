package workers

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"supportdesk/domain/event"
)

type countingSink struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (s *countingSink) Consume(ctx context.Context, e event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *countingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestFanoutWorker_Delivers_To_Every_Sink(t *testing.T) {
	req := require.New(t)
	feed := make(chan event.DomainEvent, 8)
	sink1 := &countingSink{}
	sink2 := &countingSink{}
	worker := NewFanoutWorker(slog.Default(), feed, sink1, sink2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	// When events flow through the feed
	for i := 0; i < 3; i++ {
		feed <- event.AdminNotification{Kind: event.NotificationNewMessage, SessionID: uuid.New()}
	}

	// Then every permanent sink got all of them
	req.Eventually(func() bool {
		return sink1.count() == 3 && sink2.count() == 3
	}, time.Second, 5*time.Millisecond)
}

func TestFanoutWorker_Stops_On_Context_Cancel(t *testing.T) {
	req := require.New(t)
	feed := make(chan event.DomainEvent)
	worker := NewFanoutWorker(slog.Default(), feed)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = worker.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("Fanout should stop when the context is canceled")
	}
}
