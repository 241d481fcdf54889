package runtime

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"supportdesk/domain"
)

type presenceLog struct {
	mu    sync.Mutex
	flips []domain.PresenceRecord
}

func (l *presenceLog) record(record domain.PresenceRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flips = append(l.flips, record)
}

func (l *presenceLog) all() []domain.PresenceRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.PresenceRecord, len(l.flips))
	copy(out, l.flips)
	return out
}

func TestPresenceTracker_Online_Is_Immediate(t *testing.T) {
	req := require.New(t)
	flips := &presenceLog{}
	tracker := NewPresenceTracker(slog.Default(), time.Hour, flips.record)
	defer tracker.Stop()

	tracker.Connect("p1", time.Now().UTC())

	req.True(tracker.Snapshot("p1").IsOnline)
	req.Len(flips.all(), 1)
	req.True(flips.all()[0].IsOnline)
}

func TestPresenceTracker_Offline_After_Grace(t *testing.T) {
	req := require.New(t)
	flips := &presenceLog{}
	tracker := NewPresenceTracker(slog.Default(), 30*time.Millisecond, flips.record)
	defer tracker.Stop()

	tracker.Connect("p1", time.Now().UTC())
	tracker.Disconnect("p1", time.Now().UTC())

	// The flip does not happen before the grace window elapses
	req.True(tracker.Snapshot("p1").IsOnline)

	req.Eventually(func() bool {
		return !tracker.Snapshot("p1").IsOnline
	}, time.Second, 5*time.Millisecond)

	records := flips.all()
	req.Len(records, 2)
	req.False(records[1].IsOnline)
}

func TestPresenceTracker_Reconnect_Within_Grace_Absorbs_Flap(t *testing.T) {
	req := require.New(t)
	flips := &presenceLog{}
	tracker := NewPresenceTracker(slog.Default(), 50*time.Millisecond, flips.record)
	defer tracker.Stop()

	// Given an online participant who briefly drops
	tracker.Connect("p1", time.Now().UTC())
	tracker.Disconnect("p1", time.Now().UTC())

	// When they reconnect inside the grace window
	tracker.Connect("p1", time.Now().UTC())

	// Then nobody ever observed an offline flip
	time.Sleep(120 * time.Millisecond)
	req.True(tracker.Snapshot("p1").IsOnline)
	for _, record := range flips.all() {
		req.True(record.IsOnline)
	}
}

func TestPresenceTracker_Unknown_Reads_Offline(t *testing.T) {
	req := require.New(t)
	tracker := NewPresenceTracker(slog.Default(), time.Hour, func(domain.PresenceRecord) {})
	defer tracker.Stop()

	snapshot := tracker.Snapshot("ghost")
	req.False(snapshot.IsOnline)
	req.True(snapshot.LastSeen.IsZero())
}
