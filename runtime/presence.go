package runtime

import (
	"log/slog"
	"sync"
	"time"

	"supportdesk/domain"
)

// PresenceTracker owns the online/offline state of every participant seen
// on the bus. Going online is immediate; going offline is delayed by a
// grace period so a transient reconnect does not flap presence for every
// observer. Last write wins.
type PresenceTracker struct {
	mu      sync.Mutex
	log     *slog.Logger
	grace   time.Duration
	records map[string]domain.PresenceRecord
	timers  map[string]*time.Timer
	changed func(domain.PresenceRecord)
}

// NewPresenceTracker builds a tracker that calls changed for every
// effective state flip. The callback runs outside the tracker lock.
func NewPresenceTracker(log *slog.Logger, grace time.Duration, changed func(domain.PresenceRecord)) *PresenceTracker {
	return &PresenceTracker{
		log:     log,
		grace:   grace,
		records: make(map[string]domain.PresenceRecord),
		timers:  make(map[string]*time.Timer),
		changed: changed,
	}
}

// Connect marks the participant online, cancelling any pending offline
// grace timer from a previous disconnect.
func (t *PresenceTracker) Connect(participantID string, at time.Time) {
	t.mu.Lock()
	if timer, ok := t.timers[participantID]; ok {
		timer.Stop()
		delete(t.timers, participantID)
	}
	previous, known := t.records[participantID]
	record := domain.PresenceRecord{ParticipantID: participantID, IsOnline: true, LastSeen: at}
	t.records[participantID] = record
	t.mu.Unlock()

	if !known || !previous.IsOnline {
		t.log.Debug("Participant online", "participant", participantID)
		t.changed(record)
	}
}

// Disconnect schedules the offline flip after the grace period. A
// reconnect within the window cancels it and nobody observes a change.
func (t *PresenceTracker) Disconnect(participantID string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.timers[participantID]; ok {
		timer.Stop()
	}
	t.timers[participantID] = time.AfterFunc(t.grace, func() {
		t.mu.Lock()
		delete(t.timers, participantID)
		record, ok := t.records[participantID]
		if !ok || !record.IsOnline {
			t.mu.Unlock()
			return
		}
		record.IsOnline = false
		record.LastSeen = at
		t.records[participantID] = record
		t.mu.Unlock()

		t.log.Debug("Participant offline", "participant", participantID)
		t.changed(record)
	})
}

// Snapshot returns the current record for a participant. Unknown
// participants read as offline with a zero last-seen time.
func (t *PresenceTracker) Snapshot(participantID string) domain.PresenceRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	if record, ok := t.records[participantID]; ok {
		return record
	}
	return domain.PresenceRecord{ParticipantID: participantID}
}

// Stop cancels all pending grace timers. Used on shutdown.
func (t *PresenceTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}
