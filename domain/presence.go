package domain

import "time"

// PresenceRecord is the online/offline state of a participant.
// Mutated only by connect/disconnect events, last write wins.
type PresenceRecord struct {
	ParticipantID string
	IsOnline      bool
	LastSeen      time.Time
}

// TypingState is an ephemeral composing indicator. It is never persisted;
// consumers expire it client-side when no further event arrives.
type TypingState struct {
	SessionID     SessionID
	ParticipantID string
	Name          string
	IsTyping      bool
}
