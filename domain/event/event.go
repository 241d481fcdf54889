// Package event defines the domain events routed by the event bus.
// Events are facts: they describe something that already happened and
// was persisted (where persistence applies).
package event

import (
	"time"

	"supportdesk/domain"
)

type DomainEvent interface {
	Session() domain.SessionID
}

// NewMessage is broadcast after a message has been appended to the store.
// Delivery is at-least-once; consumers deduplicate by Message.ID.
type NewMessage struct {
	Message domain.Message
	// Ref correlates the event with the sender's send command.
	// Empty for every subscriber except possibly the sender.
	Ref string
}

func (e NewMessage) Session() domain.SessionID { return e.Message.SessionID }

type Typing struct {
	State domain.TypingState
}

func (e Typing) Session() domain.SessionID { return e.State.SessionID }

// PresenceChange carries no session: it concerns every session the
// participant is involved in.
type PresenceChange struct {
	Record domain.PresenceRecord
}

func (e PresenceChange) Session() domain.SessionID { return domain.SessionID{} }

type SessionStatusChanged struct {
	SessionID domain.SessionID
	Status    domain.Status
	At        time.Time
}

func (e SessionStatusChanged) Session() domain.SessionID { return e.SessionID }

// NotificationKind tags the cross-session hints pushed to the global
// agent channel.
type NotificationKind string

const (
	NotificationNewMessage    NotificationKind = "new_message"
	NotificationStatusChanged NotificationKind = "session_status_changed"
	NotificationNewSession    NotificationKind = "new_session"
)

// AdminNotification is a lightweight cross-session hint for observers
// that are not actively viewing the affected session.
type AdminNotification struct {
	Kind      NotificationKind
	SessionID domain.SessionID
}

func (e AdminNotification) Session() domain.SessionID { return e.SessionID }
