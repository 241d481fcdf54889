// Package domain contains core concepts of the support chat system.
// This file defines Message entities and related rules.
// Messages are immutable once stored.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents an immutable chat entry within a session.
// Seq is assigned by the message store at append time and establishes
// the total order of messages inside the session.
type Message struct {
	ID         uuid.UUID
	SessionID  SessionID
	SenderID   string
	SenderName string
	SenderRole Role
	Content    string
	Seq        uint64
	CreatedAt  time.Time
}
