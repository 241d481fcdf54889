// Package domain contains core concepts of the support chat system.
// This file defines the Session entity and its status lifecycle.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type SessionID = uuid.UUID

// Status is the lifecycle state of a support session.
// Transitions only move forward; a closed session never reopens.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusClosed     Status = "closed"
)

// rank orders statuses along the lifecycle. Higher never goes back to lower.
func (s Status) rank() int {
	switch s {
	case StatusOpen:
		return 0
	case StatusInProgress:
		return 1
	case StatusClosed:
		return 2
	}
	return -1
}

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	return s.rank() >= 0
}

// CanTransition reports whether moving from s to next respects the
// forward-only lifecycle (open -> in_progress -> closed, or open -> closed).
func (s Status) CanTransition(next Status) bool {
	if s.rank() < 0 || next.rank() < 0 {
		return false
	}
	return next.rank() > s.rank()
}

// Session is the conversation context between one user and the support
// function. At most one non-closed session exists per user.
type Session struct {
	ID             SessionID
	UserID         string
	UserName       string
	Status         Status
	CreatedAt      time.Time
	LastActivityAt time.Time
	LastMessage    *Message
}

func NewSession(userID, userName string, at time.Time) Session {
	return Session{
		ID:             uuid.New(),
		UserID:         userID,
		UserName:       userName,
		Status:         StatusOpen,
		CreatedAt:      at,
		LastActivityAt: at,
	}
}

func (s Session) IsClosed() bool {
	return s.Status == StatusClosed
}
