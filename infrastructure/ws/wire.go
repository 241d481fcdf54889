// Package ws is the websocket gateway: one connection per participant,
// JSON frames both ways. Frames are tagged, validated records checked at
// the boundary, never trusted from the wire.
package ws

import (
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"supportdesk/domain"
	"supportdesk/domain/event"
)

var validate = validator.New()

// Client -> server frame types.
const (
	FrameJoinSession  = "join_session"
	FrameLeaveSession = "leave_session"
	FrameSendMessage  = "send_message"
	FrameTyping       = "typing"
	FrameMarkRead     = "mark_read"
)

// Server -> client frame types.
const (
	FrameAck           = "ack"
	FrameError         = "error"
	FrameNewMessage    = "new_message"
	FrameTypingState   = "typing"
	FramePresence      = "presence_change"
	FrameSessionStatus = "session_status_changed"
	FrameAdminNotified = "admin_notification"
)

// ClientFrame is the single inbound envelope. SessionID is required for
// every type; Ref correlates send_message with its ack.
type ClientFrame struct {
	Type      string `json:"type" validate:"required,oneof=join_session leave_session send_message typing mark_read"`
	SessionID string `json:"session_id" validate:"required,uuid4"`
	Content   string `json:"content,omitempty"`
	Ref       string `json:"ref,omitempty" validate:"omitempty,max=64"`
	IsTyping  bool   `json:"is_typing,omitempty"`
}

func (f ClientFrame) Validate() error {
	return validate.Struct(f)
}

func (f ClientFrame) Session() (domain.SessionID, error) {
	return uuid.Parse(f.SessionID)
}

// ServerFrame is the single outbound envelope; exactly one payload field
// is set depending on Type.
type ServerFrame struct {
	Type         string           `json:"type"`
	Ref          string           `json:"ref,omitempty"`
	Code         string           `json:"code,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	Message      *MessagePayload  `json:"message,omitempty"`
	Typing       *TypingPayload   `json:"typing,omitempty"`
	Presence     *PresencePayload `json:"presence,omitempty"`
	Status       *StatusPayload   `json:"status,omitempty"`
	Notification *NotifyPayload   `json:"notification,omitempty"`
}

type MessagePayload struct {
	ID         string `json:"id"`
	SessionID  string `json:"session_id"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	SenderRole string `json:"sender_role"`
	Content    string `json:"content"`
	Seq        uint64 `json:"seq"`
	CreatedAt  int64  `json:"created_at"`
}

type TypingPayload struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	IsTyping      bool   `json:"is_typing"`
}

type PresencePayload struct {
	ParticipantID string `json:"participant_id"`
	IsOnline      bool   `json:"is_online"`
	LastSeen      int64  `json:"last_seen"`
}

type StatusPayload struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	At        int64  `json:"at"`
}

type NotifyPayload struct {
	Kind      string `json:"kind"`
	SessionID string `json:"session_id"`
}

func messagePayload(m domain.Message) *MessagePayload {
	return &MessagePayload{
		ID:         m.ID.String(),
		SessionID:  m.SessionID.String(),
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		SenderRole: string(m.SenderRole),
		Content:    m.Content,
		Seq:        m.Seq,
		CreatedAt:  m.CreatedAt.UnixNano(),
	}
}

func frameFor(e event.DomainEvent) (ServerFrame, bool) {
	switch evt := e.(type) {
	case event.NewMessage:
		return ServerFrame{
			Type:    FrameNewMessage,
			Ref:     evt.Ref,
			Message: messagePayload(evt.Message),
		}, true
	case event.Typing:
		s := evt.State
		return ServerFrame{
			Type: FrameTypingState,
			Typing: &TypingPayload{
				SessionID:     s.SessionID.String(),
				ParticipantID: s.ParticipantID,
				Name:          s.Name,
				IsTyping:      s.IsTyping,
			},
		}, true
	case event.PresenceChange:
		r := evt.Record
		return ServerFrame{
			Type: FramePresence,
			Presence: &PresencePayload{
				ParticipantID: r.ParticipantID,
				IsOnline:      r.IsOnline,
				LastSeen:      r.LastSeen.UnixNano(),
			},
		}, true
	case event.SessionStatusChanged:
		return ServerFrame{
			Type: FrameSessionStatus,
			Status: &StatusPayload{
				SessionID: evt.SessionID.String(),
				Status:    string(evt.Status),
				At:        evt.At.UnixNano(),
			},
		}, true
	case event.AdminNotification:
		return ServerFrame{
			Type: FrameAdminNotified,
			Notification: &NotifyPayload{
				Kind:      string(evt.Kind),
				SessionID: evt.SessionID.String(),
			},
		}, true
	}
	return ServerFrame{}, false
}
