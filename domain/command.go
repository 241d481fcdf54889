package domain

import (
	"time"
)

// Command is a participant intent routed to the event bus.
type Command interface {
	Session() SessionID
}

type SendMessageCommand struct {
	SessionID SessionID
	Sender    Participant
	Content   string
	// Ref is a client-generated correlation id echoed back in the ack
	// and in the resulting new-message event.
	Ref        string
	ReceivedAt time.Time
}

func (c SendMessageCommand) Session() SessionID { return c.SessionID }

type TypingCommand struct {
	SessionID SessionID
	Sender    Participant
	IsTyping  bool
}

func (c TypingCommand) Session() SessionID { return c.SessionID }

type MarkReadCommand struct {
	SessionID SessionID
	Viewer    Participant
}

func (c MarkReadCommand) Session() SessionID { return c.SessionID }

type CloseSessionCommand struct {
	SessionID SessionID
	Sender    Participant
}

func (c CloseSessionCommand) Session() SessionID { return c.SessionID }
