// Package client holds the view-model controllers: the single-session
// widget on the user side and the multi-session console on the agent
// side. Controllers are single-threaded: every interaction, bus event
// and timer posts into one queue drained by Run, so local state needs no
// locking, only consistent ordering.
package client

import (
	"context"
	"time"

	"supportdesk/contract"
	"supportdesk/domain"
	"supportdesk/services"
)

func timeNow() time.Time { return time.Now().UTC() }

// Backend is what a controller needs from the server side. In process it
// is the bus plus the chat service; over the wire it is the websocket
// gateway. Every call is a suspension point and may return after the
// user navigated away.
type Backend interface {
	CreateOrGetSession(ctx context.Context) (domain.Session, error)
	History(ctx context.Context, sessionID domain.SessionID) ([]domain.Message, error)
	ListSessions(ctx context.Context, filter domain.SessionFilter) ([]services.SessionSummary, error)
	Join(sessionID domain.SessionID) error
	Leave(sessionID domain.SessionID)
	Send(ctx context.Context, sessionID domain.SessionID, content, ref string) error
	Typing(sessionID domain.SessionID, isTyping bool)
	MarkRead(sessionID domain.SessionID) error
	CloseSession(ctx context.Context, sessionID domain.SessionID) (domain.Session, error)
}

// Gateway binds one authenticated participant to the in-process core.
type Gateway struct {
	bus     contract.IBus
	service services.IChatService
	self    domain.Participant
}

func NewGateway(bus contract.IBus, service services.IChatService, self domain.Participant) *Gateway {
	return &Gateway{bus: bus, service: service, self: self}
}

// Attach opens the logical connection: the sink starts receiving events
// and, for agents, the global notification channel is joined.
func (g *Gateway) Attach(sink contract.EventSink) error {
	g.bus.Connect(g.self, sink)
	if g.self.IsAgent() {
		return g.bus.JoinGlobal(g.self)
	}
	return nil
}

// Detach closes the logical connection.
func (g *Gateway) Detach() {
	g.bus.Disconnect(g.self)
}

func (g *Gateway) CreateOrGetSession(ctx context.Context) (domain.Session, error) {
	return g.service.CreateOrGetSession(ctx, g.self)
}

func (g *Gateway) History(ctx context.Context, sessionID domain.SessionID) ([]domain.Message, error) {
	return g.service.History(ctx, g.self, sessionID)
}

func (g *Gateway) ListSessions(ctx context.Context, filter domain.SessionFilter) ([]services.SessionSummary, error) {
	return g.service.ListSessions(ctx, g.self, filter)
}

func (g *Gateway) Join(sessionID domain.SessionID) error {
	return g.bus.JoinSession(g.self, sessionID)
}

func (g *Gateway) Leave(sessionID domain.SessionID) {
	g.bus.LeaveSession(g.self, sessionID)
}

func (g *Gateway) Send(ctx context.Context, sessionID domain.SessionID, content, ref string) error {
	_, err := g.bus.Send(ctx, domain.SendMessageCommand{
		SessionID:  sessionID,
		Sender:     g.self,
		Content:    content,
		Ref:        ref,
		ReceivedAt: timeNow(),
	})
	return err
}

func (g *Gateway) Typing(sessionID domain.SessionID, isTyping bool) {
	g.bus.Typing(domain.TypingCommand{SessionID: sessionID, Sender: g.self, IsTyping: isTyping})
}

func (g *Gateway) MarkRead(sessionID domain.SessionID) error {
	return g.bus.MarkRead(domain.MarkReadCommand{SessionID: sessionID, Viewer: g.self})
}

func (g *Gateway) CloseSession(ctx context.Context, sessionID domain.SessionID) (domain.Session, error) {
	return g.service.CloseSession(ctx, g.self, sessionID)
}
