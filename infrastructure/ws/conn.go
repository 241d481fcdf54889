package ws

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"supportdesk/contract"
	"supportdesk/domain"
	"supportdesk/domain/event"
	"supportdesk/errors"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Conn is one authenticated websocket connection. It implements the
// event sink: bus events are queued and written by a single pump
// goroutine. A consumer that cannot keep up overflows the queue and is
// disconnected; it resynchronizes via history on reconnect, which is
// exactly the delivery contract.
type Conn struct {
	log         *slog.Logger
	ws          *websocket.Conn
	participant domain.Participant
	bus         contract.IBus
	send        chan ServerFrame
	done        chan struct{}
}

func newConn(log *slog.Logger, ws *websocket.Conn, p domain.Participant, bus contract.IBus, sendBuffer int) *Conn {
	return &Conn{
		log:         log.With("participant", p.ID, "role", p.Role),
		ws:          ws,
		participant: p,
		bus:         bus,
		send:        make(chan ServerFrame, sendBuffer),
		done:        make(chan struct{}),
	}
}

// Consume implements contract.EventSink.
func (c *Conn) Consume(ctx context.Context, e event.DomainEvent) error {
	frame, ok := frameFor(e)
	if !ok {
		return nil
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return errors.ErrConnectionLost
	default:
		// Slow consumer: drop the connection, the client resyncs.
		c.log.Warn("Send queue overflow, closing connection")
		c.close()
		return errors.ErrConnectionLost
	}
}

func (c *Conn) close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

// writePump owns all writes to the socket, including pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeWait))
			return
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(frame); err != nil {
				c.log.Debug("Write failed", "err", err)
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

// readLoop decodes, validates and dispatches inbound frames until the
// peer goes away.
func (c *Conn) readLoop(ctx context.Context) {
	defer c.close()
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame ClientFrame
		if err := c.ws.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("Unexpected close", "err", err)
			}
			return
		}
		c.dispatch(ctx, frame)
	}
}

func (c *Conn) dispatch(ctx context.Context, frame ClientFrame) {
	if err := frame.Validate(); err != nil {
		c.reply(ServerFrame{Type: FrameError, Ref: frame.Ref, Code: "validation_error", Reason: err.Error()})
		return
	}
	sessionID, err := frame.Session()
	if err != nil {
		c.reply(ServerFrame{Type: FrameError, Ref: frame.Ref, Code: "validation_error", Reason: "bad session id"})
		return
	}

	switch frame.Type {
	case FrameJoinSession:
		if err := c.bus.JoinSession(c.participant, sessionID); err != nil {
			c.replyErr(frame.Ref, err)
		}
	case FrameLeaveSession:
		c.bus.LeaveSession(c.participant, sessionID)
	case FrameSendMessage:
		message, err := c.bus.Send(ctx, domain.SendMessageCommand{
			SessionID:  sessionID,
			Sender:     c.participant,
			Content:    frame.Content,
			Ref:        frame.Ref,
			ReceivedAt: time.Now().UTC(),
		})
		if err != nil {
			c.replyErr(frame.Ref, err)
			return
		}
		// The ack is the client's signal to stop any resend timer; it
		// carries the persisted message so the sender learns its seq.
		c.reply(ServerFrame{Type: FrameAck, Ref: frame.Ref, Message: messagePayload(message)})
	case FrameTyping:
		c.bus.Typing(domain.TypingCommand{
			SessionID: sessionID,
			Sender:    c.participant,
			IsTyping:  frame.IsTyping,
		})
	case FrameMarkRead:
		if err := c.bus.MarkRead(domain.MarkReadCommand{SessionID: sessionID, Viewer: c.participant}); err != nil {
			c.replyErr(frame.Ref, err)
		}
	}
}

func (c *Conn) reply(frame ServerFrame) {
	select {
	case c.send <- frame:
	case <-c.done:
	}
}

func (c *Conn) replyErr(ref string, err error) {
	c.reply(ServerFrame{Type: FrameError, Ref: ref, Code: errorCode(err), Reason: err.Error()})
}

func errorCode(err error) string {
	switch {
	case stderrors.Is(err, errors.ErrEmptyContent):
		return "validation_error"
	case stderrors.Is(err, errors.ErrSessionClosed), stderrors.Is(err, errors.ErrInvalidStatus):
		return "state_error"
	case stderrors.Is(err, errors.ErrSessionNotFound):
		return "not_found"
	case stderrors.Is(err, errors.ErrUnauthorized):
		return "unauthorized"
	default:
		return "internal"
	}
}
