package client

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"supportdesk/domain"
	"supportdesk/domain/event"
	"supportdesk/errors"
)

// State is the widget lifecycle: Idle until the user opens the chat,
// Loading while history is in flight, Active once joined.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateActive
)

// typingTimeout is the defensive client-side expiry for a typing
// indicator whose "stopped" event was lost.
const typingTimeout = 4 * time.Second

// SessionController is the single-session view-model on the end-user
// side. It subscribes to exactly one session's events.
//
// Sends are never appended optimistically: the local list grows only
// when the bus echoes the new-message event back, so the list and the
// delivered order can never diverge. Incoming events are deduplicated by
// message id; at-least-once delivery may repeat them.
type SessionController struct {
	log     *slog.Logger
	backend Backend
	self    domain.Participant
	queue   chan func()

	// Everything below is touched only by the Run goroutine.
	state       State
	epoch       int
	session     domain.Session
	pending     []event.DomainEvent
	messages    []domain.Message
	seen        map[uuid.UUID]struct{}
	viewing     bool
	unread      uint64
	peerOnline  bool
	peerTyping  *domain.TypingState
	typingTimer *time.Timer
	lastErr     error
	onChange    func()
}

func NewSessionController(log *slog.Logger, backend Backend, self domain.Participant, queueSize int) *SessionController {
	return &SessionController{
		log:     log,
		backend: backend,
		self:    self,
		queue:   make(chan func(), queueSize),
		seen:    make(map[uuid.UUID]struct{}),
	}
}

// OnChange registers the render hook, called after every state mutation.
// Must be set before Run starts.
func (c *SessionController) OnChange(fn func()) { c.onChange = fn }

// Run drains the controller queue. No two handlers run concurrently.
func (c *SessionController) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-c.queue:
			fn()
			if c.onChange != nil {
				c.onChange()
			}
		}
	}
}

// Consume implements the event sink: bus events are posted into the
// queue and handled in arrival order. A full queue rejects the event;
// the controller resyncs via history on the next activation.
func (c *SessionController) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case c.queue <- func() { c.handle(e) }:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Open moves Idle -> Loading and resolves the session, history and join
// asynchronously. A stale response (user closed the widget meanwhile) is
// discarded by the epoch guard.
func (c *SessionController) Open(ctx context.Context) {
	c.post(func() {
		if c.state != StateIdle {
			return
		}
		c.state = StateLoading
		c.epoch++
		epoch := c.epoch

		go func() {
			session, err := c.backend.CreateOrGetSession(ctx)
			if err != nil {
				c.post(func() { c.failLoad(epoch, err) })
				return
			}
			if err := c.backend.Join(session.ID); err != nil {
				c.post(func() { c.failLoad(epoch, err) })
				return
			}
			history, err := c.backend.History(ctx, session.ID)
			if err != nil {
				c.post(func() { c.failLoad(epoch, err) })
				return
			}
			c.post(func() { c.finishLoad(epoch, session, history) })
		}()
	})
}

// Close returns the widget to Idle and leaves the channel immediately.
// No in-flight send is lost: persistence happens before broadcast.
func (c *SessionController) Close() {
	c.post(func() {
		if c.state == StateIdle {
			return
		}
		c.epoch++
		c.backend.Leave(c.session.ID)
		c.stopTypingTimer()
		c.state = StateIdle
		c.viewing = false
		c.pending = nil
		c.messages = nil
		c.seen = make(map[uuid.UUID]struct{})
		c.peerTyping = nil
	})
}

// EnterView marks the session as actively viewed: unread clears locally
// and on the server.
func (c *SessionController) EnterView() {
	c.post(func() {
		if c.state != StateActive {
			return
		}
		c.viewing = true
		c.unread = 0
		if err := c.backend.MarkRead(c.session.ID); err != nil {
			c.log.Warn("Mark read failed", "session", c.session.ID, "err", err)
		}
	})
}

// LeaveView keeps the subscription but stops clearing unread.
func (c *SessionController) LeaveView() {
	c.post(func() { c.viewing = false })
}

// Send validates locally and emits the send command. The message shows
// up in the list only via the echoed event.
func (c *SessionController) Send(ctx context.Context, content string) {
	c.post(func() {
		if c.state != StateActive {
			return
		}
		if strings.TrimSpace(content) == "" {
			c.lastErr = errors.ErrEmptyContent
			return
		}
		sessionID := c.session.ID
		ref := uuid.NewString()
		go func() {
			if err := c.backend.Send(ctx, sessionID, content, ref); err != nil {
				c.post(func() { c.lastErr = err })
			}
		}()
	})
}

// Typing forwards the composing indicator; the caller debounces input
// changes.
func (c *SessionController) Typing(isTyping bool) {
	c.post(func() {
		if c.state == StateActive {
			c.backend.Typing(c.session.ID, isTyping)
		}
	})
}

// Snapshot-style accessors, safe only from the Run goroutine (the
// onChange hook).
func (c *SessionController) State() State                    { return c.state }
func (c *SessionController) Session() domain.Session         { return c.session }
func (c *SessionController) Messages() []domain.Message      { return c.messages }
func (c *SessionController) Unread() uint64                  { return c.unread }
func (c *SessionController) PeerOnline() bool                { return c.peerOnline }
func (c *SessionController) PeerTyping() *domain.TypingState { return c.peerTyping }
func (c *SessionController) LastErr() error                  { return c.lastErr }

func (c *SessionController) post(fn func()) {
	c.queue <- fn
}

func (c *SessionController) failLoad(epoch int, err error) {
	if epoch != c.epoch {
		return // user navigated away, stale response
	}
	c.state = StateIdle
	c.pending = nil
	c.lastErr = err
}

func (c *SessionController) finishLoad(epoch int, session domain.Session, history []domain.Message) {
	if epoch != c.epoch {
		return
	}
	c.session = session
	c.messages = history
	c.seen = make(map[uuid.UUID]struct{}, len(history))
	for _, m := range history {
		c.seen[m.ID] = struct{}{}
	}
	c.state = StateActive
	c.viewing = true
	c.unread = 0
	c.lastErr = nil
	if err := c.backend.MarkRead(session.ID); err != nil {
		c.log.Warn("Mark read failed", "session", session.ID, "err", err)
	}

	pending := c.pending
	c.pending = nil
	for _, e := range pending {
		c.handle(e)
	}
}

func (c *SessionController) handle(e event.DomainEvent) {
	if c.state == StateLoading {
		// The channel is joined before history is fetched, so an event
		// can arrive ahead of the snapshot it is newer than. Hold it and
		// replay once the snapshot installs; dedup-by-id absorbs overlap.
		c.pending = append(c.pending, e)
		return
	}
	if c.state != StateActive {
		return
	}
	switch evt := e.(type) {
	case event.NewMessage:
		c.onNewMessage(evt)
	case event.Typing:
		c.onTyping(evt)
	case event.PresenceChange:
		if evt.Record.ParticipantID != c.self.ID {
			c.peerOnline = evt.Record.IsOnline
		}
	case event.SessionStatusChanged:
		if evt.SessionID == c.session.ID {
			c.session.Status = evt.Status
			if evt.Status == domain.StatusClosed {
				c.peerTyping = nil
				c.stopTypingTimer()
			}
		}
	}
}

func (c *SessionController) onNewMessage(evt event.NewMessage) {
	message := evt.Message
	if message.SessionID != c.session.ID {
		// Not this widget's session; its own counter lives elsewhere.
		return
	}
	if _, duplicate := c.seen[message.ID]; duplicate {
		return
	}
	c.seen[message.ID] = struct{}{}
	c.messages = append(c.messages, message)

	if message.SenderID != c.self.ID {
		if c.viewing {
			if err := c.backend.MarkRead(c.session.ID); err != nil {
				c.log.Warn("Mark read failed", "session", c.session.ID, "err", err)
			}
		} else {
			c.unread++
		}
	}
}

func (c *SessionController) onTyping(evt event.Typing) {
	state := evt.State
	if state.SessionID != c.session.ID || state.ParticipantID == c.self.ID {
		return
	}
	c.stopTypingTimer()
	if !state.IsTyping {
		c.peerTyping = nil
		return
	}
	c.peerTyping = &state
	// Expire the indicator if the "stopped typing" event never arrives.
	c.typingTimer = time.AfterFunc(typingTimeout, func() {
		c.post(func() { c.peerTyping = nil })
	})
}

func (c *SessionController) stopTypingTimer() {
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
}
