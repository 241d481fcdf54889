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
	"supportdesk/runtime"
	"supportdesk/services"
)

// ConsoleController is the agent-side view-model: the full session list
// with per-session unread counters and presence flags, plus the message
// list of whichever session is currently selected.
//
// List refreshes are coalesced: every qualifying event arms a trailing
// debounce, so a burst of cross-session notifications produces exactly
// one refresh shortly after the burst ends instead of thrashing the
// registry.
type ConsoleController struct {
	log       *slog.Logger
	backend   Backend
	self      domain.Participant
	queue     chan func()
	refresher *runtime.Debouncer

	// Touched only by the Run goroutine.
	epoch       int
	rows        []services.SessionSummary
	unread      map[domain.SessionID]uint64
	online      map[string]bool
	active      *domain.SessionID
	messages    []domain.Message
	seen        map[uuid.UUID]struct{}
	typingBy    *domain.TypingState
	typingTimer *time.Timer
	filter      domain.SessionFilter
	lastErr     error
	onChange    func()
}

func NewConsoleController(log *slog.Logger, backend Backend, self domain.Participant, refreshDelay time.Duration, queueSize int) *ConsoleController {
	c := &ConsoleController{
		log:     log,
		backend: backend,
		self:    self,
		queue:   make(chan func(), queueSize),
		unread:  make(map[domain.SessionID]uint64),
		online:  make(map[string]bool),
		seen:    make(map[uuid.UUID]struct{}),
	}
	c.refresher = runtime.NewDebouncer(refreshDelay, func() {
		c.post(func() { c.refresh(context.Background()) })
	})
	return c
}

func (c *ConsoleController) OnChange(fn func()) { c.onChange = fn }

func (c *ConsoleController) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			c.refresher.Stop()
			return nil
		case fn := <-c.queue:
			fn()
			if c.onChange != nil {
				c.onChange()
			}
		}
	}
}

func (c *ConsoleController) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case c.queue <- func() { c.handle(e) }:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start performs the initial list load.
func (c *ConsoleController) Start(ctx context.Context) {
	c.post(func() { c.refresh(ctx) })
}

// SetFilter narrows the list and refreshes immediately.
func (c *ConsoleController) SetFilter(ctx context.Context, filter domain.SessionFilter) {
	c.post(func() {
		c.filter = filter
		c.refresh(ctx)
	})
}

// Select switches the active session: leave the previous channel, join
// the new one, fetch history and mark read. The epoch guard discards a
// history response that arrives after the agent has moved on.
func (c *ConsoleController) Select(ctx context.Context, sessionID domain.SessionID) {
	c.post(func() {
		if c.active != nil && *c.active == sessionID {
			return
		}
		if c.active != nil {
			c.backend.Leave(*c.active)
		}
		c.epoch++
		epoch := c.epoch
		c.active = &sessionID
		c.messages = nil
		c.seen = make(map[uuid.UUID]struct{})
		c.typingBy = nil

		if err := c.backend.Join(sessionID); err != nil {
			c.lastErr = err
			c.active = nil
			return
		}

		go func() {
			history, err := c.backend.History(ctx, sessionID)
			c.post(func() {
				if epoch != c.epoch {
					return // stale, agent switched again
				}
				if err != nil {
					c.lastErr = err
					return
				}
				// Live events delivered between Join and this response are
				// already in the list and may be newer than the snapshot;
				// merge by id instead of replacing.
				live := c.messages
				c.messages = history
				c.seen = make(map[uuid.UUID]struct{}, len(history))
				for _, m := range history {
					c.seen[m.ID] = struct{}{}
				}
				for _, m := range live {
					if _, duplicate := c.seen[m.ID]; duplicate {
						continue
					}
					c.seen[m.ID] = struct{}{}
					c.messages = append(c.messages, m)
				}
				c.markRead(sessionID)
			})
		}()
	})
}

// CloseActive closes the selected session, clears the selection and
// refreshes the list.
func (c *ConsoleController) CloseActive(ctx context.Context) {
	c.post(func() {
		if c.active == nil {
			return
		}
		sessionID := *c.active
		go func() {
			_, err := c.backend.CloseSession(ctx, sessionID)
			c.post(func() {
				if err != nil {
					c.lastErr = err
					return
				}
				if c.active != nil && *c.active == sessionID {
					c.backend.Leave(sessionID)
					c.active = nil
					c.messages = nil
					c.seen = make(map[uuid.UUID]struct{})
				}
				c.refresh(ctx)
			})
		}()
	})
}

// Send emits to the active session; the message appears only via echo.
func (c *ConsoleController) Send(ctx context.Context, content string) {
	c.post(func() {
		if c.active == nil {
			return
		}
		if strings.TrimSpace(content) == "" {
			c.lastErr = errors.ErrEmptyContent
			return
		}
		sessionID := *c.active
		ref := uuid.NewString()
		go func() {
			if err := c.backend.Send(ctx, sessionID, content, ref); err != nil {
				c.post(func() { c.lastErr = err })
			}
		}()
	})
}

func (c *ConsoleController) Typing(isTyping bool) {
	c.post(func() {
		if c.active != nil {
			c.backend.Typing(*c.active, isTyping)
		}
	})
}

// Accessors, safe only from the Run goroutine (the onChange hook).
func (c *ConsoleController) Rows() []services.SessionSummary { return c.rows }
func (c *ConsoleController) Active() *domain.SessionID       { return c.active }
func (c *ConsoleController) Messages() []domain.Message      { return c.messages }
func (c *ConsoleController) TypingBy() *domain.TypingState   { return c.typingBy }
func (c *ConsoleController) LastErr() error                  { return c.lastErr }

func (c *ConsoleController) UnreadFor(sessionID domain.SessionID) uint64 {
	return c.unread[sessionID]
}

func (c *ConsoleController) UserOnline(userID string) bool {
	return c.online[userID]
}

func (c *ConsoleController) post(fn func()) {
	c.queue <- fn
}

func (c *ConsoleController) handle(e event.DomainEvent) {
	switch evt := e.(type) {
	case event.NewMessage:
		c.onNewMessage(evt)
	case event.AdminNotification:
		c.onNotification(evt)
	case event.Typing:
		c.onTyping(evt)
	case event.PresenceChange:
		c.online[evt.Record.ParticipantID] = evt.Record.IsOnline
	case event.SessionStatusChanged:
		if c.active != nil && *c.active == evt.SessionID && evt.Status == domain.StatusClosed {
			c.typingBy = nil
		}
		c.refresher.Trigger()
	}
}

func (c *ConsoleController) onNewMessage(evt event.NewMessage) {
	message := evt.Message
	if c.active == nil || *c.active != message.SessionID {
		// Not the viewed session; the admin notification moves the badge.
		return
	}
	if _, duplicate := c.seen[message.ID]; duplicate {
		return
	}
	c.seen[message.ID] = struct{}{}
	c.messages = append(c.messages, message)
	if message.SenderID != c.self.ID {
		c.markRead(message.SessionID)
	}
}

func (c *ConsoleController) onNotification(evt event.AdminNotification) {
	if evt.Kind == event.NotificationNewMessage {
		if c.active == nil || *c.active != evt.SessionID {
			c.unread[evt.SessionID]++
		}
	}
	c.refresher.Trigger()
}

func (c *ConsoleController) onTyping(evt event.Typing) {
	state := evt.State
	if c.active == nil || *c.active != state.SessionID || state.ParticipantID == c.self.ID {
		return
	}
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
	if !state.IsTyping {
		c.typingBy = nil
		return
	}
	c.typingBy = &state
	// Defensive expiry against a dropped "stopped typing" event.
	c.typingTimer = time.AfterFunc(typingTimeout, func() {
		c.post(func() { c.typingBy = nil })
	})
}

// refresh re-fetches the list synchronously on the queue goroutine; the
// round trip is registry-local and the debounce already rate-limits it.
func (c *ConsoleController) refresh(ctx context.Context) {
	rows, err := c.backend.ListSessions(ctx, c.filter)
	if err != nil {
		c.lastErr = err
		return
	}
	c.rows = rows
	for _, row := range rows {
		c.online[row.Session.UserID] = row.UserOnline
		// The store value is authoritative: a badge bumped locally can
		// drift after a dropped notification or a reconnect. The active
		// session is exempt, its local mark-read may still be in flight.
		if c.active == nil || *c.active != row.Session.ID {
			c.unread[row.Session.ID] = row.Unread
		}
	}
}

func (c *ConsoleController) markRead(sessionID domain.SessionID) {
	c.unread[sessionID] = 0
	if err := c.backend.MarkRead(sessionID); err != nil {
		c.log.Warn("Mark read failed", "session", sessionID, "err", err)
	}
}
