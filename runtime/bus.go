// Package runtime owns event propagation: registry, presence, and the
// bus that validates, persists, and broadcasts. It orchestrates the
// system without containing domain rules beyond transition policy.
package runtime

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"supportdesk/contract"
	"supportdesk/domain"
	"supportdesk/domain/event"
	"supportdesk/errors"
	"supportdesk/moderation"
	"supportdesk/repositories"
)

// Bus routes commands from connected participants through validation,
// moderation and persistence, then broadcasts the resulting events to
// joined subscribers. Persistence always happens before broadcast, so a
// subscriber leaving mid-send never loses a stored message.
//
// All writes to one session serialize on a per-session lock held through
// the broadcast, which is what gives every subscriber the exact store
// order. Different sessions proceed in parallel.
type Bus struct {
	log         *slog.Logger
	registry    contract.IRegistry
	sessions    repositories.ISessionRepository
	messages    repositories.IMessageRepository
	presence    *PresenceTracker
	censor      *moderation.Censor
	sinkTimeout time.Duration
	feed        chan event.DomainEvent
	locks       sync.Map // session id -> *sync.Mutex

	// lastSessions keeps the channels a participant had joined at
	// disconnect time, so the grace-delayed offline flip can still reach
	// them after the registry forgot the memberships.
	lastSessions sync.Map // participant id -> []domain.SessionID
}

func NewBus(
	log *slog.Logger,
	registry contract.IRegistry,
	sessions repositories.ISessionRepository,
	messages repositories.IMessageRepository,
	censor *moderation.Censor,
	presenceGrace time.Duration,
	sinkTimeout time.Duration,
	feedSize int,
) *Bus {
	b := &Bus{
		log:         log,
		registry:    registry,
		sessions:    sessions,
		messages:    messages,
		censor:      censor,
		sinkTimeout: sinkTimeout,
		feed:        make(chan event.DomainEvent, feedSize),
	}
	b.presence = NewPresenceTracker(log, presenceGrace, b.presenceChanged)
	return b
}

// Feed exposes a best-effort copy of every broadcast event for permanent
// sinks (telemetry, logs). Events are dropped when the consumer lags;
// the feed is observability, not delivery.
func (b *Bus) Feed() <-chan event.DomainEvent {
	return b.feed
}

func (b *Bus) Presence() *PresenceTracker {
	return b.presence
}

func (b *Bus) lockSession(id domain.SessionID) func() {
	v, _ := b.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Send validates, moderates, persists and broadcasts one message.
// Empty content is rejected before touching the store. The first agent
// message moves an open session to in_progress (registry policy).
func (b *Bus) Send(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
	if strings.TrimSpace(cmd.Content) == "" {
		return domain.Message{}, errors.ErrEmptyContent
	}

	content := cmd.Content
	if b.censor != nil {
		content = b.censor.Apply(content)
	}

	unlock := b.lockSession(cmd.SessionID)
	defer unlock()

	message, err := b.messages.Append(cmd.SessionID, cmd.Sender, content, cmd.ReceivedAt)
	if err != nil {
		return domain.Message{}, err
	}

	if cmd.Sender.IsAgent() {
		if session, err := b.sessions.Get(cmd.SessionID); err == nil && session.Status == domain.StatusOpen {
			b.transition(ctx, cmd.SessionID, domain.StatusInProgress, cmd.ReceivedAt)
		}
	}

	// The counterpart side gets an unread bump; their mark-read resets it.
	viewer := domain.RoleAgent
	if cmd.Sender.IsAgent() {
		viewer = domain.RoleUser
	}
	if err := b.sessions.IncrementUnread(cmd.SessionID, string(viewer)); err != nil {
		b.log.Error("Unread increment failed", "session", cmd.SessionID, "err", err)
	}

	evt := event.NewMessage{Message: message, Ref: cmd.Ref}
	b.broadcast(ctx, b.registry.SinksForSession(cmd.SessionID), evt)
	b.broadcast(ctx, b.registry.GlobalSinks(), event.AdminNotification{
		Kind:      event.NotificationNewMessage,
		SessionID: cmd.SessionID,
	})
	b.publish(evt)
	return message, nil
}

// Typing relays the ephemeral composing indicator to the session channel.
// Nothing is persisted and delivery is best effort.
func (b *Bus) Typing(cmd domain.TypingCommand) {
	evt := event.Typing{State: domain.TypingState{
		SessionID:     cmd.SessionID,
		ParticipantID: cmd.Sender.ID,
		Name:          cmd.Sender.Name,
		IsTyping:      cmd.IsTyping,
	}}
	b.broadcast(context.Background(), b.registry.SinksForSession(cmd.SessionID), evt)
}

// MarkRead zeroes the viewer side's unread counter for the session.
func (b *Bus) MarkRead(cmd domain.MarkReadCommand) error {
	return b.sessions.ResetUnread(cmd.SessionID, string(cmd.Viewer.Role))
}

// Close transitions the session to closed and tells every subscriber.
// Subsequent appends are rejected by the store: the transition and the
// append share the session lock, so no send can slip between the status
// check and the close.
func (b *Bus) Close(ctx context.Context, cmd domain.CloseSessionCommand) (domain.Session, error) {
	unlock := b.lockSession(cmd.SessionID)
	defer unlock()

	session, err := b.sessions.Transition(cmd.SessionID, domain.StatusClosed, time.Now().UTC())
	if err != nil {
		return domain.Session{}, err
	}

	evt := event.SessionStatusChanged{
		SessionID: session.ID,
		Status:    session.Status,
		At:        session.LastActivityAt,
	}
	b.broadcast(ctx, b.registry.SinksForSession(session.ID), evt)
	b.broadcast(ctx, b.registry.GlobalSinks(), event.AdminNotification{
		Kind:      event.NotificationStatusChanged,
		SessionID: session.ID,
	})
	b.publish(evt)
	return session, nil
}

// Connect registers the participant's sink and flips presence online.
func (b *Bus) Connect(p domain.Participant, sink contract.EventSink) {
	b.registry.Connect(p, sink)
	b.presence.Connect(p.ID, time.Now().UTC())
}

// Disconnect forgets the sink immediately; presence goes offline only
// after the grace window absorbs transient reconnects.
func (b *Bus) Disconnect(p domain.Participant) {
	b.lastSessions.Store(p.ID, b.registry.SessionsOf(p.ID))
	b.registry.Disconnect(p.ID)
	b.presence.Disconnect(p.ID, time.Now().UTC())
}

// JoinSession subscribes a participant to one session channel. A user
// may only join their own session; agents may join any.
func (b *Bus) JoinSession(p domain.Participant, sessionID domain.SessionID) error {
	session, err := b.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	if !p.IsAgent() && session.UserID != p.ID {
		return errors.ErrUnauthorized
	}
	b.registry.JoinSession(p.ID, sessionID)
	// Announce the joiner to the channel: subscribers who were already
	// there missed the online flip that fired before this join.
	b.broadcast(context.Background(), b.registry.SinksForSession(sessionID),
		event.PresenceChange{Record: b.presence.Snapshot(p.ID)})
	return nil
}

func (b *Bus) LeaveSession(p domain.Participant, sessionID domain.SessionID) {
	b.registry.LeaveSession(p.ID, sessionID)
}

// JoinGlobal subscribes an agent to the cross-session notification
// channel. Users have no business on it.
func (b *Bus) JoinGlobal(p domain.Participant) error {
	if !p.IsAgent() {
		return errors.ErrUnauthorized
	}
	b.registry.JoinGlobal(p.ID)
	return nil
}

// NotifyGlobal pushes a cross-session hint to the agent channel, used by
// the service layer when a session is created outside the bus.
func (b *Bus) NotifyGlobal(kind event.NotificationKind, sessionID domain.SessionID) {
	evt := event.AdminNotification{Kind: kind, SessionID: sessionID}
	b.broadcast(context.Background(), b.registry.GlobalSinks(), evt)
	b.publish(evt)
}

// transition runs under the caller's session lock.
func (b *Bus) transition(ctx context.Context, id domain.SessionID, next domain.Status, at time.Time) {
	session, err := b.sessions.Transition(id, next, at)
	if err != nil {
		b.log.Warn("Status transition failed", "session", id, "next", next, "err", err)
		return
	}
	evt := event.SessionStatusChanged{SessionID: id, Status: session.Status, At: at}
	b.broadcast(ctx, b.registry.SinksForSession(id), evt)
	b.broadcast(ctx, b.registry.GlobalSinks(), event.AdminNotification{
		Kind:      event.NotificationStatusChanged,
		SessionID: id,
	})
	b.publish(evt)
}

// presenceChanged fans a presence flip out to every session involving
// the participant plus the agent channel. Involvement is the current
// memberships, the memberships held at disconnect time (the offline flip
// fires after the registry forgot them), and the user's own session
// whether or not they are joined to it right now.
func (b *Bus) presenceChanged(record domain.PresenceRecord) {
	evt := event.PresenceChange{Record: record}
	ctx := context.Background()

	targets := b.registry.SessionsOf(record.ParticipantID)
	if !record.IsOnline {
		if v, ok := b.lastSessions.LoadAndDelete(record.ParticipantID); ok {
			targets = append(targets, v.([]domain.SessionID)...)
		}
	}
	if session, err := b.sessions.ActiveForUser(record.ParticipantID); err == nil {
		targets = append(targets, session.ID)
	}

	seen := make(map[contract.EventSink]struct{})
	for _, sessionID := range targets {
		for _, sink := range b.registry.SinksForSession(sessionID) {
			seen[sink] = struct{}{}
		}
	}
	for _, sink := range b.registry.GlobalSinks() {
		seen[sink] = struct{}{}
	}
	for sink := range seen {
		b.deliver(ctx, sink, evt)
	}
	b.publish(evt)
}

// broadcast delivers sequentially so every subscriber observes events in
// the order this goroutine emits them. Each delivery is bounded by the
// sink timeout; a sink that overruns loses the event and must resync.
func (b *Bus) broadcast(ctx context.Context, sinks []contract.EventSink, evt event.DomainEvent) {
	for _, sink := range sinks {
		b.deliver(ctx, sink, evt)
	}
}

func (b *Bus) deliver(ctx context.Context, sink contract.EventSink, evt event.DomainEvent) {
	deliverCtx, cancel := context.WithTimeout(ctx, b.sinkTimeout)
	defer cancel()
	if err := sink.Consume(deliverCtx, evt); err != nil {
		b.log.Warn("Sink delivery failed", "session", evt.Session(), "err", err)
	}
}

func (b *Bus) publish(evt event.DomainEvent) {
	select {
	case b.feed <- evt:
	default:
		b.log.Debug("Telemetry feed full, event dropped")
	}
}
