//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"supportdesk/domain"
	"supportdesk/domain/event"
	"supportdesk/errors"
	"supportdesk/repositories"
	"supportdesk/runtime"
)

type IChatService interface {
	CreateOrGetSession(ctx context.Context, caller domain.Participant) (domain.Session, error)
	History(ctx context.Context, caller domain.Participant, sessionID domain.SessionID) ([]domain.Message, error)
	ListSessions(ctx context.Context, caller domain.Participant, filter domain.SessionFilter) ([]SessionSummary, error)
	CloseSession(ctx context.Context, caller domain.Participant, sessionID domain.SessionID) (domain.Session, error)
}

// SessionSummary is one row of the agent console's session list.
type SessionSummary struct {
	Session    domain.Session
	Unread     uint64
	UserOnline bool
}

// ChatService is the request/response surface over the registry, store
// and bus. Event-channel traffic (join, send, typing, mark-read) flows
// through the bus directly; this service covers the four operations a
// plain HTTP round trip needs.
type ChatService struct {
	log      *slog.Logger
	bus      *runtime.Bus
	sessions repositories.ISessionRepository
	messages repositories.IMessageRepository
	index    repositories.ISessionIndex
}

func NewChatService(
	log *slog.Logger,
	bus *runtime.Bus,
	sessions repositories.ISessionRepository,
	messages repositories.IMessageRepository,
	index repositories.ISessionIndex,
) *ChatService {
	return &ChatService{log: log, bus: bus, sessions: sessions, messages: messages, index: index}
}

// CreateOrGetSession returns the caller's current non-closed session,
// creating one if none exists. Agents have no session of their own.
func (s *ChatService) CreateOrGetSession(ctx context.Context, caller domain.Participant) (domain.Session, error) {
	if caller.IsAgent() {
		return domain.Session{}, errors.ErrUnauthorized
	}
	session, created, err := s.sessions.CreateOrGet(caller, time.Now().UTC())
	if err != nil {
		return domain.Session{}, err
	}
	if created {
		if err := s.index.Index(session); err != nil {
			s.log.Error("Session indexing failed", "session", session.ID, "err", err)
		}
		s.bus.NotifyGlobal(event.NotificationNewSession, session.ID)
	}
	return session, nil
}

// History returns the full ordered message sequence. Users may only read
// their own session.
func (s *ChatService) History(ctx context.Context, caller domain.Participant, sessionID domain.SessionID) ([]domain.Message, error) {
	if !caller.IsAgent() {
		session, err := s.sessions.Get(sessionID)
		if err != nil {
			return nil, err
		}
		if session.UserID != caller.ID {
			return nil, errors.ErrUnauthorized
		}
	}
	return s.messages.History(sessionID)
}

// ListSessions is agent-only. Sessions come back ordered by most recent
// activity, enriched with the agent-side unread counter and the user's
// presence flag; the search term matches on participant display name or
// session id substring.
func (s *ChatService) ListSessions(ctx context.Context, caller domain.Participant, filter domain.SessionFilter) ([]SessionSummary, error) {
	if !caller.IsAgent() {
		return nil, errors.ErrUnauthorized
	}

	sessions, err := s.sessions.List(filter.Status)
	if err != nil {
		return nil, err
	}

	var matched map[domain.SessionID]struct{}
	search := strings.TrimSpace(filter.Search)
	if search != "" {
		matched, err = s.index.Search(ctx, search)
		if err != nil {
			return nil, err
		}
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		if search != "" && !matches(session, search, matched) {
			continue
		}
		unread, err := s.sessions.Unread(session.ID, string(domain.RoleAgent))
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, SessionSummary{
			Session:    session,
			Unread:     unread,
			UserOnline: s.bus.Presence().Snapshot(session.UserID).IsOnline,
		})
	}
	return summaries, nil
}

// CloseSession is agent-only; it routes through the bus so subscribers
// learn about the status change.
func (s *ChatService) CloseSession(ctx context.Context, caller domain.Participant, sessionID domain.SessionID) (domain.Session, error) {
	if !caller.IsAgent() {
		return domain.Session{}, errors.ErrUnauthorized
	}
	return s.bus.Close(ctx, domain.CloseSessionCommand{SessionID: sessionID, Sender: caller})
}

func matches(session domain.Session, search string, indexed map[domain.SessionID]struct{}) bool {
	if _, ok := indexed[session.ID]; ok {
		return true
	}
	// The index covers analyzed name matches; an id fragment shorter than
	// a full term still matches here.
	return strings.Contains(session.ID.String(), strings.ToLower(search))
}
