package client

import (
	"context"
	"sync"

	"supportdesk/domain"
	"supportdesk/services"
)

// fakeBackend records every call and serves canned data. The gate, when
// set, blocks CreateOrGetSession and History so tests can interleave
// controller actions with in-flight loads.
type fakeBackend struct {
	mu sync.Mutex

	session   domain.Session
	history   []domain.Message
	summaries []services.SessionSummary
	failSend  error
	gate      chan struct{}

	sends     []string
	refs      []string
	joins     []domain.SessionID
	leaves    []domain.SessionID
	markReads []domain.SessionID
	typings   []bool
	closes    []domain.SessionID
	lists     int
}

func (f *fakeBackend) wait() {
	if f.gate != nil {
		<-f.gate
	}
}

func (f *fakeBackend) CreateOrGetSession(ctx context.Context) (domain.Session, error) {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, nil
}

func (f *fakeBackend) History(ctx context.Context, sessionID domain.SessionID) ([]domain.Message, error) {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history, nil
}

func (f *fakeBackend) ListSessions(ctx context.Context, filter domain.SessionFilter) ([]services.SessionSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	return f.summaries, nil
}

func (f *fakeBackend) Join(sessionID domain.SessionID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, sessionID)
	return nil
}

func (f *fakeBackend) Leave(sessionID domain.SessionID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves = append(f.leaves, sessionID)
}

func (f *fakeBackend) Send(ctx context.Context, sessionID domain.SessionID, content, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend != nil {
		return f.failSend
	}
	f.sends = append(f.sends, content)
	f.refs = append(f.refs, ref)
	return nil
}

func (f *fakeBackend) Typing(sessionID domain.SessionID, isTyping bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typings = append(f.typings, isTyping)
}

func (f *fakeBackend) MarkRead(sessionID domain.SessionID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReads = append(f.markReads, sessionID)
	return nil
}

func (f *fakeBackend) CloseSession(ctx context.Context, sessionID domain.SessionID) (domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes = append(f.closes, sessionID)
	closed := f.session
	closed.Status = domain.StatusClosed
	return closed, nil
}

func (f *fakeBackend) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func (f *fakeBackend) markReadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.markReads)
}

func (f *fakeBackend) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}
