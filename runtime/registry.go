package runtime

import (
	"sync"

	"supportdesk/contract"
	"supportdesk/domain"
)

type Set map[string]struct{}

// Registry tracks, per connected participant, the logical channels they
// joined: at most one sink per participant, any number of session
// channels, plus the global agent channel.
type Registry struct {
	mu             sync.RWMutex
	sinks          map[string]contract.EventSink            // participant -> connection sink
	sessionMembers map[domain.SessionID]Set                 // session -> participants
	memberSessions map[string]map[domain.SessionID]struct{} // participant -> joined sessions
	globalMembers  Set                                      // agents on the admin channel
}

func NewRegistry() *Registry {
	return &Registry{
		sinks:          make(map[string]contract.EventSink),
		sessionMembers: make(map[domain.SessionID]Set),
		memberSessions: make(map[string]map[domain.SessionID]struct{}),
		globalMembers:  make(Set),
	}
}

// Connect registers a participant's active connection. A reconnect
// replaces the previous sink; channel membership is not carried over, the
// client re-joins and re-fetches history after any disconnect.
func (r *Registry) Connect(p domain.Participant, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[p.ID] = sink
}

// Disconnect removes the participant from every channel and drops the
// sink. No empty sets are left behind to avoid leaking over time.
func (r *Registry) Disconnect(participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sinks, participantID)
	delete(r.globalMembers, participantID)

	for sessionID := range r.memberSessions[participantID] {
		r.removeMember(sessionID, participantID)
	}
	delete(r.memberSessions, participantID)
}

func (r *Registry) JoinSession(participantID string, sessionID domain.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessionMembers[sessionID]; !ok {
		r.sessionMembers[sessionID] = make(Set)
	}
	r.sessionMembers[sessionID][participantID] = struct{}{}

	if _, ok := r.memberSessions[participantID]; !ok {
		r.memberSessions[participantID] = make(map[domain.SessionID]struct{})
	}
	r.memberSessions[participantID][sessionID] = struct{}{}
}

func (r *Registry) LeaveSession(participantID string, sessionID domain.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeMember(sessionID, participantID)
	if sessions, ok := r.memberSessions[participantID]; ok {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(r.memberSessions, participantID)
		}
	}
}

func (r *Registry) JoinGlobal(participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.globalMembers[participantID] = struct{}{}
}

// SinksForSession resolves the active connections of everyone joined to
// one session channel. Participants without a live sink are skipped.
func (r *Registry) SinksForSession(sessionID domain.SessionID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.sessionMembers[sessionID]
	if !ok {
		return nil
	}
	var active []contract.EventSink
	for participantID := range members {
		if sink, exists := r.sinks[participantID]; exists {
			active = append(active, sink)
		}
	}
	return active
}

func (r *Registry) GlobalSinks() []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []contract.EventSink
	for participantID := range r.globalMembers {
		if sink, exists := r.sinks[participantID]; exists {
			active = append(active, sink)
		}
	}
	return active
}

func (r *Registry) SinksForParticipant(participantID string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if sink, ok := r.sinks[participantID]; ok {
		return []contract.EventSink{sink}
	}
	return nil
}

// SessionsOf lists the session channels a participant has joined, used to
// scope presence broadcasts to interested sessions.
func (r *Registry) SessionsOf(participantID string) []domain.SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := r.memberSessions[participantID]
	if len(sessions) == 0 {
		return nil
	}
	result := make([]domain.SessionID, 0, len(sessions))
	for sessionID := range sessions {
		result = append(result, sessionID)
	}
	return result
}

// removeMember must run under the write lock.
func (r *Registry) removeMember(sessionID domain.SessionID, participantID string) {
	if members, ok := r.sessionMembers[sessionID]; ok {
		delete(members, participantID)
		if len(members) == 0 {
			delete(r.sessionMembers, sessionID)
		}
	}
}
