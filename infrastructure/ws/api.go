package ws

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"supportdesk/domain"
	"supportdesk/errors"
	"supportdesk/services"
)

// Wire shapes of the request/response API. The event channel uses its
// own frames; these cover the four plain round trips.

type sessionResponse struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	UserName       string          `json:"user_name"`
	Status         string          `json:"status"`
	CreatedAt      int64           `json:"created_at"`
	LastActivityAt int64           `json:"last_activity_at"`
	LastMessage    *MessagePayload `json:"last_message,omitempty"`
}

type summaryResponse struct {
	Session    sessionResponse `json:"session"`
	Unread     uint64          `json:"unread"`
	UserOnline bool            `json:"user_online"`
}

func toSessionResponse(s domain.Session) sessionResponse {
	resp := sessionResponse{
		ID:             s.ID.String(),
		UserID:         s.UserID,
		UserName:       s.UserName,
		Status:         string(s.Status),
		CreatedAt:      s.CreatedAt.UnixNano(),
		LastActivityAt: s.LastActivityAt.UnixNano(),
	}
	if s.LastMessage != nil {
		resp.LastMessage = messagePayload(*s.LastMessage)
	}
	return resp
}

func (s *Server) handleCreateOrGet(w http.ResponseWriter, r *http.Request) {
	caller, err := s.authenticate(r)
	if err != nil {
		writeErr(w, errors.ErrUnauthorized)
		return
	}
	session, err := s.service.CreateOrGetSession(r.Context(), caller)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	caller, err := s.authenticate(r)
	if err != nil {
		writeErr(w, errors.ErrUnauthorized)
		return
	}
	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "bad session id", http.StatusBadRequest)
		return
	}
	history, err := s.service.History(r.Context(), caller, sessionID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(history, func(m domain.Message, _ int) *MessagePayload {
		return messagePayload(m)
	}))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	caller, err := s.authenticate(r)
	if err != nil {
		writeErr(w, errors.ErrUnauthorized)
		return
	}
	filter := domain.SessionFilter{Search: r.URL.Query().Get("search")}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.Status(raw)
		if !status.Valid() {
			http.Error(w, "bad status", http.StatusBadRequest)
			return
		}
		filter.Status = &status
	}
	summaries, err := s.service.ListSessions(r.Context(), caller, filter)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(summaries, func(sum services.SessionSummary, _ int) summaryResponse {
		return summaryResponse{
			Session:    toSessionResponse(sum.Session),
			Unread:     sum.Unread,
			UserOnline: sum.UserOnline,
		}
	}))
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	caller, err := s.authenticate(r)
	if err != nil {
		writeErr(w, errors.ErrUnauthorized)
		return
	}
	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "bad session id", http.StatusBadRequest)
		return
	}
	session, err := s.service.CloseSession(r.Context(), caller, sessionID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case stderrors.Is(err, errors.ErrUnauthorized):
		status = http.StatusForbidden
	case stderrors.Is(err, errors.ErrSessionNotFound):
		status = http.StatusNotFound
	case stderrors.Is(err, errors.ErrSessionClosed), stderrors.Is(err, errors.ErrInvalidStatus):
		status = http.StatusConflict
	case stderrors.Is(err, errors.ErrEmptyContent):
		status = http.StatusBadRequest
	}
	http.Error(w, err.Error(), status)
}
