package ws

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"supportdesk/auth"
	"supportdesk/contract"
	"supportdesk/domain"
	"supportdesk/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server hosts the websocket endpoint and the request/response API on a
// single mux. It owns nothing: all state lives in the bus and service.
type Server struct {
	log        *slog.Logger
	bus        contract.IBus
	service    services.IChatService
	sendBuffer int
}

func NewServer(log *slog.Logger, bus contract.IBus, service services.IChatService, sendBuffer int) *Server {
	return &Server{log: log, bus: bus, service: service, sendBuffer: sendBuffer}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("POST /api/sessions", s.handleCreateOrGet)
	mux.HandleFunc("GET /api/sessions", s.handleList)
	mux.HandleFunc("GET /api/sessions/{id}/messages", s.handleHistory)
	mux.HandleFunc("POST /api/sessions/{id}/close", s.handleClose)
	return mux
}

// handleWS authenticates, upgrades and binds the socket to the bus for
// the lifetime of the connection.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	participant, err := s.authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	socket, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Upgrade failed", "err", err)
		return
	}

	conn := newConn(s.log, socket, participant, s.bus, s.sendBuffer)
	s.bus.Connect(participant, conn)
	if participant.IsAgent() {
		if err := s.bus.JoinGlobal(participant); err != nil {
			s.log.Error("Global join failed", "participant", participant.ID, "err", err)
		}
	}
	s.log.Info("Participant connected", "participant", participant.ID, "role", participant.Role)

	go conn.writePump()
	conn.readLoop(r.Context())

	s.bus.Disconnect(participant)
	conn.close()
	s.log.Info("Participant disconnected", "participant", participant.ID)
}

// authenticate accepts the token from the Authorization header or, for
// browser websocket clients that cannot set headers, the token query
// parameter.
func (s *Server) authenticate(r *http.Request) (domain.Participant, error) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" || token == r.Header.Get("Authorization") {
		token = r.URL.Query().Get("token")
	}
	return auth.ValidateToken(token)
}
