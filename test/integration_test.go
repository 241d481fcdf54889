package test

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"supportdesk/client"
	"supportdesk/domain"
	"supportdesk/errors"
	"supportdesk/moderation"
	"supportdesk/repositories"
	"supportdesk/runtime"
	"supportdesk/services"
)

// widgetProbe mirrors controller state from the OnChange hook, which
// runs on the controller goroutine, into something the test goroutine
// can poll safely.
type widgetProbe struct {
	mu       sync.Mutex
	state    client.State
	messages []domain.Message
	status   domain.Status
	lastErr  error
}

func (p *widgetProbe) hook(controller *client.SessionController) func() {
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.state = controller.State()
		p.messages = append([]domain.Message(nil), controller.Messages()...)
		p.status = controller.Session().Status
		p.lastErr = controller.LastErr()
	}
}

func (p *widgetProbe) snapshot() widgetProbe {
	p.mu.Lock()
	defer p.mu.Unlock()
	return widgetProbe{state: p.state, messages: p.messages, status: p.status, lastErr: p.lastErr}
}

type consoleProbe struct {
	mu       sync.Mutex
	rows     []services.SessionSummary
	messages []domain.Message
	active   *domain.SessionID
}

func (p *consoleProbe) hook(controller *client.ConsoleController) func() {
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.rows = append([]services.SessionSummary(nil), controller.Rows()...)
		p.messages = append([]domain.Message(nil), controller.Messages()...)
		p.active = controller.Active()
	}
}

func (p *consoleProbe) snapshot() consoleProbe {
	p.mu.Lock()
	defer p.mu.Unlock()
	return consoleProbe{rows: p.rows, messages: p.messages, active: p.active}
}

func Test_Scenario_User_And_Agent_Full_Conversation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := require.New(t)

	// 1. Full in-process stack: storage, index, moderation, bus, service
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)
	defer db.Close()

	writer, err := bluge.OpenWriter(bluge.InMemoryOnlyConfig())
	req.NoError(err)
	defer writer.Close()

	log := slog.Default()
	censor, err := moderation.NewCensor([]string{"darn"}, '*')
	req.NoError(err)

	sessions := repositories.NewSessionRepository(db, log)
	messages := repositories.NewMessageRepository(db, log)
	index := repositories.NewSessionIndex(writer, log)
	bus := runtime.NewBus(log, runtime.NewRegistry(), sessions, messages, censor, 50*time.Millisecond, time.Second, 128)
	defer bus.Presence().Stop()
	service := services.NewChatService(log, bus, sessions, messages, index)

	user := domain.Participant{ID: "user-1", Name: "Uma", Role: domain.RoleUser}
	agent := domain.Participant{ID: "agent-1", Name: "Ada", Role: domain.RoleAgent}

	// 2. User widget behind its gateway
	userGateway := client.NewGateway(bus, service, user)
	widget := client.NewSessionController(log, userGateway, user, 128)
	userState := &widgetProbe{}
	widget.OnChange(userState.hook(widget))
	go func() { _ = widget.Run(ctx) }()
	req.NoError(userGateway.Attach(widget))

	// 3. Agent console behind its gateway (joins the global channel)
	agentGateway := client.NewGateway(bus, service, agent)
	console := client.NewConsoleController(log, agentGateway, agent, 20*time.Millisecond, 128)
	agentState := &consoleProbe{}
	console.OnChange(agentState.hook(console))
	go func() { _ = console.Run(ctx) }()
	req.NoError(agentGateway.Attach(console))
	console.Start(ctx)

	// 4. The user opens the chat and says hello
	widget.Open(ctx)
	req.Eventually(func() bool {
		return userState.snapshot().state == client.StateActive
	}, 2*time.Second, 10*time.Millisecond)

	widget.Send(ctx, "hello, I need help with my darn invoice")
	req.Eventually(func() bool {
		return len(userState.snapshot().messages) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The echoed message is the moderated one
	req.Equal("hello, I need help with my **** invoice", userState.snapshot().messages[0].Content)

	// 5. The console discovers the session via the coalesced refresh
	req.Eventually(func() bool {
		return len(agentState.snapshot().rows) == 1
	}, 2*time.Second, 10*time.Millisecond)
	sessionID := agentState.snapshot().rows[0].Session.ID

	// 6. The agent picks up the conversation and replies
	console.Select(ctx, sessionID)
	req.Eventually(func() bool {
		return len(agentState.snapshot().messages) == 1
	}, 2*time.Second, 10*time.Millisecond)

	console.Send(ctx, "happy to help!")
	req.Eventually(func() bool {
		return len(agentState.snapshot().messages) == 2
	}, 2*time.Second, 10*time.Millisecond)

	// The user sees the reply and the session moving to in_progress
	req.Eventually(func() bool {
		snapshot := userState.snapshot()
		return len(snapshot.messages) == 2 && snapshot.status == domain.StatusInProgress
	}, 2*time.Second, 10*time.Millisecond)

	// 7. On-disk history matches what both sides observed, in order
	history, err := messages.History(sessionID)
	req.NoError(err)
	req.Len(history, 2)
	req.EqualValues(1, history[0].Seq)
	req.EqualValues(2, history[1].Seq)
	req.Equal("happy to help!", history[1].Content)

	// 8. The agent closes the session; the user observes the close
	console.CloseActive(ctx)
	req.Eventually(func() bool {
		return userState.snapshot().status == domain.StatusClosed
	}, 2*time.Second, 10*time.Millisecond)

	// A send racing in after the close surfaces a state error, silently
	// dropping it is not acceptable
	widget.Send(ctx, "one more thing")
	req.Eventually(func() bool {
		snapshot := userState.snapshot()
		return stderrors.Is(snapshot.lastErr, errors.ErrSessionClosed)
	}, 2*time.Second, 10*time.Millisecond)
}
