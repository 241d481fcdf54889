package repositories

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"supportdesk/domain"
	"supportdesk/errors"
)

func newTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").
		WithInMemory(true).
		WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func alice() domain.Participant {
	return domain.Participant{ID: "user-alice", Name: "Alice", Role: domain.RoleUser}
}

func TestSessionRepository_CreateOrGet_Creates_Then_Returns_Same(t *testing.T) {
	req := require.New(t)
	repository := NewSessionRepository(newTestDB(t), slog.Default())
	at := time.Now().UTC()

	// When the user opens the chat for the first time
	first, created, err := repository.CreateOrGet(alice(), at)
	req.NoError(err)
	req.True(created)
	req.Equal(domain.StatusOpen, first.Status)

	// Then a second open returns the very same session
	second, created, err := repository.CreateOrGet(alice(), at.Add(time.Minute))
	req.NoError(err)
	req.False(created)
	req.Equal(first.ID, second.ID)
}

func TestSessionRepository_CreateOrGet_Concurrent_Single_Session(t *testing.T) {
	req := require.New(t)
	repository := NewSessionRepository(newTestDB(t), slog.Default())
	at := time.Now().UTC()

	// When the same user races two chat opens
	var wg sync.WaitGroup
	ids := make([]domain.SessionID, 8)
	for i := 0; i < len(ids); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session, _, err := repository.CreateOrGet(alice(), at)
			req.NoError(err)
			ids[i] = session.ID
		}(i)
	}
	wg.Wait()

	// Then every call resolved to the same session
	for _, id := range ids[1:] {
		req.Equal(ids[0], id)
	}
}

func TestSessionRepository_Close_Allows_Fresh_Session(t *testing.T) {
	req := require.New(t)
	repository := NewSessionRepository(newTestDB(t), slog.Default())
	at := time.Now().UTC()

	first, _, err := repository.CreateOrGet(alice(), at)
	req.NoError(err)

	// When the session is closed
	_, err = repository.Transition(first.ID, domain.StatusClosed, at.Add(time.Minute))
	req.NoError(err)

	// Then the next open creates a brand new session
	second, created, err := repository.CreateOrGet(alice(), at.Add(2*time.Minute))
	req.NoError(err)
	req.True(created)
	req.NotEqual(first.ID, second.ID)
}

func TestSessionRepository_Transition_Forward_Only(t *testing.T) {
	req := require.New(t)
	repository := NewSessionRepository(newTestDB(t), slog.Default())
	at := time.Now().UTC()

	session, _, err := repository.CreateOrGet(alice(), at)
	req.NoError(err)

	// Given open -> in_progress succeeds
	moved, err := repository.Transition(session.ID, domain.StatusInProgress, at)
	req.NoError(err)
	req.Equal(domain.StatusInProgress, moved.Status)

	// When moving backward
	_, err = repository.Transition(session.ID, domain.StatusOpen, at)

	// Then the move is rejected
	req.ErrorIs(err, errors.ErrInvalidStatus)
}

func TestSessionRepository_Close_Twice_Fails(t *testing.T) {
	req := require.New(t)
	repository := NewSessionRepository(newTestDB(t), slog.Default())
	at := time.Now().UTC()

	session, _, err := repository.CreateOrGet(alice(), at)
	req.NoError(err)

	_, err = repository.Transition(session.ID, domain.StatusClosed, at)
	req.NoError(err)

	// When closing again
	_, err = repository.Transition(session.ID, domain.StatusClosed, at)

	// Then the second close reports the closed state
	req.ErrorIs(err, errors.ErrSessionClosed)
}

func TestSessionRepository_Get_Unknown_Session(t *testing.T) {
	req := require.New(t)
	repository := NewSessionRepository(newTestDB(t), slog.Default())

	_, err := repository.Get(uuid.New())
	req.ErrorIs(err, errors.ErrSessionNotFound)
}

func TestSessionRepository_List_Sorted_And_Filtered(t *testing.T) {
	req := require.New(t)
	repository := NewSessionRepository(newTestDB(t), slog.Default())
	at := time.Now().UTC()

	users := []domain.Participant{
		{ID: "u1", Name: "Uma", Role: domain.RoleUser},
		{ID: "u2", Name: "Ugo", Role: domain.RoleUser},
		{ID: "u3", Name: "Ulf", Role: domain.RoleUser},
	}
	var created []domain.Session
	for i, user := range users {
		session, _, err := repository.CreateOrGet(user, at.Add(time.Duration(i)*time.Minute))
		req.NoError(err)
		created = append(created, session)
	}
	_, err := repository.Transition(created[0].ID, domain.StatusClosed, at.Add(time.Hour))
	req.NoError(err)

	// When listing everything
	all, err := repository.List(nil)
	req.NoError(err)

	// Then sessions come back by most recent activity first
	req.Len(all, 3)
	req.Equal(created[0].ID, all[0].ID) // closed last, most recent activity
	req.Equal(created[2].ID, all[1].ID)
	req.Equal(created[1].ID, all[2].ID)

	// And the status filter narrows the list
	closed := domain.StatusClosed
	onlyClosed, err := repository.List(&closed)
	req.NoError(err)
	req.Len(onlyClosed, 1)
	req.Equal(created[0].ID, onlyClosed[0].ID)
}

func TestSessionRepository_Unread_Counters_Per_Side(t *testing.T) {
	req := require.New(t)
	repository := NewSessionRepository(newTestDB(t), slog.Default())
	at := time.Now().UTC()

	session, _, err := repository.CreateOrGet(alice(), at)
	req.NoError(err)

	// Given a counter that was never touched
	count, err := repository.Unread(session.ID, string(domain.RoleAgent))
	req.NoError(err)
	req.Zero(count)

	// When the agent side accumulates unread messages
	req.NoError(repository.IncrementUnread(session.ID, string(domain.RoleAgent)))
	req.NoError(repository.IncrementUnread(session.ID, string(domain.RoleAgent)))
	req.NoError(repository.IncrementUnread(session.ID, string(domain.RoleUser)))

	// Then each side counts independently
	agentSide, err := repository.Unread(session.ID, string(domain.RoleAgent))
	req.NoError(err)
	req.EqualValues(2, agentSide)
	userSide, err := repository.Unread(session.ID, string(domain.RoleUser))
	req.NoError(err)
	req.EqualValues(1, userSide)

	// And reset zeroes only the given side
	req.NoError(repository.ResetUnread(session.ID, string(domain.RoleAgent)))
	agentSide, err = repository.Unread(session.ID, string(domain.RoleAgent))
	req.NoError(err)
	req.Zero(agentSide)
	userSide, err = repository.Unread(session.ID, string(domain.RoleUser))
	req.NoError(err)
	req.EqualValues(1, userSide)
}
