package repositories

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"supportdesk/domain"
	"supportdesk/errors"
)

func agent() domain.Participant {
	return domain.Participant{ID: "agent-bob", Name: "Bob", Role: domain.RoleAgent}
}

func TestMessageRepository_Append_Assigns_Contiguous_Seq(t *testing.T) {
	req := require.New(t)
	db := newTestDB(t)
	sessions := NewSessionRepository(db, slog.Default())
	messages := NewMessageRepository(db, slog.Default())
	at := time.Now().UTC()

	session, _, err := sessions.CreateOrGet(alice(), at)
	req.NoError(err)

	// When appending messages from both sides
	for i := 1; i <= 5; i++ {
		sender := alice()
		if i%2 == 0 {
			sender = agent()
		}
		stored, err := messages.Append(session.ID, sender, fmt.Sprintf("message %d", i), at.Add(time.Duration(i)*time.Second))
		req.NoError(err)

		// Then sequence numbers are contiguous from 1
		req.EqualValues(i, stored.Seq)
	}
}

func TestMessageRepository_History_In_Append_Order(t *testing.T) {
	req := require.New(t)
	db := newTestDB(t)
	sessions := NewSessionRepository(db, slog.Default())
	messages := NewMessageRepository(db, slog.Default())
	at := time.Now().UTC()

	session, _, err := sessions.CreateOrGet(alice(), at)
	req.NoError(err)

	contents := []string{"hello", "anyone there?", "yes, reading you"}
	for i, content := range contents {
		_, err := messages.Append(session.ID, alice(), content, at.Add(time.Duration(i)*time.Second))
		req.NoError(err)
	}

	// When fetching history
	history, err := messages.History(session.ID)
	req.NoError(err)

	// Then messages come back in append order
	req.Len(history, len(contents))
	for i, message := range history {
		req.Equal(contents[i], message.Content)
		req.EqualValues(i+1, message.Seq)
	}
}

func TestMessageRepository_Append_Rejects_Blank_Content(t *testing.T) {
	req := require.New(t)
	db := newTestDB(t)
	sessions := NewSessionRepository(db, slog.Default())
	messages := NewMessageRepository(db, slog.Default())
	at := time.Now().UTC()

	session, _, err := sessions.CreateOrGet(alice(), at)
	req.NoError(err)

	_, err = messages.Append(session.ID, alice(), "   \t\n", at)
	req.ErrorIs(err, errors.ErrEmptyContent)

	// And nothing was stored
	history, err := messages.History(session.ID)
	req.NoError(err)
	req.Empty(history)
}

func TestMessageRepository_Append_Rejects_Closed_Session(t *testing.T) {
	req := require.New(t)
	db := newTestDB(t)
	sessions := NewSessionRepository(db, slog.Default())
	messages := NewMessageRepository(db, slog.Default())
	at := time.Now().UTC()

	session, _, err := sessions.CreateOrGet(alice(), at)
	req.NoError(err)
	_, err = messages.Append(session.ID, alice(), "last words", at)
	req.NoError(err)

	// Given the session just closed
	_, err = sessions.Transition(session.ID, domain.StatusClosed, at.Add(time.Second))
	req.NoError(err)

	// When a send arrives after the close
	_, err = messages.Append(session.ID, alice(), "too late", at.Add(2*time.Second))

	// Then the append is rejected and the log is untouched
	req.ErrorIs(err, errors.ErrSessionClosed)
	history, err := messages.History(session.ID)
	req.NoError(err)
	req.Len(history, 1)
}

func TestMessageRepository_Unknown_Session(t *testing.T) {
	req := require.New(t)
	db := newTestDB(t)
	messages := NewMessageRepository(db, slog.Default())

	_, err := messages.Append(uuid.New(), alice(), "hello?", time.Now().UTC())
	req.ErrorIs(err, errors.ErrSessionNotFound)

	_, err = messages.History(uuid.New())
	req.ErrorIs(err, errors.ErrSessionNotFound)
}

func TestMessageRepository_Append_Updates_Session_Activity(t *testing.T) {
	req := require.New(t)
	db := newTestDB(t)
	sessions := NewSessionRepository(db, slog.Default())
	messages := NewMessageRepository(db, slog.Default())
	at := time.Now().UTC().Truncate(time.Microsecond)

	session, _, err := sessions.CreateOrGet(alice(), at)
	req.NoError(err)

	later := at.Add(time.Minute)
	stored, err := messages.Append(session.ID, alice(), "ping", later)
	req.NoError(err)

	// Then the session record carries the new activity and last message
	refreshed, err := sessions.Get(session.ID)
	req.NoError(err)
	req.Equal(later, refreshed.LastActivityAt)
	req.NotNil(refreshed.LastMessage)
	req.Equal(stored.ID, refreshed.LastMessage.ID)
	req.Equal("ping", refreshed.LastMessage.Content)
}
