package repositories

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/stretchr/testify/require"

	"supportdesk/domain"
)

func newTestIndex(t *testing.T) *SessionIndex {
	t.Helper()
	writer, err := bluge.OpenWriter(bluge.InMemoryOnlyConfig())
	require.NoError(t, err)
	index := NewSessionIndex(writer, slog.Default())
	t.Cleanup(func() { _ = index.Close() })
	return index
}

func TestSessionIndex_Search_By_Display_Name(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)
	at := time.Now().UTC()

	alice := domain.NewSession("u1", "Alice Martin", at)
	bob := domain.NewSession("u2", "Bob Durand", at)
	req.NoError(index.Index(alice))
	req.NoError(index.Index(bob))

	// When searching by first name
	ids, err := index.Search(context.Background(), "alice")
	req.NoError(err)

	// Then only the matching session comes back
	req.Contains(ids, alice.ID)
	req.NotContains(ids, bob.ID)
}

func TestSessionIndex_Search_By_Id_Fragment(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)
	at := time.Now().UTC()

	session := domain.NewSession("u1", "Alice", at)
	req.NoError(index.Index(session))

	// When searching with a fragment of the session id
	fragment := session.ID.String()[:8]
	ids, err := index.Search(context.Background(), fragment)
	req.NoError(err)

	req.Contains(ids, session.ID)
}

func TestSessionIndex_Empty_Term_Matches_Nothing(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)

	ids, err := index.Search(context.Background(), "   ")
	req.NoError(err)
	req.Empty(ids)
}
