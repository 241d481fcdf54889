package repositories

import (
	"context"
	"log/slog"
	"strings"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"

	"supportdesk/domain"
)

type ISessionIndex interface {
	Index(session domain.Session) error
	Search(ctx context.Context, term string) (map[domain.SessionID]struct{}, error)
	Close() error
}

// SessionIndex maintains a Bluge full-text index over sessions so the
// agent console can search the session list by participant display name
// or session id fragment.
type SessionIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewSessionIndex(writer *bluge.Writer, log *slog.Logger) *SessionIndex {
	return &SessionIndex{writer: writer, log: log}
}

// Index upserts one session document. Called on session creation; the
// indexed fields (id, display name) never change afterwards, so there is
// no re-index path.
func (s *SessionIndex) Index(session domain.Session) error {
	doc := bluge.NewDocument(session.ID.String()).
		AddField(bluge.NewTextField("user_name", session.UserName).StoreValue()).
		AddField(bluge.NewKeywordField("session_id", session.ID.String()).StoreValue())
	return s.writer.Update(doc.ID(), doc)
}

// Search returns the ids of sessions whose participant name matches the
// term or whose id contains it as a substring.
func (s *SessionIndex) Search(ctx context.Context, term string) (map[domain.SessionID]struct{}, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}

	reader, err := s.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	query := bluge.NewBooleanQuery().
		AddShould(bluge.NewMatchQuery(term).SetField("user_name")).
		AddShould(bluge.NewWildcardQuery("*" + strings.ToLower(term) + "*").SetField("session_id"))

	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(200, query))
	if err != nil {
		return nil, err
	}

	ids := make(map[domain.SessionID]struct{})
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				if id, parseErr := uuid.Parse(string(value)); parseErr == nil {
					ids[id] = struct{}{}
				} else {
					s.log.Warn("Unparseable session id in index", "value", string(value))
				}
			}
			return true
		})
		if err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func (s *SessionIndex) Close() error {
	return s.writer.Close()
}
