//go:generate go run go.uber.org/mock/mockgen -source=session.go -destination=../mocks/mock_session_repository.go -package=mocks
package repositories

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"

	"supportdesk/domain"
	"supportdesk/errors"
)

type ISessionRepository interface {
	CreateOrGet(user domain.Participant, at time.Time) (domain.Session, bool, error)
	Get(id domain.SessionID) (domain.Session, error)
	ActiveForUser(userID string) (domain.Session, error)
	Transition(id domain.SessionID, next domain.Status, at time.Time) (domain.Session, error)
	List(status *domain.Status) ([]domain.Session, error)
	IncrementUnread(id domain.SessionID, viewerID string) error
	ResetUnread(id domain.SessionID, viewerID string) error
	Unread(id domain.SessionID, viewerID string) (uint64, error)
}

// SessionRepository persists sessions in BadgerDB.
//
// Key layout:
//   - "session:{id}"            full session record
//   - "user-session:{user_id}"  id of the user's current non-closed session
//   - "unread:{id}:{viewer_id}" per-viewer unread counter
//
// The user-session pointer is what makes CreateOrGet idempotent: it is
// checked and set inside a single transaction, serialized per user.
type SessionRepository struct {
	db    *badger.DB
	log   *slog.Logger
	users keyedMutex
}

func NewSessionRepository(db *badger.DB, log *slog.Logger) *SessionRepository {
	return &SessionRepository{db: db, log: log}
}

func sessionKey(id domain.SessionID) []byte {
	return []byte("session:" + id.String())
}

func userSessionKey(userID string) []byte {
	return []byte("user-session:" + userID)
}

func unreadKey(id domain.SessionID, viewerID string) []byte {
	return []byte(fmt.Sprintf("unread:%s:%s", id, viewerID))
}

// CreateOrGet returns the user's current non-closed session, creating one
// with status "open" if none exists. The boolean reports whether a new
// session was created. Concurrent calls for the same user serialize on a
// per-user lock so duplicate sessions cannot appear.
func (r *SessionRepository) CreateOrGet(user domain.Participant, at time.Time) (domain.Session, bool, error) {
	unlock := r.users.Lock(user.ID)
	defer unlock()

	var result domain.Session
	created := false

	err := r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(userSessionKey(user.ID))
		switch {
		case err == nil:
			var existingID []byte
			if existingID, err = item.ValueCopy(nil); err != nil {
				return err
			}
			rec, err := getSessionRec(txn, string(existingID))
			if err != nil {
				return err
			}
			result, err = toSession(rec)
			return err
		case stderrors.Is(err, badger.ErrKeyNotFound):
			// No active session for this user, create one.
		default:
			return err
		}

		session := domain.NewSession(user.ID, user.Name, at)
		rec := DiskSession{
			ID:             session.ID.String(),
			UserID:         session.UserID,
			UserName:       session.UserName,
			Status:         string(session.Status),
			CreatedAt:      session.CreatedAt.UnixNano(),
			LastActivityAt: session.LastActivityAt.UnixNano(),
			NextSeq:        1,
		}
		if err := putSessionRec(txn, rec); err != nil {
			return err
		}
		if err := txn.Set(userSessionKey(user.ID), []byte(rec.ID)); err != nil {
			return err
		}
		result = session
		created = true
		return nil
	})
	if err != nil {
		return domain.Session{}, false, err
	}
	if created {
		r.log.Info("Session created", "session", result.ID, "user", user.ID)
	}
	return result, created, nil
}

func (r *SessionRepository) Get(id domain.SessionID) (domain.Session, error) {
	var result domain.Session
	err := r.db.View(func(txn *badger.Txn) error {
		rec, err := getSessionRec(txn, id.String())
		if err != nil {
			return err
		}
		result, err = toSession(rec)
		return err
	})
	return result, err
}

// ActiveForUser resolves the user's current non-closed session through
// the user-session pointer. Users without one read as not found.
func (r *SessionRepository) ActiveForUser(userID string) (domain.Session, error) {
	var result domain.Session
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userSessionKey(userID))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		rec, err := getSessionRec(txn, string(id))
		if err != nil {
			return err
		}
		result, err = toSession(rec)
		return err
	})
	return result, err
}

// Transition moves a session forward along its lifecycle. Closing an
// already-closed session fails with ErrSessionClosed; any other backward
// move fails with ErrInvalidStatus. Closing also drops the user-session
// pointer so the user's next chat-open creates a fresh session.
func (r *SessionRepository) Transition(id domain.SessionID, next domain.Status, at time.Time) (domain.Session, error) {
	var result domain.Session
	err := r.db.Update(func(txn *badger.Txn) error {
		rec, err := getSessionRec(txn, id.String())
		if err != nil {
			return err
		}
		current := domain.Status(rec.Status)
		if !current.CanTransition(next) {
			if current == domain.StatusClosed {
				return errors.ErrSessionClosed
			}
			return errors.ErrInvalidStatus
		}
		rec.Status = string(next)
		rec.LastActivityAt = at.UnixNano()
		if err := putSessionRec(txn, rec); err != nil {
			return err
		}
		if next == domain.StatusClosed {
			if err := txn.Delete(userSessionKey(rec.UserID)); err != nil {
				return err
			}
		}
		result, err = toSession(rec)
		return err
	})
	return result, err
}

// List returns sessions ordered by most recent activity, optionally
// restricted to one status. The session population is small enough for a
// full prefix scan; pagination belongs to the caller.
func (r *SessionRepository) List(status *domain.Status) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte("session:")
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				rec, err := decodeSession(value)
				if err != nil {
					return err
				}
				if status != nil && rec.Status != string(*status) {
					return nil
				}
				session, err := toSession(rec)
				if err != nil {
					return err
				}
				sessions = append(sessions, session)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActivityAt.After(sessions[j].LastActivityAt)
	})
	return sessions, nil
}

func (r *SessionRepository) IncrementUnread(id domain.SessionID, viewerID string) error {
	return r.db.Update(func(txn *badger.Txn) error {
		count, err := getUnread(txn, id, viewerID)
		if err != nil {
			return err
		}
		data, err := cbor.Marshal(count + 1)
		if err != nil {
			return err
		}
		return txn.Set(unreadKey(id, viewerID), data)
	})
}

func (r *SessionRepository) ResetUnread(id domain.SessionID, viewerID string) error {
	return r.db.Update(func(txn *badger.Txn) error {
		data, err := cbor.Marshal(uint64(0))
		if err != nil {
			return err
		}
		return txn.Set(unreadKey(id, viewerID), data)
	})
}

func (r *SessionRepository) Unread(id domain.SessionID, viewerID string) (uint64, error) {
	var count uint64
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		count, err = getUnread(txn, id, viewerID)
		return err
	})
	return count, err
}

func getUnread(txn *badger.Txn, id domain.SessionID, viewerID string) (uint64, error) {
	item, err := txn.Get(unreadKey(id, viewerID))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var count uint64
	err = item.Value(func(value []byte) error {
		return cbor.Unmarshal(value, &count)
	})
	return count, err
}

func getSessionRec(txn *badger.Txn, id string) (DiskSession, error) {
	item, err := txn.Get([]byte("session:" + id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return DiskSession{}, errors.ErrSessionNotFound
	}
	if err != nil {
		return DiskSession{}, err
	}
	var rec DiskSession
	err = item.Value(func(value []byte) error {
		rec, err = decodeSession(value)
		return err
	})
	return rec, err
}

func putSessionRec(txn *badger.Txn, rec DiskSession) error {
	data, err := cbor.Marshal(rec)
	if err != nil {
		return err
	}
	return txn.Set([]byte("session:"+rec.ID), data)
}
