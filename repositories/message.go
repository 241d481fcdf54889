//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"supportdesk/domain"
	"supportdesk/errors"
)

type IMessageRepository interface {
	Append(sessionID domain.SessionID, sender domain.Participant, content string, at time.Time) (domain.Message, error)
	History(sessionID domain.SessionID) ([]domain.Message, error)
}

// MessageRepository owns the ordered, append-only message log.
//
// The key is formatted as "msg:{session_id}:{seq_padded}" to ensure
// in-session order using 19-digit zero padding (lexicographical order).
// Sequence numbers come from the session record, read and bumped inside
// the same transaction that writes the message, so the closed-session
// check and the sequence assignment are indivisible.
type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log}
}

func messageKey(sessionID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d", sessionID, seq))
}

// Append validates, assigns the next sequence number and persists the
// message. It fails with ErrEmptyContent on blank content,
// ErrSessionNotFound on an unknown session and ErrSessionClosed when the
// session no longer accepts messages.
func (m *MessageRepository) Append(sessionID domain.SessionID, sender domain.Participant, content string, at time.Time) (domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Message{}, errors.ErrEmptyContent
	}

	var stored domain.Message
	err := m.db.Update(func(txn *badger.Txn) error {
		rec, err := getSessionRec(txn, sessionID.String())
		if err != nil {
			return err
		}
		if domain.Status(rec.Status) == domain.StatusClosed {
			return errors.ErrSessionClosed
		}

		stored = domain.Message{
			ID:         uuid.New(),
			SessionID:  sessionID,
			SenderID:   sender.ID,
			SenderName: sender.Name,
			SenderRole: sender.Role,
			Content:    content,
			Seq:        rec.NextSeq,
			CreatedAt:  at,
		}
		diskMsg := fromMessage(stored)
		data, err := cbor.Marshal(diskMsg)
		if err != nil {
			return err
		}
		if err := txn.Set(messageKey(rec.ID, stored.Seq), data); err != nil {
			return err
		}

		rec.NextSeq++
		rec.LastActivityAt = at.UnixNano()
		rec.LastMessage = &diskMsg
		return putSessionRec(txn, rec)
	})
	if err != nil {
		return domain.Message{}, err
	}
	m.log.Debug("Message appended", "session", sessionID, "seq", stored.Seq)
	return stored, nil
}

// History returns the full ordered message sequence of a session.
// Thanks to the padded sequence in the key, a forward prefix scan yields
// messages in append order with no extra sorting.
func (m *MessageRepository) History(sessionID domain.SessionID) ([]domain.Message, error) {
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		if _, err := getSessionRec(txn, sessionID.String()); err != nil {
			return err
		}

		prefix := []byte("msg:" + sessionID.String() + ":")
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var rec DiskMessage
				if err := cbor.Unmarshal(value, &rec); err != nil {
					return err
				}
				message, err := toMessage(rec)
				if err != nil {
					return err
				}
				messages = append(messages, message)
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
	return messages, nil
}
