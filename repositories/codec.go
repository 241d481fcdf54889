package repositories

import (
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"supportdesk/domain"
)

// DiskSession is the stored representation of a session. NextSeq is the
// sequence number the next appended message will receive.
type DiskSession struct {
	ID             string       `cbor:"1,keyasint"`
	UserID         string       `cbor:"2,keyasint"`
	UserName       string       `cbor:"3,keyasint"`
	Status         string       `cbor:"4,keyasint"`
	CreatedAt      int64        `cbor:"5,keyasint"`
	LastActivityAt int64        `cbor:"6,keyasint"`
	NextSeq        uint64       `cbor:"7,keyasint"`
	LastMessage    *DiskMessage `cbor:"8,keyasint,omitempty"`
}

type DiskMessage struct {
	ID         string `cbor:"1,keyasint"`
	SessionID  string `cbor:"2,keyasint"`
	SenderID   string `cbor:"3,keyasint"`
	SenderName string `cbor:"4,keyasint"`
	SenderRole string `cbor:"5,keyasint"`
	Content    string `cbor:"6,keyasint"`
	Seq        uint64 `cbor:"7,keyasint"`
	At         int64  `cbor:"8,keyasint"`
}

func decodeSession(data []byte) (DiskSession, error) {
	var rec DiskSession
	err := cbor.Unmarshal(data, &rec)
	return rec, err
}

func toSession(rec DiskSession) (domain.Session, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return domain.Session{}, err
	}
	s := domain.Session{
		ID:             id,
		UserID:         rec.UserID,
		UserName:       rec.UserName,
		Status:         domain.Status(rec.Status),
		CreatedAt:      time.Unix(0, rec.CreatedAt).UTC(),
		LastActivityAt: time.Unix(0, rec.LastActivityAt).UTC(),
	}
	if rec.LastMessage != nil {
		m, err := toMessage(*rec.LastMessage)
		if err != nil {
			return domain.Session{}, err
		}
		s.LastMessage = &m
	}
	return s, nil
}

func fromMessage(m domain.Message) DiskMessage {
	return DiskMessage{
		ID:         m.ID.String(),
		SessionID:  m.SessionID.String(),
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		SenderRole: string(m.SenderRole),
		Content:    m.Content,
		Seq:        m.Seq,
		At:         m.CreatedAt.UnixNano(),
	}
}

func toMessage(rec DiskMessage) (domain.Message, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return domain.Message{}, err
	}
	sessionID, err := uuid.Parse(rec.SessionID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:         id,
		SessionID:  sessionID,
		SenderID:   rec.SenderID,
		SenderName: rec.SenderName,
		SenderRole: domain.Role(rec.SenderRole),
		Content:    rec.Content,
		Seq:        rec.Seq,
		CreatedAt:  time.Unix(0, rec.At).UTC(),
	}, nil
}
