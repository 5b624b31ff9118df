package chat

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxBodyLen caps a message body in bytes. Postgres NOTIFY payloads are
// limited to 8000 bytes and carry the full row.
const MaxBodyLen = 4000

// MessageType distinguishes text messages from voice notes.
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeVoice MessageType = "voice"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	return t == TypeText || t == TypeVoice
}

// Record is a message as confirmed by the persistence store.
// Records are validated at the store client boundary before they reach the engine.
type Record struct {
	ID        string      `json:"id"`
	RideID    string      `json:"ride_id"`
	SenderID  string      `json:"sender_id"`
	Type      MessageType `json:"message_type"`
	Body      string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
	ReadAt    *time.Time  `json:"read_at,omitempty"`
}

// Validate rejects records that must never flow into the engine.
func (r Record) Validate() error {
	switch {
	case r.ID == "":
		return fmt.Errorf("%w: empty id", ErrInvalidRecord)
	case r.RideID == "":
		return fmt.Errorf("%w: record %s has no ride", ErrInvalidRecord, r.ID)
	case r.SenderID == "":
		return fmt.Errorf("%w: record %s has no sender", ErrInvalidRecord, r.ID)
	case !r.Type.Valid():
		return fmt.Errorf("%w: record %s has type %q", ErrInvalidRecord, r.ID, r.Type)
	case r.CreatedAt.IsZero():
		return fmt.Errorf("%w: record %s has no timestamp", ErrInvalidRecord, r.ID)
	case len(r.Body) > MaxBodyLen:
		return fmt.Errorf("%w: record %s body is %d bytes", ErrInvalidRecord, r.ID, len(r.Body))
	}
	return nil
}

// Receipt reports that the listed messages were read at ReadAt.
type Receipt struct {
	RideID     string    `json:"ride_id"`
	ReaderID   string    `json:"reader_id"`
	MessageIDs []string  `json:"ids"`
	ReadAt     time.Time `json:"read_at"`
}

// Message is one entry of the engine's in-memory thread.
type Message struct {
	// ID is the list key: the server id once known, the local id before that.
	ID       string
	LocalID  string
	ServerID string

	RideID    string
	SenderID  string
	Type      MessageType
	Body      string
	CreatedAt time.Time
	ReadAt    *time.Time
	Status    Status

	// SentAt is when this client last queued the message. It is the
	// provisional CreatedAt and survives adopting a server timestamp.
	SentAt time.Time

	// Own is true when SenderID is the current user.
	Own bool
	// Reaction is a client-only annotation, discarded on ride switch.
	Reaction string
}

// Confirmed reports whether the store has assigned this message an id.
func (m Message) Confirmed() bool {
	return m.ServerID != ""
}

// FromRecord converts a confirmed record into a thread entry for the given user.
func FromRecord(r Record, currentUserID string) Message {
	return Message{
		ID:        r.ID,
		ServerID:  r.ID,
		RideID:    r.RideID,
		SenderID:  r.SenderID,
		Type:      r.Type,
		Body:      r.Body,
		CreatedAt: r.CreatedAt,
		ReadAt:    r.ReadAt,
		Status:    StatusFromRecord(r),
		Own:       r.SenderID == currentUserID,
	}
}

// NewOptimistic builds a local entry shown before the store confirms it.
func NewOptimistic(rideID, senderID string, t MessageType, body string, now time.Time) Message {
	id := NewLocalID()
	return Message{
		ID:        id,
		LocalID:   id,
		RideID:    rideID,
		SenderID:  senderID,
		Type:      t,
		Body:      body,
		CreatedAt: now,
		SentAt:    now,
		Status:    StatusSending,
		Own:       true,
	}
}

// NewLocalID returns a client-side id. Local ids are prefixed so they can
// never collide with store-assigned ids.
func NewLocalID() string {
	return "local-" + uuid.NewString()
}

// IsLocalID reports whether id was produced by NewLocalID.
func IsLocalID(id string) bool {
	return len(id) > 6 && id[:6] == "local-"
}
