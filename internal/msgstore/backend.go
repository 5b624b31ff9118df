// Package msgstore is the only path between the chat engine and the external
// message store. Adapters implement Backend; Client adds identity, record
// validation, error classification and subscription teardown guarantees.
package msgstore

import (
	"context"
	"errors"
	"io"

	"github.com/matheus3301/ridechat/internal/chat"
)

// ErrPermissionDenied is returned by backends when the store rejects the
// caller. Client reports it as chat.ErrAuth.
var ErrPermissionDenied = errors.New("permission denied")

// NewMessage is a row to append. The store assigns id and timestamp.
type NewMessage struct {
	RideID   string
	SenderID string
	Type     chat.MessageType
	Body     string
}

// Live event kinds carried in an Envelope.
const (
	KindMessage = "message"
	KindRead    = "read"
	KindTyping  = "typing"
)

// Envelope is one live event as both adapters put it on the wire.
//
// A message event carries either the whole record or only its MessageID;
// adapters resolve the id to a record before delivering.
type Envelope struct {
	Kind      string        `json:"kind"`
	RideID    string        `json:"ride_id"`
	Message   *chat.Record  `json:"message,omitempty"`
	MessageID string        `json:"message_id,omitempty"`
	Read      *chat.Receipt `json:"read,omitempty"`
	SenderID  string        `json:"sender_id,omitempty"`
}

// Backend is implemented by store adapters.
//
// Listen starts delivering a ride's live events to deliver until the
// returned closer is closed or fail is called. After fail the listener is
// dead and delivers nothing more. Close waits for the delivery goroutine.
type Backend interface {
	Insert(ctx context.Context, m NewMessage) (chat.Record, error)
	// MarkRead stamps read_at on unread messages in rideID not sent by
	// readerID and returns the ids it changed.
	MarkRead(ctx context.Context, rideID, readerID string) ([]string, error)
	// History returns a ride's messages, oldest first.
	History(ctx context.Context, rideID string) ([]chat.Record, error)
	Listen(ctx context.Context, rideID string, deliver func(Envelope), fail func(error)) (io.Closer, error)
	Typing(ctx context.Context, rideID, senderID string) error
	Close() error
}
