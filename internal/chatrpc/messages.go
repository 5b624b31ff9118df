package chatrpc

import (
	"time"

	"github.com/matheus3301/ridechat/internal/chat"
)

// MaxVoiceMessage bounds a SendVoice request: 10 MiB of audio, base64 encoded.
const MaxVoiceMessage = 14 << 20

type Empty struct{}

type ActivateRideRequest struct {
	RideID string `json:"ride_id"`
}

type SendTextRequest struct {
	Text string `json:"text"`
}

type SendVoiceRequest struct {
	Audio []byte `json:"audio"`
}

type SendResponse struct {
	LocalID string `json:"local_id"`
}

type RetryRequest struct {
	LocalID string `json:"local_id"`
}

type ReactRequest struct {
	ID       string `json:"id"`
	Reaction string `json:"reaction"`
}

// Message is a thread entry as seen by UIs.
type Message struct {
	ID        string     `json:"id"`
	LocalID   string     `json:"local_id,omitempty"`
	SenderID  string     `json:"sender_id"`
	Type      string     `json:"type"`
	Body      string     `json:"body"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	Status    string     `json:"status"`
	Own       bool       `json:"own"`
	Reaction  string     `json:"reaction,omitempty"`
}

// FromChat converts engine entries for the wire.
func FromChat(list []chat.Message) []Message {
	out := make([]Message, 0, len(list))
	for _, m := range list {
		out = append(out, Message{
			ID:        m.ID,
			LocalID:   m.LocalID,
			SenderID:  m.SenderID,
			Type:      string(m.Type),
			Body:      m.Body,
			CreatedAt: m.CreatedAt,
			ReadAt:    m.ReadAt,
			Status:    string(m.Status),
			Own:       m.Own,
			Reaction:  m.Reaction,
		})
	}
	return out
}

type ThreadResponse struct {
	RideID   string    `json:"ride_id"`
	Open     bool      `json:"open"`
	Unread   int       `json:"unread"`
	Typing   bool      `json:"typing"`
	Messages []Message `json:"messages"`
}

// WatchEventsRequest selects events by namespace prefix ("" for all).
type WatchEventsRequest struct {
	Namespace string `json:"namespace"`
}

// Event is one streamed bus event. Only the field matching Kind is set.
type Event struct {
	Kind string    `json:"kind"`
	At   time.Time `json:"at"`

	Messages   []Message   `json:"messages,omitempty"`
	Unread     *int        `json:"unread,omitempty"`
	Typing     *bool       `json:"typing,omitempty"`
	Alert      *Message    `json:"alert,omitempty"`
	Status     *Status     `json:"status,omitempty"`
	SendFailed *SendFailed `json:"send_failed,omitempty"`
}

type Status struct {
	State  string    `json:"state"`
	Reason string    `json:"reason,omitempty"`
	Since  time.Time `json:"since"`
}

type SendFailed struct {
	LocalID string `json:"local_id"`
	Error   string `json:"error"`
}

type StatusResponse struct {
	Profile  string `json:"profile"`
	UserID   string `json:"user_id,omitempty"`
	RideID   string `json:"ride_id,omitempty"`
	Backend  string `json:"backend"`
	Status   Status `json:"status"`
	UptimeMs int64  `json:"uptime_ms"`
}
