package api

import (
	"github.com/matheus3301/ridechat/internal/bus"
	"github.com/matheus3301/ridechat/internal/chat"
	"github.com/matheus3301/ridechat/internal/chatrpc"
	"github.com/matheus3301/ridechat/internal/coordinator"
	"github.com/matheus3301/ridechat/internal/outbox"
	"github.com/matheus3301/ridechat/internal/status"
)

// toEvent converts a bus event for streaming. Unknown kinds are skipped.
func toEvent(evt bus.Event) (*chatrpc.Event, bool) {
	out := &chatrpc.Event{Kind: string(evt.Kind), At: evt.Timestamp}
	switch p := evt.Payload.(type) {
	case status.StatusChange:
		out.Status = statusInfo(p)
	case coordinator.ListPayload:
		out.Messages = chatrpc.FromChat(p.Messages)
	case coordinator.UnreadPayload:
		n := p.Count
		out.Unread = &n
	case coordinator.TypingPayload:
		typing := p.Typing
		out.Typing = &typing
	case coordinator.AlertPayload:
		m := chatrpc.FromChat([]chat.Message{p.Message})[0]
		out.Alert = &m
	case outbox.SendFailed:
		out.SendFailed = &chatrpc.SendFailed{LocalID: p.LocalID, Error: p.Error}
	default:
		return nil, false
	}
	return out, true
}

func statusInfo(c status.StatusChange) *chatrpc.Status {
	return &chatrpc.Status{State: string(c.To), Reason: c.Reason, Since: c.At}
}
