package coordinator

import (
	"github.com/matheus3301/ridechat/internal/bus"
	"github.com/matheus3301/ridechat/internal/chat"
)

// Bus event payloads published by BusObserver.
type (
	ListPayload struct {
		Messages []chat.Message
	}
	UnreadPayload struct {
		Count int
	}
	TypingPayload struct {
		Typing bool
	}
	AlertPayload struct {
		Message chat.Message
	}
)

// BusObserver publishes coordinator output on the event bus.
type BusObserver struct {
	Bus *bus.Bus
}

func (o BusObserver) ListChanged(list []chat.Message) {
	o.Bus.Emit(bus.KindListChanged, ListPayload{Messages: list})
}

func (o BusObserver) UnreadChanged(n int) {
	o.Bus.Emit(bus.KindUnreadChanged, UnreadPayload{Count: n})
}

func (o BusObserver) TypingChanged(typing bool) {
	o.Bus.Emit(bus.KindTypingChanged, TypingPayload{Typing: typing})
}

func (o BusObserver) Alert(m chat.Message) {
	o.Bus.Emit(bus.KindAlert, AlertPayload{Message: m})
}
