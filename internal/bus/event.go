package bus

import "time"

// Kind names an event. The part up to and including the first dot is its namespace.
type Kind string

const (
	KindStatusChanged Kind = "conn.status_changed"

	KindListChanged   Kind = "chat.list_changed"
	KindUnreadChanged Kind = "chat.unread_changed"
	KindTypingChanged Kind = "chat.typing_changed"
	KindAlert         Kind = "chat.alert"
	KindSendFailed    Kind = "chat.send_failed"
)

// Namespaces accepted by Subscribe.
const (
	NamespaceConn = "conn."
	NamespaceChat = "chat."
	NamespaceAll  = ""
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      Kind
	Timestamp time.Time
	Payload   any
}
