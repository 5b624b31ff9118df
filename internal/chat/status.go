package chat

// Status is the client-derived delivery state of a message. It is never persisted.
type Status string

const (
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

// Rank orders the forward progression sending < sent < delivered < read.
// Failed ranks with sending since a retry restarts from there.
func (s Status) Rank() int {
	switch s {
	case StatusSending, StatusFailed:
		return 0
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return -1
}

// Advance returns the later of s and to. Status never moves backwards, and
// only a message still sending can fail.
func (s Status) Advance(to Status) Status {
	if to == StatusFailed {
		if s == StatusSending {
			return StatusFailed
		}
		return s
	}
	if s == StatusFailed && to == StatusSending {
		return StatusSending
	}
	if to.Rank() > s.Rank() {
		return to
	}
	return s
}

// Pending reports whether the message may still be matched against a store echo.
func (s Status) Pending() bool {
	return s == StatusSending || s == StatusSent
}

// StatusFromRecord derives the status of a confirmed record.
func StatusFromRecord(r Record) Status {
	if r.ReadAt != nil {
		return StatusRead
	}
	return StatusDelivered
}
