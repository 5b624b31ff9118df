package reconcile

import (
	"slices"
	"time"

	"github.com/matheus3301/ridechat/internal/chat"
)

// DefaultEchoWindow bounds the distance between an optimistic entry's local
// timestamp and the server timestamp of the echo it may match.
const DefaultEchoWindow = 15 * time.Second

// Outcome says what Merge did with an incoming record.
type Outcome int

const (
	OutcomeDuplicate Outcome = iota
	OutcomeEchoMatched
	OutcomeAppended
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeEchoMatched:
		return "echo_matched"
	case OutcomeAppended:
		return "appended"
	}
	return "unknown"
}

// Merge folds a confirmed record into list and returns the new list, what
// happened, and the resulting entry. The input slice is not modified.
//
// A record whose id is already keyed in the list is a re-delivery. An own
// record may instead match a still-local optimistic entry with the same type
// and body whose timestamp lies within window; the earliest such entry
// adopts the server id and timestamp. Anything else is inserted in
// created_at order.
func Merge(list []chat.Message, rec chat.Record, self string, window time.Duration) ([]chat.Message, Outcome, chat.Message) {
	if i := indexByID(list, rec.ID); i >= 0 {
		return list, OutcomeDuplicate, list[i]
	}

	if rec.SenderID == self {
		if i := matchEcho(list, rec, window); i >= 0 {
			out := slices.Clone(list)
			adopt(&out[i], rec)
			m := out[i]
			sortByTime(out)
			return out, OutcomeEchoMatched, m
		}
	}

	m := chat.FromRecord(rec, self)
	return insertSorted(slices.Clone(list), m), OutcomeAppended, m
}

// Confirm applies a successful append of the entry with localID. It reports
// false when the entry is gone.
func Confirm(list []chat.Message, localID string, rec chat.Record) ([]chat.Message, bool) {
	i := indexByLocalID(list, localID)
	if i < 0 {
		return list, false
	}
	out := slices.Clone(list)
	own := &out[i]

	switch {
	case own.ServerID == rec.ID:
		// The echo got here first.
		own.Status = own.Status.Advance(chat.StatusSent)
		return out, true

	case own.ServerID != "":
		// The echo matched this entry by content but belonged to a sibling
		// with the same body. Hand that id over before adopting ours.
		taken := *own
		if j := siblingFor(out, taken); j >= 0 {
			adopt(&out[j], chat.Record{ID: taken.ServerID, CreatedAt: taken.CreatedAt})
		} else {
			taken.LocalID = ""
			out = append(out, taken)
		}

	default:
		if j := indexByID(out, rec.ID); j >= 0 && j != i {
			if out[j].LocalID == "" {
				// The echo arrived outside the window and was appended on
				// its own. It is us, so drop the optimistic copy.
				out[j].LocalID = localID
				out[j].SentAt = own.SentAt
				if out[j].Reaction == "" {
					out[j].Reaction = own.Reaction
				}
				out[j].Status = out[j].Status.Advance(chat.StatusSent)
				return slices.Delete(out, i, i+1), true
			}
			// A sibling adopted our echo. It becomes us and we take over
			// its place in the queue, keyed and timed as the sibling.
			out[i].LocalID, out[j].LocalID = out[j].LocalID, out[i].LocalID
			out[i].SentAt, out[j].SentAt = out[j].SentAt, out[i].SentAt
			out[i].ID = out[i].LocalID
			out[i].CreatedAt = out[i].SentAt
			adopt(&out[j], rec)
			sortByTime(out)
			return out, true
		}
	}

	i = indexByLocalID(out, localID)
	adopt(&out[i], rec)
	sortByTime(out)
	return out, true
}

// ApplyReceipt marks the listed messages read and returns how many changed.
func ApplyReceipt(list []chat.Message, rc chat.Receipt) ([]chat.Message, int) {
	ids := make(map[string]struct{}, len(rc.MessageIDs))
	for _, id := range rc.MessageIDs {
		ids[id] = struct{}{}
	}
	var out []chat.Message
	changed := 0
	for i, m := range list {
		if _, ok := ids[m.ServerID]; !ok || m.ServerID == "" {
			continue
		}
		if m.ReadAt != nil && m.Status == chat.StatusRead {
			continue
		}
		if out == nil {
			out = slices.Clone(list)
		}
		at := rc.ReadAt
		out[i].ReadAt = &at
		out[i].Status = out[i].Status.Advance(chat.StatusRead)
		changed++
	}
	if out == nil {
		return list, 0
	}
	return out, changed
}

func adopt(m *chat.Message, rec chat.Record) {
	m.ID = rec.ID
	m.ServerID = rec.ID
	m.CreatedAt = rec.CreatedAt
	if rec.ReadAt != nil {
		m.ReadAt = rec.ReadAt
	}
	m.Status = m.Status.Advance(chat.StatusSent)
}

func matchEcho(list []chat.Message, rec chat.Record, window time.Duration) int {
	best := -1
	for i, m := range list {
		if !m.Own || m.ServerID != "" || !m.Status.Pending() {
			continue
		}
		if m.Type != rec.Type || m.Body != rec.Body {
			continue
		}
		if absDuration(m.CreatedAt.Sub(rec.CreatedAt)) > window {
			continue
		}
		if best < 0 || m.CreatedAt.Before(list[best].CreatedAt) {
			best = i
		}
	}
	return best
}

// siblingFor finds the earliest still-local entry that could own m's echo.
func siblingFor(list []chat.Message, m chat.Message) int {
	best := -1
	for i, o := range list {
		if o.LocalID == m.LocalID || !o.Own || o.ServerID != "" || o.Status != chat.StatusSending {
			continue
		}
		if o.Type != m.Type || o.Body != m.Body {
			continue
		}
		if best < 0 || o.CreatedAt.Before(list[best].CreatedAt) {
			best = i
		}
	}
	return best
}

func indexByID(list []chat.Message, id string) int {
	return slices.IndexFunc(list, func(m chat.Message) bool { return m.ID == id })
}

func indexByLocalID(list []chat.Message, localID string) int {
	if localID == "" {
		return -1
	}
	return slices.IndexFunc(list, func(m chat.Message) bool { return m.LocalID == localID })
}

// insertSorted places m after every entry not newer than it.
func insertSorted(list []chat.Message, m chat.Message) []chat.Message {
	i := len(list)
	for i > 0 && list[i-1].CreatedAt.After(m.CreatedAt) {
		i--
	}
	return slices.Insert(list, i, m)
}

func sortByTime(list []chat.Message) {
	slices.SortStableFunc(list, func(a, b chat.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
