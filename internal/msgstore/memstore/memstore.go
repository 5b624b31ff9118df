// Package memstore is an in-memory msgstore.Backend for tests. Live events
// are delivered synchronously on the goroutine that caused them.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/matheus3301/ridechat/internal/chat"
	"github.com/matheus3301/ridechat/internal/msgstore"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("memstore: closed")

// Store holds every ride's messages in memory.
type Store struct {
	mu        sync.Mutex
	now       func() time.Time
	seq       int
	messages  map[string][]chat.Record
	listeners map[int]*listener
	nextL     int
	closed    bool

	// Failure injection. A non-nil error is returned by the matching call.
	InsertErr   error
	MarkReadErr error
	HistoryErr  error
	ListenErr   error
	TypingErr   error

	// AfterInsert, when set, runs after an insert was broadcast and before
	// Insert returns, so tests can order the echo ahead of the append result.
	AfterInsert func(chat.Record)

	typing []string
}

type listener struct {
	rideID  string
	deliver func(msgstore.Envelope)
	fail    func(error)
}

// New returns an empty store stamping records with now.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now:       now,
		messages:  make(map[string][]chat.Record),
		listeners: make(map[int]*listener),
	}
}

func (s *Store) Insert(_ context.Context, m msgstore.NewMessage) (chat.Record, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return chat.Record{}, ErrClosed
	}
	if s.InsertErr != nil {
		err := s.InsertErr
		s.mu.Unlock()
		return chat.Record{}, err
	}
	s.seq++
	rec := chat.Record{
		ID:        fmt.Sprintf("m%d", s.seq),
		RideID:    m.RideID,
		SenderID:  m.SenderID,
		Type:      m.Type,
		Body:      m.Body,
		CreatedAt: s.now(),
	}
	s.messages[m.RideID] = append(s.messages[m.RideID], rec)
	hook := s.AfterInsert
	s.mu.Unlock()

	r := rec
	s.broadcast(m.RideID, msgstore.Envelope{Kind: msgstore.KindMessage, RideID: m.RideID, Message: &r})
	if hook != nil {
		hook(rec)
	}
	return rec, nil
}

// Seed stores a record as if another client had written it, without
// broadcasting it.
func (s *Store) Seed(r chat.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[r.RideID] = append(s.messages[r.RideID], r)
}

// Deliver stores r and broadcasts it to the ride's listeners.
func (s *Store) Deliver(r chat.Record) {
	s.Seed(r)
	s.broadcast(r.RideID, msgstore.Envelope{Kind: msgstore.KindMessage, RideID: r.RideID, Message: &r})
}

// Push broadcasts env without storing anything, for duplicate or malformed events.
func (s *Store) Push(env msgstore.Envelope) {
	s.broadcast(env.RideID, env)
}

func (s *Store) MarkRead(_ context.Context, rideID, readerID string) ([]string, error) {
	s.mu.Lock()
	if s.MarkReadErr != nil {
		err := s.MarkReadErr
		s.mu.Unlock()
		return nil, err
	}
	now := s.now()
	var ids []string
	rows := s.messages[rideID]
	for i := range rows {
		if rows[i].SenderID != readerID && rows[i].ReadAt == nil {
			t := now
			rows[i].ReadAt = &t
			ids = append(ids, rows[i].ID)
		}
	}
	s.mu.Unlock()

	if len(ids) > 0 {
		s.broadcast(rideID, msgstore.Envelope{
			Kind:   msgstore.KindRead,
			RideID: rideID,
			Read:   &chat.Receipt{RideID: rideID, ReaderID: readerID, MessageIDs: ids, ReadAt: now},
		})
	}
	return ids, nil
}

func (s *Store) History(_ context.Context, rideID string) ([]chat.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.HistoryErr != nil {
		return nil, s.HistoryErr
	}
	out := make([]chat.Record, len(s.messages[rideID]))
	copy(out, s.messages[rideID])
	return out, nil
}

func (s *Store) Listen(_ context.Context, rideID string, deliver func(msgstore.Envelope), fail func(error)) (io.Closer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListenErr != nil {
		return nil, s.ListenErr
	}
	id := s.nextL
	s.nextL++
	s.listeners[id] = &listener{rideID: rideID, deliver: deliver, fail: fail}
	return closerFunc(func() error {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
		return nil
	}), nil
}

func (s *Store) Typing(_ context.Context, rideID, senderID string) error {
	s.mu.Lock()
	if s.TypingErr != nil {
		err := s.TypingErr
		s.mu.Unlock()
		return err
	}
	s.typing = append(s.typing, senderID)
	s.mu.Unlock()
	s.broadcast(rideID, msgstore.Envelope{Kind: msgstore.KindTyping, RideID: rideID, SenderID: senderID})
	return nil
}

// TypingBroadcasts returns the senders of every typing broadcast so far.
func (s *Store) TypingBroadcasts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.typing...)
}

// Drop kills every listener on rideID with err, as a lost connection would.
func (s *Store) Drop(rideID string, err error) {
	s.mu.Lock()
	var dead []*listener
	for id, l := range s.listeners {
		if l.rideID == rideID {
			dead = append(dead, l)
			delete(s.listeners, id)
		}
	}
	s.mu.Unlock()
	for _, l := range dead {
		l.fail(err)
	}
}

// Listeners returns how many live listeners are open on rideID.
func (s *Store) Listeners(rideID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.listeners {
		if l.rideID == rideID {
			n++
		}
	}
	return n
}

// SetErr sets a failure injection field under the store lock.
func (s *Store) SetErr(field *error, err error) {
	s.mu.Lock()
	*field = err
	s.mu.Unlock()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) broadcast(rideID string, env msgstore.Envelope) {
	s.mu.Lock()
	var targets []*listener
	for _, l := range s.listeners {
		if l.rideID == rideID {
			targets = append(targets, l)
		}
	}
	s.mu.Unlock()
	for _, l := range targets {
		l.deliver(env)
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
