package reconcile

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/matheus3301/ridechat/internal/chat"
	"github.com/matheus3301/ridechat/internal/outbox"
	"github.com/matheus3301/ridechat/internal/status"
)

// Send shows text as an optimistic message and queues it. It returns the
// local id of the new entry.
func (e *Engine) Send(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty message", ErrInvalidMessage)
	}
	return e.send(chat.TypeText, text)
}

// SendVoice stores the recording, then sends its storage path as a voice message.
func (e *Engine) SendVoice(ctx context.Context, audio io.Reader) (string, error) {
	if e.cfg.Voice == nil {
		return "", ErrNoVoiceStore
	}
	self, ok := e.cfg.Store.CurrentUserID()
	if !ok {
		return "", chat.Errorf(chat.ErrAuth, "send voice", "", "not signed in")
	}
	ride := e.RideID()
	if ride == "" {
		return "", ErrNoActiveRide
	}
	path, err := e.cfg.Voice.Put(ctx, ride, self, audio)
	if err != nil {
		return "", chat.Wrap(chat.ErrWrite, "upload voice", ride, err)
	}
	return e.send(chat.TypeVoice, path)
}

func (e *Engine) send(t chat.MessageType, body string) (string, error) {
	if len(body) > chat.MaxBodyLen {
		return "", fmt.Errorf("%w: message is %d bytes, limit is %d", ErrInvalidMessage, len(body), chat.MaxBodyLen)
	}
	self, ok := e.cfg.Store.CurrentUserID()
	if !ok {
		return "", chat.Errorf(chat.ErrAuth, "send", "", "not signed in")
	}

	e.mu.Lock()
	if e.rideID == "" {
		e.mu.Unlock()
		return "", ErrNoActiveRide
	}
	m := chat.NewOptimistic(e.rideID, self, t, body, e.cfg.Clock.Now())
	e.list = insertSorted(slices.Clone(e.list), m)
	e.pending[m.LocalID] = struct{}{}
	req := outbox.Request{RideID: m.RideID, LocalID: m.LocalID, Type: t, Body: body, Generation: e.gen}
	e.mu.Unlock()

	e.publish()
	e.enqueue(req)
	return m.LocalID, nil
}

func (e *Engine) enqueue(req outbox.Request) {
	if err := e.cfg.Outbox.Enqueue(req); err != nil {
		e.Failed(req, err)
	}
}

// Sent records a successful append. The entry is re-keyed to the server
// id and advances to delivered after the delivered delay.
func (e *Engine) Sent(req outbox.Request, rec chat.Record) {
	e.mu.Lock()
	if !e.awaitingLocked(req) {
		e.mu.Unlock()
		e.logger.Debug("ignoring send result", zap.String("local_id", req.LocalID))
		return
	}
	delete(e.pending, req.LocalID)
	list, ok := Confirm(e.list, req.LocalID, rec)
	if !ok {
		e.mu.Unlock()
		return
	}
	e.list = list
	gen := e.gen
	e.mu.Unlock()

	e.publish()
	e.scheduleDelivered(gen, rec.ID)
}

func (e *Engine) scheduleDelivered(gen uint64, id string) {
	e.mu.Lock()
	e.timerID++
	tid := e.timerID
	e.mu.Unlock()

	t := e.cfg.Clock.AfterFunc(e.cfg.DeliveredDelay, func() { e.delivered(gen, tid, id) })

	e.mu.Lock()
	if gen == e.gen {
		e.timers[tid] = t
	} else {
		t.Stop()
	}
	e.mu.Unlock()
}

func (e *Engine) delivered(gen, tid uint64, id string) {
	e.mu.Lock()
	delete(e.timers, tid)
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	i := indexByID(e.list, id)
	if i < 0 || e.list[i].Status.Rank() >= chat.StatusDelivered.Rank() {
		e.mu.Unlock()
		return
	}
	e.list = slices.Clone(e.list)
	e.list[i].Status = e.list[i].Status.Advance(chat.StatusDelivered)
	e.mu.Unlock()

	e.publish()
}

// Failed records a failed append. The entry turns failed, or disappears
// when failed sends are dropped.
func (e *Engine) Failed(req outbox.Request, err error) {
	if chat.IsAuth(err) {
		e.setStatus(status.AuthRequired, err.Error())
	}

	e.mu.Lock()
	if !e.awaitingLocked(req) {
		e.mu.Unlock()
		return
	}
	delete(e.pending, req.LocalID)
	i := indexByLocalID(e.list, req.LocalID)
	if i < 0 || e.list[i].Status != chat.StatusSending {
		// Missing, or its echo proved the write landed.
		e.mu.Unlock()
		return
	}
	if e.cfg.DropFailedSends {
		e.list = slices.Delete(slices.Clone(e.list), i, i+1)
	} else {
		e.list = slices.Clone(e.list)
		e.list[i].Status = chat.StatusFailed
	}
	e.mu.Unlock()

	e.logger.Warn("send failed", zap.String("ride", req.RideID), zap.String("local_id", req.LocalID), zap.Error(err))
	e.publish()
}

// awaitingLocked reports whether req is an in-flight send of the active ride.
func (e *Engine) awaitingLocked(req outbox.Request) bool {
	if req.Generation != e.gen {
		return false
	}
	_, ok := e.pending[req.LocalID]
	return ok
}

// Retry re-queues a failed message with a fresh timestamp.
func (e *Engine) Retry(localID string) error {
	e.mu.Lock()
	if e.rideID == "" {
		e.mu.Unlock()
		return ErrNoActiveRide
	}
	i := indexByLocalID(e.list, localID)
	if i < 0 {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, localID)
	}
	if e.list[i].Status != chat.StatusFailed {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrNotFailed, localID, e.list[i].Status)
	}
	list := slices.Clone(e.list)
	m := &list[i]
	m.Status = m.Status.Advance(chat.StatusSending)
	m.CreatedAt = e.cfg.Clock.Now()
	m.SentAt = m.CreatedAt
	req := outbox.Request{RideID: m.RideID, LocalID: m.LocalID, Type: m.Type, Body: m.Body, Generation: e.gen}
	sortByTime(list)
	e.list = list
	e.pending[localID] = struct{}{}
	e.mu.Unlock()

	e.publish()
	e.enqueue(req)
	return nil
}

// React sets the client-only reaction on a message by server or local id.
// An empty reaction clears it.
func (e *Engine) React(id, reaction string) error {
	e.mu.Lock()
	i := indexByID(e.list, id)
	if i < 0 {
		i = indexByLocalID(e.list, id)
	}
	if i < 0 {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.list = slices.Clone(e.list)
	e.list[i].Reaction = reaction
	e.mu.Unlock()

	e.publish()
	return nil
}
