package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/ridechat/internal/bus"
	"github.com/matheus3301/ridechat/internal/chat"
)

// mockAppender records calls and returns configurable results.
type mockAppender struct {
	mu    sync.Mutex
	calls []Request
	err   error
	block chan struct{}
}

func (m *mockAppender) Append(ctx context.Context, rideID string, t chat.MessageType, body string) (chat.Record, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Request{RideID: rideID, Type: t, Body: body})
	n, err, block := len(m.calls), m.err, m.block
	m.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return chat.Record{}, ctx.Err()
		}
	}
	if err != nil {
		return chat.Record{}, err
	}
	return chat.Record{ID: fmt.Sprintf("srv-%d", n), RideID: rideID, SenderID: "me", Type: t, Body: body, CreatedAt: time.Now()}, nil
}

type result struct {
	req Request
	rec chat.Record
	err error
}

type reporter struct {
	ch chan result
}

func newReporter() *reporter { return &reporter{ch: make(chan result, 16)} }

func (r *reporter) Sent(req Request, rec chat.Record) { r.ch <- result{req: req, rec: rec} }
func (r *reporter) Failed(req Request, err error)     { r.ch <- result{req: req, err: err} }

func (r *reporter) next(t *testing.T) result {
	t.Helper()
	select {
	case res := <-r.ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for send result")
	}
	return result{}
}

func TestSenderReportsSent(t *testing.T) {
	mock := &mockAppender{}
	logger, _ := zap.NewDevelopment()
	s := NewSender(mock, bus.New(), nil, logger)
	rep := newReporter()

	s.Start(context.Background(), rep)
	defer s.Stop()

	if err := s.Enqueue(Request{RideID: "r1", LocalID: "local-1", Type: chat.TypeText, Body: "hello"}); err != nil {
		t.Fatal(err)
	}
	res := rep.next(t)
	if res.err != nil {
		t.Fatalf("Failed(%v), want Sent", res.err)
	}
	if res.req.LocalID != "local-1" || res.rec.ID != "srv-1" {
		t.Errorf("result = %+v", res)
	}
}

func TestSenderPreservesOrder(t *testing.T) {
	mock := &mockAppender{}
	s := NewSender(mock, nil, nil, nil)
	rep := newReporter()

	// Queued before Start: sent once the worker runs.
	for i := range 5 {
		if err := s.Enqueue(Request{RideID: "r1", LocalID: fmt.Sprint(i), Type: chat.TypeText, Body: fmt.Sprint(i)}); err != nil {
			t.Fatal(err)
		}
	}
	s.Start(context.Background(), rep)
	defer s.Stop()

	for i := range 5 {
		res := rep.next(t)
		if res.req.LocalID != fmt.Sprint(i) {
			t.Fatalf("result %d for local id %s", i, res.req.LocalID)
		}
	}
}

func TestSenderHandlesFailure(t *testing.T) {
	b := bus.New()
	mock := &mockAppender{err: errors.New("network error")}
	s := NewSender(mock, b, nil, nil)
	rep := newReporter()

	ch, unsub := b.Subscribe(string(bus.KindSendFailed), 10)
	defer unsub()

	s.Start(context.Background(), rep)
	defer s.Stop()

	if err := s.Enqueue(Request{RideID: "r1", LocalID: "local-1", Type: chat.TypeText, Body: "hello"}); err != nil {
		t.Fatal(err)
	}
	if res := rep.next(t); res.err == nil {
		t.Fatal("Sent reported for a failing append")
	}

	select {
	case evt := <-ch:
		payload, ok := evt.Payload.(SendFailed)
		if !ok || payload.LocalID != "local-1" {
			t.Errorf("payload = %#v", evt.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for send_failed event")
	}
}

func TestStopFailsQueuedRequests(t *testing.T) {
	mock := &mockAppender{block: make(chan struct{})}
	s := NewSender(mock, nil, nil, nil)
	rep := newReporter()
	s.Start(context.Background(), rep)

	for i := range 3 {
		if err := s.Enqueue(Request{RideID: "r1", LocalID: fmt.Sprint(i), Type: chat.TypeText, Body: "x"}); err != nil {
			t.Fatal(err)
		}
	}
	// Wait until the first request is in flight.
	deadline := time.Now().Add(2 * time.Second)
	for {
		mock.mu.Lock()
		n := len(mock.calls)
		mock.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first request never reached the appender")
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.Stop()
	close(rep.ch)
	failed := 0
	for res := range rep.ch {
		if res.err == nil {
			t.Errorf("request %s reported sent after stop", res.req.LocalID)
		}
		failed++
	}
	if failed != 3 {
		t.Errorf("failed reports = %d, want 3", failed)
	}
}

func TestEnqueueFull(t *testing.T) {
	s := NewSender(&mockAppender{}, nil, nil, nil)
	for range queueSize {
		if err := s.Enqueue(Request{}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Enqueue(Request{}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Enqueue on full queue = %v, want ErrQueueFull", err)
	}
}
