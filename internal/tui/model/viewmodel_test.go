package model

import (
	"context"
	"errors"
	"io"
	"testing"

	"google.golang.org/grpc"

	"github.com/matheus3301/ridechat/internal/chatrpc"
)

type fakeDaemon struct {
	Daemon // unimplemented methods panic

	thread *chatrpc.ThreadResponse
	status *chatrpc.StatusResponse
	events []*chatrpc.Event
}

func (f *fakeDaemon) GetThread(context.Context) (*chatrpc.ThreadResponse, error) {
	if f.thread == nil {
		return nil, errors.New("unavailable")
	}
	return f.thread, nil
}

func (f *fakeDaemon) GetStatus(context.Context) (*chatrpc.StatusResponse, error) {
	return f.status, nil
}

func (f *fakeDaemon) WatchEvents(context.Context, string) (grpc.ServerStreamingClient[chatrpc.Event], error) {
	return &fakeStream{events: f.events}, nil
}

type fakeStream struct {
	grpc.ClientStream
	events []*chatrpc.Event
}

func (s *fakeStream) Recv() (*chatrpc.Event, error) {
	if len(s.events) == 0 {
		return nil, io.EOF
	}
	e := s.events[0]
	s.events = s.events[1:]
	return e, nil
}

func intp(n int) *int    { return &n }
func boolp(b bool) *bool { return &b }

func TestLoad(t *testing.T) {
	d := &fakeDaemon{
		status: &chatrpc.StatusResponse{Profile: "main", UserID: "rider", RideID: "r1", Status: chatrpc.Status{State: "LIVE"}},
		thread: &chatrpc.ThreadResponse{RideID: "r1", Unread: 2, Messages: []chatrpc.Message{{ID: "m1", Body: "hi"}}},
	}
	vm := NewViewModel(d)
	if err := vm.LoadStatus(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := vm.LoadThread(context.Background()); err != nil {
		t.Fatal(err)
	}

	s := vm.Snapshot()
	if s.Profile != "main" || s.UserID != "rider" || s.RideID != "r1" || s.Status.State != "LIVE" {
		t.Errorf("snapshot = %+v", s)
	}
	if s.Unread != 2 || len(s.Messages) != 1 {
		t.Errorf("thread = %d unread, %d messages", s.Unread, len(s.Messages))
	}
}

func TestLoadThreadError(t *testing.T) {
	vm := NewViewModel(&fakeDaemon{})
	if err := vm.LoadThread(context.Background()); err == nil {
		t.Error("LoadThread() expected error")
	}
}

func TestApply(t *testing.T) {
	vm := NewViewModel(&fakeDaemon{})

	vm.Apply(&chatrpc.Event{Kind: "chat.list_changed", Messages: []chatrpc.Message{{ID: "m1"}, {ID: "m2"}}})
	vm.Apply(&chatrpc.Event{Kind: "chat.unread_changed", Unread: intp(3)})
	vm.Apply(&chatrpc.Event{Kind: "chat.typing_changed", Typing: boolp(true)})
	vm.Apply(&chatrpc.Event{Kind: "conn.status_changed", Status: &chatrpc.Status{State: "RECONNECTING"}})

	s := vm.Snapshot()
	if len(s.Messages) != 2 || s.Unread != 3 || !s.Typing || s.Status.State != "RECONNECTING" {
		t.Errorf("snapshot = %+v", s)
	}

	alert := vm.Apply(&chatrpc.Event{Kind: "chat.alert", Alert: &chatrpc.Message{ID: "m3", Body: "outside"}})
	if alert == nil || alert.Body != "outside" {
		t.Errorf("alert = %+v", alert)
	}

	vm.Apply(&chatrpc.Event{Kind: "chat.send_failed", SendFailed: &chatrpc.SendFailed{LocalID: "l1", Error: "timeout"}})
	if msg, level := vm.Flash.Get(); level != FlashErr || msg == "" {
		t.Errorf("flash = %q level %d, want an error", msg, level)
	}
}

func TestApplyNegativeUnread(t *testing.T) {
	vm := NewViewModel(&fakeDaemon{})
	vm.Apply(&chatrpc.Event{Kind: "chat.unread_changed", Unread: intp(-1)})
	if got := vm.Snapshot().Unread; got != 0 {
		t.Errorf("Unread = %d, want 0", got)
	}
}

func TestWatch(t *testing.T) {
	d := &fakeDaemon{events: []*chatrpc.Event{
		{Kind: "chat.unread_changed", Unread: intp(1)},
		{Kind: "chat.alert", Alert: &chatrpc.Message{ID: "m1"}},
	}}
	vm := NewViewModel(d)

	var calls, alerts int
	err := vm.Watch(context.Background(), func(a *Alert) {
		calls++
		if a != nil {
			alerts++
		}
	})
	if !errors.Is(err, io.EOF) {
		t.Errorf("Watch() = %v, want EOF", err)
	}
	if calls != 2 || alerts != 1 {
		t.Errorf("calls = %d alerts = %d, want 2 and 1", calls, alerts)
	}
	if vm.Snapshot().Unread != 1 {
		t.Errorf("Unread = %d, want 1", vm.Snapshot().Unread)
	}
}

func TestSetRideClearsThread(t *testing.T) {
	vm := NewViewModel(&fakeDaemon{})
	vm.SetRide("r1")
	vm.Apply(&chatrpc.Event{Kind: "chat.list_changed", Messages: []chatrpc.Message{{ID: "m1"}}})
	vm.Apply(&chatrpc.Event{Kind: "chat.unread_changed", Unread: intp(1)})

	vm.SetRide("r1")
	if len(vm.Snapshot().Messages) != 1 {
		t.Error("SetRide with the same ride cleared the thread")
	}

	vm.SetRide("r2")
	s := vm.Snapshot()
	if s.RideID != "r2" || len(s.Messages) != 0 || s.Unread != 0 {
		t.Errorf("snapshot after switch = %+v", s)
	}
}

func TestLastFailed(t *testing.T) {
	vm := NewViewModel(&fakeDaemon{})
	if _, ok := vm.LastFailed(); ok {
		t.Error("LastFailed() on empty thread reported a message")
	}
	vm.Apply(&chatrpc.Event{Kind: "chat.list_changed", Messages: []chatrpc.Message{
		{LocalID: "l1", Own: true, Status: "failed"},
		{LocalID: "l2", Own: true, Status: "failed"},
		{LocalID: "l3", Own: true, Status: "sent"},
	}})
	if id, ok := vm.LastFailed(); !ok || id != "l2" {
		t.Errorf("LastFailed() = %q, %v, want l2", id, ok)
	}
}
