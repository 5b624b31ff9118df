package model

import (
	"context"
	"slices"
	"sync"

	"google.golang.org/grpc"

	"github.com/matheus3301/ridechat/internal/chatrpc"
)

// Daemon is the part of the daemon API the terminal client uses.
// *chatrpc.Client implements it.
type Daemon interface {
	ActivateRide(ctx context.Context, rideID string) error
	DeactivateRide(ctx context.Context) error
	OpenChat(ctx context.Context) error
	CloseChat(ctx context.Context) error
	SendText(ctx context.Context, text string) (string, error)
	SendVoice(ctx context.Context, audio []byte) (string, error)
	Retry(ctx context.Context, localID string) error
	React(ctx context.Context, id, reaction string) error
	Typing(ctx context.Context) error
	GetThread(ctx context.Context) (*chatrpc.ThreadResponse, error)
	GetStatus(ctx context.Context) (*chatrpc.StatusResponse, error)
	WatchEvents(ctx context.Context, namespace string) (grpc.ServerStreamingClient[chatrpc.Event], error)
}

// Alert is raised for each counterparty message that arrives while the
// chat is not visible.
type Alert = chatrpc.Message

// ViewModel caches daemon state fed by the event stream.
type ViewModel struct {
	mu sync.RWMutex

	daemon   Daemon
	profile  string
	userID   string
	rideID   string
	status   chatrpc.Status
	messages []chatrpc.Message
	unread   int
	typing   bool
	Flash    Flash
}

// NewViewModel creates a new view model connected to the daemon.
func NewViewModel(d Daemon) *ViewModel {
	return &ViewModel{daemon: d}
}

// Daemon returns the daemon client the model reads from.
func (vm *ViewModel) Daemon() Daemon { return vm.daemon }

// LoadStatus fetches the daemon and link status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	resp, err := vm.daemon.GetStatus(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.profile = resp.Profile
	vm.userID = resp.UserID
	vm.rideID = resp.RideID
	vm.status = resp.Status
	vm.mu.Unlock()
	return nil
}

// LoadThread replaces the cached thread with the daemon's.
func (vm *ViewModel) LoadThread(ctx context.Context) error {
	resp, err := vm.daemon.GetThread(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.rideID = resp.RideID
	vm.messages = resp.Messages
	vm.unread = resp.Unread
	vm.typing = resp.Typing
	vm.mu.Unlock()
	return nil
}

// Apply folds one daemon event into the cache. It returns the alert the
// event carries, if any.
func (vm *ViewModel) Apply(evt *chatrpc.Event) *Alert {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	switch {
	case evt.Status != nil:
		vm.status = *evt.Status
	case evt.Unread != nil:
		vm.unread = max(*evt.Unread, 0)
	case evt.Typing != nil:
		vm.typing = *evt.Typing
	case evt.Alert != nil:
		a := *evt.Alert
		return &a
	case evt.SendFailed != nil:
		vm.Flash.Err("send failed: " + evt.SendFailed.Error)
	case evt.Kind == "chat.list_changed":
		vm.messages = evt.Messages
	}
	return nil
}

// Watch streams daemon events into the model until ctx ends or the stream
// breaks. changed runs after every applied event.
func (vm *ViewModel) Watch(ctx context.Context, changed func(alert *Alert)) error {
	stream, err := vm.daemon.WatchEvents(ctx, "")
	if err != nil {
		return err
	}
	for {
		evt, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		alert := vm.Apply(evt)
		if changed != nil {
			changed(alert)
		}
	}
}

// SetRide records the ride the daemon was switched to and clears the
// previous thread.
func (vm *ViewModel) SetRide(rideID string) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.rideID == rideID {
		return
	}
	vm.rideID = rideID
	vm.messages = nil
	vm.unread = 0
	vm.typing = false
}

// Snapshot is a consistent copy of the cached state.
type Snapshot struct {
	Profile  string
	UserID   string
	RideID   string
	Status   chatrpc.Status
	Messages []chatrpc.Message
	Unread   int
	Typing   bool
}

// Snapshot returns a copy of the cached state.
func (vm *ViewModel) Snapshot() Snapshot {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return Snapshot{
		Profile:  vm.profile,
		UserID:   vm.userID,
		RideID:   vm.rideID,
		Status:   vm.status,
		Messages: slices.Clone(vm.messages),
		Unread:   vm.unread,
		Typing:   vm.typing,
	}
}

// LastFailed returns the local id of the newest failed own message.
func (vm *ViewModel) LastFailed() (string, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for i := len(vm.messages) - 1; i >= 0; i-- {
		m := vm.messages[i]
		if m.Own && m.Status == "failed" && m.LocalID != "" {
			return m.LocalID, true
		}
	}
	return "", false
}
