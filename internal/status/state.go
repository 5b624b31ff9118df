package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/ridechat/internal/bus"
)

// State is the condition of the live link to the message store.
type State string

const (
	Idle         State = "IDLE"
	Loading      State = "LOADING"
	Live         State = "LIVE"
	Reconnecting State = "RECONNECTING"
	AuthRequired State = "AUTH_REQUIRED"
	Error        State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Idle:         {Loading, AuthRequired, Error},
	Loading:      {Live, Reconnecting, AuthRequired, Idle, Error},
	Live:         {Reconnecting, Loading, AuthRequired, Idle, Error},
	Reconnecting: {Live, Loading, AuthRequired, Idle, Error},
	AuthRequired: {Loading, Idle},
	Error:        {Loading, Idle},
}

// Machine tracks and enforces link state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	reason  string
	since   time.Time
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Idle state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Idle,
		since:   time.Now(),
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Snapshot returns the current state with the reason given for entering it.
func (m *Machine) Snapshot() StatusChange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return StatusChange{To: m.current, Reason: m.reason, At: m.since}
}

// Transition moves to a new state. Moving to the current state is a no-op.
func (m *Machine) Transition(to State, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if to == m.current {
		return nil
	}
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	change := StatusChange{From: m.current, To: to, Reason: reason, At: time.Now()}
	m.current = to
	m.reason = reason
	m.since = change.At
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindStatusChanged,
			Timestamp: change.At,
			Payload:   change,
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From   State
	To     State
	Reason string
	At     time.Time
}
