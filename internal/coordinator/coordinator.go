// Package coordinator turns the engine's thread into UI signals: chat
// visibility, the unread badge, read-receipt flushes and the counterparty
// typing indicator.
package coordinator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/ridechat/internal/chat"
	"github.com/matheus3301/ridechat/internal/clock"
	"github.com/matheus3301/ridechat/internal/metrics"
)

// DefaultTypingTimeout is how long the typing indicator outlives the last signal.
const DefaultTypingTimeout = 1500 * time.Millisecond

const markReadTimeout = 10 * time.Second

// ReadMarker flushes read receipts for a ride.
type ReadMarker interface {
	MarkRead(ctx context.Context, rideID string) error
}

// Observer is the UI boundary. Calls are made without any coordinator
// lock held.
type Observer interface {
	ListChanged([]chat.Message)
	UnreadChanged(int)
	TypingChanged(bool)
	// Alert is the haptic or sound cue for a message arriving while closed.
	Alert(chat.Message)
}

// Coordinator tracks chat visibility and derives unread and typing state.
type Coordinator struct {
	marker   ReadMarker
	observer Observer
	clock    clock.Clock
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger

	mu          sync.Mutex
	rideID      string
	open        bool
	unread      int
	typing      bool
	typingSeq   uint64
	typingTimer *clock.Timer

	inflight sync.WaitGroup
}

// New creates a coordinator. A nil clock uses the wall clock and a
// non-positive timeout uses DefaultTypingTimeout.
func New(marker ReadMarker, observer Observer, clk clock.Clock, typingTimeout time.Duration, m *metrics.Metrics, logger *zap.Logger) *Coordinator {
	if clk == nil {
		clk = clock.Real()
	}
	if typingTimeout <= 0 {
		typingTimeout = DefaultTypingTimeout
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		marker:   marker,
		observer: observer,
		clock:    clk,
		timeout:  typingTimeout,
		metrics:  m,
		logger:   logger,
	}
}

// State is a point-in-time view of the coordinator.
type State struct {
	RideID string
	Open   bool
	Unread int
	Typing bool
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{RideID: c.rideID, Open: c.open, Unread: c.unread, Typing: c.typing}
}

// Open marks the chat visible, clears the unread count and flushes read
// receipts in the background.
func (c *Coordinator) Open() {
	c.mu.Lock()
	c.open = true
	c.unread = 0
	ride := c.rideID
	c.mu.Unlock()

	c.metrics.SetUnread(0)
	c.observer.UnreadChanged(0)
	c.markRead(ride)
}

// Close marks the chat hidden. Message state is untouched.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
}

// Reset prepares for a new active ride ("" when none). Visibility is kept.
func (c *Coordinator) Reset(rideID string) {
	c.mu.Lock()
	c.rideID = rideID
	hadUnread := c.unread != 0
	c.unread = 0
	wasTyping := c.typing
	c.typing = false
	c.typingSeq++
	t := c.typingTimer
	c.typingTimer = nil
	c.mu.Unlock()

	if t != nil {
		t.Stop()
	}
	c.metrics.SetUnread(0)
	if hadUnread {
		c.observer.UnreadChanged(0)
	}
	if wasTyping {
		c.observer.TypingChanged(false)
	}
}

// HistoryLoaded acknowledges unread history when the chat is already open,
// as happens when a ride is activated while visible.
func (c *Coordinator) HistoryLoaded(rideID string) {
	c.mu.Lock()
	ack := c.open && rideID != "" && rideID == c.rideID
	c.mu.Unlock()
	if ack {
		c.markRead(rideID)
	}
}

// ListChanged forwards a new thread snapshot to the observer.
func (c *Coordinator) ListChanged(list []chat.Message) {
	c.observer.ListChanged(list)
}

// CounterpartyMessage handles a newly arrived counterparty message. An open
// chat acknowledges it right away; a closed one counts it and alerts.
func (c *Coordinator) CounterpartyMessage(m chat.Message) {
	c.mu.Lock()
	if m.RideID != c.rideID {
		c.mu.Unlock()
		return
	}
	if c.open {
		ride := c.rideID
		c.mu.Unlock()
		c.markRead(ride)
		return
	}
	c.unread++
	n := c.unread
	c.mu.Unlock()

	c.metrics.SetUnread(n)
	c.observer.UnreadChanged(n)
	c.observer.Alert(m)
}

// Typing records a counterparty typing signal. The indicator stays on until
// no signal has arrived for the typing timeout.
func (c *Coordinator) Typing() {
	c.mu.Lock()
	if c.rideID == "" {
		c.mu.Unlock()
		return
	}
	was := c.typing
	c.typing = true
	c.typingSeq++
	seq := c.typingSeq
	old := c.typingTimer
	c.typingTimer = nil
	c.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	t := c.clock.AfterFunc(c.timeout, func() { c.typingExpired(seq) })

	c.mu.Lock()
	if c.typingSeq == seq {
		c.typingTimer = t
	}
	c.mu.Unlock()

	if !was {
		c.observer.TypingChanged(true)
	}
}

func (c *Coordinator) typingExpired(seq uint64) {
	c.mu.Lock()
	if seq != c.typingSeq || !c.typing {
		c.mu.Unlock()
		return
	}
	c.typing = false
	c.typingTimer = nil
	c.mu.Unlock()

	c.observer.TypingChanged(false)
}

// Wait blocks until background read-receipt flushes have finished.
func (c *Coordinator) Wait() {
	c.inflight.Wait()
}

func (c *Coordinator) markRead(rideID string) {
	if rideID == "" || c.marker == nil {
		return
	}
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), markReadTimeout)
		defer cancel()
		if err := c.marker.MarkRead(ctx, rideID); err != nil {
			c.metrics.MarkRead("failed")
			c.logger.Warn("mark read failed", zap.String("ride", rideID), zap.Error(err))
			return
		}
		c.metrics.MarkRead("ok")
	}()
}

type nopObserver struct{}

func (nopObserver) ListChanged([]chat.Message) {}
func (nopObserver) UnreadChanged(int)          {}
func (nopObserver) TypingChanged(bool)         {}
func (nopObserver) Alert(chat.Message)         {}
