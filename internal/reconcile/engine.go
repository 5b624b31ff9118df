// Package reconcile owns the active ride's message thread. It merges store
// history, live events and optimistic local sends into one duplicate-free,
// status-annotated list.
package reconcile

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/ridechat/internal/chat"
	"github.com/matheus3301/ridechat/internal/clock"
	"github.com/matheus3301/ridechat/internal/metrics"
	"github.com/matheus3301/ridechat/internal/msgstore"
	"github.com/matheus3301/ridechat/internal/outbox"
	"github.com/matheus3301/ridechat/internal/status"
	"github.com/matheus3301/ridechat/internal/voice"
)

const (
	DefaultDeliveredDelay = time.Second
	DefaultResubscribeMin = time.Second
	DefaultResubscribeMax = 30 * time.Second

	resubscribeTimeout = 10 * time.Second
)

var (
	ErrNoActiveRide = errors.New("no active ride")
	ErrNotFound     = errors.New("message not found")
	ErrNotFailed    = errors.New("message has not failed")
	ErrNoVoiceStore = errors.New("voice messages are not configured")

	ErrInvalidMessage = errors.New("invalid message")
)

// Store is the part of the message store client the engine uses.
type Store interface {
	CurrentUserID() (string, bool)
	History(ctx context.Context, rideID string) ([]chat.Record, error)
	Subscribe(ctx context.Context, rideID string, h msgstore.Handler) (*msgstore.Subscription, error)
	BroadcastTyping(sub *msgstore.Subscription)
}

// Queue accepts optimistic messages for sending.
type Queue interface {
	Enqueue(req outbox.Request) error
}

// Notifier receives thread changes and live signals. It is called without
// the engine lock held.
type Notifier interface {
	ListChanged([]chat.Message)
	CounterpartyMessage(chat.Message)
	Typing()
	Reset(rideID string)
	// HistoryLoaded reports that fetched history held unread counterparty
	// messages for rideID.
	HistoryLoaded(rideID string)
}

// Config carries the engine's collaborators and tunables. Zero durations
// take the package defaults.
type Config struct {
	Store    Store
	Outbox   Queue
	Notifier Notifier
	Voice    voice.Store
	Status   *status.Machine
	Clock    clock.Clock
	Metrics  *metrics.Metrics

	EchoWindow      time.Duration
	DeliveredDelay  time.Duration
	DropFailedSends bool
	ResubscribeMin  time.Duration
	ResubscribeMax  time.Duration
}

// Engine holds at most one ride's thread at a time.
type Engine struct {
	cfg    Config
	logger *zap.Logger

	// publishMu orders list notifications so observers never see an older
	// snapshot after a newer one.
	publishMu sync.Mutex

	mu      sync.Mutex
	rideID  string
	self    string
	gen     uint64
	sub     *msgstore.Subscription
	list    []chat.Message
	pending map[string]struct{}
	timers  map[uint64]*clock.Timer
	timerID uint64
	backoff time.Duration
	retry   *clock.Timer
}

// NewEngine creates an engine with no active ride.
func NewEngine(cfg Config, logger *zap.Logger) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Status == nil {
		cfg.Status = status.NewMachine(nil)
	}
	if cfg.Notifier == nil {
		cfg.Notifier = nopNotifier{}
	}
	if cfg.EchoWindow <= 0 {
		cfg.EchoWindow = DefaultEchoWindow
	}
	if cfg.DeliveredDelay <= 0 {
		cfg.DeliveredDelay = DefaultDeliveredDelay
	}
	if cfg.ResubscribeMin <= 0 {
		cfg.ResubscribeMin = DefaultResubscribeMin
	}
	if cfg.ResubscribeMax < cfg.ResubscribeMin {
		cfg.ResubscribeMax = max(DefaultResubscribeMax, cfg.ResubscribeMin)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:     cfg,
		logger:  logger,
		pending: make(map[string]struct{}),
		timers:  make(map[uint64]*clock.Timer),
	}
}

// RideID returns the active ride, or "" when none.
func (e *Engine) RideID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rideID
}

// Snapshot returns a copy of the thread.
func (e *Engine) Snapshot() []chat.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.list)
}

// Activate makes rideID the active ride. Activating the active ride again
// is a no-op. The live channel is opened before history is fetched so no
// message written in between is missed; duplicates are merged away.
func (e *Engine) Activate(ctx context.Context, rideID string) error {
	if rideID == "" {
		return errors.New("ride id is required")
	}

	e.mu.Lock()
	if e.rideID == rideID {
		e.mu.Unlock()
		return nil
	}
	old := e.resetLocked()
	e.rideID = rideID
	e.gen++
	gen := e.gen
	e.mu.Unlock()

	closeSub(old, e.logger)
	e.cfg.Notifier.Reset(rideID)
	e.setStatus(status.Loading, "activating "+rideID)
	e.publish()

	self, ok := e.cfg.Store.CurrentUserID()
	if !ok {
		err := chat.Errorf(chat.ErrAuth, "activate", rideID, "not signed in")
		e.abandon(gen, err)
		return err
	}
	e.mu.Lock()
	if gen == e.gen {
		e.self = self
	}
	e.mu.Unlock()

	sub, err := e.cfg.Store.Subscribe(ctx, rideID, liveHandler{e: e, gen: gen})
	if err != nil {
		if chat.IsAuth(err) {
			e.abandon(gen, err)
			return err
		}
		e.logger.Warn("subscribe failed, will retry", zap.String("ride", rideID), zap.Error(err))
		e.setStatus(status.Reconnecting, err.Error())
		e.scheduleResubscribe(gen)
	} else if !e.attach(gen, sub) {
		return nil
	}

	if err := e.loadHistory(ctx, gen, rideID, false); err != nil {
		return err
	}
	if sub != nil {
		e.setStatus(status.Live, "subscribed to "+rideID)
	}
	e.logger.Info("ride activated", zap.String("ride", rideID), zap.Int("messages", len(e.Snapshot())))
	return nil
}

// Deactivate closes the live channel and discards all thread state.
func (e *Engine) Deactivate() {
	e.mu.Lock()
	ride := e.rideID
	old := e.resetLocked()
	e.rideID = ""
	e.gen++
	e.mu.Unlock()

	closeSub(old, e.logger)
	e.cfg.Notifier.Reset("")
	e.setStatus(status.Idle, "no active ride")
	e.publish()
	if ride != "" {
		e.logger.Info("ride deactivated", zap.String("ride", ride))
	}
}

// abandon drops the ride after an auth failure so a later Activate retries.
func (e *Engine) abandon(gen uint64, err error) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	old := e.resetLocked()
	e.rideID = ""
	e.gen++
	e.mu.Unlock()

	closeSub(old, e.logger)
	e.cfg.Notifier.Reset("")
	e.setStatus(status.AuthRequired, err.Error())
	e.publish()
}

// resetLocked clears ride state and returns the subscription to close.
func (e *Engine) resetLocked() *msgstore.Subscription {
	old := e.sub
	e.sub = nil
	e.self = ""
	e.list = nil
	clear(e.pending)
	for id, t := range e.timers {
		t.Stop()
		delete(e.timers, id)
	}
	if e.retry != nil {
		e.retry.Stop()
		e.retry = nil
	}
	e.backoff = 0
	return old
}

// attach stores sub as the live channel unless the ride changed meanwhile.
func (e *Engine) attach(gen uint64, sub *msgstore.Subscription) bool {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		closeSub(sub, e.logger)
		return false
	}
	e.sub = sub
	e.backoff = 0
	e.mu.Unlock()
	return true
}

// loadHistory merges the ride's history. A read failure degrades to what
// the live channel delivers. After a reconnect, counterparty messages
// missed while offline are announced as new.
func (e *Engine) loadHistory(ctx context.Context, gen uint64, rideID string, announce bool) error {
	records, err := e.cfg.Store.History(ctx, rideID)
	if err != nil {
		if chat.IsAuth(err) {
			e.abandon(gen, err)
			return err
		}
		e.logger.Warn("history unavailable, continuing with live messages only",
			zap.String("ride", rideID), zap.Error(err))
		return nil
	}

	var (
		fresh  []chat.Message
		unread bool
	)
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return nil
	}
	for _, rec := range records {
		list, outcome, m := Merge(e.list, rec, e.self, e.cfg.EchoWindow)
		e.list = list
		if rec.SenderID != e.self && rec.ReadAt == nil {
			unread = true
		}
		if outcome == OutcomeAppended && !m.Own && announce {
			fresh = append(fresh, m)
		}
	}
	e.mu.Unlock()

	e.publish()
	for _, m := range fresh {
		e.cfg.Notifier.CounterpartyMessage(m)
	}
	if unread {
		e.cfg.Notifier.HistoryLoaded(rideID)
	}
	return nil
}

func (e *Engine) onMessage(gen uint64, rec chat.Record) {
	e.mu.Lock()
	if gen != e.gen || rec.RideID != e.rideID {
		e.mu.Unlock()
		e.cfg.Metrics.Message("stale")
		e.logger.Debug("discarding event for inactive ride", zap.String("ride", rec.RideID), zap.String("id", rec.ID))
		return
	}
	list, outcome, m := Merge(e.list, rec, e.self, e.cfg.EchoWindow)
	e.list = list
	e.mu.Unlock()

	e.cfg.Metrics.Message(outcome.String())
	if outcome == OutcomeDuplicate {
		return
	}
	e.publish()
	if outcome == OutcomeAppended && !m.Own {
		e.cfg.Notifier.CounterpartyMessage(m)
	}
}

func (e *Engine) onRead(gen uint64, rc chat.Receipt) {
	e.mu.Lock()
	if gen != e.gen || (rc.RideID != "" && rc.RideID != e.rideID) {
		e.mu.Unlock()
		return
	}
	list, n := ApplyReceipt(e.list, rc)
	e.list = list
	e.mu.Unlock()

	if n > 0 {
		e.publish()
	}
}

func (e *Engine) onTyping(gen uint64) {
	e.mu.Lock()
	current := gen == e.gen
	e.mu.Unlock()
	if current {
		e.cfg.Notifier.Typing()
	}
}

// onError runs inside the dying subscription's handler, so the old
// subscription is closed later from the resubscribe timer.
func (e *Engine) onError(gen uint64, err error) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	ride := e.rideID
	e.mu.Unlock()

	if chat.IsAuth(err) {
		e.abandonLater(gen, err)
		return
	}
	e.logger.Warn("live channel dropped", zap.String("ride", ride), zap.Error(err))
	e.setStatus(status.Reconnecting, err.Error())
	e.scheduleResubscribe(gen)
}

func (e *Engine) abandonLater(gen uint64, err error) {
	go e.abandon(gen, err)
}

// scheduleResubscribe arms the backoff timer: min, doubling up to max.
func (e *Engine) scheduleResubscribe(gen uint64) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	if e.backoff == 0 {
		e.backoff = e.cfg.ResubscribeMin
	} else {
		e.backoff = min(e.backoff*2, e.cfg.ResubscribeMax)
	}
	delay := e.backoff
	if e.retry != nil {
		e.retry.Stop()
	}
	e.mu.Unlock()

	t := e.cfg.Clock.AfterFunc(delay, func() { e.resubscribe(gen) })

	e.mu.Lock()
	if gen == e.gen {
		e.retry = t
	} else {
		t.Stop()
	}
	e.mu.Unlock()
	e.logger.Info("resubscribe scheduled", zap.Duration("delay", delay))
}

func (e *Engine) resubscribe(gen uint64) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	ride := e.rideID
	old := e.sub
	e.sub = nil
	e.retry = nil
	e.mu.Unlock()

	closeSub(old, e.logger)
	e.cfg.Metrics.Resubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), resubscribeTimeout)
	defer cancel()

	sub, err := e.cfg.Store.Subscribe(ctx, ride, liveHandler{e: e, gen: gen})
	if err != nil {
		if chat.IsAuth(err) {
			e.abandon(gen, err)
			return
		}
		e.logger.Warn("resubscribe failed", zap.String("ride", ride), zap.Error(err))
		e.scheduleResubscribe(gen)
		return
	}
	if !e.attach(gen, sub) {
		return
	}
	e.setStatus(status.Live, "resubscribed to "+ride)
	_ = e.loadHistory(ctx, gen, ride, true)
}

// NotifyTyping tells the counterparty the user is typing.
func (e *Engine) NotifyTyping() {
	e.mu.Lock()
	sub := e.sub
	e.mu.Unlock()
	if sub != nil {
		e.cfg.Store.BroadcastTyping(sub)
	}
}

// publish pushes the current thread to the notifier.
func (e *Engine) publish() {
	e.publishMu.Lock()
	defer e.publishMu.Unlock()
	e.cfg.Notifier.ListChanged(e.Snapshot())
}

func (e *Engine) setStatus(to status.State, reason string) {
	if err := e.cfg.Status.Transition(to, reason); err != nil {
		e.logger.Debug("status transition skipped", zap.Error(err))
	}
}

func closeSub(sub *msgstore.Subscription, logger *zap.Logger) {
	if sub == nil {
		return
	}
	if err := sub.Close(); err != nil {
		logger.Warn("closing subscription", zap.String("ride", sub.RideID()), zap.Error(err))
	}
}

// liveHandler binds a subscription to the ride generation it was opened for.
type liveHandler struct {
	e   *Engine
	gen uint64
}

func (h liveHandler) OnMessage(r chat.Record) { h.e.onMessage(h.gen, r) }
func (h liveHandler) OnRead(rc chat.Receipt)  { h.e.onRead(h.gen, rc) }
func (h liveHandler) OnTyping(string)         { h.e.onTyping(h.gen) }
func (h liveHandler) OnError(err error)       { h.e.onError(h.gen, err) }

type nopNotifier struct{}

func (nopNotifier) ListChanged([]chat.Message)       {}
func (nopNotifier) CounterpartyMessage(chat.Message) {}
func (nopNotifier) Typing()                          {}
func (nopNotifier) Reset(string)                     {}
func (nopNotifier) HistoryLoaded(string)             {}
