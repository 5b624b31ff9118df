package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/ridechat/internal/bus"
	"github.com/matheus3301/ridechat/internal/chat"
	"github.com/matheus3301/ridechat/internal/metrics"
)

// DefaultTimeout bounds a single append.
const DefaultTimeout = 10 * time.Second

const queueSize = 256

var (
	ErrQueueFull = errors.New("outbox queue full")
	ErrStopped   = errors.New("outbox stopped")
)

// Appender writes a message to the store.
type Appender interface {
	Append(ctx context.Context, rideID string, t chat.MessageType, body string) (chat.Record, error)
}

// Request is one optimistic message waiting to be appended.
type Request struct {
	RideID  string
	LocalID string
	Type    chat.MessageType
	Body    string
	// Generation is the engine's ride generation when the request was made.
	Generation uint64
}

// Reporter learns the outcome of each request.
type Reporter interface {
	Sent(req Request, rec chat.Record)
	Failed(req Request, err error)
}

// SendFailed is the payload of chat.send_failed events.
type SendFailed struct {
	RideID  string
	LocalID string
	Error   string
}

// Sender appends queued messages in order on a single worker.
type Sender struct {
	appender Appender
	bus      *bus.Bus
	metrics  *metrics.Metrics
	logger   *zap.Logger
	timeout  time.Duration

	queue  chan Request
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSender creates a new outbox sender.
func NewSender(a Appender, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		appender: a,
		bus:      b,
		metrics:  m,
		logger:   logger,
		timeout:  DefaultTimeout,
		queue:    make(chan Request, queueSize),
	}
}

// Enqueue queues req without blocking. Requests queued before Start are
// sent once the worker runs.
func (s *Sender) Enqueue(req Request) error {
	select {
	case s.queue <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start begins draining the queue, reporting outcomes to r.
func (s *Sender) Start(ctx context.Context, r Reporter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, r)
}

// Stop stops the worker. Requests still queued are reported as failed.
func (s *Sender) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sender) loop(ctx context.Context, r Reporter) {
	defer close(s.done)
	for {
		select {
		case req := <-s.queue:
			s.send(ctx, r, req)
		case <-ctx.Done():
			s.drain(r)
			return
		}
	}
}

func (s *Sender) drain(r Reporter) {
	for {
		select {
		case req := <-s.queue:
			r.Failed(req, ErrStopped)
		default:
			return
		}
	}
}

func (s *Sender) send(ctx context.Context, r Reporter, req Request) {
	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	rec, err := s.appender.Append(sendCtx, req.RideID, req.Type, req.Body)
	cancel()

	if err != nil {
		s.metrics.Send("failed")
		s.logger.Error("failed to send message", zap.Error(err),
			zap.String("ride", req.RideID), zap.String("local_id", req.LocalID))
		if s.bus != nil {
			s.bus.Emit(bus.KindSendFailed, SendFailed{RideID: req.RideID, LocalID: req.LocalID, Error: err.Error()})
		}
		r.Failed(req, err)
		return
	}

	s.metrics.Send("ok")
	s.logger.Info("message sent", zap.String("ride", req.RideID),
		zap.String("local_id", req.LocalID), zap.String("server_id", rec.ID))
	r.Sent(req, rec)
}
