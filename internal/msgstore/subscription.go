package msgstore

import (
	"io"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/matheus3301/ridechat/internal/chat"
)

// Handler receives a ride's live events.
type Handler interface {
	OnMessage(chat.Record)
	OnRead(chat.Receipt)
	// OnTyping is only called for the counterparty.
	OnTyping(senderID string)
	// OnError reports that the channel died. Nothing follows it.
	OnError(error)
}

// Subscription is an open live channel for one ride.
type Subscription struct {
	rideID  string
	self    string
	handler Handler
	client  *Client
	typing  *rate.Limiter
	logger  *zap.Logger

	// mu is held for every handler call so Close can wait them out.
	mu       sync.Mutex
	closed   bool
	listener io.Closer
	stopOnce sync.Once
}

// RideID returns the ride this subscription listens to.
func (s *Subscription) RideID() string { return s.rideID }

// Close stops the subscription. When it returns no handler method is
// running or will run again. It must not be called from a handler.
func (s *Subscription) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	var err error
	s.stopOnce.Do(func() {
		if s.listener != nil {
			err = s.listener.Close()
		}
	})
	return err
}

func (s *Subscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Subscription) deliver(env Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if env.RideID != "" && env.RideID != s.rideID {
		s.logger.Warn("event for another ride on channel", zap.String("event_ride", env.RideID))
		return
	}

	switch env.Kind {
	case KindMessage:
		if env.Message == nil {
			s.logger.Warn("message event without record")
			return
		}
		if err := env.Message.Validate(); err != nil {
			s.logger.Warn("dropping invalid live record", zap.Error(err))
			return
		}
		if env.Message.RideID != s.rideID {
			s.logger.Warn("live record for another ride", zap.String("record_ride", env.Message.RideID))
			return
		}
		s.handler.OnMessage(*env.Message)
	case KindRead:
		if env.Read == nil || len(env.Read.MessageIDs) == 0 {
			return
		}
		s.handler.OnRead(*env.Read)
	case KindTyping:
		if env.SenderID == "" || env.SenderID == s.self {
			return
		}
		s.handler.OnTyping(env.SenderID)
	default:
		s.logger.Debug("ignoring unknown event kind", zap.String("kind", env.Kind))
	}
}

func (s *Subscription) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.handler.OnError(chat.Wrap(chat.ErrSubscription, "listen", s.rideID, err))
}
