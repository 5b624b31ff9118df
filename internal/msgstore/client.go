package msgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/matheus3301/ridechat/internal/auth"
	"github.com/matheus3301/ridechat/internal/chat"
)

// DefaultTypingInterval is the minimum spacing between typing broadcasts.
const DefaultTypingInterval = 2 * time.Second

// Client is the message store client used by the reconciliation engine.
type Client struct {
	backend        Backend
	identity       auth.Identity
	typingInterval time.Duration
	logger         *zap.Logger
}

// NewClient creates a store client. typingInterval <= 0 uses DefaultTypingInterval.
func NewClient(backend Backend, identity auth.Identity, typingInterval time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if typingInterval <= 0 {
		typingInterval = DefaultTypingInterval
	}
	return &Client{
		backend:        backend,
		identity:       identity,
		typingInterval: typingInterval,
		logger:         logger,
	}
}

// CurrentUserID exposes the identity the client writes as.
func (c *Client) CurrentUserID() (string, bool) {
	return c.identity.CurrentUserID()
}

func (c *Client) user(op, rideID string) (string, error) {
	id, ok := c.identity.CurrentUserID()
	if !ok {
		return "", &chat.Error{Kind: chat.ErrAuth, Op: op, RideID: rideID}
	}
	return id, nil
}

// Append writes a message as the current user and returns the stored record.
func (c *Client) Append(ctx context.Context, rideID string, t chat.MessageType, body string) (chat.Record, error) {
	sender, err := c.user("append", rideID)
	if err != nil {
		return chat.Record{}, err
	}
	if !t.Valid() {
		return chat.Record{}, chat.Errorf(chat.ErrWrite, "append", rideID, "unknown message type %q", t)
	}
	if body == "" || len(body) > chat.MaxBodyLen {
		return chat.Record{}, chat.Errorf(chat.ErrWrite, "append", rideID, "body must be 1..%d bytes, got %d", chat.MaxBodyLen, len(body))
	}

	rec, err := c.backend.Insert(ctx, NewMessage{RideID: rideID, SenderID: sender, Type: t, Body: body})
	if err != nil {
		return chat.Record{}, classify(chat.ErrWrite, "append", rideID, err)
	}
	if err := rec.Validate(); err != nil {
		return chat.Record{}, chat.Wrap(chat.ErrWrite, "append", rideID, err)
	}
	return rec, nil
}

// MarkRead marks the ride's unread counterparty messages as read. Marking
// an already-read ride is a no-op.
func (c *Client) MarkRead(ctx context.Context, rideID string) error {
	reader, err := c.user("mark read", rideID)
	if err != nil {
		return err
	}
	ids, err := c.backend.MarkRead(ctx, rideID, reader)
	if err != nil {
		return classify(chat.ErrWrite, "mark read", rideID, err)
	}
	if len(ids) > 0 {
		c.logger.Debug("marked read", zap.String("ride", rideID), zap.Int("count", len(ids)))
	}
	return nil
}

// History returns the ride's valid records, oldest first.
func (c *Client) History(ctx context.Context, rideID string) ([]chat.Record, error) {
	if _, err := c.user("history", rideID); err != nil {
		return nil, err
	}
	records, err := c.backend.History(ctx, rideID)
	if err != nil {
		return nil, classify(chat.ErrRead, "history", rideID, err)
	}
	valid := records[:0]
	for _, r := range records {
		if err := r.Validate(); err != nil {
			c.logger.Warn("dropping invalid history row", zap.String("ride", rideID), zap.Error(err))
			continue
		}
		valid = append(valid, r)
	}
	return valid, nil
}

// Subscribe opens the ride's live channel. Handler methods are called one
// at a time; none is called after Subscription.Close returns.
func (c *Client) Subscribe(ctx context.Context, rideID string, h Handler) (*Subscription, error) {
	self, err := c.user("subscribe", rideID)
	if err != nil {
		return nil, err
	}
	sub := &Subscription{
		rideID:  rideID,
		self:    self,
		handler: h,
		client:  c,
		typing:  rate.NewLimiter(rate.Every(c.typingInterval), 1),
		logger:  c.logger.With(zap.String("ride", rideID)),
	}
	closer, err := c.backend.Listen(ctx, rideID, sub.deliver, sub.fail)
	if err != nil {
		return nil, classify(chat.ErrSubscription, "subscribe", rideID, err)
	}
	sub.listener = closer
	return sub, nil
}

// BroadcastTyping tells the counterparty the current user is typing.
// Calls inside the throttle interval are dropped and failures are only logged.
func (c *Client) BroadcastTyping(sub *Subscription) {
	if sub == nil || sub.isClosed() || !sub.typing.Allow() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.backend.Typing(ctx, sub.rideID, sub.self); err != nil {
			sub.logger.Debug("typing broadcast failed", zap.Error(err))
		}
	}()
}

// classify wraps a backend error with kind, upgrading permission failures to auth.
func classify(kind error, op, rideID string, err error) error {
	if errors.Is(err, ErrPermissionDenied) {
		kind = chat.ErrAuth
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("timed out: %w", err)
	}
	return chat.Wrap(kind, op, rideID, err)
}
