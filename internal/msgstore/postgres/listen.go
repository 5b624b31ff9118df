package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/matheus3301/ridechat/internal/msgstore"
)

type listener struct {
	conn    *pgxpool.Conn
	channel string
	deliver func(msgstore.Envelope)
	fail    func(error)
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
	logger  *zap.Logger
}

// Listen holds a dedicated pooled connection in LISTEN mode on the ride's
// channel. ctx bounds the setup only.
func (s *Store) Listen(ctx context.Context, rideID string, deliver func(msgstore.Envelope), fail func(error)) (io.Closer, error) {
	setupCtx, cancelSetup := context.WithTimeout(ctx, queryTimeout)
	defer cancelSetup()

	conn, err := s.pool.Acquire(setupCtx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen conn: %w", classify(err))
	}
	channel := Channel(rideID)
	if _, err := conn.Exec(setupCtx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", channel, classify(err))
	}

	waitCtx, cancel := context.WithCancel(context.Background())
	l := &listener{
		conn:    conn,
		channel: channel,
		deliver: deliver,
		fail:    fail,
		cancel:  cancel,
		done:    make(chan struct{}),
		logger:  s.logger.With(zap.String("ride", rideID), zap.String("channel", channel)),
	}
	go l.run(waitCtx)
	return l, nil
}

func (l *listener) Close() error {
	l.once.Do(l.cancel)
	<-l.done
	return nil
}

func (l *listener) run(ctx context.Context) {
	defer close(l.done)
	defer l.release()

	for {
		n, err := l.conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			l.logger.Warn("live channel lost", zap.Error(err))
			l.fail(err)
			return
		}
		var env msgstore.Envelope
		if err := json.Unmarshal([]byte(n.Payload), &env); err != nil {
			l.logger.Warn("skipping undecodable notification", zap.Error(err))
			continue
		}
		if env.Kind == msgstore.KindMessage && env.Message == nil {
			rec, err := messageByID(ctx, l.conn, env.MessageID)
			switch {
			case errors.Is(err, pgx.ErrNoRows):
				l.logger.Warn("skipping notification for missing message", zap.String("id", env.MessageID))
				continue
			case err != nil:
				if ctx.Err() != nil {
					return
				}
				l.logger.Warn("live channel lost", zap.Error(err))
				l.fail(err)
				return
			}
			env.Message = &rec
		}
		l.deliver(env)
	}
}

// release returns the connection to the pool without its LISTEN state.
func (l *listener) release() {
	raw := l.conn.Conn()
	if !raw.IsClosed() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if _, err := raw.Exec(ctx, "UNLISTEN *"); err != nil {
			_ = raw.Close(ctx)
		}
		cancel()
	}
	l.conn.Release()
}
