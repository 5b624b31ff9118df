package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/ridechat/internal/msgstore"
)

// maxPollFailures is how many consecutive failed polls kill a listener.
const maxPollFailures = 3

const pollBatch = 200

type poller struct {
	db      *DB
	rideID  string
	cursor  int64
	deliver func(msgstore.Envelope)
	fail    func(error)
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
	logger  *zap.Logger
}

// Listen starts polling ride_events for rideID. Only events written after
// Listen returns are delivered. ctx bounds the setup query only.
func (db *DB) Listen(ctx context.Context, rideID string, deliver func(msgstore.Envelope), fail func(error)) (io.Closer, error) {
	var cursor int64
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM ride_events WHERE ride_id = ?`, rideID).Scan(&cursor); err != nil {
		return nil, fmt.Errorf("read event cursor: %w", err)
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	p := &poller{
		db:      db,
		rideID:  rideID,
		cursor:  cursor,
		deliver: deliver,
		fail:    fail,
		cancel:  cancel,
		done:    make(chan struct{}),
		logger:  db.logger.With(zap.String("ride", rideID)),
	}
	go p.run(pollCtx)
	return p, nil
}

func (p *poller) Close() error {
	p.once.Do(p.cancel)
	<-p.done
	return nil
}

func (p *poller) run(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.db.pollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := p.poll(ctx)
			if ctx.Err() != nil {
				return
			}
			if err == nil {
				failures = 0
				continue
			}
			failures++
			p.logger.Warn("event poll failed", zap.Int("failures", failures), zap.Error(err))
			if failures >= maxPollFailures {
				p.fail(err)
				return
			}
		}
	}
}

type eventRow struct {
	seq     int64
	payload string
}

func (p *poller) poll(ctx context.Context) error {
	for {
		rows, err := p.db.QueryContext(ctx, `
			SELECT seq, payload FROM ride_events
			WHERE ride_id = ? AND seq > ?
			ORDER BY seq ASC
			LIMIT ?`, p.rideID, p.cursor, pollBatch)
		if err != nil {
			return err
		}
		var batch []eventRow
		for rows.Next() {
			var r eventRow
			if err := rows.Scan(&r.seq, &r.payload); err != nil {
				_ = rows.Close()
				return err
			}
			batch = append(batch, r)
		}
		_ = rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, r := range batch {
			p.cursor = r.seq
			var env msgstore.Envelope
			if err := json.Unmarshal([]byte(r.payload), &env); err != nil {
				p.logger.Warn("skipping undecodable event", zap.Int64("seq", r.seq), zap.Error(err))
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			p.deliver(env)
		}
		if len(batch) < pollBatch {
			return nil
		}
	}
}
