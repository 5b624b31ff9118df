// Package sqlite is a msgstore backend on a SQLite file shared by every
// daemon on the machine. Live events are written to ride_events in the same
// transaction as the change they describe and picked up by polling.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// DefaultPollInterval is how often a listener checks for new events.
const DefaultPollInterval = 250 * time.Millisecond

// typingTTL is how long typing events are kept before being pruned.
const typingTTL = time.Minute

// DB wraps the shared SQLite store.
type DB struct {
	*sql.DB
	pollInterval time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
func Open(path string, pollInterval time.Duration, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	// Every transaction here writes. Taking the write lock at BEGIN keeps a
	// read-then-write transaction from failing with SQLITE_BUSY_SNAPSHOT.
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{
		DB:           db,
		pollInterval: pollInterval,
		now:          time.Now,
		logger:       logger,
	}, nil
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
