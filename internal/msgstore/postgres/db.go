// Package postgres is a msgstore backend on PostgreSQL. New rows are
// announced by a trigger with pg_notify on a per-ride channel; read
// receipts and typing are notified by the writer on the same channel.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/matheus3301/ridechat/internal/msgstore"
)

//go:embed schema.sql
var schemaSQL string

// queryTimeout bounds every store round trip.
const queryTimeout = 5 * time.Second

// Options tunes the connection pool. Every live subscription holds one
// connection for as long as it is open.
type Options struct {
	MaxConns        int32
	MinConns        int32
	MaxConnIdleTime time.Duration
	ApplySchema     bool
}

func (o Options) withDefaults() Options {
	if o.MaxConns <= 0 {
		o.MaxConns = 10
	}
	if o.MinConns <= 0 {
		o.MinConns = 2
	}
	if o.MinConns > o.MaxConns {
		o.MinConns = o.MaxConns
	}
	if o.MaxConnIdleTime <= 0 {
		o.MaxConnIdleTime = 5 * time.Minute
	}
	return o
}

// Store is the PostgreSQL message store adapter.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Connect opens a pool on dsn, pings it and optionally applies the schema.
func Connect(ctx context.Context, dsn string, opts Options, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = opts.MaxConns
	cfg.MinConns = opts.MinConns
	cfg.MaxConnIdleTime = opts.MaxConnIdleTime

	connectCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", classify(err))
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", classify(err))
	}

	s := &Store{pool: pool, logger: logger}
	if opts.ApplySchema {
		schemaCtx, cancelSchema := context.WithTimeout(ctx, 30*time.Second)
		defer cancelSchema()
		if err := s.ApplySchema(schemaCtx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	logger.Info("connected to postgres", zap.String("host", cfg.ConnConfig.Host))
	return s, nil
}

// ApplySchema creates the table, indexes and notify trigger if missing.
func (s *Store) ApplySchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", classify(err))
	}
	return nil
}

// Pool exposes the underlying pool for tests and maintenance.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Permission and authentication SQLSTATEs reported as msgstore.ErrPermissionDenied.
var authCodes = map[string]bool{
	"42501": true, // insufficient_privilege, including row level security
	"28000": true, // invalid_authorization_specification
	"28P01": true, // invalid_password
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && authCodes[pgErr.Code] {
		return fmt.Errorf("%w: %s", msgstore.ErrPermissionDenied, pgErr.Message)
	}
	return err
}
