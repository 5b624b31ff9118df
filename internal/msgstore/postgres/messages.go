package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/matheus3301/ridechat/internal/chat"
	"github.com/matheus3301/ridechat/internal/msgstore"
)

// Channel returns the NOTIFY channel for a ride. It matches ride_channel()
// in schema.sql and stays well inside the 63 byte identifier limit.
func Channel(rideID string) string {
	sum := sha256.Sum256([]byte(rideID))
	return "ride_" + hex.EncodeToString(sum[:])[:24]
}

const recordColumns = `id::text, ride_id, sender_id, message_type, content, created_at, read_at`

func scanRecord(row pgx.Row) (chat.Record, error) {
	var (
		r   chat.Record
		typ string
	)
	if err := row.Scan(&r.ID, &r.RideID, &r.SenderID, &typ, &r.Body, &r.CreatedAt, &r.ReadAt); err != nil {
		return chat.Record{}, err
	}
	r.Type = chat.MessageType(typ)
	return r, nil
}

func (s *Store) Insert(ctx context.Context, m msgstore.NewMessage) (chat.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	row := s.pool.QueryRow(ctx, `
		INSERT INTO ride_messages (ride_id, sender_id, message_type, content)
		VALUES ($1, $2, $3, $4)
		RETURNING `+recordColumns,
		m.RideID, m.SenderID, string(m.Type), m.Body)
	rec, err := scanRecord(row)
	if err != nil {
		return chat.Record{}, fmt.Errorf("insert message: %w", classify(err))
	}
	return rec, nil
}

func (s *Store) MarkRead(ctx context.Context, rideID, readerID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", classify(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		UPDATE ride_messages SET read_at = now()
		WHERE ride_id = $1 AND sender_id <> $2 AND read_at IS NULL
		RETURNING id::text, read_at`, rideID, readerID)
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", classify(err))
	}
	var (
		ids    []string
		readAt time.Time
	)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id, &readAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan marked id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mark read: %w", classify(err))
	}
	if len(ids) == 0 {
		return nil, nil
	}

	for _, env := range receiptEnvelopes(rideID, readerID, ids, readAt) {
		if err := notify(ctx, tx, env); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", classify(err))
	}
	return ids, nil
}

// receiptChunk bounds the ids per read event. 150 uuids encode to about
// 6KB, below the 8000 byte NOTIFY payload limit.
const receiptChunk = 150

// receiptEnvelopes splits one receipt into read events small enough for
// pg_notify. Listeners see the chunks in order once the transaction commits.
func receiptEnvelopes(rideID, readerID string, ids []string, readAt time.Time) []msgstore.Envelope {
	var out []msgstore.Envelope
	for chunk := range slices.Chunk(ids, receiptChunk) {
		receipt := chat.Receipt{RideID: rideID, ReaderID: readerID, MessageIDs: chunk, ReadAt: readAt}
		out = append(out, msgstore.Envelope{Kind: msgstore.KindRead, RideID: rideID, Read: &receipt})
	}
	return out
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// messageByID loads the row behind a message event, which carries only the id.
func messageByID(ctx context.Context, db querier, id string) (chat.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	row := db.QueryRow(ctx, `SELECT `+recordColumns+` FROM ride_messages WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		return chat.Record{}, fmt.Errorf("fetch message %s: %w", id, classify(err))
	}
	return rec, nil
}

func (s *Store) History(ctx context.Context, rideID string) ([]chat.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM ride_messages
		WHERE ride_id = $1
		ORDER BY created_at ASC, id ASC`, rideID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", classify(err))
	}
	defer rows.Close()

	var records []chat.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return records, nil
}

func (s *Store) Typing(ctx context.Context, rideID, senderID string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return notify(ctx, s.pool, msgstore.Envelope{Kind: msgstore.KindTyping, RideID: rideID, SenderID: senderID})
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func notify(ctx context.Context, db execer, env msgstore.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", env.Kind, err)
	}
	if _, err := db.Exec(ctx, `SELECT pg_notify($1, $2)`, Channel(env.RideID), string(payload)); err != nil {
		return fmt.Errorf("notify %s: %w", env.Kind, classify(err))
	}
	return nil
}
