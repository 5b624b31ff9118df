package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/matheus3301/ridechat/internal/chat"
	"github.com/matheus3301/ridechat/internal/msgstore"
)

// Insert stores m with a fresh id and the current time, and records the
// message event for listeners.
func (db *DB) Insert(ctx context.Context, m msgstore.NewMessage) (chat.Record, error) {
	rec := chat.Record{
		ID:        uuid.NewString(),
		RideID:    m.RideID,
		SenderID:  m.SenderID,
		Type:      m.Type,
		Body:      m.Body,
		CreatedAt: fromMillis(toMillis(db.now())),
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return chat.Record{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ride_messages (id, ride_id, sender_id, message_type, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RideID, rec.SenderID, string(rec.Type), rec.Body, toMillis(rec.CreatedAt)); err != nil {
		return chat.Record{}, fmt.Errorf("insert message: %w", err)
	}
	if err := db.appendEvent(ctx, tx, msgstore.Envelope{Kind: msgstore.KindMessage, RideID: rec.RideID, Message: &rec}); err != nil {
		return chat.Record{}, err
	}
	if err := tx.Commit(); err != nil {
		return chat.Record{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// MarkRead stamps read_at on the ride's unread messages not sent by readerID.
func (db *DB) MarkRead(ctx context.Context, rideID, readerID string) ([]string, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	readAt := fromMillis(toMillis(db.now()))
	rows, err := tx.QueryContext(ctx, `
		UPDATE ride_messages SET read_at = ?
		WHERE ride_id = ? AND sender_id <> ? AND read_at IS NULL
		RETURNING id`, toMillis(readAt), rideID, readerID)
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	receipt := chat.Receipt{RideID: rideID, ReaderID: readerID, MessageIDs: ids, ReadAt: readAt}
	if err := db.appendEvent(ctx, tx, msgstore.Envelope{Kind: msgstore.KindRead, RideID: rideID, Read: &receipt}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ids, nil
}

// History returns the ride's messages ordered by created_at, then id.
func (db *DB) History(ctx context.Context, rideID string) ([]chat.Record, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, ride_id, sender_id, message_type, content, created_at, read_at
		FROM ride_messages
		WHERE ride_id = ?
		ORDER BY created_at ASC, id ASC`, rideID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []chat.Record
	for rows.Next() {
		var (
			r         chat.Record
			typ       string
			createdAt int64
			readAt    sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.RideID, &r.SenderID, &typ, &r.Body, &createdAt, &readAt); err != nil {
			return nil, err
		}
		r.Type = chat.MessageType(typ)
		r.CreatedAt = fromMillis(createdAt)
		if readAt.Valid {
			t := fromMillis(readAt.Int64)
			r.ReadAt = &t
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Typing records a typing event and prunes stale ones.
func (db *DB) Typing(ctx context.Context, rideID, senderID string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ride_events WHERE kind = ? AND created_at < ?`,
		msgstore.KindTyping, toMillis(db.now().Add(-typingTTL))); err != nil {
		return fmt.Errorf("prune typing: %w", err)
	}
	if err := db.appendEvent(ctx, tx, msgstore.Envelope{Kind: msgstore.KindTyping, RideID: rideID, SenderID: senderID}); err != nil {
		return err
	}
	return tx.Commit()
}

func (db *DB) appendEvent(ctx context.Context, tx *sql.Tx, env msgstore.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", env.Kind, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ride_events (ride_id, kind, payload, created_at) VALUES (?, ?, ?, ?)`,
		env.RideID, env.Kind, string(payload), toMillis(db.now())); err != nil {
		return fmt.Errorf("append %s event: %w", env.Kind, err)
	}
	return nil
}
