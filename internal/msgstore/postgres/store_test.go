package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/ridechat/internal/chat"
	"github.com/matheus3301/ridechat/internal/msgstore"
)

var _ msgstore.Backend = (*Store)(nil)

// newTestStore connects to a real Postgres instance for integration tests.
// Skips if RIDECHAT_TEST_DATABASE_URL is not set to keep CI deterministic.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	if err := godotenv.Load(); err != nil {
		t.Log("No .env file found, using environment variables")
	}
	dsn := os.Getenv("RIDECHAT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("RIDECHAT_TEST_DATABASE_URL not set; skipping integration tests")
	}

	s, err := Connect(context.Background(), dsn, Options{MaxConns: 4, ApplySchema: true}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// rideID returns a ride id unique to this test run so tests never see
// each other's rows.
func rideID() string {
	return "ride-" + uuid.NewString()
}

type sink struct {
	mu     sync.Mutex
	events []msgstore.Envelope
	errs   []error
}

func (s *sink) deliver(env msgstore.Envelope) {
	s.mu.Lock()
	s.events = append(s.events, env)
	s.mu.Unlock()
}

func (s *sink) fail(err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

func (s *sink) snapshot() []msgstore.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]msgstore.Envelope(nil), s.events...)
}

func TestChannelMatchesSchemaFunction(t *testing.T) {
	s := newTestStore(t)
	ride := rideID()

	var fromSQL string
	err := s.Pool().QueryRow(context.Background(), `SELECT ride_channel($1)`, ride).Scan(&fromSQL)
	require.NoError(t, err)
	require.Equal(t, Channel(ride), fromSQL)
}

func TestChannelShape(t *testing.T) {
	c := Channel("ride-42")
	require.Len(t, c, len("ride_")+24)
	require.Equal(t, c, Channel("ride-42"))
	require.NotEqual(t, c, Channel("ride-43"))
}

func TestInsertHistoryAndMarkRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ride := rideID()

	first, err := s.Insert(ctx, msgstore.NewMessage{RideID: ride, SenderID: "driver", Type: chat.TypeText, Body: "I'm outside"})
	require.NoError(t, err)
	require.NoError(t, first.Validate())

	_, err = s.Insert(ctx, msgstore.NewMessage{RideID: ride, SenderID: "rider", Type: chat.TypeVoice, Body: ride + "/rider/voice_1.webm"})
	require.NoError(t, err)

	hist, err := s.History(ctx, ride)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.Equal(t, first.ID, hist[0].ID)
	require.Equal(t, chat.TypeVoice, hist[1].Type)

	ids, err := s.MarkRead(ctx, ride, "rider")
	require.NoError(t, err)
	require.Equal(t, []string{first.ID}, ids)

	again, err := s.MarkRead(ctx, ride, "rider")
	require.NoError(t, err)
	require.Empty(t, again)

	hist, err = s.History(ctx, ride)
	require.NoError(t, err)
	require.NotNil(t, hist[0].ReadAt)
	require.Nil(t, hist[1].ReadAt)
}

func TestSchemaRejectsOversizedBody(t *testing.T) {
	s := newTestStore(t)
	body := make([]byte, chat.MaxBodyLen+1)
	for i := range body {
		body[i] = 'x'
	}
	_, err := s.Insert(context.Background(), msgstore.NewMessage{RideID: rideID(), SenderID: "driver", Type: chat.TypeText, Body: string(body)})
	var pgErr *pgconn.PgError
	require.True(t, errors.As(err, &pgErr), "want a check violation, got %v", err)
}

func TestListenReceivesEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ride := rideID()

	out := &sink{}
	l, err := s.Listen(ctx, ride, out.deliver, out.fail)
	require.NoError(t, err)
	defer l.Close()

	rec, err := s.Insert(ctx, msgstore.NewMessage{RideID: ride, SenderID: "driver", Type: chat.TypeText, Body: "arrived"})
	require.NoError(t, err)
	require.NoError(t, s.Typing(ctx, ride, "driver"))
	_, err = s.MarkRead(ctx, ride, "rider")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(out.snapshot()) == 3 }, 3*time.Second, 10*time.Millisecond)
	events := out.snapshot()

	require.Equal(t, msgstore.KindMessage, events[0].Kind)
	require.NotNil(t, events[0].Message)
	require.Equal(t, rec.ID, events[0].Message.ID)
	require.NoError(t, events[0].Message.Validate())
	require.Equal(t, msgstore.KindTyping, events[1].Kind)
	require.Equal(t, msgstore.KindRead, events[2].Kind)
	require.Equal(t, []string{rec.ID}, events[2].Read.MessageIDs)
}

// Postgres rejects NOTIFY payloads of 8000 bytes or more.
const maxNotifyPayload = 7999

func TestReceiptEnvelopesFitNotifyPayload(t *testing.T) {
	ride := "ride-" + strings.Repeat("x", 60)
	ids := make([]string, 2*receiptChunk+25)
	for i := range ids {
		ids[i] = uuid.NewString()
	}
	readAt := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	envs := receiptEnvelopes(ride, strings.Repeat("u", 64), ids, readAt)
	require.Len(t, envs, 3)

	var got []string
	for _, env := range envs {
		payload, err := json.Marshal(env)
		require.NoError(t, err)
		require.LessOrEqual(t, len(payload), maxNotifyPayload)
		require.Equal(t, msgstore.KindRead, env.Kind)
		require.LessOrEqual(t, len(env.Read.MessageIDs), receiptChunk)
		got = append(got, env.Read.MessageIDs...)
	}
	require.Equal(t, ids, got)
}

func TestMarkReadManyMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ride := rideID()

	for range 300 {
		_, err := s.Insert(ctx, msgstore.NewMessage{RideID: ride, SenderID: "driver", Type: chat.TypeText, Body: "honk"})
		require.NoError(t, err)
	}

	out := &sink{}
	l, err := s.Listen(ctx, ride, out.deliver, out.fail)
	require.NoError(t, err)
	defer l.Close()

	ids, err := s.MarkRead(ctx, ride, "rider")
	require.NoError(t, err)
	require.Len(t, ids, 300)

	require.Eventually(t, func() bool {
		n := 0
		for _, env := range out.snapshot() {
			n += len(env.Read.MessageIDs)
		}
		return n == 300
	}, 3*time.Second, 10*time.Millisecond)

	again, err := s.MarkRead(ctx, ride, "rider")
	require.NoError(t, err)
	require.Empty(t, again)
}

func TestInsertEscapeHeavyBody(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ride := rideID()

	out := &sink{}
	l, err := s.Listen(ctx, ride, out.deliver, out.fail)
	require.NoError(t, err)
	defer l.Close()

	body := strings.Repeat(`"`, chat.MaxBodyLen)
	rec, err := s.Insert(ctx, msgstore.NewMessage{RideID: ride, SenderID: "driver", Type: chat.TypeText, Body: body})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(out.snapshot()) == 1 }, 3*time.Second, 10*time.Millisecond)
	got := out.snapshot()[0]
	require.NotNil(t, got.Message)
	require.Equal(t, rec.ID, got.Message.ID)
	require.Equal(t, body, got.Message.Body)
}

func TestListenIsolatesRides(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ride, other := rideID(), rideID()

	out := &sink{}
	l, err := s.Listen(ctx, ride, out.deliver, out.fail)
	require.NoError(t, err)
	defer l.Close()

	_, err = s.Insert(ctx, msgstore.NewMessage{RideID: other, SenderID: "driver", Type: chat.TypeText, Body: "wrong ride"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, msgstore.NewMessage{RideID: ride, SenderID: "driver", Type: chat.TypeText, Body: "right ride"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(out.snapshot()) >= 1 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	events := out.snapshot()
	require.Len(t, events, 1)
	require.Equal(t, "right ride", events[0].Message.Body)
}

func TestListenCloseReturnsConnection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for range 8 {
		out := &sink{}
		l, err := s.Listen(ctx, rideID(), out.deliver, out.fail)
		require.NoError(t, err)
		require.NoError(t, l.Close())
		require.NoError(t, l.Close())
	}
	// MaxConns is 4: leaked listen connections would exhaust the pool.
	_, err := s.History(ctx, rideID())
	require.NoError(t, err)
}

func TestClassifyPermission(t *testing.T) {
	for _, code := range []string{"42501", "28000", "28P01"} {
		err := classify(&pgconn.PgError{Code: code, Message: "denied"})
		require.ErrorIs(t, err, msgstore.ErrPermissionDenied, code)
	}
	other := &pgconn.PgError{Code: "23505", Message: "duplicate"}
	require.Same(t, error(other), classify(other))
}
