package chatrpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/matheus3301/ridechat/internal/chat"
)

type fakeChat struct {
	rideID string
	sent   []string
	events []*Event
}

func (f *fakeChat) ActivateRide(_ context.Context, req *ActivateRideRequest) (*Empty, error) {
	if req.RideID == "" {
		return nil, status.Error(codes.InvalidArgument, "ride id is required")
	}
	f.rideID = req.RideID
	return &Empty{}, nil
}

func (f *fakeChat) DeactivateRide(context.Context, *Empty) (*Empty, error) {
	f.rideID = ""
	return &Empty{}, nil
}

func (f *fakeChat) OpenChat(context.Context, *Empty) (*Empty, error)  { return &Empty{}, nil }
func (f *fakeChat) CloseChat(context.Context, *Empty) (*Empty, error) { return &Empty{}, nil }

func (f *fakeChat) SendText(_ context.Context, req *SendTextRequest) (*SendResponse, error) {
	f.sent = append(f.sent, req.Text)
	return &SendResponse{LocalID: "local-1"}, nil
}

func (f *fakeChat) SendVoice(_ context.Context, req *SendVoiceRequest) (*SendResponse, error) {
	f.sent = append(f.sent, string(req.Audio))
	return &SendResponse{LocalID: "local-2"}, nil
}

func (f *fakeChat) Retry(context.Context, *RetryRequest) (*Empty, error) { return &Empty{}, nil }
func (f *fakeChat) React(context.Context, *ReactRequest) (*Empty, error) { return &Empty{}, nil }
func (f *fakeChat) Typing(context.Context, *Empty) (*Empty, error)       { return &Empty{}, nil }

func (f *fakeChat) GetThread(context.Context, *Empty) (*ThreadResponse, error) {
	return &ThreadResponse{
		RideID: f.rideID,
		Unread: 2,
		Messages: FromChat([]chat.Message{
			{ID: "s1", ServerID: "s1", SenderID: "driver", Type: chat.TypeText, Body: "hi", Status: chat.StatusDelivered},
		}),
	}, nil
}

func (f *fakeChat) WatchEvents(req *WatchEventsRequest, stream grpc.ServerStreamingServer[Event]) error {
	for _, evt := range f.events {
		if err := stream.Send(evt); err != nil {
			return err
		}
	}
	return nil
}

type fakeSession struct{}

func (fakeSession) GetStatus(context.Context, *Empty) (*StatusResponse, error) {
	return &StatusResponse{Profile: "main", Backend: "sqlite", Status: Status{State: "LIVE"}}, nil
}

func startServer(t *testing.T, svc *fakeChat) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterChatService(srv, svc)
	RegisterSessionService(srv, fakeSession{})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	c := NewClient(conn)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCodecRegistered(t *testing.T) {
	codec := encoding.GetCodec(CodecName)
	require.NotNil(t, codec)

	data, err := codec.Marshal(&SendTextRequest{Text: "on my way"})
	require.NoError(t, err)
	require.JSONEq(t, `{"text":"on my way"}`, string(data))
}

func TestUnaryRoundTrip(t *testing.T) {
	svc := &fakeChat{}
	c := startServer(t, svc)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, c.ActivateRide(ctx, "ride-1"))
	require.Equal(t, "ride-1", svc.rideID)

	id, err := c.SendText(ctx, "on my way")
	require.NoError(t, err)
	require.Equal(t, "local-1", id)

	id, err = c.SendVoice(ctx, []byte("audio"))
	require.NoError(t, err)
	require.Equal(t, "local-2", id)
	require.Equal(t, []string{"on my way", "audio"}, svc.sent)

	thread, err := c.GetThread(ctx)
	require.NoError(t, err)
	require.Equal(t, "ride-1", thread.RideID)
	require.Equal(t, 2, thread.Unread)
	require.Len(t, thread.Messages, 1)
	require.Equal(t, "delivered", thread.Messages[0].Status)

	st, err := c.GetStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, "LIVE", st.Status.State)
}

func TestErrorCodesSurvive(t *testing.T) {
	c := startServer(t, &fakeChat{})
	err := c.ActivateRide(context.Background(), "")
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestWatchEventsStream(t *testing.T) {
	unread := 3
	svc := &fakeChat{events: []*Event{
		{Kind: "chat.unread_changed", Unread: &unread},
		{Kind: "conn.status_changed", Status: &Status{State: "RECONNECTING"}},
	}}
	c := startServer(t, svc)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := c.WatchEvents(ctx, "")
	require.NoError(t, err)

	evt, err := stream.Recv()
	require.NoError(t, err)
	require.Equal(t, "chat.unread_changed", evt.Kind)
	require.NotNil(t, evt.Unread)
	require.Equal(t, 3, *evt.Unread)

	evt, err = stream.Recv()
	require.NoError(t, err)
	require.Equal(t, "RECONNECTING", evt.Status.State)
}
