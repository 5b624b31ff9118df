package chatrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client talks to a daemon over its Unix domain socket.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon listening on socketPath.
func Dial(socketPath string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.CallContentSubtype(CodecName),
			grpc.MaxCallSendMsgSize(MaxVoiceMessage),
		),
	}, opts...)
	conn, err := grpc.NewClient("unix://"+socketPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an existing connection. Calls must use the JSON content
// subtype; Dial configures that.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) chat(ctx context.Context, method string, in, out any) error {
	return c.conn.Invoke(ctx, "/"+ChatServiceName+"/"+method, in, out, grpc.CallContentSubtype(CodecName))
}

func (c *Client) ActivateRide(ctx context.Context, rideID string) error {
	return c.chat(ctx, "ActivateRide", &ActivateRideRequest{RideID: rideID}, &Empty{})
}

func (c *Client) DeactivateRide(ctx context.Context) error {
	return c.chat(ctx, "DeactivateRide", &Empty{}, &Empty{})
}

func (c *Client) OpenChat(ctx context.Context) error {
	return c.chat(ctx, "OpenChat", &Empty{}, &Empty{})
}

func (c *Client) CloseChat(ctx context.Context) error {
	return c.chat(ctx, "CloseChat", &Empty{}, &Empty{})
}

// SendText returns the local id of the optimistic message.
func (c *Client) SendText(ctx context.Context, text string) (string, error) {
	out := &SendResponse{}
	if err := c.chat(ctx, "SendText", &SendTextRequest{Text: text}, out); err != nil {
		return "", err
	}
	return out.LocalID, nil
}

func (c *Client) SendVoice(ctx context.Context, audio []byte) (string, error) {
	out := &SendResponse{}
	if err := c.chat(ctx, "SendVoice", &SendVoiceRequest{Audio: audio}, out); err != nil {
		return "", err
	}
	return out.LocalID, nil
}

func (c *Client) Retry(ctx context.Context, localID string) error {
	return c.chat(ctx, "Retry", &RetryRequest{LocalID: localID}, &Empty{})
}

func (c *Client) React(ctx context.Context, id, reaction string) error {
	return c.chat(ctx, "React", &ReactRequest{ID: id, Reaction: reaction}, &Empty{})
}

func (c *Client) Typing(ctx context.Context) error {
	return c.chat(ctx, "Typing", &Empty{}, &Empty{})
}

func (c *Client) GetThread(ctx context.Context) (*ThreadResponse, error) {
	out := &ThreadResponse{}
	if err := c.chat(ctx, "GetThread", &Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// WatchEvents streams daemon events until ctx is cancelled.
func (c *Client) WatchEvents(ctx context.Context, namespace string) (grpc.ServerStreamingClient[Event], error) {
	stream, err := c.conn.NewStream(ctx, &ChatServiceDesc.Streams[0], "/"+ChatServiceName+"/WatchEvents", grpc.CallContentSubtype(CodecName))
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[WatchEventsRequest, Event]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(&WatchEventsRequest{Namespace: namespace}); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *Client) GetStatus(ctx context.Context) (*StatusResponse, error) {
	out := &StatusResponse{}
	err := c.conn.Invoke(ctx, "/"+SessionServiceName+"/GetStatus", &Empty{}, out, grpc.CallContentSubtype(CodecName))
	if err != nil {
		return nil, err
	}
	return out, nil
}
