package chatrpc

import (
	"context"

	"google.golang.org/grpc"
)

// ChatServiceServer is implemented by the daemon's chat API.
type ChatServiceServer interface {
	ActivateRide(context.Context, *ActivateRideRequest) (*Empty, error)
	DeactivateRide(context.Context, *Empty) (*Empty, error)
	OpenChat(context.Context, *Empty) (*Empty, error)
	CloseChat(context.Context, *Empty) (*Empty, error)
	SendText(context.Context, *SendTextRequest) (*SendResponse, error)
	SendVoice(context.Context, *SendVoiceRequest) (*SendResponse, error)
	Retry(context.Context, *RetryRequest) (*Empty, error)
	React(context.Context, *ReactRequest) (*Empty, error)
	Typing(context.Context, *Empty) (*Empty, error)
	GetThread(context.Context, *Empty) (*ThreadResponse, error)
	WatchEvents(*WatchEventsRequest, grpc.ServerStreamingServer[Event]) error
}

// SessionServiceServer reports daemon state.
type SessionServiceServer interface {
	GetStatus(context.Context, *Empty) (*StatusResponse, error)
}

const (
	ChatServiceName    = "ridechat.v1.ChatService"
	SessionServiceName = "ridechat.v1.SessionService"
)

// unary builds a method descriptor that decodes Req and dispatches to call.
func unary[S any, Req any, Resp any](service, method string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func chatUnary[Req any, Resp any](method string, call func(ChatServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return unary(ChatServiceName, method, call)
}

// ChatServiceDesc describes ridechat.v1.ChatService.
var ChatServiceDesc = grpc.ServiceDesc{
	ServiceName: ChatServiceName,
	HandlerType: (*ChatServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		chatUnary("ActivateRide", ChatServiceServer.ActivateRide),
		chatUnary("DeactivateRide", ChatServiceServer.DeactivateRide),
		chatUnary("OpenChat", ChatServiceServer.OpenChat),
		chatUnary("CloseChat", ChatServiceServer.CloseChat),
		chatUnary("SendText", ChatServiceServer.SendText),
		chatUnary("SendVoice", ChatServiceServer.SendVoice),
		chatUnary("Retry", ChatServiceServer.Retry),
		chatUnary("React", ChatServiceServer.React),
		chatUnary("Typing", ChatServiceServer.Typing),
		chatUnary("GetThread", ChatServiceServer.GetThread),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			Handler:       watchEventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "ridechat/v1/chat.json",
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchEventsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ChatServiceServer).WatchEvents(in, &grpc.GenericServerStream[WatchEventsRequest, Event]{ServerStream: stream})
}

// SessionServiceDesc describes ridechat.v1.SessionService.
var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionServiceName,
	HandlerType: (*SessionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(SessionServiceName, "GetStatus", SessionServiceServer.GetStatus),
	},
	Metadata: "ridechat/v1/session.json",
}

// RegisterChatService registers srv on s.
func RegisterChatService(s grpc.ServiceRegistrar, srv ChatServiceServer) {
	s.RegisterService(&ChatServiceDesc, srv)
}

// RegisterSessionService registers srv on s.
func RegisterSessionService(s grpc.ServiceRegistrar, srv SessionServiceServer) {
	s.RegisterService(&SessionServiceDesc, srv)
}
