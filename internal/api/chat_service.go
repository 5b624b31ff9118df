package api

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/matheus3301/ridechat/internal/bus"
	"github.com/matheus3301/ridechat/internal/chat"
	"github.com/matheus3301/ridechat/internal/chatrpc"
	"github.com/matheus3301/ridechat/internal/coordinator"
	"github.com/matheus3301/ridechat/internal/reconcile"
	"github.com/matheus3301/ridechat/internal/voice"
)

// ChatService implements the ChatService gRPC service.
type ChatService struct {
	engine *reconcile.Engine
	coord  *coordinator.Coordinator
	bus    *bus.Bus
	logger *zap.Logger
}

// NewChatService creates a chat service driving the engine and coordinator.
func NewChatService(engine *reconcile.Engine, coord *coordinator.Coordinator, b *bus.Bus, logger *zap.Logger) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{engine: engine, coord: coord, bus: b, logger: logger}
}

func (s *ChatService) ActivateRide(ctx context.Context, req *chatrpc.ActivateRideRequest) (*chatrpc.Empty, error) {
	if req.RideID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "ride id is required")
	}
	if err := s.engine.Activate(ctx, req.RideID); err != nil {
		return nil, toStatus("activate ride", err)
	}
	return &chatrpc.Empty{}, nil
}

func (s *ChatService) DeactivateRide(context.Context, *chatrpc.Empty) (*chatrpc.Empty, error) {
	s.engine.Deactivate()
	return &chatrpc.Empty{}, nil
}

func (s *ChatService) OpenChat(context.Context, *chatrpc.Empty) (*chatrpc.Empty, error) {
	if s.engine.RideID() == "" {
		return nil, toStatus("open chat", reconcile.ErrNoActiveRide)
	}
	s.coord.Open()
	return &chatrpc.Empty{}, nil
}

func (s *ChatService) CloseChat(context.Context, *chatrpc.Empty) (*chatrpc.Empty, error) {
	s.coord.Close()
	return &chatrpc.Empty{}, nil
}

func (s *ChatService) SendText(_ context.Context, req *chatrpc.SendTextRequest) (*chatrpc.SendResponse, error) {
	id, err := s.engine.Send(req.Text)
	if err != nil {
		return nil, toStatus("send", err)
	}
	return &chatrpc.SendResponse{LocalID: id}, nil
}

func (s *ChatService) SendVoice(ctx context.Context, req *chatrpc.SendVoiceRequest) (*chatrpc.SendResponse, error) {
	id, err := s.engine.SendVoice(ctx, bytes.NewReader(req.Audio))
	if err != nil {
		return nil, toStatus("send voice", err)
	}
	return &chatrpc.SendResponse{LocalID: id}, nil
}

func (s *ChatService) Retry(_ context.Context, req *chatrpc.RetryRequest) (*chatrpc.Empty, error) {
	if err := s.engine.Retry(req.LocalID); err != nil {
		return nil, toStatus("retry", err)
	}
	return &chatrpc.Empty{}, nil
}

func (s *ChatService) React(_ context.Context, req *chatrpc.ReactRequest) (*chatrpc.Empty, error) {
	if err := s.engine.React(req.ID, req.Reaction); err != nil {
		return nil, toStatus("react", err)
	}
	return &chatrpc.Empty{}, nil
}

func (s *ChatService) Typing(context.Context, *chatrpc.Empty) (*chatrpc.Empty, error) {
	s.engine.NotifyTyping()
	return &chatrpc.Empty{}, nil
}

func (s *ChatService) GetThread(context.Context, *chatrpc.Empty) (*chatrpc.ThreadResponse, error) {
	st := s.coord.State()
	return &chatrpc.ThreadResponse{
		RideID:   s.engine.RideID(),
		Open:     st.Open,
		Unread:   st.Unread,
		Typing:   st.Typing,
		Messages: chatrpc.FromChat(s.engine.Snapshot()),
	}, nil
}

func (s *ChatService) WatchEvents(req *chatrpc.WatchEventsRequest, stream grpc.ServerStreamingServer[chatrpc.Event]) error {
	ch, unsub := s.bus.Subscribe(req.Namespace, 256)
	defer unsub()

	// Replay the current thread first so a watcher never starts blind.
	if strings.HasPrefix(string(bus.KindListChanged), req.Namespace) {
		first := &chatrpc.Event{
			Kind:     string(bus.KindListChanged),
			At:       time.Now(),
			Messages: chatrpc.FromChat(s.engine.Snapshot()),
		}
		if err := stream.Send(first); err != nil {
			return err
		}
	}

	for {
		select {
		case evt := <-ch:
			out, ok := toEvent(evt)
			if !ok {
				continue
			}
			if err := stream.Send(out); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

// toStatus maps engine errors onto gRPC codes.
func toStatus(op string, err error) error {
	code := codes.Internal
	switch {
	case chat.IsAuth(err):
		code = codes.Unauthenticated
	case errors.Is(err, reconcile.ErrNoActiveRide), errors.Is(err, reconcile.ErrNoVoiceStore):
		code = codes.FailedPrecondition
	case errors.Is(err, reconcile.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, reconcile.ErrInvalidMessage), errors.Is(err, reconcile.ErrNotFailed),
		errors.Is(err, voice.ErrTooLarge), errors.Is(err, voice.ErrInvalidPath), errors.Is(err, voice.ErrEmpty):
		code = codes.InvalidArgument
	}
	return grpcstatus.Errorf(code, "%s: %v", op, err)
}
