package api

import (
	"context"
	"time"

	"github.com/matheus3301/ridechat/internal/auth"
	"github.com/matheus3301/ridechat/internal/chatrpc"
	"github.com/matheus3301/ridechat/internal/reconcile"
	"github.com/matheus3301/ridechat/internal/status"
)

// SessionService implements the SessionService gRPC service.
type SessionService struct {
	profile   string
	backend   string
	startedAt time.Time
	machine   *status.Machine
	identity  auth.Identity
	engine    *reconcile.Engine
}

// NewSessionService creates a new session service.
func NewSessionService(profile, backend string, machine *status.Machine, identity auth.Identity, engine *reconcile.Engine) *SessionService {
	return &SessionService{
		profile:   profile,
		backend:   backend,
		startedAt: time.Now(),
		machine:   machine,
		identity:  identity,
		engine:    engine,
	}
}

func (s *SessionService) GetStatus(context.Context, *chatrpc.Empty) (*chatrpc.StatusResponse, error) {
	resp := &chatrpc.StatusResponse{
		Profile:  s.profile,
		Backend:  s.backend,
		Status:   *statusInfo(s.machine.Snapshot()),
		UptimeMs: time.Since(s.startedAt).Milliseconds(),
	}
	if s.identity != nil {
		resp.UserID, _ = s.identity.CurrentUserID()
	}
	if s.engine != nil {
		resp.RideID = s.engine.RideID()
	}
	return resp, nil
}
