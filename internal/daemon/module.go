package daemon

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/ridechat/internal/api"
	"github.com/matheus3301/ridechat/internal/auth"
	"github.com/matheus3301/ridechat/internal/bus"
	"github.com/matheus3301/ridechat/internal/clock"
	"github.com/matheus3301/ridechat/internal/config"
	"github.com/matheus3301/ridechat/internal/coordinator"
	"github.com/matheus3301/ridechat/internal/lock"
	"github.com/matheus3301/ridechat/internal/logging"
	"github.com/matheus3301/ridechat/internal/metrics"
	"github.com/matheus3301/ridechat/internal/msgstore"
	"github.com/matheus3301/ridechat/internal/msgstore/postgres"
	"github.com/matheus3301/ridechat/internal/msgstore/sqlite"
	"github.com/matheus3301/ridechat/internal/outbox"
	"github.com/matheus3301/ridechat/internal/profile"
	"github.com/matheus3301/ridechat/internal/reconcile"
	"github.com/matheus3301/ridechat/internal/status"
	"github.com/matheus3301/ridechat/internal/voice"
)

// connectTimeout bounds opening the message store at startup.
const connectTimeout = 15 * time.Second

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile    string
	SocketPath string // optional override for testing; empty = use default
	ConfigPath string // empty = ~/.ridechat/config.toml
	Debug      bool

	// Backend replaces the configured store. Tests inject an in-memory one.
	Backend msgstore.Backend
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideMetrics,
			provideLock,
			provideIdentity,
			provideBackend,
			provideClient,
			provideVoice,
			provideSender,
			provideCoordinator,
			provideEngine,
			provideSessionService,
			provideChatService,
			NewServer,
			NewMetricsServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = profile.ConfigPath()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config after environment: %w", err)
	}
	return cfg, nil
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Path:    profile.LogPath(p.Profile),
		Profile: p.Profile,
		Debug:   p.Debug,
	})
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideMetrics() *metrics.Metrics {
	return metrics.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideIdentity(p Params, cfg *config.Config, logger *zap.Logger) auth.Identity {
	path := cfg.Auth.TokenFile
	if path == "" {
		path = profile.TokenPath(p.Profile)
	}
	return auth.NewTokenIdentity(path, cfg.Auth.Token, cfg.Auth.JWTSecret, logger.Named("auth"))
}

// provideBackend depends on the lock so two daemons never share a profile's store handle.
func provideBackend(p Params, cfg *config.Config, _ *lock.Lock, logger *zap.Logger) (msgstore.Backend, error) {
	if p.Backend != nil {
		return p.Backend, nil
	}

	switch cfg.Store.Backend {
	case config.BackendPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		s, err := postgres.Connect(ctx, cfg.Store.DatabaseURL, postgres.Options{
			ApplySchema: cfg.Store.ApplySchema,
		}, logger.Named("postgres"))
		if err != nil {
			return nil, err
		}
		logger.Info("store initialized", zap.String("backend", config.BackendPostgres))
		return s, nil

	default:
		path := cfg.Store.SQLitePath
		if path == "" {
			path = profile.SharedDBPath()
		}
		db, err := sqlite.Open(path, cfg.Store.PollInterval.D(), logger.Named("sqlite"))
		if err != nil {
			return nil, err
		}
		result, err := db.Migrate()
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		if result.Changed {
			logger.Info("migrations applied", zap.Uint("version", result.Version))
		} else {
			logger.Info("migrations up to date", zap.Uint("version", result.Version))
		}
		logger.Info("store initialized", zap.String("backend", config.BackendSQLite), zap.String("path", path))
		return db, nil
	}
}

func provideClient(backend msgstore.Backend, identity auth.Identity, cfg *config.Config, logger *zap.Logger) *msgstore.Client {
	return msgstore.NewClient(backend, identity, cfg.Chat.TypingInterval.D(), logger.Named("msgstore"))
}

func provideVoice(p Params) (*voice.DirStore, error) {
	return voice.NewDirStore(profile.VoiceDir(p.Profile))
}

func provideSender(client *msgstore.Client, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(client, b, m, logger.Named("outbox"))
}

func provideCoordinator(client *msgstore.Client, b *bus.Bus, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) *coordinator.Coordinator {
	return coordinator.New(client, coordinator.BusObserver{Bus: b}, clock.Real(), cfg.Chat.TypingTimeout.D(), m, logger.Named("coordinator"))
}

func provideEngine(
	client *msgstore.Client,
	sender *outbox.Sender,
	coord *coordinator.Coordinator,
	voices *voice.DirStore,
	machine *status.Machine,
	m *metrics.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) *reconcile.Engine {
	return reconcile.NewEngine(reconcile.Config{
		Store:           client,
		Outbox:          sender,
		Notifier:        coord,
		Voice:           voices,
		Status:          machine,
		Clock:           clock.Real(),
		Metrics:         m,
		EchoWindow:      cfg.Chat.EchoWindow.D(),
		DeliveredDelay:  cfg.Chat.DeliveredDelay.D(),
		DropFailedSends: cfg.Chat.DropFailedSends,
		ResubscribeMin:  cfg.Chat.ResubscribeMin.D(),
		ResubscribeMax:  cfg.Chat.ResubscribeMax.D(),
	}, logger.Named("reconcile"))
}

func provideSessionService(p Params, cfg *config.Config, m *status.Machine, identity auth.Identity, engine *reconcile.Engine) *api.SessionService {
	backend := cfg.Store.Backend
	if p.Backend != nil {
		backend = "injected"
	}
	return api.NewSessionService(p.Profile, backend, m, identity, engine)
}

func provideChatService(engine *reconcile.Engine, coord *coordinator.Coordinator, b *bus.Bus, logger *zap.Logger) *api.ChatService {
	return api.NewChatService(engine, coord, b, logger.Named("api"))
}

type lifecycleDeps struct {
	fx.In

	Server   *Server
	Metrics  *MetricsServer
	Lock     *lock.Lock
	Backend  msgstore.Backend
	Identity auth.Identity
	Sender   *outbox.Sender
	Coord    *coordinator.Coordinator
	Engine   *reconcile.Engine
	Machine  *status.Machine
	Logger   *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleDeps) {
	logger := d.Logger
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// The engine receives send results from the outbox.
			d.Sender.Start(context.Background(), d.Engine)

			// Start gRPC server in background.
			go func() {
				if err := d.Server.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if err := d.Metrics.Start(); err != nil {
				return err
			}

			if _, ok := d.Identity.CurrentUserID(); !ok {
				logger.Info("no access token found, auth required")
				_ = d.Machine.Transition(status.AuthRequired, "no access token")
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			// Drop the live subscription before the store goes away.
			d.Engine.Deactivate()
			d.Sender.Stop()
			d.Coord.Wait()
			d.Server.Stop(ctx)
			d.Metrics.Stop(ctx)
			if err := d.Backend.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
