// Package daemon composes the per-user background process: it owns the
// network observer, the chat manager, and the periodic sync loop.
package daemon

import (
	"context"

	"github.com/fadeline/chat/internal/api"
	"github.com/fadeline/chat/internal/bus"
	"github.com/fadeline/chat/internal/chat"
	"github.com/fadeline/chat/internal/config"
	"github.com/fadeline/chat/internal/lock"
	"github.com/fadeline/chat/internal/logging"
	"github.com/fadeline/chat/internal/netstatus"
	"github.com/fadeline/chat/internal/outbox"
	"github.com/fadeline/chat/internal/session"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved user identity passed to the fx module.
type Params struct {
	UserID string
}

// Module returns the fx module for the daemon, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideClient,
			provideObserver,
			provideManager,
			providePoller,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	return config.Load(session.ConfigPath())
}

func provideLogger(p Params) (*zap.Logger, error) {
	if err := session.EnsureDir(p.UserID); err != nil {
		return nil, err
	}
	return logging.New(session.LogPath(p.UserID), p.UserID)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring daemon lock", zap.String("user", p.UserID))
	l, err := lock.Acquire(session.Dir(p.UserID))
	if err != nil {
		return nil, err
	}
	logger.Info("daemon lock acquired")
	return l, nil
}

func provideClient(p Params, cfg *config.Config) *api.Client {
	token := func() (string, error) {
		return session.LoadToken(p.UserID)
	}
	return api.NewClient(cfg.API.BaseURL, cfg.RequestTimeout(), token)
}

func provideObserver(client *api.Client, cfg *config.Config, b *bus.Bus, logger *zap.Logger) *netstatus.Observer {
	return netstatus.NewObserver(client, cfg.ProbeInterval(), b, logger)
}

func provideManager(cfg *config.Config, b *bus.Bus, client *api.Client, obs *netstatus.Observer, logger *zap.Logger) *chat.Manager {
	return chat.NewManager(chat.Deps{
		Bus:    b,
		Client: client,
		Online: obs.Online,
		Outbox: outbox.Config{
			MaxRetries: cfg.Sync.RetryLimit,
			Interval:   cfg.SyncInterval(),
		},
		DBPath: func(userID string) (string, error) {
			if err := session.EnsureDir(userID); err != nil {
				return "", err
			}
			return session.DBPath(userID), nil
		},
		Logger: logger,
	})
}

func providePoller(m *chat.Manager, obs *netstatus.Observer, cfg *config.Config, logger *zap.Logger) *Poller {
	return NewPoller(m, obs.Online, cfg.SyncInterval(), cfg.MessageMaxAge(), logger)
}

func registerLifecycle(lc fx.Lifecycle, p Params, m *chat.Manager, obs *netstatus.Observer, poller *Poller, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// The observer runs a synchronous probe so the manager's
			// first sync decision sees a real connectivity answer.
			obs.Start(context.Background())

			if err := m.Initialize(p.UserID); err != nil {
				obs.Stop()
				return err
			}

			poller.Start(context.Background())
			logger.Info("daemon started", zap.String("user", p.UserID))
			return nil
		},
		OnStop: func(_ context.Context) error {
			poller.Stop()
			m.Close()
			obs.Stop()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
