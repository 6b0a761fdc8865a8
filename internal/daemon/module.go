// Package daemon assembles chatd: storage, change feed, the chat service and
// the servers in front of it.
package daemon

import (
	"context"
	"time"

	"github.com/matheus3301/quickchat/internal/api"
	"github.com/matheus3301/quickchat/internal/backend"
	"github.com/matheus3301/quickchat/internal/bus"
	"github.com/matheus3301/quickchat/internal/config"
	"github.com/matheus3301/quickchat/internal/feed"
	"github.com/matheus3301/quickchat/internal/lock"
	"github.com/matheus3301/quickchat/internal/logging"
	"github.com/matheus3301/quickchat/internal/session"
	"github.com/matheus3301/quickchat/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// PruneInterval is how often expired tokens are removed.
const PruneInterval = time.Hour

// Params holds command line overrides passed to the fx module.
type Params struct {
	ConfigPath  string
	DataDir     string // overrides server.data_dir
	Listen      string // overrides server.listen
	AdminListen string // overrides server.admin_listen
}

// Module returns the fx module for chatd, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("chatd",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideLock,
			provideStore,
			provideBus,
			provideBroker,
			provideRegistry,
			provideMetrics,
			provideService,
			provideChatService,
			NewServer,
			NewAdmin,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = session.ConfigPath()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	if p.DataDir != "" {
		cfg.Server.DataDir = p.DataDir
	}
	if p.Listen != "" {
		cfg.Server.Listen = p.Listen
	}
	if p.AdminListen != "" {
		cfg.Server.AdminListen = p.AdminListen
	}
	return cfg, nil
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	dataDir := session.ServerDir(cfg)
	if err := session.EnsureServerDir(dataDir); err != nil {
		return nil, err
	}
	return logging.New(session.LogPath(dataDir), "chatd", cfg.Server.LogLevel)
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	dataDir := session.ServerDir(cfg)
	logger.Info("acquiring data dir lock", zap.String("dir", dataDir))
	l, err := lock.Acquire(dataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired")
	return l, nil
}

// provideStore takes the lock so the database is never opened without it.
func provideStore(cfg *config.Config, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(session.ServerDir(cfg))
	db, err := store.Open(dbPath)
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
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideBroker(cfg *config.Config, b *bus.Bus, logger *zap.Logger) (feed.Broker, error) {
	if cfg.Server.RedisURL == "" {
		logger.Info("change feed: in-process")
		return feed.NewLocal(b, logger), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r, err := feed.NewRedis(ctx, cfg.Server.RedisURL, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("change feed: redis", zap.String("channel", feed.DefaultChannel))
	return r, nil
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideMetrics(reg *prometheus.Registry, db *store.DB) *backend.Metrics {
	registerStoreGauges(reg, db)
	return backend.NewMetrics(reg)
}

// registerStoreGauges exposes table sizes, read at scrape time.
func registerStoreGauges(reg prometheus.Registerer, db *store.DB) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "quickchat", Name: "messages_stored", Help: "Messages currently stored.",
	}, func() float64 {
		n, err := db.MessageCount()
		if err != nil {
			return -1
		}
		return float64(n)
	}))
}

func provideService(cfg *config.Config, db *store.DB, broker feed.Broker, m *backend.Metrics, logger *zap.Logger) *backend.Service {
	return backend.NewService(db, broker, m, logger, backend.Options{
		TokenTTL:  cfg.Server.TokenTTL(),
		SendRate:  cfg.Server.SendRate,
		SendBurst: cfg.Server.SendBurst,
	})
}

func provideChatService(svc *backend.Service, logger *zap.Logger) *api.ChatService {
	return api.NewChatService(svc, logger)
}

// pruneSessions removes expired tokens every interval until ctx is done.
func pruneSessions(ctx context.Context, svc *backend.Service, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.PruneSessions(ctx)
			if err != nil {
				logger.Warn("prune sessions failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("expired sessions pruned", zap.Int64("count", n))
			}
		}
	}
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, admin *Admin, svc *backend.Service, broker feed.Broker, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	pruneCtx, stopPrune := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if admin != nil {
				if err := admin.Start(); err != nil {
					return err
				}
			}

			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			go pruneSessions(pruneCtx, svc, PruneInterval, logger)
			logger.Info("chatd ready", zap.String("address", srv.Target()))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopPrune()
			srv.Stop(ctx)
			if admin != nil {
				if err := admin.Stop(ctx); err != nil {
					logger.Warn("error stopping admin server", zap.Error(err))
				}
			}
			if err := broker.Close(); err != nil {
				logger.Warn("error closing change feed", zap.Error(err))
			}
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("chatd stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
