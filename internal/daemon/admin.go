package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/matheus3301/quickchat/internal/config"
	"github.com/matheus3301/quickchat/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Admin is the HTTP side of chatd: health probes and Prometheus metrics.
type Admin struct {
	addr   string
	srv    *http.Server
	logger *zap.Logger
}

// NewAdmin returns nil when server.admin_listen is empty.
func NewAdmin(cfg *config.Config, reg *prometheus.Registry, db *store.DB, logger *zap.Logger) *Admin {
	if cfg.Server.AdminListen == "" {
		return nil
	}
	return &Admin{
		addr: cfg.Server.AdminListen,
		srv: &http.Server{
			Handler:           adminRouter(reg, db),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.Named("admin"),
	}
}

func adminRouter(reg *prometheus.Registry, db *store.DB) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ready"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return r
}

// Start binds the listener and serves in the background.
func (a *Admin) Start() error {
	lis, err := net.Listen("tcp", a.addr)
	if err != nil {
		return err
	}
	a.logger.Info("admin server starting", zap.String("address", lis.Addr().String()))
	go func() {
		if err := a.srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("admin server error", zap.Error(err))
		}
	}()
	return nil
}

func (a *Admin) Stop(ctx context.Context) error {
	return a.srv.Shutdown(ctx)
}
