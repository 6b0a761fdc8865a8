package daemon

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/quickchat/internal/api"
	"github.com/matheus3301/quickchat/internal/backend"
	"github.com/matheus3301/quickchat/internal/bus"
	"github.com/matheus3301/quickchat/internal/config"
	"github.com/matheus3301/quickchat/internal/feed"
	"github.com/matheus3301/quickchat/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// tempDataDir keeps socket paths short enough for the Unix socket limit.
func tempDataDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "qc-daemon-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func newService(t *testing.T, dir string) (*backend.Service, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(dir, "quickchat.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	logger := zap.NewNop()
	svc := backend.NewService(db, feed.NewLocal(bus.New(), logger), nil, logger, backend.Options{BcryptCost: bcrypt.MinCost})
	return svc, db
}

func TestListenAddress(t *testing.T) {
	cfg := config.Default()
	cfg.Server.DataDir = "/srv/qc"

	tests := []struct {
		listen      string
		wantNetwork string
		wantAddress string
	}{
		{"", "unix", "/srv/qc/chatd.sock"},
		{"unix:///run/chatd.sock", "unix", "/run/chatd.sock"},
		{"0.0.0.0:7400", "tcp", "0.0.0.0:7400"},
	}
	for _, tt := range tests {
		cfg.Server.Listen = tt.listen
		network, address := listenAddress(cfg)
		if network != tt.wantNetwork || address != tt.wantAddress {
			t.Errorf("listenAddress(%q) = %s %s, want %s %s", tt.listen, network, address, tt.wantNetwork, tt.wantAddress)
		}
	}
}

func TestServerOnUnixSocket(t *testing.T) {
	dir := tempDataDir(t)
	svc, _ := newService(t, dir)
	cfg := config.Default()
	cfg.Server.DataDir = dir

	srv, err := NewServer(cfg, zap.NewNop(), svc, api.NewChatService(svc, zap.NewNop()))
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	socket := filepath.Join(dir, "chatd.sock")
	info, err := os.Stat(socket)
	if err != nil {
		t.Fatalf("socket not created at %s: %v", socket, err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("socket permission = %o, want 0600", perm)
	}
	go func() { _ = srv.Start() }()

	c, err := api.Dial(srv.Target(), 5*time.Second, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()
	res, err := c.SignUp(context.Background(), api.SignUpRequest{
		Email: "alice@example.com", Password: "secret123", FullName: "Alice",
	})
	if err != nil {
		t.Fatalf("SignUp over socket: %v", err)
	}
	if res.Token == "" {
		t.Error("no token issued")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	srv.Stop(ctx)
	if _, err := os.Stat(socket); !os.IsNotExist(err) {
		t.Errorf("socket not removed after Stop: %v", err)
	}
}

func TestServerOnTCP(t *testing.T) {
	dir := tempDataDir(t)
	svc, _ := newService(t, dir)
	cfg := config.Default()
	cfg.Server.Listen = "127.0.0.1:0"

	srv, err := NewServer(cfg, zap.NewNop(), svc, api.NewChatService(svc, zap.NewNop()))
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Start() }()
	defer srv.Stop(context.Background())

	if strings.HasPrefix(srv.Target(), "unix://") {
		t.Fatalf("Target() = %q, want a TCP address", srv.Target())
	}
	c, err := api.Dial(srv.Target(), 5*time.Second, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()
	if _, err := c.SignUp(context.Background(), api.SignUpRequest{
		Email: "bob@example.com", Password: "secret123", FullName: "Bob",
	}); err != nil {
		t.Fatalf("SignUp over tcp: %v", err)
	}
}

func TestAdminRoutes(t *testing.T) {
	dir := tempDataDir(t)
	_, db := newService(t, dir)
	reg := prometheus.NewRegistry()
	registerStoreGauges(reg, db)
	m := backend.NewMetrics(reg)
	m.MessagesSent.Inc()

	ts := httptest.NewServer(adminRouter(reg, db))
	defer ts.Close()

	get := func(path string) (int, string) {
		t.Helper()
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	if code, _ := get("/healthz"); code != http.StatusOK {
		t.Errorf("/healthz = %d", code)
	}
	if code, _ := get("/readyz"); code != http.StatusOK {
		t.Errorf("/readyz = %d", code)
	}
	code, body := get("/metrics")
	if code != http.StatusOK || !strings.Contains(body, "quickchat_messages_sent_total 1") || !strings.Contains(body, "quickchat_messages_stored 0") {
		t.Errorf("/metrics = %d\n%s", code, body)
	}

	_ = db.Close()
	if code, _ := get("/readyz"); code != http.StatusServiceUnavailable {
		t.Errorf("/readyz after close = %d, want 503", code)
	}
}

func TestProvideConfigOverrides(t *testing.T) {
	cfg, err := provideConfig(Params{
		ConfigPath:  filepath.Join(t.TempDir(), "missing.toml"),
		DataDir:     "/srv/qc",
		Listen:      "127.0.0.1:7400",
		AdminListen: "",
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.DataDir != "/srv/qc" || cfg.Server.Listen != "127.0.0.1:7400" {
		t.Errorf("server config = %+v", cfg.Server)
	}
	if cfg.Server.AdminListen != config.Default().Server.AdminListen {
		t.Errorf("AdminListen = %q, want default", cfg.Server.AdminListen)
	}
}

// TestFxModuleWiring verifies the fx dependency graph resolves without errors.
func TestFxModuleWiring(t *testing.T) {
	if err := fx.ValidateApp(Module(Params{DataDir: tempDataDir(t)})); err != nil {
		t.Fatalf("ValidateApp() error = %v", err)
	}
}

func TestModuleLifecycle(t *testing.T) {
	dir := tempDataDir(t)
	var srv *Server
	app := fxtest.New(t,
		fx.NopLogger,
		Module(Params{
			ConfigPath:  filepath.Join(dir, "config.toml"),
			DataDir:     dir,
			AdminListen: "127.0.0.1:0",
		}),
		fx.Populate(&srv),
	)
	app.RequireStart()

	if _, err := os.Stat(filepath.Join(dir, "LOCK")); err != nil {
		t.Errorf("lock not held: %v", err)
	}
	c, err := api.Dial(srv.Target(), 5*time.Second, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()
	if _, err := c.SignUp(context.Background(), api.SignUpRequest{
		Email: "carol@example.com", Password: "secret123", FullName: "Carol",
	}); err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	app.RequireStop()
	if _, err := os.Stat(filepath.Join(dir, "LOCK")); !os.IsNotExist(err) {
		t.Errorf("lock file left after stop: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "quickchat.db")); err != nil {
		t.Errorf("database not created: %v", err)
	}
}
