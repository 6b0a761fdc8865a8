package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/matheus3301/quickchat/internal/api"
	"github.com/matheus3301/quickchat/internal/backend"
	"github.com/matheus3301/quickchat/internal/config"
	"github.com/matheus3301/quickchat/internal/session"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Server manages the gRPC server lifecycle of chatd.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// listenAddress turns server.listen into a net.Listen pair. Empty means the
// Unix socket in the data directory.
func listenAddress(cfg *config.Config) (network, address string) {
	listen := cfg.Server.Listen
	if listen == "" {
		return "unix", session.SocketPath(session.ServerDir(cfg))
	}
	if path, ok := strings.CutPrefix(listen, "unix://"); ok {
		return "unix", path
	}
	return "tcp", listen
}

// NewServer creates the gRPC server and binds its listener.
func NewServer(cfg *config.Config, logger *zap.Logger, svc *backend.Service, chat *api.ChatService) (*Server, error) {
	network, address := listenAddress(cfg)

	var socketPath string
	if network == "unix" {
		socketPath = address
		// Clean stale socket if it exists.
		if _, err := os.Stat(socketPath); err == nil {
			_ = os.Remove(socketPath)
		}
	}

	listener, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("listen %s %s: %w", network, address, err)
	}
	if socketPath != "" {
		if err := os.Chmod(socketPath, 0600); err != nil {
			_ = listener.Close()
			return nil, fmt.Errorf("chmod socket: %w", err)
		}
	}

	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(api.UnaryInterceptor(svc, logger)),
		grpc.ChainStreamInterceptor(api.StreamInterceptor(svc, logger)),
	)
	api.Register(srv, chat)

	return &Server{
		grpcServer: srv,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger.Named("grpc"),
	}, nil
}

// Target returns the address a client dials to reach this server.
func (s *Server) Target() string {
	if s.socketPath != "" {
		return "unix://" + s.socketPath
	}
	return s.listener.Addr().String()
}

// Start begins serving gRPC requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("gRPC server starting", zap.String("address", s.Target()))
	return s.grpcServer.Serve(s.listener)
}

// Stop performs a graceful shutdown and removes the socket file. Open feed
// streams are cut once ctx expires.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("gRPC server stopping")
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
	if s.socketPath != "" {
		_ = os.Remove(s.socketPath)
	}
}
