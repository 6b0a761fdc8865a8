package api

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	grpcstatus "google.golang.org/grpc/status"
)

const authorizationHeader = "authorization"

// Authenticator resolves bearer tokens to user ids.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

type callerKey struct{}

// Caller identifies the user behind a request.
type Caller struct {
	UserID string
	Token  string
}

func withCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the authenticated caller stored in ctx.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

func bearerToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(authorizationHeader) {
		if token, ok := strings.CutPrefix(v, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return ""
}

func authenticate(ctx context.Context, auth Authenticator, fullMethod string) (context.Context, error) {
	token := bearerToken(ctx)
	if publicMethods[fullMethod] {
		return ctx, nil
	}
	userID, err := auth.Authenticate(ctx, token)
	if err != nil {
		return nil, toStatus(err)
	}
	return withCaller(ctx, Caller{UserID: userID, Token: token}), nil
}

// UnaryInterceptor authenticates non-public calls and logs every call.
func UnaryInterceptor(auth Authenticator, logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		ctx, err := authenticate(ctx, auth, info.FullMethod)
		var resp any
		if err == nil {
			resp, err = handler(ctx, req)
		}
		logCall(logger, info.FullMethod, start, err)
		return resp, err
	}
}

// StreamInterceptor is UnaryInterceptor for streaming calls.
func StreamInterceptor(auth Authenticator, logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		ctx, err := authenticate(ss.Context(), auth, info.FullMethod)
		if err == nil {
			err = handler(srv, &callerStream{ServerStream: ss, ctx: ctx})
		}
		logCall(logger, info.FullMethod, start, err)
		return err
	}
}

type callerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *callerStream) Context() context.Context { return s.ctx }

func logCall(logger *zap.Logger, method string, start time.Time, err error) {
	code := grpcstatus.Code(err)
	fields := []zap.Field{
		zap.String("method", method),
		zap.String("code", code.String()),
		zap.Duration("duration", time.Since(start)),
	}
	switch code {
	case codes.OK, codes.Canceled:
		logger.Debug("rpc", fields...)
	case codes.Internal, codes.Unknown:
		logger.Error("rpc", append(fields, zap.Error(err))...)
	default:
		logger.Info("rpc", append(fields, zap.Error(err))...)
	}
}
