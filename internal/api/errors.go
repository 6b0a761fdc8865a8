package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/quickchat/internal/model"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

var codeOf = []struct {
	err  error
	code codes.Code
}{
	{model.ErrInvalidArgument, codes.InvalidArgument},
	{model.ErrNotFound, codes.NotFound},
	{model.ErrForbidden, codes.PermissionDenied},
	{model.ErrUnauthenticated, codes.Unauthenticated},
	{model.ErrRateLimited, codes.ResourceExhausted},
	{model.ErrConflict, codes.AlreadyExists},
	{model.ErrUnavailable, codes.Unavailable},
}

// toStatus converts a service error into a gRPC status. Errors outside the
// known classes are reported as internal without their text.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := grpcstatus.FromError(err); ok {
		return err
	}
	for _, c := range codeOf {
		if errors.Is(err, c.err) {
			return grpcstatus.Error(c.code, err.Error())
		}
	}
	if errors.Is(err, context.Canceled) {
		return grpcstatus.Error(codes.Canceled, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return grpcstatus.Error(codes.DeadlineExceeded, err.Error())
	}
	return grpcstatus.Error(codes.Internal, "internal error")
}

// fromStatus turns a gRPC error back into the matching model sentinel. Transport
// failures and timeouts become model.ErrUnavailable.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := grpcstatus.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %w", model.ErrUnavailable, err)
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled, codes.Internal, codes.Unknown:
		return fmt.Errorf("%s: %w", st.Message(), model.ErrUnavailable)
	}
	for _, c := range codeOf {
		if st.Code() == c.code {
			return fmt.Errorf("%s: %w", st.Message(), c.err)
		}
	}
	return fmt.Errorf("%s: %w", st.Message(), model.ErrUnavailable)
}
