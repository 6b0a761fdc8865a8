package model

import "errors"

// Error classes shared by the backend, the transport and the client.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnavailable      = errors.New("service unavailable")
	ErrForbidden        = errors.New("not allowed")
	ErrNotFound         = errors.New("not found")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrUnauthenticated  = errors.New("not signed in")
	ErrRateLimited      = errors.New("rate limited")
	ErrConflict         = errors.New("already exists")
)
