package api

import (
	"context"
	"errors"

	"github.com/signalsfoundry/displacement-playback/internal/backend"
	"github.com/signalsfoundry/displacement-playback/internal/session"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrInvalidArgument marks malformed requests.
var ErrInvalidArgument = errors.New("invalid argument")

// ToStatusError maps session and backend errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, backend.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, ErrInvalidArgument),
		errors.Is(err, session.ErrInvalidResultID):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, session.ErrNotReady),
		errors.Is(err, session.ErrNotFailed),
		errors.Is(err, session.ErrClosed):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, backend.ErrUpstream):
		return status.Error(codes.Unavailable, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
