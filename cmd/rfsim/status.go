package main

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/rf-propagation-sim/config"
	"github.com/signalsfoundry/rf-propagation-sim/engine"
	"github.com/signalsfoundry/rf-propagation-sim/model"
)

// toStatusError maps simulator errors onto gRPC status codes. Errors that
// already carry a status are returned unchanged.
func toStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	case errors.Is(err, config.ErrSourceUnresolved):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, config.ErrInvalidDocument),
		errors.Is(err, model.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, model.ErrConfiguration),
		errors.Is(err, engine.ErrNoActiveScene):
		return status.Error(codes.FailedPrecondition, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// exitCode derives the process exit status from err.
func exitCode(err error) int {
	switch status.Code(toStatusError(err)) {
	case codes.OK:
		return 0
	case codes.InvalidArgument:
		return 2
	case codes.NotFound:
		return 3
	case codes.FailedPrecondition:
		return 4
	case codes.Canceled:
		return 130
	case codes.DeadlineExceeded:
		return 124
	default:
		return 1
	}
}
