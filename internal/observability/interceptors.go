package observability

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/rf-propagation-sim/internal/logging"
)

// RunIDMetadataKey lets a caller correlate an RPC with its own run.
const RunIDMetadataKey = "x-run-id"

// RunIDUnaryServerInterceptor puts a run_id on the request context, taken
// from the x-run-id header when present, and stores a logger scoped to the
// method there for handlers to pick up with logging.LoggerFromContext.
func RunIDUnaryServerInterceptor(base logging.Logger) grpc.UnaryServerInterceptor {
	base = logging.OrNoop(base)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(RunIDMetadataKey); len(vals) > 0 && vals[0] != "" {
				ctx = logging.ContextWithRunID(ctx, vals[0])
			}
		}
		method := "unknown"
		if info != nil {
			method = info.FullMethod
		}
		ctx, reqLog := logging.WithRunLogger(ctx, base.With(logging.String("method", method)))

		resp, err := handler(ctx, req)
		reqLog.Debug(ctx, "rpc handled", logging.String("code", status.Code(err).String()))
		return resp, err
	}
}
