// Package interceptor holds the unary server interceptors of the gRPC surface.
package interceptor

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/patric-chuzhbe/userdir/internal/logger"
)

// UnaryLoggingInterceptor logs the method, caller address, duration and
// resulting status of every call to one of loggedMethods. Failed calls are
// logged at warn level.
func UnaryLoggingInterceptor(loggedMethods []string) grpc.UnaryServerInterceptor {
	logged := make(map[string]struct{}, len(loggedMethods))
	for _, method := range loggedMethods {
		logged[method] = struct{}{}
	}

	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if _, ok := logged[info.FullMethod]; !ok {
			return handler(ctx, req)
		}

		start := time.Now()
		resp, err := handler(ctx, req)
		st := status.Convert(err)

		remote := "unknown"
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			remote = p.Addr.String()
		}

		fields := []interface{}{
			"method", info.FullMethod,
			"peer", remote,
			"duration", time.Since(start),
			"code", st.Code().String(),
		}
		if st.Code() != codes.OK {
			logger.Log.Warnw("gRPC call failed", append(fields, "message", st.Message())...)
			return resp, err
		}
		logger.Log.Infow("gRPC call", fields...)

		return resp, err
	}
}
