package grpcserver

import (
	"net"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/patric-chuzhbe/userdir/internal/grpcserver/interceptor"
)

// NewGRPCServer listens on addr and returns a server with the favorites and
// health services registered. The caller runs Serve on the listener.
func NewGRPCServer(
	addr string,
	handler FavoritesServer,
	health healthpb.HealthServer,
) (*grpc.Server, net.Listener, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			interceptor.UnaryLoggingInterceptor([]string{
				ToggleMethod,
				ListMethod,
				GetUserMethod,
				"/grpc.health.v1.Health/Check",
			}),
		),
	)
	RegisterFavoritesServer(server, handler)
	healthpb.RegisterHealthServer(server, health)

	return server, lis, nil
}
