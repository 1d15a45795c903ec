package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified name of the favorites service.
const ServiceName = "userdir.FavoritesService"

// Full method names, as seen by interceptors.
const (
	ToggleMethod  = "/" + ServiceName + "/Toggle"
	ListMethod    = "/" + ServiceName + "/List"
	GetUserMethod = "/" + ServiceName + "/GetUser"
)

// FavoritesServer is the server API of the favorites service. Messages are
// protobuf well-known types, so no generated code is involved.
type FavoritesServer interface {
	// Toggle flips a user id in the favorite set. The reply carries
	// "favorites" (the resulting ids) and "added".
	Toggle(ctx context.Context, in *wrapperspb.Int64Value) (*structpb.Struct, error)
	// List replies with "favorites" and the resolved "users".
	List(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
	// GetUser replies with one user record.
	GetUser(ctx context.Context, in *wrapperspb.Int64Value) (*structpb.Struct, error)
}

// FavoritesServiceDesc describes the favorites service for grpc.Server.RegisterService.
var FavoritesServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FavoritesServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Toggle", Handler: toggleHandler},
		{MethodName: "List", Handler: listHandler},
		{MethodName: "GetUser", Handler: getUserHandler},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterFavoritesServer registers srv on s.
func RegisterFavoritesServer(s grpc.ServiceRegistrar, srv FavoritesServer) {
	s.RegisterService(&FavoritesServiceDesc, srv)
}

func toggleHandler(
	srv interface{},
	ctx context.Context,
	dec func(interface{}) error,
	interceptor grpc.UnaryServerInterceptor,
) (interface{}, error) {
	in := new(wrapperspb.Int64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FavoritesServer).Toggle(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ToggleMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FavoritesServer).Toggle(ctx, req.(*wrapperspb.Int64Value))
	}

	return interceptor(ctx, in, info, handler)
}

func listHandler(
	srv interface{},
	ctx context.Context,
	dec func(interface{}) error,
	interceptor grpc.UnaryServerInterceptor,
) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FavoritesServer).List(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FavoritesServer).List(ctx, req.(*emptypb.Empty))
	}

	return interceptor(ctx, in, info, handler)
}

func getUserHandler(
	srv interface{},
	ctx context.Context,
	dec func(interface{}) error,
	interceptor grpc.UnaryServerInterceptor,
) (interface{}, error) {
	in := new(wrapperspb.Int64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FavoritesServer).GetUser(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetUserMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FavoritesServer).GetUser(ctx, req.(*wrapperspb.Int64Value))
	}

	return interceptor(ctx, in, info, handler)
}

// FavoritesClient calls the favorites service over a client connection.
type FavoritesClient struct {
	cc grpc.ClientConnInterface
}

func NewFavoritesClient(cc grpc.ClientConnInterface) *FavoritesClient {
	return &FavoritesClient{cc: cc}
}

func (c *FavoritesClient) Toggle(ctx context.Context, in *wrapperspb.Int64Value, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ToggleMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *FavoritesClient) List(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ListMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *FavoritesClient) GetUser(ctx context.Context, in *wrapperspb.Int64Value, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetUserMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
