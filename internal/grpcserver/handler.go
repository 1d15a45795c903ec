// Package grpcserver exposes the favorites operations and a storage-backed
// health check over gRPC.
package grpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/patric-chuzhbe/userdir/internal/logger"
	"github.com/patric-chuzhbe/userdir/internal/models"
	"github.com/patric-chuzhbe/userdir/internal/service"
)

type FavoritesHandler struct {
	svc *service.Service
}

func NewFavoritesHandler(svc *service.Service) *FavoritesHandler {
	return &FavoritesHandler{svc: svc}
}

func (h *FavoritesHandler) Toggle(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.Struct, error) {
	id, err := userID(req)
	if err != nil {
		return nil, err
	}

	favorites, err := h.svc.ToggleFavorite(ctx, id)
	if err != nil {
		logger.Log.Infoln("unable to toggle favorite", "id", id, "error", err)
		return nil, status.Error(codes.Internal, "unable to save favorites")
	}

	reply, err := structpb.NewStruct(map[string]interface{}{
		"favorites": idList(favorites),
		"added":     favorites.Contains(id),
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	return reply, nil
}

func (h *FavoritesHandler) List(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	users, err := toPlain(h.svc.FavoriteUsers(ctx))
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	reply, err := structpb.NewStruct(map[string]interface{}{
		"favorites": idList(h.svc.Favorites(ctx)),
		"users":     users,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	return reply, nil
}

func (h *FavoritesHandler) GetUser(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.Struct, error) {
	id, err := userID(req)
	if err != nil {
		return nil, err
	}

	record, err := h.svc.UserDetail(ctx, id)
	var notFound *models.NotFoundError
	switch {
	case err == nil:
	case errors.As(err, &notFound):
		return nil, status.Error(codes.NotFound, notFound.Error())
	case models.IsRetryable(err):
		return nil, status.Error(codes.Unavailable, err.Error())
	default:
		return nil, status.Error(codes.Internal, err.Error())
	}

	plain, err := toPlain(record)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	fields, ok := plain.(map[string]interface{})
	if !ok {
		return nil, status.Error(codes.Internal, "user record is not an object")
	}

	reply, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	return reply, nil
}

func userID(req *wrapperspb.Int64Value) (int, error) {
	if req.GetValue() < 1 {
		return 0, status.Error(codes.InvalidArgument, "invalid user id")
	}
	return int(req.GetValue()), nil
}

func idList(favorites models.FavoriteSet) []interface{} {
	result := make([]interface{}, 0, len(favorites))
	for _, id := range favorites {
		result = append(result, id)
	}
	return result
}

// toPlain turns a value into the maps, slices and scalars structpb accepts,
// using the same field names as the HTTP API.
func toPlain(value interface{}) (interface{}, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("in internal/grpcserver/handler.go/toPlain(): error while `json.Marshal()` calling: %w", err)
	}

	var plain interface{}
	if err := json.Unmarshal(encoded, &plain); err != nil {
		return nil, fmt.Errorf("in internal/grpcserver/handler.go/toPlain(): error while `json.Unmarshal()` calling: %w", err)
	}

	return plain, nil
}
