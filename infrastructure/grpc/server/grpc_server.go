package server

import (
	"log/slog"

	"estimo/contract"
	"estimo/infrastructure/grpc/roomapi"

	sdkgrpc "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
)

// NewGRPCServer builds a gRPC server exposing the room service over engine.
func NewGRPCServer(log *slog.Logger, engine contract.RoomEngine, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(sdkgrpc.UnaryLoggingInterceptor(log)),
	}, opts...)
	s := grpc.NewServer(opts...)
	roomapi.RegisterRoomServiceServer(s, NewRoomServer(log, engine))
	return s
}
