package roomapi

import (
	"context"

	"estimo/infrastructure/wire"

	"google.golang.org/grpc"
)

const (
	ServiceName = "estimo.v1.RoomService"

	RoomService_Join_FullMethodName          = "/estimo.v1.RoomService/Join"
	RoomService_Vote_FullMethodName          = "/estimo.v1.RoomService/Vote"
	RoomService_RevealVotes_FullMethodName   = "/estimo.v1.RoomService/RevealVotes"
	RoomService_StartNewRound_FullMethodName = "/estimo.v1.RoomService/StartNewRound"
	RoomService_RemovePlayer_FullMethodName  = "/estimo.v1.RoomService/RemovePlayer"
	RoomService_GetRoom_FullMethodName       = "/estimo.v1.RoomService/GetRoom"
	RoomService_CreateRoom_FullMethodName    = "/estimo.v1.RoomService/CreateRoom"
	RoomService_SubscribeRoom_FullMethodName = "/estimo.v1.RoomService/SubscribeRoom"
)

// RoomServiceServer is the server API for the room service.
type RoomServiceServer interface {
	Join(context.Context, *wire.JoinRequest) (*wire.Empty, error)
	Vote(context.Context, *wire.VoteRequest) (*wire.Empty, error)
	RevealVotes(context.Context, *wire.RoomRequest) (*wire.Empty, error)
	StartNewRound(context.Context, *wire.RoomRequest) (*wire.Empty, error)
	RemovePlayer(context.Context, *wire.PlayerRequest) (*wire.Empty, error)
	GetRoom(context.Context, *wire.RoomRequest) (*wire.Room, error)
	CreateRoom(context.Context, *wire.Empty) (*wire.CreateRoomResponse, error)
	SubscribeRoom(*wire.RoomRequest, grpc.ServerStreamingServer[wire.Room]) error
}

func RegisterRoomServiceServer(s grpc.ServiceRegistrar, srv RoomServiceServer) {
	s.RegisterService(&RoomService_ServiceDesc, srv)
}

// RoomService_ServiceDesc is the grpc.ServiceDesc for the room service.
var RoomService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RoomServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Join", RoomService_Join_FullMethodName, RoomServiceServer.Join),
		unary("Vote", RoomService_Vote_FullMethodName, RoomServiceServer.Vote),
		unary("RevealVotes", RoomService_RevealVotes_FullMethodName, RoomServiceServer.RevealVotes),
		unary("StartNewRound", RoomService_StartNewRound_FullMethodName, RoomServiceServer.StartNewRound),
		unary("RemovePlayer", RoomService_RemovePlayer_FullMethodName, RoomServiceServer.RemovePlayer),
		unary("GetRoom", RoomService_GetRoom_FullMethodName, RoomServiceServer.GetRoom),
		unary("CreateRoom", RoomService_CreateRoom_FullMethodName, RoomServiceServer.CreateRoom),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "SubscribeRoom",
			Handler:       subscribeRoomHandler,
			ServerStreams: true,
		},
	},
	Metadata: "estimo/v1/room_service",
}

func unary[Req, Res any](name, fullMethod string,
	call func(RoomServiceServer, context.Context, *Req) (*Res, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(RoomServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(RoomServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func subscribeRoomHandler(srv any, stream grpc.ServerStream) error {
	m := new(wire.RoomRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(RoomServiceServer).SubscribeRoom(m, &grpc.GenericServerStream[wire.RoomRequest, wire.Room]{ServerStream: stream})
}

// RoomServiceClient is the client API for the room service.
type RoomServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewRoomServiceClient(cc grpc.ClientConnInterface) *RoomServiceClient {
	return &RoomServiceClient{cc: cc}
}

func (c *RoomServiceClient) Join(ctx context.Context, in *wire.JoinRequest, opts ...grpc.CallOption) (*wire.Empty, error) {
	return invoke[wire.Empty](ctx, c.cc, RoomService_Join_FullMethodName, in, opts)
}

func (c *RoomServiceClient) Vote(ctx context.Context, in *wire.VoteRequest, opts ...grpc.CallOption) (*wire.Empty, error) {
	return invoke[wire.Empty](ctx, c.cc, RoomService_Vote_FullMethodName, in, opts)
}

func (c *RoomServiceClient) RevealVotes(ctx context.Context, in *wire.RoomRequest, opts ...grpc.CallOption) (*wire.Empty, error) {
	return invoke[wire.Empty](ctx, c.cc, RoomService_RevealVotes_FullMethodName, in, opts)
}

func (c *RoomServiceClient) StartNewRound(ctx context.Context, in *wire.RoomRequest, opts ...grpc.CallOption) (*wire.Empty, error) {
	return invoke[wire.Empty](ctx, c.cc, RoomService_StartNewRound_FullMethodName, in, opts)
}

func (c *RoomServiceClient) RemovePlayer(ctx context.Context, in *wire.PlayerRequest, opts ...grpc.CallOption) (*wire.Empty, error) {
	return invoke[wire.Empty](ctx, c.cc, RoomService_RemovePlayer_FullMethodName, in, opts)
}

func (c *RoomServiceClient) GetRoom(ctx context.Context, in *wire.RoomRequest, opts ...grpc.CallOption) (*wire.Room, error) {
	return invoke[wire.Room](ctx, c.cc, RoomService_GetRoom_FullMethodName, in, opts)
}

func (c *RoomServiceClient) CreateRoom(ctx context.Context, in *wire.Empty, opts ...grpc.CallOption) (*wire.CreateRoomResponse, error) {
	return invoke[wire.CreateRoomResponse](ctx, c.cc, RoomService_CreateRoom_FullMethodName, in, opts)
}

func (c *RoomServiceClient) SubscribeRoom(ctx context.Context, in *wire.RoomRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[wire.Room], error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &RoomService_ServiceDesc.Streams[0], RoomService_SubscribeRoom_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[wire.RoomRequest, wire.Room]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func invoke[Res any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Res, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	out := new(Res)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
