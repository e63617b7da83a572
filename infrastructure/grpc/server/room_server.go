package server

import (
	"context"
	"log/slog"

	"estimo/contract"
	"estimo/domain"
	"estimo/errors"
	"estimo/infrastructure/grpc/roomapi"
	"estimo/infrastructure/wire"

	"github.com/google/uuid"
	"google.golang.org/grpc"
)

type RoomServer struct {
	engine contract.RoomEngine
	log    *slog.Logger
}

var _ roomapi.RoomServiceServer = (*RoomServer)(nil)

func NewRoomServer(log *slog.Logger, engine contract.RoomEngine) *RoomServer {
	return &RoomServer{engine: engine, log: log}
}

// Join runs one join attempt. Retrying until joined is the session's job,
// on the client side.
func (s *RoomServer) Join(ctx context.Context, req *wire.JoinRequest) (*wire.Empty, error) {
	err := s.engine.Join(ctx, domain.RoomID(req.RoomID), req.Participant.ToParticipant())
	return respond(err)
}

func (s *RoomServer) Vote(ctx context.Context, req *wire.VoteRequest) (*wire.Empty, error) {
	vote, err := domain.ParseVote(req.Vote)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return respond(s.engine.Vote(ctx, domain.RoomID(req.RoomID), req.Name, vote))
}

func (s *RoomServer) RevealVotes(ctx context.Context, req *wire.RoomRequest) (*wire.Empty, error) {
	return respond(s.engine.RevealVotes(ctx, domain.RoomID(req.RoomID)))
}

func (s *RoomServer) StartNewRound(ctx context.Context, req *wire.RoomRequest) (*wire.Empty, error) {
	return respond(s.engine.StartNewRound(ctx, domain.RoomID(req.RoomID)))
}

func (s *RoomServer) RemovePlayer(ctx context.Context, req *wire.PlayerRequest) (*wire.Empty, error) {
	return respond(s.engine.RemovePlayer(ctx, domain.RoomID(req.RoomID), req.Name))
}

func (s *RoomServer) GetRoom(ctx context.Context, req *wire.RoomRequest) (*wire.Room, error) {
	room, err := s.engine.GetRoom(ctx, domain.RoomID(req.RoomID))
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return wire.FromRoom(room), nil
}

// CreateRoom hands out a fresh id. The room itself appears with its first join.
func (s *RoomServer) CreateRoom(_ context.Context, _ *wire.Empty) (*wire.CreateRoomResponse, error) {
	id, err := domain.NewRoomID()
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &wire.CreateRoomResponse{RoomID: string(id)}, nil
}

// SubscribeRoom streams every snapshot of a room until the client goes away.
// The listener is canceled before returning so the engine holds no
// reference to a dead stream.
func (s *RoomServer) SubscribeRoom(req *wire.RoomRequest, stream grpc.ServerStreamingServer[wire.Room]) error {
	roomID := domain.RoomID(req.RoomID)
	if err := domain.ValidateRoomID(roomID); err != nil {
		return errors.MapToGRPCError(err)
	}
	ctx := stream.Context()
	streamID := uuid.NewString()
	updates := make(chan domain.Room, 1)
	stop := make(chan struct{})

	cancel := s.engine.SubscribeRoom(roomID,
		func(room domain.Room) {
			select {
			case updates <- room:
			case <-stop:
			}
		},
		func(err error) {
			s.log.Warn("Room stream listener error", "room_id", roomID, "stream_id", streamID, "error", err)
		})
	defer cancel()
	defer close(stop)

	s.log.Debug("Room stream opened", "room_id", roomID, "stream_id", streamID)
	for {
		select {
		case <-ctx.Done():
			s.log.Debug("Room stream closed by client", "room_id", roomID, "stream_id", streamID)
			return nil
		case room := <-updates:
			if err := stream.Send(wire.FromRoom(room)); err != nil {
				s.log.Error("failed to push room to stream",
					"room_id", roomID,
					"stream_id", streamID,
					"error", err)
				return err
			}
		}
	}
}

func respond(err error) (*wire.Empty, error) {
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &wire.Empty{}, nil
}
