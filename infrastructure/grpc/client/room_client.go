package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"estimo/contract"
	"estimo/domain"
	"estimo/errors"
	"estimo/infrastructure/grpc/roomapi"
	"estimo/infrastructure/wire"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// RoomClient is a remote contract.RoomEngine. Errors come back as the same
// sentinels an in-process engine returns, so a runtime.Session can drive
// either one.
type RoomClient struct {
	api  *roomapi.RoomServiceClient
	conn *grpc.ClientConn
	log  *slog.Logger
}

var _ contract.RoomEngine = (*RoomClient)(nil)

func NewRoomClient(log *slog.Logger, cc grpc.ClientConnInterface) *RoomClient {
	return &RoomClient{api: roomapi.NewRoomServiceClient(cc), log: log}
}

// Dial opens an insecure connection to target. Close releases it.
func Dial(log *slog.Logger, target string, opts ...grpc.DialOption) (*RoomClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", target, err)
	}
	c := NewRoomClient(log, conn)
	c.conn = conn
	return c, nil
}

func (c *RoomClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *RoomClient) Join(ctx context.Context, roomID domain.RoomID, participant domain.Participant) error {
	_, err := c.api.Join(ctx, &wire.JoinRequest{
		RoomID:      string(roomID),
		Participant: wire.Participant{Name: participant.Name, IsHost: participant.IsHost},
	})
	return errors.FromGRPCError(err)
}

func (c *RoomClient) Vote(ctx context.Context, roomID domain.RoomID, name string, vote *domain.Vote) error {
	req := &wire.VoteRequest{RoomID: string(roomID), Name: name}
	if vote != nil {
		req.Vote = vote.String()
	}
	_, err := c.api.Vote(ctx, req)
	return errors.FromGRPCError(err)
}

func (c *RoomClient) RevealVotes(ctx context.Context, roomID domain.RoomID) error {
	_, err := c.api.RevealVotes(ctx, &wire.RoomRequest{RoomID: string(roomID)})
	return errors.FromGRPCError(err)
}

func (c *RoomClient) StartNewRound(ctx context.Context, roomID domain.RoomID) error {
	_, err := c.api.StartNewRound(ctx, &wire.RoomRequest{RoomID: string(roomID)})
	return errors.FromGRPCError(err)
}

func (c *RoomClient) RemovePlayer(ctx context.Context, roomID domain.RoomID, name string) error {
	_, err := c.api.RemovePlayer(ctx, &wire.PlayerRequest{RoomID: string(roomID), Name: name})
	return errors.FromGRPCError(err)
}

func (c *RoomClient) GetRoom(ctx context.Context, roomID domain.RoomID) (domain.Room, error) {
	res, err := c.api.GetRoom(ctx, &wire.RoomRequest{RoomID: string(roomID)})
	if err != nil {
		return domain.Room{}, errors.FromGRPCError(err)
	}
	return wire.ToRoom(res)
}

func (c *RoomClient) CreateRoom(ctx context.Context) (domain.RoomID, error) {
	res, err := c.api.CreateRoom(ctx, &wire.Empty{})
	if err != nil {
		return "", errors.FromGRPCError(err)
	}
	return domain.RoomID(res.RoomID), nil
}

// SubscribeRoom opens a server stream in the background. Stream failures
// other than the subscriber's own cancel are reported through onError.
// No onChange fires once cancel has returned.
func (c *RoomClient) SubscribeRoom(roomID domain.RoomID, onChange func(domain.Room), onError func(error)) func() {
	if onError == nil {
		onError = func(error) {}
	}
	ctx, cancelStream := context.WithCancel(context.Background())
	var mu sync.Mutex
	closed := false

	deliver := func(fn func()) {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			fn()
		}
	}

	go func() {
		stream, err := c.api.SubscribeRoom(ctx, &wire.RoomRequest{RoomID: string(roomID)})
		if err != nil {
			deliver(func() { onError(errors.FromGRPCError(err)) })
			return
		}
		for {
			msg, err := stream.Recv()
			if err == io.EOF || ctx.Err() != nil {
				return
			}
			if err != nil {
				c.log.Warn("Room stream broken", "room_id", roomID, "error", err)
				deliver(func() { onError(errors.FromGRPCError(err)) })
				return
			}
			room, err := wire.ToRoom(msg)
			if err != nil {
				deliver(func() { onError(err) })
				continue
			}
			deliver(func() { onChange(room) })
		}
	}()

	return func() {
		mu.Lock()
		closed = true
		mu.Unlock()
		cancelStream()
	}
}
