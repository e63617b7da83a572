package client

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"estimo/domain"
	"estimo/errors"
	"estimo/infrastructure/grpc/server"
	"estimo/infrastructure/storage"
	"estimo/infrastructure/wire"
	"estimo/runtime"
	"estimo/runtime/workers"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

var fastSession = runtime.SessionPolicy{
	Stagger:          runtime.Window{Min: 0, Max: time.Millisecond},
	AttemptTimeout:   2 * time.Second,
	OrdinaryRetry:    runtime.Window{Min: time.Millisecond, Max: 2 * time.Millisecond},
	ExceptionalRetry: runtime.Window{Min: 3 * time.Millisecond, Max: 4 * time.Millisecond},
	VoteInterval:     200 * time.Millisecond,
}

// roomClientSuite runs a real engine behind an in-memory gRPC listener.
type roomClientSuite struct {
	suite.Suite
	log    *slog.Logger
	db     *badger.DB
	engine *runtime.Engine
	srv    *grpc.Server
	client *RoomClient
	cancel context.CancelFunc
	done   chan struct{}
}

func TestRoomClientSuite(t *testing.T) {
	suite.Run(t, &roomClientSuite{})
}

func (s *roomClientSuite) SetupTest() {
	s.log = logs.GetLoggerFromLevel(slog.LevelDebug)
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	s.Require().NoError(err)
	s.db = db

	notifier := runtime.NewNotifier(s.log, runtime.NewRegistry(), 64, 64, time.Second)
	repo := storage.NewRoomRepository(db, s.log, notifier)
	s.engine = runtime.NewEngine(s.log, repo, notifier, workers.NewSupervisor(s.log))

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		s.engine.Start(ctx)
		close(s.done)
	}()

	lis := bufconn.Listen(1 << 20)
	s.srv = server.NewGRPCServer(s.log, s.engine)
	go func() { _ = s.srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	s.Require().NoError(err)
	s.client = NewRoomClient(s.log, conn)
	s.client.conn = conn
}

func (s *roomClientSuite) TearDownTest() {
	_ = s.client.Close()
	s.srv.Stop()
	s.cancel()
	<-s.done
	s.engine.Stop()
	_ = s.db.Close()
}

func (s *roomClientSuite) TestJoin_Then_GetRoom() {
	ctx := context.Background()

	// Given Alice and Bob joined over the network
	s.Require().NoError(s.client.Join(ctx, "AB12", domain.NewParticipant("Alice", true)))
	s.Require().NoError(s.client.Join(ctx, "AB12", domain.NewParticipant("Bob", false)))

	// When the room is fetched
	room, err := s.client.GetRoom(ctx, "AB12")

	// Then both are listed in join order
	s.Require().NoError(err)
	s.Equal(domain.RoomID("AB12"), room.ID)
	s.Equal([]string{"Alice", "Bob"}, room.Names())
	s.Equal(uint64(2), room.Revision)
}

func (s *roomClientSuite) TestVotes_Hidden_Until_Revealed() {
	ctx := context.Background()
	s.Require().NoError(s.client.Join(ctx, "AB12", domain.NewParticipant("Alice", true)))
	s.Require().NoError(s.client.Vote(ctx, "AB12", "Alice", domain.Points(5)))

	// Before reveal the vote is a placeholder, yet Alice has voted
	room, err := s.client.GetRoom(ctx, "AB12")
	s.Require().NoError(err)
	alice, _ := room.Participant("Alice")
	s.True(alice.HasVoted())
	s.Equal(domain.Token(wire.HiddenVote), alice.Vote)

	// After reveal the actual estimate shows up
	s.Require().NoError(s.client.RevealVotes(ctx, "AB12"))
	room, err = s.client.GetRoom(ctx, "AB12")
	s.Require().NoError(err)
	alice, _ = room.Participant("Alice")
	s.Equal(domain.Points(5), alice.Vote)

	// A new round clears everything
	s.Require().NoError(s.client.StartNewRound(ctx, "AB12"))
	room, err = s.client.GetRoom(ctx, "AB12")
	s.Require().NoError(err)
	s.False(room.VotesRevealed)
	alice, _ = room.Participant("Alice")
	s.False(alice.HasVoted())
}

func (s *roomClientSuite) TestErrors_Map_Back_To_Sentinels() {
	ctx := context.Background()

	_, err := s.client.GetRoom(ctx, "NOPE")
	s.ErrorIs(err, errors.ErrNotFound)

	err = s.client.RevealVotes(ctx, "NOPE")
	s.ErrorIs(err, errors.ErrNotFound)

	err = s.client.Join(ctx, "AB12", domain.NewParticipant("  ", false))
	s.ErrorIs(err, errors.ErrValidation)
}

func (s *roomClientSuite) TestRemovePlayer() {
	ctx := context.Background()
	s.Require().NoError(s.client.Join(ctx, "AB12", domain.NewParticipant("Alice", true)))
	s.Require().NoError(s.client.Join(ctx, "AB12", domain.NewParticipant("Bob", false)))

	s.Require().NoError(s.client.RemovePlayer(ctx, "AB12", "Bob"))

	room, err := s.client.GetRoom(ctx, "AB12")
	s.Require().NoError(err)
	s.Equal([]string{"Alice"}, room.Names())
}

func (s *roomClientSuite) TestCreateRoom_Returns_Usable_ID() {
	ctx := context.Background()

	id, err := s.client.CreateRoom(ctx)
	s.Require().NoError(err)
	s.NoError(domain.ValidateRoomID(id))

	s.Require().NoError(s.client.Join(ctx, id, domain.NewParticipant("Alice", true)))
	room, err := s.client.GetRoom(ctx, id)
	s.Require().NoError(err)
	s.Equal(id, room.ID)
}

func (s *roomClientSuite) TestSubscribeRoom_Streams_Snapshots_In_Order() {
	ctx := context.Background()
	s.Require().NoError(s.client.Join(ctx, "AB12", domain.NewParticipant("Alice", true)))

	var mu sync.Mutex
	var revisions []uint64
	cancel := s.client.SubscribeRoom("AB12", func(room domain.Room) {
		mu.Lock()
		defer mu.Unlock()
		revisions = append(revisions, room.Revision)
	}, func(err error) {
		s.T().Logf("stream error: %v", err)
	})
	defer cancel()

	// The current state is seeded first
	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(revisions) == 1
	}, 2*time.Second, 5*time.Millisecond)

	s.Require().NoError(s.client.Join(ctx, "AB12", domain.NewParticipant("Bob", false)))
	s.Require().NoError(s.client.Vote(ctx, "AB12", "Bob", domain.Points(3)))

	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(revisions) == 3
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	s.Equal([]uint64{1, 2, 3}, revisions)
}

func (s *roomClientSuite) TestRemote_Session_Joins_And_Votes() {
	ctx := context.Background()

	// Given a session driving the remote engine
	session, err := runtime.NewSession(s.log, s.client, "AB12", domain.NewParticipant("Alice", true), fastSession)
	s.Require().NoError(err)
	defer session.Close()

	// When it starts
	session.Start(ctx)

	// Then it reaches Joined
	select {
	case <-session.Joined():
	case <-time.After(2 * time.Second):
		s.FailNow("session never joined")
	}
	s.Equal(runtime.Joined, session.State())

	// And its vote lands in the room
	s.Require().NoError(session.Vote(ctx, domain.Token(domain.TokenCoffee)))
	room, err := s.client.GetRoom(ctx, "AB12")
	s.Require().NoError(err)
	alice, _ := room.Participant("Alice")
	s.True(alice.HasVoted())
}
