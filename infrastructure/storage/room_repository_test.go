package storage

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"estimo/domain"
	"estimo/errors"
	"estimo/mocks"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var t0 = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

// SetupTestDB initializes a temporary Badger instance for testing
func SetupTestDB(t *testing.T) (*badger.DB, func()) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)

	return db, func() {
		db.Close()
	}
}

func TestRoomRepository_Transact_Creates_And_Stamps(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db, cleanup := SetupTestDB(t)
	defer cleanup()
	repo := NewRoomRepository(db, logs.GetLoggerFromLevel(slog.LevelDebug), nil)

	// Given room "AB12" does not exist
	_, err := repo.Get(ctx, "AB12")
	req.ErrorIs(err, errors.ErrNotFound)

	// When Alice joins
	room, err := repo.Transact(ctx, "AB12", domain.Join(domain.NewParticipant("Alice", true), t0))

	// Then the room is stored with its id and first revision
	req.NoError(err)
	req.Equal(domain.RoomID("AB12"), room.ID)
	req.Equal(uint64(1), room.Revision)

	stored, err := repo.Get(ctx, "AB12")
	req.NoError(err)
	req.Equal(room, stored)

	// When Bob joins
	room, err = repo.Transact(ctx, "AB12", domain.Join(domain.NewParticipant("Bob", false), t0))
	req.NoError(err)
	req.Equal(uint64(2), room.Revision)
	req.Equal([]string{"Alice", "Bob"}, room.Names())
}

func TestRoomRepository_Transact_Mutator_Error_Writes_Nothing(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db, cleanup := SetupTestDB(t)
	defer cleanup()
	repo := NewRoomRepository(db, logs.GetLoggerFromLevel(slog.LevelDebug), nil)

	// When revealing an absent room
	_, err := repo.Transact(ctx, "NOPE", domain.Reveal())

	// Then NotFound is surfaced and nothing is created
	req.ErrorIs(err, errors.ErrNotFound)
	_, err = repo.Get(ctx, "NOPE")
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestRoomRepository_Transact_Detects_Conflict_On_Absent_Key(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db, cleanup := SetupTestDB(t)
	defer cleanup()
	repo := NewRoomRepository(db, logs.GetLoggerFromLevel(slog.LevelDebug), nil)

	// Given a transaction that read the room while it was absent
	// And another client creates the room before that transaction commits
	join := domain.Join(domain.NewParticipant("Alice", true), t0)
	racing := func(snapshot *domain.Room) (*domain.Room, error) {
		_, err := repo.Transact(ctx, "AB12", domain.Join(domain.NewParticipant("Bob", false), t0))
		req.NoError(err)
		return join(snapshot)
	}

	// When the first transaction commits
	_, err := repo.Transact(ctx, "AB12", racing)

	// Then the stale write is rejected and the other write survives
	req.ErrorIs(err, errors.ErrConflict)
	stored, err := repo.Get(ctx, "AB12")
	req.NoError(err)
	req.Equal([]string{"Bob"}, stored.Names())
	req.Equal(uint64(1), stored.Revision)
}

func TestRoomRepository_Publishes_In_Commit_Order(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	db, cleanup := SetupTestDB(t)
	defer cleanup()
	publisher := mocks.NewMockPublisher(ctrl)
	repo := NewRoomRepository(db, logs.GetLoggerFromLevel(slog.LevelDebug), publisher)

	var mu sync.Mutex
	var revisions []uint64
	publisher.EXPECT().Publish(gomock.Any()).
		DoAndReturn(func(room domain.Room) error {
			mu.Lock()
			defer mu.Unlock()
			revisions = append(revisions, room.Revision)
			return nil
		}).
		Times(3)

	// When three commits happen on the same room
	_, err := repo.Transact(ctx, "AB12", domain.Join(domain.NewParticipant("Alice", true), t0))
	req.NoError(err)
	_, err = repo.Transact(ctx, "AB12", domain.CastVote("Alice", domain.Points(3)))
	req.NoError(err)
	_, err = repo.Transact(ctx, "AB12", domain.Reveal())
	req.NoError(err)

	// Then each committed snapshot was published once, in order
	req.Equal([]uint64{1, 2, 3}, revisions)
}

func TestRoomRepository_Conflict_Is_Not_Published(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	db, cleanup := SetupTestDB(t)
	defer cleanup()
	publisher := mocks.NewMockPublisher(ctrl)
	repo := NewRoomRepository(db, logs.GetLoggerFromLevel(slog.LevelDebug), publisher)

	// Only the racing commit reaches the publisher
	publisher.EXPECT().Publish(gomock.Any()).Return(nil).Times(1)

	racing := func(snapshot *domain.Room) (*domain.Room, error) {
		_, err := repo.Transact(ctx, "AB12", domain.Join(domain.NewParticipant("Bob", false), t0))
		req.NoError(err)
		return domain.Join(domain.NewParticipant("Alice", true), t0)(snapshot)
	}
	_, err := repo.Transact(ctx, "AB12", racing)
	req.ErrorIs(err, errors.ErrConflict)
}

func TestRoomRepository_List(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db, cleanup := SetupTestDB(t)
	defer cleanup()
	repo := NewRoomRepository(db, logs.GetLoggerFromLevel(slog.LevelDebug), nil)

	for _, id := range []domain.RoomID{"AAAA", "BBBB", "CCCC"} {
		_, err := repo.Transact(ctx, id, domain.Join(domain.NewParticipant("Alice", true), t0))
		req.NoError(err)
	}

	rooms, err := repo.List(ctx)
	req.NoError(err)
	req.Len(rooms, 3)
	req.Equal(domain.RoomID("AAAA"), rooms[0].ID)
	req.Equal(domain.RoomID("CCCC"), rooms[2].ID)
}

func TestCommitLocks_Release_Entries(t *testing.T) {
	req := require.New(t)
	locks := newCommitLocks()

	unlockA := locks.lock("A")
	unlockB := locks.lock("B")
	req.Len(locks.rooms, 2)

	unlockA()
	unlockB()
	req.Empty(locks.rooms)
}

func TestRoomCodec_Round_Trip(t *testing.T) {
	req := require.New(t)

	// Given a populated room with numeric, token and missing votes
	room := domain.Room{
		ID:            "K3F9QZ",
		CreatedAt:     t0,
		VotesRevealed: true,
		Revision:      42,
		Participants: []domain.Participant{
			{Name: "Alice", IsHost: true, JoinedAt: t0, Vote: domain.Points(0.5)},
			{Name: "Bob", JoinedAt: t0.Add(time.Second), Vote: domain.Token(domain.TokenCoffee)},
			{Name: "Carol", JoinedAt: t0.Add(2 * time.Second)},
			{Name: "Dan", JoinedAt: t0.Add(3 * time.Second), Vote: domain.Points(0)},
		},
	}

	// When encoded then decoded
	data, err := encodeRoom(room)
	req.NoError(err)
	decoded, err := decodeRoom(data)

	// Then nothing is lost, including a zero estimate
	req.NoError(err)
	req.Equal(room, decoded)
	dan, _ := decoded.Participant("Dan")
	req.True(dan.HasVoted())
}

func TestRoomCodec_Rejects_Truncated_Input(t *testing.T) {
	req := require.New(t)

	data, err := encodeRoom(domain.Room{ID: "K3F9QZ", CreatedAt: t0, Participants: []domain.Participant{{Name: "Alice"}}})
	req.NoError(err)

	_, err = decodeRoom(data[:len(data)-4])
	req.Error(err)
}
