package runtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"estimo/domain"
	"estimo/errors"
	"estimo/mocks"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var noDelay = RetryPolicy{MaxAttempts: 3}

func TestExecutor_Retries_Conflicts_At_Most_Three_Times(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockRoomStore(ctrl)
	executor := NewExecutor(store, logs.GetLoggerFromLevel(slog.LevelDebug))

	// Given a store that always reports a conflict
	store.EXPECT().Transact(gomock.Any(), domain.RoomID("AB12"), gomock.Any()).
		Return(domain.Room{}, errors.ErrConflict).
		Times(3)

	// When a vote is executed
	_, err := executor.Run(context.Background(), noDelay, "AB12", domain.CastVote("Alice", domain.Points(5)))

	// Then exactly three attempts were made and the failure is surfaced
	req.ErrorIs(err, errors.ErrTransactionFailed)
	// And the conflict itself stays internal
	req.NotErrorIs(err, errors.ErrConflict)
	req.Contains(err.Error(), errors.ErrConflict.Error())
}

func TestExecutor_Succeeds_After_Conflicts(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockRoomStore(ctrl)
	executor := NewExecutor(store, logs.GetLoggerFromLevel(slog.LevelDebug))

	committed := domain.Room{ID: "AB12", Revision: 7}
	gomock.InOrder(
		store.EXPECT().Transact(gomock.Any(), gomock.Any(), gomock.Any()).Return(domain.Room{}, errors.ErrConflict),
		store.EXPECT().Transact(gomock.Any(), gomock.Any(), gomock.Any()).Return(domain.Room{}, errors.ErrConflict),
		store.EXPECT().Transact(gomock.Any(), gomock.Any(), gomock.Any()).Return(committed, nil),
	)

	room, err := executor.Run(context.Background(), noDelay, "AB12", domain.Reveal())

	req.NoError(err)
	req.Equal(committed, room)
}

func TestExecutor_Aborts_On_Non_Conflict_Error(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockRoomStore(ctrl)
	executor := NewExecutor(store, logs.GetLoggerFromLevel(slog.LevelDebug))

	// Given the room does not exist
	store.EXPECT().Transact(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.Room{}, errors.ErrNotFound).
		Times(1)

	// When revealing it, there is no retry
	_, err := executor.Run(context.Background(), noDelay, "GONE", domain.Reveal())

	req.ErrorIs(err, errors.ErrNotFound)
	req.NotErrorIs(err, errors.ErrTransactionFailed)
}

func TestExecutor_Backoff_Honours_Cancellation(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockRoomStore(ctrl)
	executor := NewExecutor(store, logs.GetLoggerFromLevel(slog.LevelDebug))

	store.EXPECT().Transact(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.Room{}, errors.ErrConflict).
		Times(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	slow := RetryPolicy{MaxAttempts: 3, Increment: time.Hour}

	start := time.Now()
	_, err := executor.Run(ctx, slow, "AB12", domain.Reset())

	req.ErrorIs(err, context.DeadlineExceeded)
	req.Less(time.Since(start), time.Second)
}

func TestRetryPolicy_Delay(t *testing.T) {
	req := require.New(t)

	half := func() float64 { return 0.5 }
	vote := VotePolicy
	vote.Jitter = half
	join := JoinPolicy
	join.Jitter = half

	req.Equal(250*time.Millisecond+200*time.Millisecond, vote.Delay(1))
	req.Equal(250*time.Millisecond+400*time.Millisecond, vote.Delay(2))
	req.Equal(500*time.Millisecond+500*time.Millisecond, join.Delay(1))
	req.Equal(500*time.Millisecond+1000*time.Millisecond, join.Delay(2))

	// Without override the jitter stays within [0, Base)
	for range 100 {
		d := VotePolicy.Delay(1)
		req.GreaterOrEqual(d, 200*time.Millisecond)
		req.Less(d, 700*time.Millisecond)
	}
}
