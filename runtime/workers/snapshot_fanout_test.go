package workers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"estimo/contract"
	"estimo/domain"
	"estimo/errors"
	"estimo/mocks"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestSnapshotFanout_Fanout(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	mockSink1 := mocks.NewMockRoomSink(ctrl)
	mockSink2 := mocks.NewMockRoomSink(ctrl)

	fanoutWorker := NewSnapshotFanout(log, mockRegistry, nil, time.Second)
	room := domain.Room{ID: "AB12", Revision: 3}

	// Given two sinks watch the room
	mockRegistry.EXPECT().GetSinksForRoom(domain.RoomID("AB12")).
		Return([]contract.RoomSink{mockSink1, mockSink2}).Times(1)
	// Then both receive the snapshot
	mockSink1.EXPECT().Consume(gomock.Any(), room).Return(nil).Times(1)
	mockSink2.EXPECT().Consume(gomock.Any(), room).Return(nil).Times(1)

	// When a snapshot is fanned out
	fanoutWorker.Fanout(context.Background(), room)
}

func TestSnapshotFanout_Failing_Sink_Does_Not_Stop_Others(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	lagging := mocks.NewMockRoomSink(ctrl)
	healthy := mocks.NewMockRoomSink(ctrl)

	fanoutWorker := NewSnapshotFanout(log, mockRegistry, nil, 20*time.Millisecond)
	room := domain.Room{ID: "AB12", Revision: 1}

	mockRegistry.EXPECT().GetSinksForRoom(gomock.Any()).
		Return([]contract.RoomSink{lagging, healthy}).Times(1)
	// Given the first sink stalls until its deadline
	lagging.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, room domain.Room) error {
			<-ctx.Done()
			return ctx.Err()
		}).Times(1)
	// Then the second one is still served
	healthy.EXPECT().Consume(gomock.Any(), room).Return(nil).Times(1)

	fanoutWorker.Fanout(context.Background(), room)
}

func TestSnapshotFanout_Run_Keeps_Commit_Order(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	mockSink := mocks.NewMockRoomSink(ctrl)

	commits := make(chan domain.Room, 10)
	fanoutWorker := NewSnapshotFanout(log, mockRegistry, commits, time.Second)

	mockRegistry.EXPECT().GetSinksForRoom(gomock.Any()).
		Return([]contract.RoomSink{mockSink}).AnyTimes()

	done := make(chan struct{})
	var revisions []uint64
	mockSink.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, room domain.Room) error {
			revisions = append(revisions, room.Revision)
			if len(revisions) == 5 {
				close(done)
			}
			return errors.ErrListenerLagging
		}).Times(5)

	// Given five commits queued
	for i := uint64(1); i <= 5; i++ {
		commits <- domain.Room{ID: "AB12", Revision: i}
	}
	close(commits)

	// When the worker runs until the channel is closed
	err := fanoutWorker.Run(context.Background())

	// Then every snapshot was delivered in order, sink errors notwithstanding
	req.NoError(err)
	<-done
	req.Equal([]uint64{1, 2, 3, 4, 5}, revisions)
}
