package test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"estimo/domain"
	"estimo/infrastructure/storage"
	"estimo/runtime"
	"estimo/runtime/workers"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// startEngine opens Badger on dir and runs an engine on it until the
// returned stop function is called.
func startEngine(t *testing.T, dir string) (*runtime.Engine, func()) {
	t.Helper()
	// Reduced to 16 Mo for testing
	db, err := badger.Open(badger.DefaultOptions(dir).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	require.NoError(t, err)

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	notifier := runtime.NewNotifier(log, runtime.NewRegistry(), 64, 64, time.Second)
	engine := runtime.NewEngine(log, storage.NewRoomRepository(db, log, notifier), notifier,
		workers.NewSupervisor(log).WithRestartDelay(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		engine.Start(ctx)
		close(done)
	}()
	return engine, func() {
		cancel()
		<-done
		engine.Stop()
		require.NoError(t, db.Close())
	}
}

func Test_Scenario_Room_Survives_Restart(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	dir := t.TempDir()

	// Given a round in progress on a disk-backed engine
	engine, stop := startEngine(t, dir)
	session, err := engine.JoinRoom(ctx, "AB12", domain.NewParticipant("Alice", true))
	req.NoError(err)
	select {
	case <-session.Joined():
	case <-time.After(5 * time.Second):
		req.FailNow("Timeout: Alice never joined")
	}
	req.NoError(engine.Join(ctx, "AB12", domain.NewParticipant("Bob", false)))
	req.NoError(session.Vote(ctx, domain.Points(13)))
	req.NoError(engine.RevealVotes(ctx, "AB12"))
	before, err := engine.GetRoom(ctx, "AB12")
	req.NoError(err)

	// When the process stops and starts again on the same directory
	session.Close()
	stop()
	engine, stop = startEngine(t, dir)
	defer stop()

	// Then the room is read back unchanged
	after, err := engine.GetRoom(ctx, "AB12")
	req.NoError(err)
	req.Equal(before.Revision, after.Revision)
	req.Equal(before.Names(), after.Names())
	req.True(after.VotesRevealed)
	alice, _ := after.Participant("Alice")
	req.Equal(domain.Points(13), alice.Vote)
	req.True(before.CreatedAt.Equal(after.CreatedAt))

	// And revisions keep growing from where they were
	req.NoError(engine.StartNewRound(ctx, "AB12"))
	next, err := engine.GetRoom(ctx, "AB12")
	req.NoError(err)
	req.Equal(before.Revision+1, next.Revision)
}
