package workers

import (
	"context"
	"log/slog"
	"time"

	"estimo/contract"
	"estimo/domain"
)

// SnapshotFanout hands every committed room snapshot to the sinks watching
// that room.
//
// Snapshots are taken from the commit channel one at a time and pushed to the
// sinks sequentially, so each sink sees a room's snapshots in commit order.
// Sinks are expected to only enqueue; sinkTimeout bounds a misbehaving one.
type SnapshotFanout struct {
	log         *slog.Logger
	registry    contract.IRegistry
	commits     <-chan domain.Room
	sinkTimeout time.Duration
}

func NewSnapshotFanout(log *slog.Logger, registry contract.IRegistry,
	commits <-chan domain.Room, sinkTimeout time.Duration) *SnapshotFanout {
	return &SnapshotFanout{
		log:         log,
		registry:    registry,
		commits:     commits,
		sinkTimeout: sinkTimeout,
	}
}

func (w SnapshotFanout) Run(ctx context.Context) error {
	for {
		select {
		case room, ok := <-w.commits:
			if !ok {
				w.log.Debug("Commit channel closed, stopping fanout")
				return nil
			}
			w.Fanout(ctx, room)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping fanout")
			return nil
		}
	}
}

// Fanout delivers one snapshot to every sink registered for its room.
// A failing sink is logged and skipped.
func (w SnapshotFanout) Fanout(ctx context.Context, room domain.Room) {
	for _, sink := range w.registry.GetSinksForRoom(room.ID) {
		sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		if err := sink.Consume(sinkCtx, room); err != nil {
			w.log.Debug("Sink rejected snapshot",
				"room_id", room.ID, "revision", room.Revision, "error", err)
		}
		cancel()
	}
}
