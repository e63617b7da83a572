package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"estimo/contract"
	"estimo/domain"
	"estimo/errors"
	"estimo/runtime/workers"
	"estimo/sink"

	"github.com/google/uuid"
)

// Notifier pushes committed room snapshots to subscribers.
//
// Publish is called by the store on the commit path and only enqueues on the
// commit channel. The fan-out worker drains that channel in order and hands
// each snapshot to the listener sinks found in the registry. Each listener
// owns a mailbox and a goroutine, so subscribers never slow each other down.
type Notifier struct {
	log            *slog.Logger
	registry       *Registry
	commits        chan domain.Room
	listenerBuffer int
	sinkTimeout    time.Duration
	done           chan struct{}
	stopOnce       sync.Once
}

func NewNotifier(log *slog.Logger, registry *Registry, commitBuffer, listenerBuffer int, sinkTimeout time.Duration) *Notifier {
	return &Notifier{
		log:            log,
		registry:       registry,
		commits:        make(chan domain.Room, max(commitBuffer, 1)),
		listenerBuffer: listenerBuffer,
		sinkTimeout:    sinkTimeout,
		done:           make(chan struct{}),
	}
}

// Publish enqueues a committed snapshot. It blocks only while the commit
// channel is full, and gives up once the notifier is stopped.
func (n *Notifier) Publish(room domain.Room) error {
	select {
	case <-n.done:
		return errors.ErrNotifierStopped
	default:
	}
	select {
	case n.commits <- room:
		return nil
	case <-n.done:
		return errors.ErrNotifierStopped
	}
}

// Worker returns the fan-out worker to run under the supervisor.
func (n *Notifier) Worker() contract.Worker {
	return workers.NewSnapshotFanout(n.log, n.registry, n.commits, n.sinkTimeout)
}

// Subscribe registers a listener for roomID. After cancel returns no further
// onChange fires for it. cancel must not be called from inside onChange.
func (n *Notifier) Subscribe(roomID domain.RoomID, onChange func(domain.Room), onError func(error)) (*sink.ListenerSink, func()) {
	subscriptionID := uuid.NewString()
	listener := sink.NewListenerSink(n.log, roomID, n.listenerBuffer, onChange, onError)
	listener.Start()
	n.registry.Subscribe(subscriptionID, roomID, listener)
	n.log.Debug("Listener subscribed", "room_id", roomID, "subscription_id", subscriptionID)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.registry.Unsubscribe(subscriptionID, roomID)
			listener.Close()
			n.log.Debug("Listener unsubscribed", "room_id", roomID, "subscription_id", subscriptionID)
		})
	}
	return listener, cancel
}

// Seed delivers an initial snapshot to a single listener, outside the
// commit stream.
func (n *Notifier) Seed(ctx context.Context, listener *sink.ListenerSink, room domain.Room) {
	if err := listener.Consume(ctx, room); err != nil {
		n.log.Debug("Initial snapshot not delivered", "room_id", room.ID, "error", err)
	}
}

// Stop makes further Publish calls fail fast. Pending snapshots are dropped
// with the fan-out worker.
func (n *Notifier) Stop() {
	n.stopOnce.Do(func() { close(n.done) })
}

// Pending reports how many commits wait for the fan-out.
func (n *Notifier) Pending() (length, capacity int) {
	return len(n.commits), cap(n.commits)
}
