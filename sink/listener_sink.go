package sink

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"estimo/domain"
	"estimo/errors"
)

// ListenerSink delivers room snapshots to one subscriber callback.
//
// Consume only enqueues into a bounded mailbox, drained by a dedicated
// goroutine, so a slow callback never blocks the fan-out or other listeners.
// When the mailbox is full the oldest snapshot is dropped: every snapshot is
// a full state, the newer one supersedes it. The subscriber is told through
// onError with errors.ErrListenerLagging before the next delivery.
//
// Snapshots at or below the last delivered revision are skipped, which keeps
// per-listener delivery monotonic even when an initial snapshot races with
// a commit.
type ListenerSink struct {
	log      *slog.Logger
	roomID   domain.RoomID
	mailbox  chan domain.Room
	onChange func(domain.Room)
	onError  func(error)

	sendMu sync.Mutex // serializes producers
	lagged atomic.Bool

	mu           sync.Mutex // held while a callback runs
	closed       bool
	lastRevision uint64

	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

func NewListenerSink(log *slog.Logger, roomID domain.RoomID, bufferSize int,
	onChange func(domain.Room), onError func(error)) *ListenerSink {
	if onError == nil {
		onError = func(error) {}
	}
	return &ListenerSink{
		log:      log,
		roomID:   roomID,
		mailbox:  make(chan domain.Room, max(bufferSize, 1)),
		onChange: onChange,
		onError:  onError,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start launches the drain goroutine.
func (s *ListenerSink) Start() {
	go s.drain()
}

// Consume is called by the fan-out. It never blocks on the subscriber.
func (s *ListenerSink) Consume(ctx context.Context, room domain.Room) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	select {
	case s.mailbox <- room:
		return nil
	default:
	}

	// Mailbox full: make room by dropping the oldest snapshot.
	select {
	case dropped := <-s.mailbox:
		s.log.Debug("Listener lagging, snapshot dropped",
			"room_id", s.roomID, "revision", dropped.Revision)
	default:
	}
	s.lagged.Store(true)
	select {
	case s.mailbox <- room:
		return nil
	default:
		return fmt.Errorf("%w: room %s revision %d", errors.ErrListenerLagging, s.roomID, room.Revision)
	}
}

// Close stops delivery. Once Close returns, onChange is never called again.
// Close must not be called from inside onChange.
func (s *ListenerSink) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
	})
}

// Done is closed when the drain goroutine has exited.
func (s *ListenerSink) Done() <-chan struct{} {
	return s.stopped
}

func (s *ListenerSink) drain() {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			return
		case room := <-s.mailbox:
			if s.lagged.Swap(false) {
				s.deliver(func() {
					s.onError(fmt.Errorf("%w: room %s", errors.ErrListenerLagging, s.roomID))
				})
			}
			s.deliver(func() {
				if room.Revision != 0 && room.Revision <= s.lastRevision {
					return
				}
				s.lastRevision = room.Revision
				s.onChange(room)
			})
		}
	}
}

// deliver runs fn under the listener lock unless the listener is closed.
// A panic in fn is reported through onError.
func (s *ListenerSink) deliver(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn("Listener callback panicked", "room_id", s.roomID, "panic", r)
			s.reportPanic(r)
		}
	}()
	fn()
}

func (s *ListenerSink) reportPanic(r any) {
	defer func() {
		if again := recover(); again != nil {
			s.log.Error("Listener onError panicked", "room_id", s.roomID, "panic", again)
		}
	}()
	s.onError(fmt.Errorf("%w: listener callback: %v", errors.ErrWorkerPanic, r))
}
