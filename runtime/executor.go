package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"estimo/contract"
	"estimo/domain"
	"estimo/errors"
)

// RetryPolicy bounds how the executor absorbs write conflicts.
// After the n-th failed attempt it waits Base*jitter + n*Increment,
// with jitter uniform in [0, 1).
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Increment   time.Duration
	// Jitter overrides the random source, mostly for tests.
	Jitter func() float64
}

var (
	// VotePolicy covers vote, remove, reveal and reset.
	VotePolicy = RetryPolicy{MaxAttempts: 3, Base: 500 * time.Millisecond, Increment: 200 * time.Millisecond}
	// JoinPolicy backs off longer: joins bunch up when a room opens.
	JoinPolicy = RetryPolicy{MaxAttempts: 3, Base: 1000 * time.Millisecond, Increment: 500 * time.Millisecond}
)

// Delay returns the pause taken after the given failed attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	jitter := rand.Float64
	if p.Jitter != nil {
		jitter = p.Jitter
	}
	return time.Duration(float64(p.Base)*jitter()) + time.Duration(attempt)*p.Increment
}

// Executor is the only caller of RoomStore.Transact.
// Conflicts are retried under a policy, any other error aborts at once.
type Executor struct {
	store contract.RoomStore
	log   *slog.Logger
}

func NewExecutor(store contract.RoomStore, log *slog.Logger) *Executor {
	return &Executor{store: store, log: log}
}

func (e *Executor) Run(ctx context.Context, policy RetryPolicy, roomID domain.RoomID, mutator domain.Mutator) (domain.Room, error) {
	attempts := max(policy.MaxAttempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		room, err := e.store.Transact(ctx, roomID, mutator)
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, errors.ErrConflict) {
			return domain.Room{}, err
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		delay := policy.Delay(attempt)
		e.log.Debug("Write conflict, retrying", "room_id", roomID, "attempt", attempt, "delay", delay)
		if err = sleep(ctx, delay); err != nil {
			return domain.Room{}, err
		}
	}
	e.log.Warn("Transaction gave up", "room_id", roomID, "attempts", attempts)
	return domain.Room{}, fmt.Errorf("%w: room %s, %d attempts: %v", errors.ErrTransactionFailed, roomID, attempts, lastErr)
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
