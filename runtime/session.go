package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"estimo/contract"
	"estimo/domain"
	"estimo/errors"

	"golang.org/x/time/rate"
)

type SessionState int32

const (
	Unjoined SessionState = iota
	Joining
	Joined
)

func (s SessionState) String() string {
	switch s {
	case Unjoined:
		return "unjoined"
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Window is a uniform random delay in [Min, Max).
type Window struct {
	Min time.Duration
	Max time.Duration
}

func (w Window) Pick() time.Duration {
	if w.Max <= w.Min {
		return w.Min
	}
	return w.Min + rand.N(w.Max-w.Min)
}

// SessionPolicy drives the whole-attempt retry of a session. It sits above
// the executor's RetryPolicy, which only absorbs write conflicts.
type SessionPolicy struct {
	Stagger          Window
	AttemptTimeout   time.Duration
	OrdinaryRetry    Window
	ExceptionalRetry Window
	VoteInterval     time.Duration
}

var DefaultSessionPolicy = SessionPolicy{
	Stagger:          Window{Min: 0, Max: 200 * time.Millisecond},
	AttemptTimeout:   10 * time.Second,
	OrdinaryRetry:    Window{Min: 1000 * time.Millisecond, Max: 2000 * time.Millisecond},
	ExceptionalRetry: Window{Min: 2000 * time.Millisecond, Max: 3000 * time.Millisecond},
	VoteInterval:     500 * time.Millisecond,
}

// RetryDelay classifies a failed join attempt. Executor exhaustion and
// deadline overruns are ordinary; anything else, panics included, backs off
// longer.
func (p SessionPolicy) RetryDelay(err error) time.Duration {
	if errors.Is(err, errors.ErrTransactionFailed) || errors.Is(err, errors.ErrTimeout) {
		return p.OrdinaryRetry.Pick()
	}
	return p.ExceptionalRetry.Pick()
}

type step int

const (
	stepEnterJoining step = iota
	stepAttempt
)

// Session is one client's presence in a room.
//
// A single event loop owns the join state machine: it enters Joining after a
// stagger, runs one join attempt under a deadline, and on failure goes back
// to Unjoined until the retry delay elapses. Once Joined it stops for good.
// Votes are gated client-side: a vote arriving sooner than VoteInterval after
// the previous accepted one is dropped.
type Session struct {
	log         *slog.Logger
	engine      contract.RoomEngine
	roomID      domain.RoomID
	participant domain.Participant
	policy      SessionPolicy
	limiter     *rate.Limiter

	state    atomic.Int32
	attempts atomic.Int32
	joined   chan struct{}

	mu        sync.RWMutex
	isClosed  bool
	closed    chan struct{}
	startOnce sync.Once
}

func NewSession(log *slog.Logger, engine contract.RoomEngine, roomID domain.RoomID,
	participant domain.Participant, policy SessionPolicy) (*Session, error) {
	if err := domain.ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	if err := participant.Validate(); err != nil {
		return nil, err
	}
	return &Session{
		log:         log.With("room_id", roomID, "participant", participant.Name),
		engine:      engine,
		roomID:      roomID,
		participant: participant,
		policy:      policy,
		limiter:     rate.NewLimiter(rate.Every(policy.VoteInterval), 1),
		joined:      make(chan struct{}),
		closed:      make(chan struct{}),
	}, nil
}

func (s *Session) RoomID() domain.RoomID { return s.roomID }

func (s *Session) Participant() domain.Participant { return s.participant }

func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

// Attempts counts the join attempts started so far.
func (s *Session) Attempts() int { return int(s.attempts.Load()) }

// Joined is closed once the participant is committed in the room.
func (s *Session) Joined() <-chan struct{} { return s.joined }

// Start launches the join loop. It runs until joined, ctx is canceled or
// Close is called. Calling Start more than once has no effect.
func (s *Session) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.run(ctx)
	})
}

// Close stops the session. After Close returns no join attempt is started
// and Vote fails with errors.ErrSessionClosed. An attempt already in flight
// is left to finish but its outcome is ignored.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed {
		return
	}
	s.isClosed = true
	close(s.closed)
}

// Vote submits a vote through the gate. A nil vote withdraws the current one.
func (s *Session) Vote(ctx context.Context, vote *domain.Vote) error {
	s.mu.RLock()
	closed := s.isClosed
	s.mu.RUnlock()
	if closed {
		return errors.ErrSessionClosed
	}
	if !s.limiter.Allow() {
		s.log.Debug("Vote dropped by gate")
		return errors.ErrVoteThrottled
	}
	return s.engine.Vote(ctx, s.roomID, s.participant.Name, vote)
}

func (s *Session) run(ctx context.Context) {
	results := make(chan error, 1)
	next := stepEnterJoining
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Debug("Session canceled", "state", s.State())
			return
		case <-s.closed:
			s.log.Debug("Session closed", "state", s.State())
			return
		case <-timer.C:
			switch next {
			case stepEnterJoining:
				s.setState(Joining)
				next = stepAttempt
				timer.Reset(s.policy.Stagger.Pick())
			case stepAttempt:
				if !s.launch(ctx, results) {
					return
				}
			}
		case err := <-results:
			if err == nil {
				s.setState(Joined)
				close(s.joined)
				s.log.Info("Joined room", "attempts", s.Attempts())
				return
			}
			delay := s.policy.RetryDelay(err)
			s.setState(Unjoined)
			s.log.Warn("Join attempt failed, retrying", "attempt", s.Attempts(), "delay", delay, "error", err)
			next = stepEnterJoining
			timer.Reset(delay)
		}
	}
}

// launch starts one attempt unless the session was closed meanwhile.
func (s *Session) launch(ctx context.Context, results chan<- error) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.isClosed {
		return false
	}
	s.attempts.Add(1)
	go s.attempt(ctx, results)
	return true
}

// attempt runs one join under the attempt deadline. The deadline is enforced
// here even if the engine ignores its context.
func (s *Session) attempt(ctx context.Context, results chan<- error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.policy.AttemptTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.join(attemptCtx)
	}()

	select {
	case err := <-done:
		if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", errors.ErrTimeout, err)
		}
		results <- err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			results <- ctx.Err()
			return
		}
		results <- fmt.Errorf("%w: after %s", errors.ErrTimeout, s.policy.AttemptTimeout)
	}
}

func (s *Session) join(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: join: %v", errors.ErrWorkerPanic, r)
		}
	}()
	return s.engine.Join(ctx, s.roomID, s.participant)
}

func (s *Session) setState(state SessionState) {
	s.state.Store(int32(state))
}
