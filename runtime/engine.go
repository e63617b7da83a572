// Package runtime runs the room synchronization engine: transactional
// mutations with conflict retry, the snapshot fan-out and client sessions.
// It orchestrates the system without containing domain rules.
package runtime

import (
	"context"
	"log/slog"
	"time"

	"estimo/contract"
	"estimo/domain"
)

// Engine is the entry point used by transports and in-process clients.
// Every mutation goes through the executor; reads go straight to the store.
type Engine struct {
	log           *slog.Logger
	store         contract.RoomStore
	executor      *Executor
	notifier      *Notifier
	supervisor    contract.ISupervisor
	votePolicy    RetryPolicy
	joinPolicy    RetryPolicy
	sessionPolicy SessionPolicy
	now           func() time.Time
}

var _ contract.RoomEngine = (*Engine)(nil)

func NewEngine(log *slog.Logger, store contract.RoomStore, notifier *Notifier, supervisor contract.ISupervisor) *Engine {
	return &Engine{
		log:           log,
		store:         store,
		executor:      NewExecutor(store, log),
		notifier:      notifier,
		supervisor:    supervisor,
		votePolicy:    VotePolicy,
		joinPolicy:    JoinPolicy,
		sessionPolicy: DefaultSessionPolicy,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithPolicies overrides the executor profiles for votes and joins.
func (e *Engine) WithPolicies(vote, join RetryPolicy) *Engine {
	e.votePolicy = vote
	e.joinPolicy = join
	return e
}

func (e *Engine) WithSessionPolicy(policy SessionPolicy) *Engine {
	e.sessionPolicy = policy
	return e
}

// WithClock replaces the clock stamping createdAt and joinedAt.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Start registers the fan-out worker and blocks while the supervisor runs.
func (e *Engine) Start(ctx context.Context) {
	e.supervisor.Add(e.notifier.Worker())
	e.log.Info("Starting room engine")
	e.supervisor.Run(ctx)
}

// Stop refuses further publications and stops supervised workers.
func (e *Engine) Stop() {
	e.log.Info("Stopping room engine")
	e.notifier.Stop()
	e.supervisor.Stop()
}

// JoinRoom starts a session that keeps trying to join until it succeeds,
// ctx is canceled or the session is closed. The only synchronous error is
// validation; progress is observed through the session or a subscription.
func (e *Engine) JoinRoom(ctx context.Context, roomID domain.RoomID, participant domain.Participant) (*Session, error) {
	session, err := NewSession(e.log, e, roomID, participant, e.sessionPolicy)
	if err != nil {
		return nil, err
	}
	session.Start(ctx)
	return session, nil
}

// Join runs a single executor-level join. Sessions call it once per attempt.
func (e *Engine) Join(ctx context.Context, roomID domain.RoomID, participant domain.Participant) error {
	if err := domain.ValidateRoomID(roomID); err != nil {
		return err
	}
	if err := participant.Validate(); err != nil {
		return err
	}
	// The clock is read on every attempt so a retried join is stamped with
	// the time of the commit that lands.
	join := func(snapshot *domain.Room) (*domain.Room, error) {
		return domain.Join(participant, e.now())(snapshot)
	}
	_, err := e.executor.Run(ctx, e.joinPolicy, roomID, join)
	return err
}

// Vote records a vote for name. A nil vote withdraws it.
func (e *Engine) Vote(ctx context.Context, roomID domain.RoomID, name string, vote *domain.Vote) error {
	if err := e.validate(roomID, name); err != nil {
		return err
	}
	if vote != nil {
		if err := vote.Validate(); err != nil {
			return err
		}
	}
	return e.mutate(ctx, roomID, domain.CastVote(name, vote))
}

func (e *Engine) RevealVotes(ctx context.Context, roomID domain.RoomID) error {
	if err := domain.ValidateRoomID(roomID); err != nil {
		return err
	}
	return e.mutate(ctx, roomID, domain.Reveal())
}

func (e *Engine) StartNewRound(ctx context.Context, roomID domain.RoomID) error {
	if err := domain.ValidateRoomID(roomID); err != nil {
		return err
	}
	return e.mutate(ctx, roomID, domain.Reset())
}

func (e *Engine) RemovePlayer(ctx context.Context, roomID domain.RoomID, name string) error {
	if err := e.validate(roomID, name); err != nil {
		return err
	}
	return e.mutate(ctx, roomID, domain.Remove(name))
}

func (e *Engine) GetRoom(ctx context.Context, roomID domain.RoomID) (domain.Room, error) {
	if err := domain.ValidateRoomID(roomID); err != nil {
		return domain.Room{}, err
	}
	return e.store.Get(ctx, roomID)
}

// SubscribeRoom registers a listener and seeds it with the current state
// when the room exists. Listeners registered on an absent room get their
// first snapshot when the room is created.
func (e *Engine) SubscribeRoom(roomID domain.RoomID, onChange func(domain.Room), onError func(error)) func() {
	listener, cancel := e.notifier.Subscribe(roomID, onChange, onError)
	ctx := context.Background()
	room, err := e.store.Get(ctx, roomID)
	if err == nil {
		e.notifier.Seed(ctx, listener, room)
	}
	return cancel
}

func (e *Engine) mutate(ctx context.Context, roomID domain.RoomID, mutator domain.Mutator) error {
	_, err := e.executor.Run(ctx, e.votePolicy, roomID, mutator)
	return err
}

func (e *Engine) validate(roomID domain.RoomID, name string) error {
	if err := domain.ValidateRoomID(roomID); err != nil {
		return err
	}
	return domain.ValidateName(name)
}
