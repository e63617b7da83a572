//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"estimo/domain"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// RoomStore is the durable owner of room documents.
// Transact reads a snapshot, applies the mutator and commits only if no other
// transaction committed the same room in between, else it fails with errors.ErrConflict.
type RoomStore interface {
	Get(ctx context.Context, id domain.RoomID) (domain.Room, error)
	Transact(ctx context.Context, id domain.RoomID, mutator domain.Mutator) (domain.Room, error)
}

// Publisher receives every committed snapshot, in commit order per room.
type Publisher interface {
	Publish(room domain.Room) error
}

// RoomSink is one delivery endpoint registered for a room.
type RoomSink interface {
	Consume(ctx context.Context, room domain.Room) error
}

type IRegistry interface {
	GetSinksForRoom(roomID domain.RoomID) []RoomSink
	Subscribe(subscriptionID string, roomID domain.RoomID, sink RoomSink)
	Unsubscribe(subscriptionID string, roomID domain.RoomID)
}

// RoomEngine is the surface consumed by clients, in-process or remote.
type RoomEngine interface {
	Join(ctx context.Context, roomID domain.RoomID, participant domain.Participant) error
	Vote(ctx context.Context, roomID domain.RoomID, name string, vote *domain.Vote) error
	RevealVotes(ctx context.Context, roomID domain.RoomID) error
	StartNewRound(ctx context.Context, roomID domain.RoomID) error
	RemovePlayer(ctx context.Context, roomID domain.RoomID, name string) error
	GetRoom(ctx context.Context, roomID domain.RoomID) (domain.Room, error)
	SubscribeRoom(roomID domain.RoomID, onChange func(domain.Room), onError func(error)) (cancel func())
}
