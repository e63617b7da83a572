package runtime

import (
	"context"
	"testing"

	"estimo/contract"
	"estimo/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type Sink struct {
	name string
}

func (s Sink) Consume(ctx context.Context, room domain.Room) error {
	return nil
}

func TestRegistry_Subscribe_One_Room_One_Listener(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	subscriptionID := uuid.NewString()
	roomID := domain.RoomID("AB12")
	sink := Sink{name: "alice"}

	// Given nobody watches any room
	req.Empty(registry.rooms)
	req.Nil(registry.GetSinksForRoom(roomID))

	// When a listener subscribes a room
	registry.Subscribe(subscriptionID, roomID, sink)

	// Then the room has exactly that sink
	req.Len(registry.rooms, 1)
	req.Len(registry.GetSinksForRoom(roomID), 1)
	req.Contains(registry.GetSinksForRoom(roomID), sink)
	req.Equal(map[domain.RoomID]int{roomID: 1}, registry.Watchers())
}

func TestRegistry_Subscribe_Rooms_Are_Isolated(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	sink1 := Sink{name: "alice"}
	sink2 := Sink{name: "bob"}

	// When two listeners subscribe different rooms
	registry.Subscribe(uuid.NewString(), "AB12", sink1)
	registry.Subscribe(uuid.NewString(), "CD34", sink2)

	// Then each room only sees its own sink
	req.Equal([]contract.RoomSink{sink1}, registry.GetSinksForRoom("AB12"))
	req.Equal([]contract.RoomSink{sink2}, registry.GetSinksForRoom("CD34"))
}

func TestRegistry_Same_Client_Twice(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	sink := Sink{name: "alice"}

	// When the same client watches one room from two subscriptions
	registry.Subscribe(uuid.NewString(), "AB12", sink)
	registry.Subscribe(uuid.NewString(), "AB12", sink)

	// Then both are delivered to
	req.Len(registry.GetSinksForRoom("AB12"), 2)
}

func TestRegistry_Unsubscribe_Last_Listener_Drops_Room(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	subscriptionID := uuid.NewString()
	roomID := domain.RoomID("AB12")

	// Given a listener subscribed a room
	registry.Subscribe(subscriptionID, roomID, Sink{})

	// When it unsubscribes
	registry.Unsubscribe(subscriptionID, roomID)

	// Then the room entry is gone
	req.Empty(registry.rooms)
	req.Nil(registry.GetSinksForRoom(roomID))

	// And unsubscribing again is harmless
	registry.Unsubscribe(subscriptionID, roomID)
}

func TestRegistry_Unsubscribe_Keeps_Other_Listeners(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	subscriptionID1 := uuid.NewString()
	subscriptionID2 := uuid.NewString()
	roomID := domain.RoomID("AB12")
	sink2 := Sink{name: "bob"}

	registry.Subscribe(subscriptionID1, roomID, Sink{name: "alice"})
	registry.Subscribe(subscriptionID2, roomID, sink2)

	// When one listener leaves
	registry.Unsubscribe(subscriptionID1, roomID)

	// Then only the other one is left
	req.Len(registry.rooms[roomID], 1)
	req.Contains(registry.GetSinksForRoom(roomID), sink2)
}
