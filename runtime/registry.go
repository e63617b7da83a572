package runtime

import (
	"sync"

	"estimo/contract"
	"estimo/domain"
)

// Registry maps each room to the sinks of its current subscriptions.
// A subscription id is unique per listener, so the same client can watch a
// room more than once (for instance from two tabs).
type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]map[string]contract.RoomSink
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[domain.RoomID]map[string]contract.RoomSink)}
}

// GetSinksForRoom returns a copy of the sinks registered for roomID, so the
// caller can deliver without holding the registry lock.
// Returns nil if nobody watches the room.
func (r *Registry) GetSinksForRoom(roomID domain.RoomID) []contract.RoomSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subscriptions, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	sinks := make([]contract.RoomSink, 0, len(subscriptions))
	for _, sink := range subscriptions {
		sinks = append(sinks, sink)
	}
	return sinks
}

// Subscribe registers sink under subscriptionID for roomID.
// The room entry is created on the fly.
func (r *Registry) Subscribe(subscriptionID string, roomID domain.RoomID, sink contract.RoomSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[roomID]; !ok {
		r.rooms[roomID] = make(map[string]contract.RoomSink)
	}
	r.rooms[roomID][subscriptionID] = sink
}

// Unsubscribe removes one subscription. Empty rooms are dropped so the map
// does not grow with every room ever watched.
func (r *Registry) Unsubscribe(subscriptionID string, roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subscriptions, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(subscriptions, subscriptionID)
	if len(subscriptions) == 0 {
		delete(r.rooms, roomID)
	}
}

// Watchers reports how many subscriptions each watched room has.
func (r *Registry) Watchers() map[domain.RoomID]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make(map[domain.RoomID]int, len(r.rooms))
	for roomID, subscriptions := range r.rooms {
		res[roomID] = len(subscriptions)
	}
	return res
}
