// Package domain contains core concepts of the estimation rooms.
// This file defines the Room aggregate and its read helpers.
// No runtime, network, or storage logic should be added here.
package domain

import (
	"time"

	"github.com/samber/lo"
)

type RoomID string

// Room is the shared document for one estimation session.
// Revision is owned by the store and grows by one on every commit.
type Room struct {
	ID            RoomID
	CreatedAt     time.Time
	VotesRevealed bool
	Participants  []Participant
	Revision      uint64
}

// Participant returns the entry registered under name.
func (r Room) Participant(name string) (Participant, bool) {
	return lo.Find(r.Participants, func(p Participant) bool {
		return p.Name == name
	})
}

// Names lists participant names in roster order.
func (r Room) Names() []string {
	return lo.Map(r.Participants, func(p Participant, _ int) string {
		return p.Name
	})
}

// Host returns the first participant flagged as host, if any.
func (r Room) Host() (Participant, bool) {
	return lo.Find(r.Participants, func(p Participant) bool {
		return p.IsHost
	})
}

// Clone returns a deep copy so that mutators never alias a snapshot.
func (r Room) Clone() *Room {
	next := r
	next.Participants = lo.Map(r.Participants, func(p Participant, _ int) Participant {
		return p.clone()
	})
	return &next
}
