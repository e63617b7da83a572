package domain

import (
	"time"

	"estimo/errors"

	"github.com/samber/lo"
)

// Mutator is a pure state transition applied inside a store transaction.
// A nil snapshot means the room does not exist yet. Mutators never modify
// their input and perform no I/O.
type Mutator func(snapshot *Room) (*Room, error)

// Join creates the room on first use, merges into an existing entry with the
// same name, or appends the participant at the end of the roster.
func Join(p Participant, now time.Time) Mutator {
	return func(snapshot *Room) (*Room, error) {
		p.JoinedAt = now
		if snapshot == nil {
			return &Room{
				CreatedAt:     now,
				VotesRevealed: false,
				Participants:  []Participant{p.clone()},
			}, nil
		}
		next := snapshot.Clone()
		_, idx, found := lo.FindIndexOf(next.Participants, func(item Participant) bool {
			return item.Name == p.Name
		})
		if !found {
			next.Participants = append(next.Participants, p.clone())
			return next, nil
		}
		next.Participants[idx] = next.Participants[idx].merge(p)
		return next, nil
	}
}

// CastVote records the vote of name; a nil vote withdraws it.
// An unknown name leaves the room untouched and is not an error.
func CastVote(name string, vote *Vote) Mutator {
	return func(snapshot *Room) (*Room, error) {
		if snapshot == nil {
			return nil, errors.ErrNotFound
		}
		next := snapshot.Clone()
		next.Participants = lo.Map(next.Participants, func(item Participant, _ int) Participant {
			if item.Name == name {
				item.Vote = vote.clone()
			}
			return item
		})
		return next, nil
	}
}

// Remove drops every entry registered under name.
func Remove(name string) Mutator {
	return func(snapshot *Room) (*Room, error) {
		if snapshot == nil {
			return nil, errors.ErrNotFound
		}
		next := snapshot.Clone()
		next.Participants = lo.Reject(next.Participants, func(item Participant, _ int) bool {
			return item.Name == name
		})
		return next, nil
	}
}

func Reveal() Mutator {
	return func(snapshot *Room) (*Room, error) {
		if snapshot == nil {
			return nil, errors.ErrNotFound
		}
		next := snapshot.Clone()
		next.VotesRevealed = true
		return next, nil
	}
}

// Reset starts a new round: votes are hidden and cleared, the roster is kept.
func Reset() Mutator {
	return func(snapshot *Room) (*Room, error) {
		if snapshot == nil {
			return nil, errors.ErrNotFound
		}
		next := snapshot.Clone()
		next.VotesRevealed = false
		next.Participants = lo.Map(next.Participants, func(item Participant, _ int) Participant {
			item.Vote = nil
			return item
		})
		return next, nil
	}
}
