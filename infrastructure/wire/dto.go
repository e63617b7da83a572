// Package wire holds the JSON shapes exchanged by the gRPC and HTTP surfaces
// and their mapping to the domain.
package wire

import (
	"time"

	"estimo/domain"

	"github.com/samber/lo"
)

type Participant struct {
	Name     string    `json:"name" binding:"required"`
	IsHost   bool      `json:"isHost"`
	JoinedAt time.Time `json:"joinedAt"`
	HasVoted bool      `json:"hasVoted"`
	// Vote is hidden from the room view until votes are revealed.
	Vote string `json:"vote,omitempty"`
}

type Room struct {
	ID            string        `json:"id"`
	CreatedAt     time.Time     `json:"createdAt"`
	VotesRevealed bool          `json:"votesRevealed"`
	Participants  []Participant `json:"participants"`
	Revision      uint64        `json:"revision"`
}

type Summary struct {
	Participants int     `json:"participants"`
	Voters       int     `json:"voters"`
	AllVoted     bool    `json:"allVoted"`
	Numeric      int     `json:"numeric"`
	Average      float64 `json:"average"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
}

type JoinRequest struct {
	RoomID      string      `json:"roomId"`
	Participant Participant `json:"participant"`
}

// VoteRequest carries a vote in its textual form; an empty vote withdraws it.
type VoteRequest struct {
	RoomID string `json:"roomId"`
	Name   string `json:"name"`
	Vote   string `json:"vote"`
}

type RoomRequest struct {
	RoomID string `json:"roomId"`
}

type PlayerRequest struct {
	RoomID string `json:"roomId"`
	Name   string `json:"name"`
}

type CreateRoomResponse struct {
	RoomID string `json:"roomId"`
}

type Empty struct{}

// FromRoom maps a snapshot for the wire. Individual votes are only exposed
// once the room has revealed them; hasVoted is always visible.
func FromRoom(room domain.Room) *Room {
	return &Room{
		ID:            string(room.ID),
		CreatedAt:     room.CreatedAt,
		VotesRevealed: room.VotesRevealed,
		Revision:      room.Revision,
		Participants: lo.Map(room.Participants, func(p domain.Participant, _ int) Participant {
			return fromParticipant(p, room.VotesRevealed)
		}),
	}
}

// ToRoom is the inverse of FromRoom. Hidden votes come back as placeholders
// so that HasVoted still holds.
func ToRoom(room *Room) (domain.Room, error) {
	participants := make([]domain.Participant, 0, len(room.Participants))
	for _, p := range room.Participants {
		participant, err := toParticipant(p)
		if err != nil {
			return domain.Room{}, err
		}
		participants = append(participants, participant)
	}
	return domain.Room{
		ID:            domain.RoomID(room.ID),
		CreatedAt:     room.CreatedAt,
		VotesRevealed: room.VotesRevealed,
		Participants:  participants,
		Revision:      room.Revision,
	}, nil
}

// ToParticipant builds the participant sent by a joining client.
func (p Participant) ToParticipant() domain.Participant {
	return domain.NewParticipant(p.Name, p.IsHost)
}

func FromSummary(summary domain.Summary) *Summary {
	return &Summary{
		Participants: summary.Participants,
		Voters:       summary.Voters,
		AllVoted:     summary.AllVoted,
		Numeric:      summary.Numeric,
		Average:      summary.Average,
		Min:          summary.Min,
		Max:          summary.Max,
	}
}

func fromParticipant(p domain.Participant, revealed bool) Participant {
	res := Participant{
		Name:     p.Name,
		IsHost:   p.IsHost,
		JoinedAt: p.JoinedAt,
		HasVoted: p.HasVoted(),
	}
	if revealed && p.Vote != nil {
		res.Vote = p.Vote.String()
	}
	return res
}

func toParticipant(p Participant) (domain.Participant, error) {
	participant := domain.Participant{Name: p.Name, IsHost: p.IsHost, JoinedAt: p.JoinedAt}
	if p.Vote != "" {
		vote, err := domain.ParseVote(p.Vote)
		if err != nil {
			return domain.Participant{}, err
		}
		participant.Vote = vote
		return participant, nil
	}
	if p.HasVoted {
		participant.Vote = domain.Token(HiddenVote)
	}
	return participant, nil
}

// HiddenVote stands in for a vote cast but not revealed yet.
const HiddenVote domain.VoteToken = "hidden"
