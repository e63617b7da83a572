package wire

import (
	"testing"
	"time"

	"estimo/domain"
	"estimo/errors"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

func votedRoom(revealed bool) domain.Room {
	return domain.Room{
		ID:            "AB12",
		CreatedAt:     t0,
		VotesRevealed: revealed,
		Revision:      5,
		Participants: []domain.Participant{
			{Name: "Alice", IsHost: true, JoinedAt: t0, Vote: domain.Points(5)},
			{Name: "Bob", JoinedAt: t0, Vote: domain.Token(domain.TokenCoffee)},
			{Name: "Carol", JoinedAt: t0},
		},
	}
}

func TestFromRoom_Hides_Votes_Until_Revealed(t *testing.T) {
	req := require.New(t)

	// Given a room where two of three voted, not revealed yet
	room := FromRoom(votedRoom(false))

	// Then everyone sees who voted but not what
	req.Equal([]bool{true, true, false}, []bool{
		room.Participants[0].HasVoted, room.Participants[1].HasVoted, room.Participants[2].HasVoted,
	})
	for _, p := range room.Participants {
		req.Empty(p.Vote)
	}

	// And mapping back keeps hasVoted through a placeholder
	back, err := ToRoom(room)
	req.NoError(err)
	alice, _ := back.Participant("Alice")
	req.True(alice.HasVoted())
	req.Equal(HiddenVote, alice.Vote.Token)
}

func TestFromRoom_Round_Trip_Once_Revealed(t *testing.T) {
	req := require.New(t)
	room := votedRoom(true)

	back, err := ToRoom(FromRoom(room))

	req.NoError(err)
	req.Equal(room, back)
}

func TestToRoom_Rejects_Unknown_Vote(t *testing.T) {
	req := require.New(t)

	_, err := ToRoom(&Room{ID: "AB12", Participants: []Participant{{Name: "Alice", Vote: "lots"}}})

	req.ErrorIs(err, errors.ErrValidation)
}

func TestFromSummary(t *testing.T) {
	req := require.New(t)

	summary := FromSummary(domain.Summarize(votedRoom(true)))

	req.Equal(3, summary.Participants)
	req.Equal(2, summary.Voters)
	req.False(summary.AllVoted)
	req.Equal(5.0, summary.Average)
}
