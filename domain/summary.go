package domain

import (
	"math"

	"github.com/samber/lo"
)

// Summary holds the round statistics shown once votes are revealed.
// Token votes count as voted but stay out of the numeric figures.
type Summary struct {
	Participants int
	Voters       int
	AllVoted     bool
	Numeric      int
	Average      float64
	Min          float64
	Max          float64
}

func Summarize(room Room) Summary {
	voters := lo.Filter(room.Participants, func(p Participant, _ int) bool {
		return p.HasVoted()
	})
	points := lo.FilterMap(voters, func(p Participant, _ int) (float64, bool) {
		return p.Vote.Points, p.Vote.IsNumeric()
	})

	summary := Summary{
		Participants: len(room.Participants),
		Voters:       len(voters),
		AllVoted:     len(room.Participants) > 0 && len(voters) == len(room.Participants),
		Numeric:      len(points),
	}
	if len(points) == 0 {
		return summary
	}
	summary.Average = math.Round(lo.Sum(points)/float64(len(points))*10) / 10
	summary.Min = lo.Min(points)
	summary.Max = lo.Max(points)
	return summary
}
