package domain

import (
	"fmt"
	"strconv"
	"strings"

	"estimo/errors"
)

type VoteToken string

const (
	TokenUnsure VoteToken = "?"
	TokenCoffee VoteToken = "coffee"
)

// StoryPoints is the default deck offered to voters.
var StoryPoints = []float64{1, 2, 3, 5, 8, 13}

// Vote is either a numeric estimate or one of the sentinel tokens.
// A set Token means the vote is not numeric and Points is ignored.
type Vote struct {
	Points float64   `validate:"gte=0,lte=1000"`
	Token  VoteToken `validate:"omitempty,oneof=? coffee"`
}

func Points(points float64) *Vote {
	return &Vote{Points: points}
}

func Token(token VoteToken) *Vote {
	return &Vote{Token: token}
}

func (v Vote) IsNumeric() bool {
	return v.Token == ""
}

func (v Vote) Validate() error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: vote: %v", errors.ErrValidation, err)
	}
	return nil
}

func (v Vote) String() string {
	if !v.IsNumeric() {
		return string(v.Token)
	}
	return strconv.FormatFloat(v.Points, 'f', -1, 64)
}

// ParseVote reads the textual form produced by String.
// An empty string means "no vote" and yields nil.
func ParseVote(s string) (*Vote, error) {
	s = strings.TrimSpace(s)
	switch VoteToken(s) {
	case "":
		return nil, nil
	case TokenUnsure, TokenCoffee:
		return Token(VoteToken(s)), nil
	}
	points, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: vote %q is neither a number nor a known token", errors.ErrValidation, s)
	}
	vote := Points(points)
	if err = vote.Validate(); err != nil {
		return nil, err
	}
	return vote, nil
}

func (v *Vote) clone() *Vote {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
