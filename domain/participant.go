// Package domain contains core concepts of the estimation rooms.
// This file defines Participant entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"fmt"
	"time"

	"estimo/errors"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

var validate = newValidator()

// newValidator registers the non-standard tags used by the domain rules.
func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(fmt.Sprintf("failed to register notblank validation: %v", err))
	}
	return v
}

// Participant is one named member of a room.
// Name is the unique, case-sensitive key within the room.
// HasVoted is derived from Vote so the two can never disagree.
type Participant struct {
	Name     string `validate:"required,notblank,max=64"`
	IsHost   bool
	JoinedAt time.Time
	Vote     *Vote `validate:"omitempty"`
}

func NewParticipant(name string, isHost bool) Participant {
	return Participant{Name: name, IsHost: isHost}
}

func (p Participant) HasVoted() bool {
	return p.Vote != nil
}

// Validate rejects malformed participants before any transaction is attempted.
func (p Participant) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: participant: %v", errors.ErrValidation, err)
	}
	return nil
}

// ValidateName applies the participant name rules to a bare name.
func ValidateName(name string) error {
	if err := validate.Var(name, "required,notblank,max=64"); err != nil {
		return fmt.Errorf("%w: name %q: %v", errors.ErrValidation, name, err)
	}
	return nil
}

// merge applies an incoming join payload over an existing entry.
// Fields carried by the incoming payload win; an absent vote keeps the old one.
func (p Participant) merge(incoming Participant) Participant {
	merged := p
	merged.IsHost = incoming.IsHost
	merged.JoinedAt = incoming.JoinedAt
	if incoming.Vote != nil {
		merged.Vote = incoming.Vote.clone()
	}
	return merged
}

func (p Participant) clone() Participant {
	p.Vote = p.Vote.clone()
	return p
}
