package domain

import (
	"fmt"

	"estimo/errors"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	roomIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	roomIDLength   = 6
)

// NewRoomID returns a short shareable id such as "K3F9QZ".
func NewRoomID() (RoomID, error) {
	id, err := gonanoid.Generate(roomIDAlphabet, roomIDLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate room id: %w", err)
	}
	return RoomID(id), nil
}

func ValidateRoomID(id RoomID) error {
	if err := validate.Var(string(id), "required,notblank,max=64"); err != nil {
		return fmt.Errorf("%w: room id %q: %v", errors.ErrValidation, id, err)
	}
	return nil
}
