package model

import (
	"errors"

	"github.com/google/uuid"
)

var ErrEmailUserDoesNotExists = errors.New("user with this email doesn't exists")

type User struct {
	UserID    uuid.UUID
	Email     string
	PersonaID string
}
