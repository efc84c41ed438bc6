package utils

import (
	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// GenerateNonce returns a random alphanumeric string of the given length.
func GenerateNonce(length int) (string, error) {
	return gonanoid.Generate(alphabet, length)
}

// ToUUID parses s, returning uuid.Nil when it is not a valid UUID.
func ToUUID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}
