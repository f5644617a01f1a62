package core

import (
	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
	"github.com/oklog/ulid/v2"
)

const IDLength = 22

// NewID encodes a fresh ULID in base57, which always yields IDLength URL-safe characters.
func NewID() string {
	return shortuuid.DefaultEncoder.Encode(uuid.UUID(ulid.Make()))
}
