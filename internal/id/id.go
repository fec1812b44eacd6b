package id

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// GenerateID returns prefix + "_" + a time-ordered ULID
func GenerateID(prefix string) string {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader)
	return prefix + "_" + id.String()
}

// NewEventID returns a random UUID for outbound events
func NewEventID() string {
	return uuid.NewString()
}
