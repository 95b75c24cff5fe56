package protocol

import "github.com/google/uuid"

// NewID mints an opaque identifier for clients and rooms. Random v4 UUIDs
// give 122 bits of entropy, so collisions over a process lifetime are
// negligible without any coordination between callers.
func NewID() string {
	return uuid.NewString()
}
