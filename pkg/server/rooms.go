package server

import (
	"errors"
	"sync"

	"github.com/corvid/scrawl/pkg/protocol"
)

// ErrRoomNotFound is returned when a room id does not exist. It is a
// recoverable per-message condition, never fatal to the connection.
var ErrRoomNotFound = errors.New("room not found")

// RoomRegistry maps room ids to their ordered member lists. Member order is
// append order, and duplicate joins append the same client twice; the list
// is not deduplicated.
type RoomRegistry struct {
	mu      sync.RWMutex
	rooms   map[string][]string
	metrics *Metrics
}

// NewRoomRegistry creates an empty room registry
func NewRoomRegistry(metrics *Metrics) *RoomRegistry {
	return &RoomRegistry{
		rooms:   make(map[string][]string),
		metrics: metrics,
	}
}

// Create mints a fresh room id with an empty member list. Always succeeds.
func (r *RoomRegistry) Create() string {
	roomID := protocol.NewID()

	r.mu.Lock()
	r.rooms[roomID] = []string{}
	count := len(r.rooms)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordActiveRooms(count)
		r.metrics.RecordRoomCreated()
	}

	return roomID
}

// Join appends a client to a room's member list. Callers validate the
// client id before calling; the registry only checks the room exists.
func (r *RoomRegistry) Join(roomID, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	r.rooms[roomID] = append(members, clientID)
	return nil
}

// Members returns a snapshot of a room's member list in join order. The
// returned slice is a copy, so a concurrent join cannot mutate a fan-out in
// progress.
func (r *RoomRegistry) Members(roomID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}

	snapshot := make([]string, len(members))
	copy(snapshot, members)
	return snapshot, nil
}

// RemoveClient strips a departing client from every room it belongs to,
// including duplicate entries. Called on transport close so rooms never
// accumulate stale recipients.
func (r *RoomRegistry) RemoveClient(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for roomID, members := range r.rooms {
		kept := members[:0]
		for _, id := range members {
			if id != clientID {
				kept = append(kept, id)
			}
		}
		if len(kept) != len(members) {
			r.rooms[roomID] = kept
		}
	}
}

// Count returns the number of rooms
func (r *RoomRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms)
}
