// Package registry tracks which live connections are joined to which
// rooms. It is the only state shared between the per-connection sessions
// and the broadcast dispatcher, and it internalizes its own locking so
// callers never reason about lock ordering.
package registry

import (
	"sync"

	"github.com/fluxchat/relay/internal/wire"
)

// Connection is the handle the registry keeps per member. Sessions
// implement it; Deliver must not block.
type Connection interface {
	Deliver(payload []byte) error
}

// Member pairs a live connection with the identity it joined under.
type Member struct {
	Conn     Connection
	Identity wire.Identity
}

// Registry maps room ids to the set of live connections joined to each.
// All operations serialize on one mutex; a room with no members is removed
// so short-lived rooms never leak entries over the process lifetime.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]map[Connection]wire.Identity
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{rooms: make(map[string]map[Connection]wire.Identity)}
}

// Join registers conn as a member of roomID. Joining a room the connection
// is already in is a no-op, so a repeated join never duplicates fan-out
// sends.
func (r *Registry) Join(roomID string, conn Connection, identity wire.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[roomID]
	if members == nil {
		members = make(map[Connection]wire.Identity)
		r.rooms[roomID] = members
	}
	members[conn] = identity
}

// Leave removes conn from roomID, deleting the room entry when it empties.
// Leaving a room the connection never joined is a no-op.
func (r *Registry) Leave(roomID string, conn Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(members, conn)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
}

// RemoveConnection removes conn from every room it joined. It is called
// exactly once when a connection closes; after it returns, no broadcast
// can reach the dead handle.
func (r *Registry) RemoveConnection(conn Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for roomID, members := range r.rooms {
		delete(members, conn)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
}

// MembersOf returns a snapshot of the members currently joined to roomID.
// The slice is safe to iterate without holding any registry lock; a member
// that leaves mid-fan-out may still receive that broadcast.
func (r *Registry) MembersOf(roomID string) []Member {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[roomID]
	if len(members) == 0 {
		return nil
	}
	snapshot := make([]Member, 0, len(members))
	for conn, identity := range members {
		snapshot = append(snapshot, Member{Conn: conn, Identity: identity})
	}
	return snapshot
}

// RoomCount reports the number of rooms with at least one member.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
