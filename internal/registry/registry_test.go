package registry_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/fluxchat/relay/internal/registry"
	"github.com/fluxchat/relay/internal/wire"
)

type fakeConn struct {
	name string
}

func (f *fakeConn) Deliver(_ []byte) error { return nil }

func identity(id string) wire.Identity {
	return wire.Identity{ID: id, Username: "user-" + id}
}

// TestJoinAndMembersOf verifies that a joined connection appears in the
// room's member snapshot with the identity it joined under.
func TestJoinAndMembersOf(t *testing.T) {
	reg := registry.New()
	conn := &fakeConn{name: "a"}

	reg.Join("r1", conn, identity("u1"))

	members := reg.MembersOf("r1")
	if len(members) != 1 {
		t.Fatalf("expected 1 member, got %d", len(members))
	}
	if members[0].Conn != conn {
		t.Error("member snapshot does not contain the joined connection")
	}
	if members[0].Identity.ID != "u1" {
		t.Errorf("expected identity u1, got %q", members[0].Identity.ID)
	}
}

// TestJoinIdempotent verifies that joining the same room twice does not
// duplicate the membership entry.
func TestJoinIdempotent(t *testing.T) {
	reg := registry.New()
	conn := &fakeConn{name: "a"}

	reg.Join("r1", conn, identity("u1"))
	reg.Join("r1", conn, identity("u1"))

	if got := len(reg.MembersOf("r1")); got != 1 {
		t.Errorf("expected 1 member after double join, got %d", got)
	}
}

// TestLeaveRemovesMemberAndEmptyRoom verifies that leaving removes the
// entry and that an emptied room is dropped entirely.
func TestLeaveRemovesMemberAndEmptyRoom(t *testing.T) {
	reg := registry.New()
	a := &fakeConn{name: "a"}
	b := &fakeConn{name: "b"}

	reg.Join("r1", a, identity("u1"))
	reg.Join("r1", b, identity("u2"))

	reg.Leave("r1", a)
	if got := len(reg.MembersOf("r1")); got != 1 {
		t.Fatalf("expected 1 member after leave, got %d", got)
	}

	reg.Leave("r1", b)
	if got := reg.RoomCount(); got != 0 {
		t.Errorf("expected empty room to be removed, have %d rooms", got)
	}
}

// TestLeaveUnknownRoomIsNoop verifies that leaving a room never joined
// does not panic or create state.
func TestLeaveUnknownRoomIsNoop(t *testing.T) {
	reg := registry.New()
	reg.Leave("ghost", &fakeConn{name: "a"})

	if got := reg.RoomCount(); got != 0 {
		t.Errorf("expected 0 rooms, got %d", got)
	}
}

// TestRemoveConnectionSweepsAllRooms verifies the leak-prevention
// invariant: after removal, no room still reaches the connection,
// including every one of several joined rooms.
func TestRemoveConnectionSweepsAllRooms(t *testing.T) {
	reg := registry.New()
	gone := &fakeConn{name: "gone"}
	stays := &fakeConn{name: "stays"}

	rooms := []string{"r1", "r2", "r3"}
	for _, room := range rooms {
		reg.Join(room, gone, identity("u1"))
	}
	reg.Join("r2", stays, identity("u2"))

	reg.RemoveConnection(gone)

	for _, room := range rooms {
		for _, member := range reg.MembersOf(room) {
			if member.Conn == gone {
				t.Errorf("removed connection still reachable in room %s", room)
			}
		}
	}
	if got := len(reg.MembersOf("r2")); got != 1 {
		t.Errorf("expected r2 to keep its other member, got %d", got)
	}
	if got := reg.RoomCount(); got != 1 {
		t.Errorf("expected only r2 to survive, have %d rooms", got)
	}
}

// TestMembersOfEmptyRoom verifies that an unknown room yields an empty
// snapshot rather than an error or a nil-map panic.
func TestMembersOfEmptyRoom(t *testing.T) {
	reg := registry.New()
	if members := reg.MembersOf("empty"); len(members) != 0 {
		t.Errorf("expected no members, got %d", len(members))
	}
}

// TestConcurrentJoinLeaveRemove hammers the registry from many goroutines
// to surface races under -race. Every connection removes itself at the
// end, so the registry must come out empty.
func TestConcurrentJoinLeaveRemove(t *testing.T) {
	reg := registry.New()
	rooms := []string{"r1", "r2", "r3", "r4"}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		conn := &fakeConn{name: fmt.Sprintf("c%d", i)}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				room := rooms[j%len(rooms)]
				reg.Join(room, conn, identity(conn.name))
				reg.MembersOf(room)
				if j%3 == 0 {
					reg.Leave(room, conn)
				}
			}
			reg.RemoveConnection(conn)
		}()
	}
	wg.Wait()

	if got := reg.RoomCount(); got != 0 {
		t.Errorf("expected empty registry after all removals, have %d rooms", got)
	}
}
