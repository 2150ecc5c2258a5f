package store

import (
	"testing"

	"geochat/internal/domain/room"
)

func makeRoom(id, name string) room.Room {
	return room.Room{ID: id, Name: name, Latitude: 10, Longitude: 10}
}

func TestDirectory_SetRooms(t *testing.T) {
	d := NewDirectory()
	d.SetRooms([]room.Room{makeRoom("1", "Lobby"), makeRoom("2", "Garage")})

	if d.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", d.Len())
	}
	r, ok := d.Get("1")
	if !ok {
		t.Fatal("room 1 not found")
	}
	if r.IsJoined {
		t.Error("membership should default to false")
	}
}

func TestDirectory_SetRooms_ClearsStaleActive(t *testing.T) {
	d := NewDirectory()
	d.SetRooms([]room.Room{makeRoom("1", "Lobby")})
	d.SetActive("1")

	d.SetRooms([]room.Room{makeRoom("2", "Garage")})
	if d.ActiveID() != "" {
		t.Errorf("ActiveID() = %q after active room disappeared, want none", d.ActiveID())
	}
}

func TestDirectory_Update(t *testing.T) {
	d := NewDirectory()
	d.SetRooms([]room.Room{makeRoom("1", "Lobby")})

	joined := true
	if !d.Update(Patch{ID: "1", IsJoined: &joined}) {
		t.Fatal("Update on known room returned false")
	}
	r, _ := d.Get("1")
	if !r.IsJoined {
		t.Error("IsJoined not applied")
	}
	if r.Name != "Lobby" {
		t.Errorf("Name = %q changed by partial update", r.Name)
	}
}

func TestDirectory_Update_UnknownIsNoOp(t *testing.T) {
	d := NewDirectory()
	joined := true
	if d.Update(Patch{ID: "ghost", IsJoined: &joined}) {
		t.Error("Update on unknown room returned true")
	}
	if d.Len() != 0 {
		t.Error("Update must never create a room")
	}
}

func TestDirectory_AddDiscovered(t *testing.T) {
	d := NewDirectory()
	d.AddDiscovered(makeRoom("1", "Lobby"))

	r, ok := d.Get("1")
	if !ok {
		t.Fatal("room not added")
	}
	if r.IsJoined {
		t.Error("discovered room should not be joined")
	}
	if !r.IsNew {
		t.Error("discovered room should be flagged new")
	}
	if d.ActiveID() != "" {
		t.Error("discovery must not change the active room")
	}

	// Duplicate broadcast is harmless
	d.AddDiscovered(makeRoom("1", "Lobby"))
	if d.Len() != 1 {
		t.Errorf("Len() = %d after duplicate add, want 1", d.Len())
	}
}

func TestDirectory_AddCreated(t *testing.T) {
	d := NewDirectory()
	d.AddCreated(makeRoom("1", "Mine"))

	r, _ := d.Get("1")
	if !r.IsJoined {
		t.Error("creator is implicitly a member")
	}
	if r.IsNew {
		t.Error("own room should not carry the new highlight")
	}
	if d.ActiveID() != "1" {
		t.Errorf("ActiveID() = %q, want created room", d.ActiveID())
	}
}

func TestDirectory_SetActive_ClearsUnreadAndNew(t *testing.T) {
	d := NewDirectory()
	d.AddDiscovered(makeRoom("1", "Lobby"))
	msgs := NewMessageStore(d)
	msgs.Append("1", room.Message{ID: "m1", Text: "hi"})

	if got := msgs.Unread("1"); got != 1 {
		t.Fatalf("Unread = %d before activation, want 1", got)
	}
	d.SetActive("1")

	r, _ := d.Get("1")
	if r.UnreadCount != 0 {
		t.Errorf("UnreadCount = %d after activation, want 0", r.UnreadCount)
	}
	if r.IsNew {
		t.Error("new flag should clear on activation")
	}
}

func TestDirectory_SetActive_UnknownRoom(t *testing.T) {
	d := NewDirectory()
	d.SetRooms([]room.Room{makeRoom("1", "Lobby")})
	d.SetActive("1")

	d.SetActive("ghost")
	if d.ActiveID() != "" {
		t.Errorf("ActiveID() = %q after activating unknown room, want none", d.ActiveID())
	}
}

func TestDirectory_Remove(t *testing.T) {
	d := NewDirectory()
	d.SetRooms([]room.Room{makeRoom("1", "Lobby"), makeRoom("2", "Garage")})
	d.SetActive("1")

	d.Remove("1")
	if _, ok := d.Get("1"); ok {
		t.Error("room still present after Remove")
	}
	if d.ActiveID() != "" {
		t.Error("removing the active room must clear the active pointer")
	}
	if got := ids(d.Rooms()); len(got) != 1 || got[0] != "2" {
		t.Errorf("Rooms() = %v, want [2]", got)
	}
}

func TestDirectory_RoomsKeepInsertionOrder(t *testing.T) {
	d := NewDirectory()
	d.SetRooms([]room.Room{makeRoom("b", "B"), makeRoom("a", "A")})
	d.AddDiscovered(makeRoom("c", "C"))

	got := ids(d.Rooms())
	want := []string{"b", "a", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Rooms() order = %v, want %v", got, want)
		}
	}
}

func TestDirectory_SnapshotsDoNotAlias(t *testing.T) {
	d := NewDirectory()
	d.SetRooms([]room.Room{makeRoom("1", "Lobby")})

	snap, _ := d.Get("1")
	snap.Name = "Mutated"

	r, _ := d.Get("1")
	if r.Name != "Lobby" {
		t.Errorf("directory state mutated through a snapshot: %q", r.Name)
	}
}

func ids(rooms []room.Room) []string {
	out := make([]string, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.ID)
	}
	return out
}
