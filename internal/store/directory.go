// internal/store/directory.go

// Package store holds the client-side room directory and per-room message
// logs. The sync engine is the sole writer; all exported accessors return
// copies so observers never alias engine-owned state.
package store

import (
	"geochat/internal/domain/room"
)

// Directory is the ordered set of known rooms, joined and discovered, plus
// the active-room pointer. Rooms keep their insertion order; lookups go
// through an id index.
type Directory struct {
	rooms  []*room.Room
	index  map[string]*room.Room
	active string
}

// NewDirectory creates an empty directory with no active room.
func NewDirectory() *Directory {
	return &Directory{
		index: make(map[string]*room.Room),
	}
}

// Patch carries optional field updates for an existing room. Nil fields
// are left unchanged.
type Patch struct {
	ID           string
	Name         *string
	IsJoined     *bool
	IsNew        *bool
	LastActivity *room.Activity
}

// SetRooms replaces the directory contents with the given rooms, keeping
// their order. The active pointer is preserved when the active room is
// still present, otherwise cleared.
func (d *Directory) SetRooms(rooms []room.Room) {
	d.rooms = make([]*room.Room, 0, len(rooms))
	d.index = make(map[string]*room.Room, len(rooms))
	for i := range rooms {
		r := rooms[i].Clone()
		if _, ok := d.index[r.ID]; ok {
			continue
		}
		d.rooms = append(d.rooms, &r)
		d.index[r.ID] = &r
	}
	if d.active != "" {
		if _, ok := d.index[d.active]; !ok {
			d.active = ""
		}
	}
}

// Update merges the patch into an existing room. It never creates a room;
// an unknown id is a no-op and returns false.
func (d *Directory) Update(p Patch) bool {
	r, ok := d.index[p.ID]
	if !ok {
		return false
	}
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.IsJoined != nil {
		r.IsJoined = *p.IsJoined
	}
	if p.IsNew != nil {
		r.IsNew = *p.IsNew
	}
	if p.LastActivity != nil {
		a := *p.LastActivity
		r.LastActivity = &a
	}
	return true
}

// AddDiscovered inserts a room learned from a server broadcast. The local
// user is not a member; the room is flagged as new for transient highlight.
// A room with a known id is left untouched (the channel is at-least-once).
func (d *Directory) AddDiscovered(r room.Room) {
	if _, ok := d.index[r.ID]; ok {
		return
	}
	c := r.Clone()
	c.IsJoined = false
	c.IsNew = true
	c.UnreadCount = 0
	d.rooms = append(d.rooms, &c)
	d.index[c.ID] = &c
}

// AddCreated inserts a room the local user created. The creator is
// implicitly a member and the room becomes active.
func (d *Directory) AddCreated(r room.Room) {
	if _, ok := d.index[r.ID]; ok {
		d.SetActive(r.ID)
		return
	}
	c := r.Clone()
	c.IsJoined = true
	c.IsNew = false
	c.UnreadCount = 0
	d.rooms = append(d.rooms, &c)
	d.index[c.ID] = &c
	d.SetActive(c.ID)
}

// SetActive changes the active-room pointer. An empty id means no active
// room. Activating a room clears its unread counter and its new flag,
// which maintains the invariant that the active room reads as caught up.
func (d *Directory) SetActive(id string) {
	d.active = ""
	if id == "" {
		return
	}
	r, ok := d.index[id]
	if !ok {
		return
	}
	d.active = id
	r.UnreadCount = 0
	r.IsNew = false
}

// ActiveID returns the active room id, or "" when none.
func (d *Directory) ActiveID() string {
	return d.active
}

// Remove deletes a room entirely. If it was active, the active pointer
// becomes none.
func (d *Directory) Remove(id string) {
	if _, ok := d.index[id]; !ok {
		return
	}
	delete(d.index, id)
	for i, r := range d.rooms {
		if r.ID == id {
			d.rooms = append(d.rooms[:i], d.rooms[i+1:]...)
			break
		}
	}
	if d.active == id {
		d.active = ""
	}
}

// Get returns a copy of the room with the given id.
func (d *Directory) Get(id string) (room.Room, bool) {
	r, ok := d.index[id]
	if !ok {
		return room.Room{}, false
	}
	return r.Clone(), true
}

// Rooms returns copies of all rooms in insertion order.
func (d *Directory) Rooms() []room.Room {
	out := make([]room.Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		out = append(out, r.Clone())
	}
	return out
}

// Len returns the number of rooms in the directory.
func (d *Directory) Len() int {
	return len(d.rooms)
}

// get returns the live room record for in-package mutation.
func (d *Directory) get(id string) *room.Room {
	return d.index[id]
}
