// internal/domain/room/model.go

package room

import (
	"time"

	"geochat/internal/domain/geo"
)

// MaxMessageLength is the longest message body accepted for sending.
const MaxMessageLength = 500

// ActivityKind identifies the type of a room's last-activity record.
type ActivityKind string

const (
	ActivityJoin  ActivityKind = "join"
	ActivityLeave ActivityKind = "leave"
)

// Activity records the most recent join or leave observed in a room.
type Activity struct {
	Kind      ActivityKind
	Username  string
	Timestamp time.Time
}

// Message is a single chat message within a room.
type Message struct {
	ID        string
	RoomID    string
	UserID    string
	Username  string
	Text      string
	Timestamp time.Time
}

// Room is a named, geolocated chat channel as known to the local client.
// The message log is owned by the room record as a value; there are no
// back-references from messages to their room beyond the RoomID field.
type Room struct {
	ID              string
	Name            string
	CreatorID       string
	CreatorUsername string
	Latitude        float64
	Longitude       float64
	IsJoined        bool
	IsNew           bool
	UnreadCount     int
	Messages        []Message
	LastActivity    *Activity
}

// Location returns the room's position.
func (r *Room) Location() geo.Location {
	return geo.Location{Latitude: r.Latitude, Longitude: r.Longitude}
}

// Clone returns a deep copy of the room, safe to hand to observers.
func (r *Room) Clone() Room {
	c := *r
	if r.Messages != nil {
		c.Messages = append([]Message(nil), r.Messages...)
	}
	if r.LastActivity != nil {
		a := *r.LastActivity
		c.LastActivity = &a
	}
	return c
}
