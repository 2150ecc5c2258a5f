// internal/protocol/protocol.go

// Package protocol defines the JSON envelopes exchanged with the chat
// server: inbound events and outbound intents. Type strings are stable,
// case-sensitive identifiers shared with the server.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"geochat/internal/domain/room"
)

// Inbound event kinds.
const (
	EventNewMessage     = "new-message"
	EventUserJoined     = "user-joined"
	EventUserLeft       = "user-left"
	EventRoomCreated    = "room-created"
	EventJoinConfirmed  = "join-confirmed"
	EventLeaveConfirmed = "leave-confirmed"
	EventRoomMessages   = "room-messages"
)

// Outbound intent kinds.
const (
	IntentSendMessage = "send-message"
	IntentJoinRoom    = "join-room"
	IntentLeaveRoom   = "leave-room"
	IntentCreateRoom  = "create-room"
)

// ErrUnknownKind marks an event whose type string is not one of the known
// inbound kinds. Receivers treat it as a forward-compatible no-op.
var ErrUnknownKind = errors.New("unknown event kind")

// WireMessage is the wire representation of a chat message.
type WireMessage struct {
	ID        string `json:"id"`
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// WireRoom is the wire representation of a room.
type WireRoom struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	CreatorID       string  `json:"creatorId"`
	CreatorUsername string  `json:"creatorUsername"`
	IsJoined        bool    `json:"isJoined,omitempty"`
}

// Event is an inbound server event envelope. Only the fields relevant to
// the given Type are populated.
type Event struct {
	Type     string        `json:"type"`
	RoomID   string        `json:"roomId,omitempty"`
	UserID   string        `json:"userId,omitempty"`
	Username string        `json:"username,omitempty"`
	Message  *WireMessage  `json:"message,omitempty"`
	Room     *WireRoom     `json:"room,omitempty"`
	Messages []WireMessage `json:"messages,omitempty"`
}

// Intent is an outbound client intent envelope.
type Intent struct {
	Type      string  `json:"type"`
	ID        string  `json:"id,omitempty"`
	RoomID    string  `json:"roomId,omitempty"`
	UserID    string  `json:"userId,omitempty"`
	Username  string  `json:"username,omitempty"`
	Content   string  `json:"content,omitempty"`
	Name      string  `json:"name,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// DecodeEvent parses an inbound frame into an Event. It does not validate
// kind-specific fields; see Event.Validate.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("error decoding event: %w", err)
	}
	return ev, nil
}

// Validate checks that the fields required by the event's kind are present.
// It returns ErrUnknownKind for kinds this client does not recognize.
func (e Event) Validate() error {
	switch e.Type {
	case EventNewMessage:
		if e.Message == nil {
			return fmt.Errorf("new-message missing message payload")
		}
		if e.Message.ID == "" || e.Message.RoomID == "" || e.Message.UserID == "" {
			return fmt.Errorf("new-message missing message identifiers")
		}
		if e.Message.Timestamp == "" {
			return fmt.Errorf("new-message missing timestamp")
		}
	case EventUserJoined, EventUserLeft:
		if e.RoomID == "" || e.Username == "" {
			return fmt.Errorf("%s missing roomId or username", e.Type)
		}
	case EventRoomCreated:
		if e.Room == nil {
			return fmt.Errorf("room-created missing room payload")
		}
		if e.Room.ID == "" || e.Room.Name == "" {
			return fmt.Errorf("room-created missing room id or name")
		}
	case EventJoinConfirmed, EventLeaveConfirmed:
		if e.RoomID == "" {
			return fmt.Errorf("%s missing roomId", e.Type)
		}
	case EventRoomMessages:
		if e.RoomID == "" {
			return fmt.Errorf("room-messages missing roomId")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, e.Type)
	}
	return nil
}

// FormatTime renders a timestamp in the wire format (RFC 3339 / ISO-8601).
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime parses a wire timestamp.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("error parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

// Model converts a wire message into the domain model.
func (m WireMessage) Model() (room.Message, error) {
	ts, err := ParseTime(m.Timestamp)
	if err != nil {
		return room.Message{}, err
	}
	return room.Message{
		ID:        m.ID,
		RoomID:    m.RoomID,
		UserID:    m.UserID,
		Username:  m.Username,
		Text:      m.Content,
		Timestamp: ts,
	}, nil
}

// FromModel converts a domain message into its wire representation.
func FromModel(m room.Message) WireMessage {
	return WireMessage{
		ID:        m.ID,
		RoomID:    m.RoomID,
		UserID:    m.UserID,
		Username:  m.Username,
		Content:   m.Text,
		Timestamp: FormatTime(m.Timestamp),
	}
}

// Model converts a wire room into the domain model.
func (r WireRoom) Model() room.Room {
	return room.Room{
		ID:              r.ID,
		Name:            r.Name,
		Latitude:        r.Latitude,
		Longitude:       r.Longitude,
		CreatorID:       r.CreatorID,
		CreatorUsername: r.CreatorUsername,
		IsJoined:        r.IsJoined,
	}
}

// FromRoom converts a domain room into its wire representation.
func FromRoom(r room.Room) WireRoom {
	return WireRoom{
		ID:              r.ID,
		Name:            r.Name,
		Latitude:        r.Latitude,
		Longitude:       r.Longitude,
		CreatorID:       r.CreatorID,
		CreatorUsername: r.CreatorUsername,
		IsJoined:        r.IsJoined,
	}
}

// RoomModels converts a batch of wire rooms into domain rooms.
func RoomModels(rooms []WireRoom) []room.Room {
	out := make([]room.Room, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Model())
	}
	return out
}
