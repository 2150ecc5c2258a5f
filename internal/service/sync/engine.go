// internal/service/sync/engine.go

// Package sync implements the client-side synchronization engine. It is
// the single authority translating user intents and inbound server events
// into room-directory and message-store mutations, and it exposes the
// resulting state to rendering collaborators as plain snapshots.
package sync

import (
	"errors"
	"log"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"geochat/internal/domain/geo"
	"geochat/internal/domain/room"
	"geochat/internal/protocol"
	"geochat/internal/service/filter"
	"geochat/internal/store"
)

// maxPending bounds the optimistic-send set; entries whose echo never
// arrives are eventually displaced.
const maxPending = 32

// Identity is the local user on whose behalf the engine acts.
type Identity struct {
	UserID   string
	Username string
}

// Transport is the outbound channel to the server. Sends are
// fire-and-forget: the engine never queues or retries, and reconnect
// policy belongs to the transport's owner.
type Transport interface {
	IsOpen() bool
	Send(protocol.Intent) error
}

// pendingSend tracks an optimistic append awaiting its server echo.
type pendingSend struct {
	id      string
	content string
}

// Engine owns the room directory and message store and serializes every
// mutation behind one mutex. The mutex stands in for the host event loop
// the browser original relied on: one event or intent applies at a time.
type Engine struct {
	mu gosync.Mutex

	user      Identity
	transport Transport

	dir  *store.Directory
	msgs *store.MessageStore

	query    string
	radiusKm float64
	position *geo.Location

	pending []pendingSend
}

// New creates an engine for the given user. The transport may be nil
// until SetTransport is called; intents issued meanwhile are dropped.
func New(user Identity, t Transport) *Engine {
	dir := store.NewDirectory()
	return &Engine{
		user:      user,
		transport: t,
		dir:       dir,
		msgs:      store.NewMessageStore(dir),
	}
}

// SetTransport installs or replaces the outbound channel.
func (e *Engine) SetTransport(t Transport) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transport = t
}

// HandleEvent applies one inbound server event. Unknown kinds are logged
// and ignored; malformed payloads are dropped without mutating state.
func (e *Engine) HandleEvent(ev protocol.Event) {
	if err := ev.Validate(); err != nil {
		if errors.Is(err, protocol.ErrUnknownKind) {
			log.Printf("sync: ignoring event: %v", err)
		} else {
			log.Printf("sync: dropping malformed event: %v", err)
		}
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch ev.Type {
	case protocol.EventNewMessage:
		e.applyNewMessage(ev)
	case protocol.EventUserJoined:
		e.applyActivity(ev.RoomID, ev.Username, room.ActivityJoin)
	case protocol.EventUserLeft:
		e.applyActivity(ev.RoomID, ev.Username, room.ActivityLeave)
	case protocol.EventRoomCreated:
		e.applyRoomCreated(ev)
	case protocol.EventJoinConfirmed:
		e.setMembership(ev.RoomID, true)
	case protocol.EventLeaveConfirmed:
		e.applyLeaveConfirmed(ev)
	case protocol.EventRoomMessages:
		e.applyRoomMessages(ev)
	}
}

func (e *Engine) applyNewMessage(ev protocol.Event) {
	msg, err := ev.Message.Model()
	if err != nil {
		log.Printf("sync: dropping new-message: %v", err)
		return
	}
	if msg.UserID == e.user.UserID {
		// Possible echo of our own optimistic append: match by id, or by
		// content for servers that reassign identifiers.
		for i, p := range e.pending {
			if p.id == msg.ID || p.content == msg.Text {
				e.pending = append(e.pending[:i], e.pending[i+1:]...)
				return
			}
		}
	}
	e.msgs.Append(msg.RoomID, msg)
}

func (e *Engine) applyActivity(roomID, username string, kind room.ActivityKind) {
	e.dir.Update(store.Patch{
		ID: roomID,
		LastActivity: &room.Activity{
			Kind:      kind,
			Username:  username,
			Timestamp: time.Now().UTC(),
		},
	})
}

func (e *Engine) applyRoomCreated(ev protocol.Event) {
	r := ev.Room.Model()
	if r.CreatorID == e.user.UserID {
		e.dir.AddCreated(r)
		return
	}
	e.dir.AddDiscovered(r)
}

func (e *Engine) setMembership(roomID string, joined bool) {
	e.dir.Update(store.Patch{ID: roomID, IsJoined: &joined})
}

func (e *Engine) applyLeaveConfirmed(ev protocol.Event) {
	e.setMembership(ev.RoomID, false)
	if e.dir.ActiveID() == ev.RoomID {
		e.dir.SetActive("")
	}
	username := ev.Username
	if username == "" {
		username = e.user.Username
	}
	e.applyActivity(ev.RoomID, username, room.ActivityLeave)
}

func (e *Engine) applyRoomMessages(ev protocol.Event) {
	msgs := make([]room.Message, 0, len(ev.Messages))
	for _, wm := range ev.Messages {
		m, err := wm.Model()
		if err != nil {
			log.Printf("sync: dropping room-messages batch: %v", err)
			return
		}
		msgs = append(msgs, m)
	}
	e.msgs.ReplaceAll(ev.RoomID, msgs)
}

// SendMessage optimistically appends a locally generated message to the
// room's log and transmits the same identifier, content and timestamp to
// the server. With no open channel the intent is a no-op: nothing is
// queued for retry. Empty or overlong texts are dropped.
func (e *Engine) SendMessage(roomID, text string) {
	if text == "" || len(text) > room.MaxMessageLength {
		log.Printf("sync: dropping message for room %s: bad length %d", roomID, len(text))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.channelOpen() {
		return
	}

	now := time.Now().UTC()
	msg := room.Message{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		UserID:    e.user.UserID,
		Username:  e.user.Username,
		Text:      text,
		Timestamp: now,
	}
	e.msgs.Append(roomID, msg)

	e.pending = append(e.pending, pendingSend{id: msg.ID, content: text})
	if len(e.pending) > maxPending {
		e.pending = e.pending[len(e.pending)-maxPending:]
	}

	e.transmit(protocol.Intent{
		Type:      protocol.IntentSendMessage,
		ID:        msg.ID,
		RoomID:    roomID,
		UserID:    e.user.UserID,
		Username:  e.user.Username,
		Content:   text,
		Timestamp: protocol.FormatTime(now),
	})
}

// JoinRoom transmits a join intent. Membership flips only when the server
// confirms: it gates message visibility, so it is never set optimistically.
func (e *Engine) JoinRoom(roomID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.channelOpen() {
		return
	}
	e.transmit(protocol.Intent{
		Type:     protocol.IntentJoinRoom,
		RoomID:   roomID,
		UserID:   e.user.UserID,
		Username: e.user.Username,
	})
}

// LeaveRoom transmits a leave intent, with the same non-optimistic
// contract as JoinRoom.
func (e *Engine) LeaveRoom(roomID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.channelOpen() {
		return
	}
	e.transmit(protocol.Intent{
		Type:     protocol.IntentLeaveRoom,
		RoomID:   roomID,
		UserID:   e.user.UserID,
		Username: e.user.Username,
	})
}

// CreateRoom transmits a create intent. The room is added locally only
// when the server's room-created event arrives with its assigned identity.
func (e *Engine) CreateRoom(name string, lat, lon float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.channelOpen() {
		return
	}
	e.transmit(protocol.Intent{
		Type:      protocol.IntentCreateRoom,
		Name:      name,
		Latitude:  lat,
		Longitude: lon,
		UserID:    e.user.UserID,
		Username:  e.user.Username,
	})
}

// channelOpen reports whether an outbound channel is available. Must be
// called with e.mu held.
func (e *Engine) channelOpen() bool {
	return e.transport != nil && e.transport.IsOpen()
}

// transmit sends an intent, logging transport errors. Must be called with
// e.mu held.
func (e *Engine) transmit(intent protocol.Intent) {
	if err := e.transport.Send(intent); err != nil {
		log.Printf("sync: %s transmit failed: %v", intent.Type, err)
	}
}

// ApplyRoomList bulk-replaces the directory with a discovery batch.
func (e *Engine) ApplyRoomList(rooms []room.Room) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dir.SetRooms(rooms)
}

// SetActiveRoom changes the active-room pointer. An empty id means no
// active room. Activating a room clears its unread counter and new flag.
func (e *Engine) SetActiveRoom(roomID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dir.SetActive(roomID)
}

// RemoveRoom deletes a room from the directory.
func (e *Engine) RemoveRoom(roomID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dir.Remove(roomID)
}

// SetPosition updates the observer's reference position for the radius
// predicate.
func (e *Engine) SetPosition(lat, lon float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.position = &geo.Location{Latitude: lat, Longitude: lon}
}

// SetQuery updates the free-text room filter.
func (e *Engine) SetQuery(query string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.query = query
}

// SetRadius updates the radius filter in kilometers. Zero or negative
// means unbounded.
func (e *Engine) SetRadius(radiusKm float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.radiusKm = radiusKm
}

// Position returns a copy of the reference position, or nil when unknown.
func (e *Engine) Position() *geo.Location {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.position == nil {
		return nil
	}
	p := *e.position
	return &p
}

// Radius returns the current radius filter in kilometers.
func (e *Engine) Radius() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.radiusKm
}

// Rooms returns a snapshot of the full directory in insertion order.
func (e *Engine) Rooms() []room.Room {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dir.Rooms()
}

// Room returns a snapshot of one room.
func (e *Engine) Room(roomID string) (room.Room, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dir.Get(roomID)
}

// ActiveRoomID returns the active room id, or "" when none.
func (e *Engine) ActiveRoomID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dir.ActiveID()
}

// VisibleRooms recomputes and returns the filtered room sequence. Each
// call filters from scratch; staleness never outlives re-invocation.
func (e *Engine) VisibleRooms() []room.Room {
	e.mu.Lock()
	defer e.mu.Unlock()
	return filter.Visible(e.dir.Rooms(), e.query, e.radiusKm, e.position)
}

// Messages returns a snapshot of a room's message log.
func (e *Engine) Messages(roomID string) []room.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.msgs.Messages(roomID)
}

// UnreadCount returns a room's unread counter.
func (e *Engine) UnreadCount(roomID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.msgs.Unread(roomID)
}
