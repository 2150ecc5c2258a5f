package sync

import (
	"testing"
	"time"

	"geochat/internal/domain/room"
	"geochat/internal/protocol"
)

// fakeTransport records sent intents and simulates channel availability.
type fakeTransport struct {
	open bool
	sent []protocol.Intent
}

func (f *fakeTransport) IsOpen() bool { return f.open }

func (f *fakeTransport) Send(intent protocol.Intent) error {
	f.sent = append(f.sent, intent)
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{open: true}
	e := New(Identity{UserID: "local", Username: "alice"}, tr)
	return e, tr
}

func seedRoom(e *Engine, id, name string) {
	e.ApplyRoomList(append(e.Rooms(), room.Room{ID: id, Name: name, Latitude: 10, Longitude: 10}))
}

func newMessageEvent(roomID, msgID, userID, content string) protocol.Event {
	return protocol.Event{
		Type: protocol.EventNewMessage,
		Message: &protocol.WireMessage{
			ID:        msgID,
			RoomID:    roomID,
			UserID:    userID,
			Username:  "bob",
			Content:   content,
			Timestamp: protocol.FormatTime(time.Now()),
		},
	}
}

func TestEngine_InboundMessageIncrementsUnread(t *testing.T) {
	// Scenario: no active room; a message from another user arrives.
	e, _ := newTestEngine(t)
	seedRoom(e, "7", "Lobby")

	e.HandleEvent(newMessageEvent("7", "m1", "other", "hi"))

	if got := e.UnreadCount("7"); got != 1 {
		t.Errorf("UnreadCount = %d, want 1", got)
	}
	if got := len(e.Messages("7")); got != 1 {
		t.Errorf("log has %d entries, want 1", got)
	}
}

func TestEngine_EchoOfOwnMessageIsSuppressed(t *testing.T) {
	e, tr := newTestEngine(t)
	seedRoom(e, "7", "Lobby")

	e.SendMessage("7", "hello")

	if len(tr.sent) != 1 {
		t.Fatalf("transmitted %d intents, want 1", len(tr.sent))
	}
	sent := tr.sent[0]
	if sent.Type != protocol.IntentSendMessage || sent.ID == "" {
		t.Fatalf("unexpected intent: %+v", sent)
	}

	// Server echoes the same content from the local user, with the id it
	// assigned (here: the client id, but content matching must also hold).
	e.HandleEvent(newMessageEvent("7", sent.ID, "local", "hello"))

	msgs := e.Messages("7")
	if len(msgs) != 1 {
		t.Fatalf("log has %d entries after echo, want exactly 1", len(msgs))
	}
	if msgs[0].Text != "hello" {
		t.Errorf("Text = %q, want %q", msgs[0].Text, "hello")
	}
}

func TestEngine_EchoWithReassignedIDIsSuppressed(t *testing.T) {
	e, _ := newTestEngine(t)
	seedRoom(e, "7", "Lobby")

	e.SendMessage("7", "hello")
	e.HandleEvent(newMessageEvent("7", "server-id", "local", "hello"))

	if got := len(e.Messages("7")); got != 1 {
		t.Errorf("log has %d entries, want 1", got)
	}
}

func TestEngine_IdenticalContentFromOtherUserIsKept(t *testing.T) {
	// A different user's identical-looking message must not be suppressed.
	e, _ := newTestEngine(t)
	seedRoom(e, "7", "Lobby")

	e.SendMessage("7", "hello")
	e.HandleEvent(newMessageEvent("7", "m2", "other", "hello"))

	if got := len(e.Messages("7")); got != 2 {
		t.Errorf("log has %d entries, want 2", got)
	}
}

func TestEngine_SecondOwnEchoAppends(t *testing.T) {
	// Once the pending entry is consumed by the first echo, a genuinely
	// new message from the local user (sent from another device) applies.
	e, _ := newTestEngine(t)
	seedRoom(e, "7", "Lobby")

	e.SendMessage("7", "hello")
	e.HandleEvent(newMessageEvent("7", "echo-1", "local", "hello"))
	e.HandleEvent(newMessageEvent("7", "other-device", "local", "hello"))

	if got := len(e.Messages("7")); got != 2 {
		t.Errorf("log has %d entries, want 2", got)
	}
}

func TestEngine_JoinIsNotOptimistic(t *testing.T) {
	e, tr := newTestEngine(t)
	seedRoom(e, "7", "Lobby")

	e.JoinRoom("7")

	if len(tr.sent) != 1 || tr.sent[0].Type != protocol.IntentJoinRoom {
		t.Fatalf("expected one join-room intent, got %+v", tr.sent)
	}
	if r, _ := e.Room("7"); r.IsJoined {
		t.Fatal("IsJoined flipped before confirmation")
	}

	e.HandleEvent(protocol.Event{Type: protocol.EventJoinConfirmed, RoomID: "7"})

	if r, _ := e.Room("7"); !r.IsJoined {
		t.Error("IsJoined still false after join-confirmed")
	}
}

func TestEngine_LeaveConfirmed(t *testing.T) {
	e, _ := newTestEngine(t)
	seedRoom(e, "7", "Lobby")
	e.HandleEvent(protocol.Event{Type: protocol.EventJoinConfirmed, RoomID: "7"})
	e.SetActiveRoom("7")

	e.HandleEvent(protocol.Event{Type: protocol.EventLeaveConfirmed, RoomID: "7", Username: "alice"})

	r, _ := e.Room("7")
	if r.IsJoined {
		t.Error("IsJoined still true after leave-confirmed")
	}
	if e.ActiveRoomID() != "" {
		t.Error("leaving the active room must clear the active pointer")
	}
	if r.LastActivity == nil || r.LastActivity.Kind != room.ActivityLeave {
		t.Errorf("LastActivity = %+v, want a leave record", r.LastActivity)
	}
}

func TestEngine_UserJoinedRecordsActivity(t *testing.T) {
	e, _ := newTestEngine(t)
	seedRoom(e, "7", "Lobby")

	e.HandleEvent(protocol.Event{Type: protocol.EventUserJoined, RoomID: "7", UserID: "other", Username: "bob"})

	r, _ := e.Room("7")
	if r.LastActivity == nil {
		t.Fatal("no activity recorded")
	}
	if r.LastActivity.Kind != room.ActivityJoin || r.LastActivity.Username != "bob" {
		t.Errorf("LastActivity = %+v, want join by bob", r.LastActivity)
	}
	if r.IsJoined {
		t.Error("another user's join must not flip the local membership flag")
	}
}

func TestEngine_RoomCreatedByOther(t *testing.T) {
	e, _ := newTestEngine(t)

	e.HandleEvent(protocol.Event{
		Type: protocol.EventRoomCreated,
		Room: &protocol.WireRoom{ID: "9", Name: "New Spot", CreatorID: "other", CreatorUsername: "bob"},
	})

	r, ok := e.Room("9")
	if !ok {
		t.Fatal("room not added")
	}
	if r.IsJoined || !r.IsNew {
		t.Errorf("discovered room flags = joined:%v new:%v, want joined:false new:true", r.IsJoined, r.IsNew)
	}
	if e.ActiveRoomID() != "" {
		t.Error("another user's room must not become active")
	}
}

func TestEngine_RoomCreatedBySelf(t *testing.T) {
	e, tr := newTestEngine(t)

	e.CreateRoom("Mine", 10, 10)
	if len(tr.sent) != 1 || tr.sent[0].Type != protocol.IntentCreateRoom {
		t.Fatalf("expected one create-room intent, got %+v", tr.sent)
	}
	if len(e.Rooms()) != 0 {
		t.Fatal("room added before the server assigned its identity")
	}

	e.HandleEvent(protocol.Event{
		Type: protocol.EventRoomCreated,
		Room: &protocol.WireRoom{ID: "9", Name: "Mine", CreatorID: "local", CreatorUsername: "alice"},
	})

	r, ok := e.Room("9")
	if !ok {
		t.Fatal("room not added on room-created")
	}
	if !r.IsJoined {
		t.Error("creator is implicitly a member")
	}
	if e.ActiveRoomID() != "9" {
		t.Errorf("ActiveRoomID = %q, want the created room", e.ActiveRoomID())
	}
}

func TestEngine_RoomMessagesReplacesLog(t *testing.T) {
	e, _ := newTestEngine(t)
	seedRoom(e, "7", "Lobby")
	e.HandleEvent(newMessageEvent("7", "stale", "other", "old"))

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	e.HandleEvent(protocol.Event{
		Type:   protocol.EventRoomMessages,
		RoomID: "7",
		Messages: []protocol.WireMessage{
			{ID: "h2", RoomID: "7", UserID: "other", Content: "b", Timestamp: protocol.FormatTime(base.Add(time.Second))},
			{ID: "h1", RoomID: "7", UserID: "other", Content: "a", Timestamp: protocol.FormatTime(base)},
		},
	})

	msgs := e.Messages("7")
	if len(msgs) != 2 {
		t.Fatalf("log has %d entries, want 2", len(msgs))
	}
	if msgs[0].ID != "h1" || msgs[1].ID != "h2" {
		t.Errorf("log order = [%s %s], want [h1 h2]", msgs[0].ID, msgs[1].ID)
	}
}

func TestEngine_UnknownEventKindIsIgnored(t *testing.T) {
	e, _ := newTestEngine(t)
	seedRoom(e, "7", "Lobby")

	e.HandleEvent(protocol.Event{Type: "typing-indicator", RoomID: "7"})

	if got := len(e.Messages("7")); got != 0 {
		t.Errorf("unknown event mutated state: %d messages", got)
	}
}

func TestEngine_MalformedEventIsDropped(t *testing.T) {
	e, _ := newTestEngine(t)
	seedRoom(e, "7", "Lobby")

	// new-message without its payload
	e.HandleEvent(protocol.Event{Type: protocol.EventNewMessage, RoomID: "7"})
	// join-confirmed without a room
	e.HandleEvent(protocol.Event{Type: protocol.EventJoinConfirmed})

	if got := len(e.Messages("7")); got != 0 {
		t.Errorf("malformed event mutated state: %d messages", got)
	}
	if r, _ := e.Room("7"); r.IsJoined {
		t.Error("malformed join-confirmed mutated membership")
	}
}

func TestEngine_MessageForUnknownRoomIsNoOp(t *testing.T) {
	e, _ := newTestEngine(t)
	e.HandleEvent(newMessageEvent("ghost", "m1", "other", "hi"))
	if got := e.Rooms(); len(got) != 0 {
		t.Errorf("unknown-room message created state: %v", got)
	}
}

func TestEngine_SendWithoutChannelIsNoOp(t *testing.T) {
	e, tr := newTestEngine(t)
	seedRoom(e, "7", "Lobby")
	tr.open = false

	e.SendMessage("7", "hello")

	if len(tr.sent) != 0 {
		t.Errorf("transmitted %d intents on a closed channel, want 0", len(tr.sent))
	}
	if got := len(e.Messages("7")); got != 0 {
		t.Errorf("optimistic append happened without a channel: %d messages", got)
	}
}

func TestEngine_SendToUnreadRoomThenActivate(t *testing.T) {
	e, _ := newTestEngine(t)
	seedRoom(e, "7", "Lobby")

	e.HandleEvent(newMessageEvent("7", "m1", "other", "hi"))
	e.HandleEvent(newMessageEvent("7", "m2", "other", "there"))
	if got := e.UnreadCount("7"); got != 2 {
		t.Fatalf("UnreadCount = %d, want 2", got)
	}

	e.SetActiveRoom("7")
	if got := e.UnreadCount("7"); got != 0 {
		t.Errorf("UnreadCount = %d after activation, want 0", got)
	}

	// Further messages to the active room accrue no unread
	e.HandleEvent(newMessageEvent("7", "m3", "other", "still here"))
	if got := e.UnreadCount("7"); got != 0 {
		t.Errorf("UnreadCount = %d for active room, want 0", got)
	}
}

func TestEngine_SendMessageLengthLimit(t *testing.T) {
	e, tr := newTestEngine(t)
	seedRoom(e, "7", "Lobby")

	long := make([]byte, room.MaxMessageLength+1)
	for i := range long {
		long[i] = 'x'
	}
	e.SendMessage("7", string(long))

	if len(tr.sent) != 0 {
		t.Errorf("overlong message transmitted")
	}
	if got := len(e.Messages("7")); got != 0 {
		t.Errorf("overlong message appended locally")
	}
}

func TestEngine_VisibleRooms(t *testing.T) {
	e, _ := newTestEngine(t)
	e.ApplyRoomList([]room.Room{
		{ID: "1", Name: "Lobby", Latitude: 10, Longitude: 10},
		{ID: "2", Name: "Garage", Latitude: 50, Longitude: 50},
	})
	e.SetPosition(10, 10)
	e.SetRadius(50)

	got := e.VisibleRooms()
	if len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("VisibleRooms = %+v, want only room 1", got)
	}

	// Widening the radius is reflected on the next recomputation
	e.SetRadius(0)
	if got := e.VisibleRooms(); len(got) != 2 {
		t.Errorf("VisibleRooms = %d rooms with unbounded radius, want 2", len(got))
	}
}
