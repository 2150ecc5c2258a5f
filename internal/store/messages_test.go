package store

import (
	"testing"
	"time"

	"geochat/internal/domain/room"
)

func makeMessage(id string, ts time.Time, text string) room.Message {
	return room.Message{
		ID:        id,
		UserID:    "u1",
		Username:  "alice",
		Text:      text,
		Timestamp: ts,
	}
}

func newStoreWithRoom(t *testing.T, roomID string) (*Directory, *MessageStore) {
	t.Helper()
	d := NewDirectory()
	d.SetRooms([]room.Room{{ID: roomID, Name: "Test"}})
	return d, NewMessageStore(d)
}

func TestMessageStore_Append(t *testing.T) {
	_, s := newStoreWithRoom(t, "7")
	base := time.Now()

	s.Append("7", makeMessage("m1", base, "hi"))
	if got := s.Messages("7"); len(got) != 1 {
		t.Fatalf("log has %d messages, want 1", len(got))
	}
	if got := s.Unread("7"); got != 1 {
		t.Errorf("Unread = %d, want 1", got)
	}
}

func TestMessageStore_Append_Idempotent(t *testing.T) {
	_, s := newStoreWithRoom(t, "7")
	msg := makeMessage("m1", time.Now(), "hi")

	s.Append("7", msg)
	s.Append("7", msg)

	if got := s.Messages("7"); len(got) != 1 {
		t.Errorf("log has %d messages after double append, want 1", len(got))
	}
	if got := s.Unread("7"); got != 1 {
		t.Errorf("Unread = %d after double append, want 1", got)
	}
}

func TestMessageStore_Append_UnknownRoom(t *testing.T) {
	_, s := newStoreWithRoom(t, "7")
	s.Append("ghost", makeMessage("m1", time.Now(), "hi"))
	if got := s.Messages("ghost"); got != nil {
		t.Errorf("Messages for unknown room = %v, want nil", got)
	}
}

func TestMessageStore_Append_SortsByTimestamp(t *testing.T) {
	_, s := newStoreWithRoom(t, "7")
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Append("7", makeMessage("m2", base.Add(2*time.Second), "second"))
	s.Append("7", makeMessage("m1", base, "first"))
	s.Append("7", makeMessage("m3", base.Add(time.Second), "middle"))

	got := s.Messages("7")
	want := []string{"m1", "m3", "m2"}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("log order = [%s %s %s], want %v", got[0].ID, got[1].ID, got[2].ID, want)
		}
	}
}

func TestMessageStore_Append_StableTieBreak(t *testing.T) {
	_, s := newStoreWithRoom(t, "7")
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Append("7", makeMessage("a", ts, "first in"))
	s.Append("7", makeMessage("b", ts, "second in"))
	s.Append("7", makeMessage("c", ts, "third in"))

	got := s.Messages("7")
	for i, want := range []string{"a", "b", "c"} {
		if got[i].ID != want {
			t.Fatalf("equal timestamps reordered: got %s at %d, want %s", got[i].ID, i, want)
		}
	}
}

func TestMessageStore_Append_ActiveRoomSuppressesUnread(t *testing.T) {
	d, s := newStoreWithRoom(t, "7")
	d.SetActive("7")

	s.Append("7", makeMessage("m1", time.Now(), "hi"))
	if got := s.Unread("7"); got != 0 {
		t.Errorf("Unread = %d for active room, want 0", got)
	}
}

func TestMessageStore_ReplaceAll(t *testing.T) {
	_, s := newStoreWithRoom(t, "7")
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Append("7", makeMessage("old", base, "stale"))

	s.ReplaceAll("7", []room.Message{
		makeMessage("m2", base.Add(time.Second), "b"),
		makeMessage("m1", base, "a"),
	})

	got := s.Messages("7")
	if len(got) != 2 {
		t.Fatalf("log has %d messages, want 2", len(got))
	}
	if got[0].ID != "m1" || got[1].ID != "m2" {
		t.Errorf("log order = [%s %s], want [m1 m2]", got[0].ID, got[1].ID)
	}
}

func TestMessageStore_ReplaceAll_LastWriteWins(t *testing.T) {
	_, s := newStoreWithRoom(t, "7")
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	s.ReplaceAll("7", []room.Message{
		makeMessage("m1", base, "first version"),
		makeMessage("m1", base, "second version"),
	})

	got := s.Messages("7")
	if len(got) != 1 {
		t.Fatalf("log has %d messages, want 1", len(got))
	}
	if got[0].Text != "second version" {
		t.Errorf("Text = %q, want the later duplicate to win", got[0].Text)
	}
}

func TestMessageStore_ClearUnread(t *testing.T) {
	_, s := newStoreWithRoom(t, "7")
	s.Append("7", makeMessage("m1", time.Now(), "hi"))
	s.Append("7", makeMessage("m2", time.Now(), "there"))

	s.ClearUnread("7")
	if got := s.Unread("7"); got != 0 {
		t.Errorf("Unread = %d after ClearUnread, want 0", got)
	}

	// Unknown room is a no-op, not a panic
	s.ClearUnread("ghost")
}

func TestMessageStore_MessagesReturnsCopy(t *testing.T) {
	_, s := newStoreWithRoom(t, "7")
	s.Append("7", makeMessage("m1", time.Now(), "hi"))

	snap := s.Messages("7")
	snap[0].Text = "mutated"

	if got := s.Messages("7"); got[0].Text != "hi" {
		t.Errorf("store state mutated through a snapshot: %q", got[0].Text)
	}
}
