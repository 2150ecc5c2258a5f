// internal/store/messages.go

package store

import (
	"sort"

	"geochat/internal/domain/room"
)

// MessageStore maintains the per-room ordered message logs and unread
// accounting. It writes through the Directory that owns the room records.
// Any operation naming an unknown room is a silent no-op: the directory
// may legitimately lag behind server knowledge.
type MessageStore struct {
	dir *Directory
}

// NewMessageStore creates a message store over the given directory.
func NewMessageStore(dir *Directory) *MessageStore {
	return &MessageStore{dir: dir}
}

// Append inserts a message into its room's log. Inserting an id already
// present in the log is a no-op, which makes duplicate delivery of the
// same message harmless. After insertion the log is re-sorted ascending by
// timestamp (stable, so equal timestamps keep their arrival order). When
// the room is not the active room its unread counter is incremented.
func (s *MessageStore) Append(roomID string, msg room.Message) {
	r := s.dir.get(roomID)
	if r == nil {
		return
	}
	for _, m := range r.Messages {
		if m.ID == msg.ID {
			return
		}
	}
	r.Messages = append(r.Messages, msg)
	sortByTimestamp(r.Messages)
	if s.dir.ActiveID() != roomID {
		r.UnreadCount++
	}
}

// ReplaceAll replaces a room's log with an authoritative batch, such as
// room history supplied on join. Duplicate ids within the batch resolve
// last-write-wins; the result is sorted ascending by timestamp.
func (s *MessageStore) ReplaceAll(roomID string, msgs []room.Message) {
	r := s.dir.get(roomID)
	if r == nil {
		return
	}
	seen := make(map[string]int, len(msgs))
	out := make([]room.Message, 0, len(msgs))
	for _, m := range msgs {
		if i, ok := seen[m.ID]; ok {
			out[i] = m
			continue
		}
		seen[m.ID] = len(out)
		out = append(out, m)
	}
	sortByTimestamp(out)
	r.Messages = out
}

// ClearUnread resets a room's unread counter to zero.
func (s *MessageStore) ClearUnread(roomID string) {
	r := s.dir.get(roomID)
	if r == nil {
		return
	}
	r.UnreadCount = 0
}

// Messages returns a copy of a room's log.
func (s *MessageStore) Messages(roomID string) []room.Message {
	r := s.dir.get(roomID)
	if r == nil {
		return nil
	}
	return append([]room.Message(nil), r.Messages...)
}

// Unread returns a room's unread counter, 0 for unknown rooms.
func (s *MessageStore) Unread(roomID string) int {
	r := s.dir.get(roomID)
	if r == nil {
		return 0
	}
	return r.UnreadCount
}

func sortByTimestamp(msgs []room.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}
