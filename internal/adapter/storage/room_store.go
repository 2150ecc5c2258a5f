// internal/adapter/storage/room_store.go

package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"geochat/internal/domain/geo"
	"geochat/internal/domain/room"
)

// schema is the minimal relational model for rooms, memberships and
// messages. Applied idempotently at startup.
const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	latitude         DOUBLE PRECISION NOT NULL,
	longitude        DOUBLE PRECISION NOT NULL,
	creator_id       TEXT NOT NULL,
	creator_username TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS room_members (
	room_id   TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
	user_id   TEXT NOT NULL,
	joined_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (room_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id        TEXT PRIMARY KEY,
	room_id   TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
	user_id   TEXT NOT NULL,
	username  TEXT NOT NULL,
	content   TEXT NOT NULL,
	sent_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS messages_room_sent_idx ON messages (room_id, sent_at);
`

// RoomStore implements server-side persistence for rooms, memberships and
// messages.
type RoomStore struct {
	db *pgxpool.Pool
}

// NewRoomStore creates a new room store.
func NewRoomStore(db *pgxpool.Pool) *RoomStore {
	return &RoomStore{
		db: db,
	}
}

// EnsureSchema creates the tables when they do not exist yet.
func (s *RoomStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("error applying schema: %w", err)
	}
	return nil
}

// SaveRoom inserts a room.
func (s *RoomStore) SaveRoom(ctx context.Context, r room.Room) error {
	query := `
		INSERT INTO rooms (id, name, latitude, longitude, creator_id, creator_username)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := s.db.Exec(ctx, query,
		r.ID, r.Name, r.Latitude, r.Longitude, r.CreatorID, r.CreatorUsername); err != nil {
		return fmt.Errorf("error saving room: %w", err)
	}
	return nil
}

// GetRoom fetches one room by id.
func (s *RoomStore) GetRoom(ctx context.Context, id string) (room.Room, error) {
	query := `
		SELECT id, name, latitude, longitude, creator_id, creator_username
		FROM rooms
		WHERE id = $1
	`
	var r room.Room
	err := s.db.QueryRow(ctx, query, id).Scan(
		&r.ID, &r.Name, &r.Latitude, &r.Longitude, &r.CreatorID, &r.CreatorUsername)
	if err != nil {
		return room.Room{}, fmt.Errorf("error getting room %s: %w", id, err)
	}
	return r, nil
}

// ListRooms returns all rooms in creation order.
func (s *RoomStore) ListRooms(ctx context.Context) ([]room.Room, error) {
	query := `
		SELECT id, name, latitude, longitude, creator_id, creator_username
		FROM rooms
		ORDER BY created_at, id
	`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing rooms: %w", err)
	}
	defer rows.Close()

	return scanRooms(rows)
}

// NearbyRooms returns rooms within radiusKm of the given location,
// optionally restricted to names containing one of the terms. Output keeps
// creation order; callers rank or filter further on their side.
func (s *RoomStore) NearbyRooms(ctx context.Context, loc geo.Location, radiusKm float64, terms []string) ([]room.Room, error) {
	// Haversine distance in SQL; close enough for a discovery radius.
	query := `
		SELECT id, name, latitude, longitude, creator_id, creator_username
		FROM rooms
		WHERE 2 * 6371 * asin(sqrt(
			pow(sin(radians(latitude - $1) / 2), 2) +
			cos(radians($1)) * cos(radians(latitude)) *
			pow(sin(radians(longitude - $2) / 2), 2)
		)) < $3
	`
	args := []interface{}{loc.Latitude, loc.Longitude, radiusKm}

	if len(terms) > 0 {
		patterns := make([]string, 0, len(terms))
		for _, t := range terms {
			patterns = append(patterns, "%"+t+"%")
		}
		query += ` AND name ILIKE ANY($4)`
		args = append(args, patterns)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying nearby rooms: %w", err)
	}
	defer rows.Close()

	return scanRooms(rows)
}

// AddMember records a user's membership in a room. Re-joining is harmless.
func (s *RoomStore) AddMember(ctx context.Context, roomID, userID string) error {
	query := `
		INSERT INTO room_members (room_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (room_id, user_id) DO NOTHING
	`
	if _, err := s.db.Exec(ctx, query, roomID, userID); err != nil {
		return fmt.Errorf("error adding member: %w", err)
	}
	return nil
}

// RemoveMember deletes a user's membership in a room.
func (s *RoomStore) RemoveMember(ctx context.Context, roomID, userID string) error {
	query := `DELETE FROM room_members WHERE room_id = $1 AND user_id = $2`
	if _, err := s.db.Exec(ctx, query, roomID, userID); err != nil {
		return fmt.Errorf("error removing member: %w", err)
	}
	return nil
}

// IsMember reports whether a user has joined a room.
func (s *RoomStore) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM room_members WHERE room_id = $1 AND user_id = $2)`
	var member bool
	if err := s.db.QueryRow(ctx, query, roomID, userID).Scan(&member); err != nil {
		return false, fmt.Errorf("error checking membership: %w", err)
	}
	return member, nil
}

// MemberRoomIDs returns the ids of all rooms a user has joined.
func (s *RoomStore) MemberRoomIDs(ctx context.Context, userID string) ([]string, error) {
	query := `SELECT room_id FROM room_members WHERE user_id = $1 ORDER BY joined_at`
	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing memberships: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning membership: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveMessage persists a message. Duplicate ids (at-least-once delivery)
// are ignored.
func (s *RoomStore) SaveMessage(ctx context.Context, m room.Message) error {
	query := `
		INSERT INTO messages (id, room_id, user_id, username, content, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := s.db.Exec(ctx, query,
		m.ID, m.RoomID, m.UserID, m.Username, m.Text, m.Timestamp); err != nil {
		return fmt.Errorf("error saving message: %w", err)
	}
	return nil
}

// RoomMessages returns the most recent messages of a room in ascending
// timestamp order, capped at limit.
func (s *RoomStore) RoomMessages(ctx context.Context, roomID string, limit int) ([]room.Message, error) {
	query := `
		SELECT id, room_id, user_id, username, content, sent_at
		FROM (
			SELECT id, room_id, user_id, username, content, sent_at
			FROM messages
			WHERE room_id = $1
			ORDER BY sent_at DESC
			LIMIT $2
		) recent
		ORDER BY sent_at ASC
	`
	rows, err := s.db.Query(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []room.Message
	for rows.Next() {
		var m room.Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.UserID, &m.Username, &m.Text, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("error scanning message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// rowScanner matches the subset of pgx.Rows scanRooms needs.
type rowScanner interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanRooms(rows rowScanner) ([]room.Room, error) {
	var rooms []room.Room
	for rows.Next() {
		var r room.Room
		if err := rows.Scan(&r.ID, &r.Name, &r.Latitude, &r.Longitude, &r.CreatorID, &r.CreatorUsername); err != nil {
			return nil, fmt.Errorf("error scanning room: %w", err)
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}
