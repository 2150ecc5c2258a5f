// internal/server/handlers/room.go

package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"geochat/internal/adapter/storage"
	"geochat/internal/domain/geo"
	"geochat/internal/domain/room"
	"geochat/internal/protocol"
)

// RoomHandler serves the rooms REST API.
type RoomHandler struct {
	store    *storage.RoomStore
	natsConn *nats.Conn
}

// NewRoomHandler creates a new room handler.
func NewRoomHandler(store *storage.RoomStore, natsConn *nats.Conn) *RoomHandler {
	return &RoomHandler{
		store:    store,
		natsConn: natsConn,
	}
}

// ListRooms handles GET /api/v1/rooms.
func (h *RoomHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.store.ListRooms(r.Context())
	if err != nil {
		log.Printf("Failed to list rooms: %v", err)
		http.Error(w, "Failed to list rooms", http.StatusInternalServerError)
		return
	}
	writeRooms(w, rooms)
}

// CreateRoom handles POST /api/v1/rooms. The server assigns the room id
// and broadcasts a room-created event to all connected clients.
func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name            string  `json:"name"`
		Latitude        float64 `json:"latitude"`
		Longitude       float64 `json:"longitude"`
		CreatorID       string  `json:"creatorId"`
		CreatorUsername string  `json:"creatorUsername"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.CreatorID == "" {
		http.Error(w, "Missing name or creatorId", http.StatusBadRequest)
		return
	}

	created := protocol.WireRoom{
		ID:              uuid.NewString(),
		Name:            req.Name,
		Latitude:        req.Latitude,
		Longitude:       req.Longitude,
		CreatorID:       req.CreatorID,
		CreatorUsername: req.CreatorUsername,
	}
	if err := h.store.SaveRoom(r.Context(), created.Model()); err != nil {
		log.Printf("Failed to save room: %v", err)
		http.Error(w, "Failed to create room", http.StatusInternalServerError)
		return
	}

	publishEvent(h.natsConn, TopicRoomsCreated, protocol.Event{
		Type: protocol.EventRoomCreated,
		Room: &created,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

// NearbyRooms handles POST /api/v1/rooms/nearby: a discovery query with a
// reference position, radius and optional search terms.
func (h *RoomHandler) NearbyRooms(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Latitude  float64  `json:"latitude"`
		Longitude float64  `json:"longitude"`
		RadiusKm  float64  `json:"radius"`
		Terms     []string `json:"terms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.RadiusKm <= 0 {
		http.Error(w, "Radius must be positive", http.StatusBadRequest)
		return
	}

	loc := geo.Location{Latitude: req.Latitude, Longitude: req.Longitude}
	rooms, err := h.store.NearbyRooms(r.Context(), loc, req.RadiusKm, req.Terms)
	if err != nil {
		log.Printf("Failed to query nearby rooms: %v", err)
		http.Error(w, "Failed to query nearby rooms", http.StatusInternalServerError)
		return
	}
	writeRooms(w, rooms)
}

func writeRooms(w http.ResponseWriter, rooms []room.Room) {
	wire := make([]protocol.WireRoom, 0, len(rooms))
	for _, r := range rooms {
		wire = append(wire, protocol.FromRoom(r))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"rooms": wire})
}
