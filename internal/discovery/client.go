// internal/discovery/client.go

// Package discovery is the geo query collaborator: it asks the server for
// rooms near a reference position and returns batches suitable for the
// engine's ApplyRoomList.
package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"geochat/internal/domain/room"
	"geochat/internal/protocol"
)

// Query describes a nearby-rooms request.
type Query struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	RadiusKm  float64  `json:"radius"`
	Terms     []string `json:"terms,omitempty"`
}

// Client queries the room discovery endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a discovery client for the given server base URL, e.g.
// "http://localhost:8080".
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// NearbyRooms fetches rooms matching the query.
func (c *Client) NearbyRooms(ctx context.Context, q Query) ([]room.Room, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("error encoding query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/rooms/nearby", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching nearby rooms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nearby rooms request failed: %s", resp.Status)
	}

	var payload struct {
		Rooms []protocol.WireRoom `json:"rooms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("error decoding nearby rooms: %w", err)
	}

	return protocol.RoomModels(payload.Rooms), nil
}
