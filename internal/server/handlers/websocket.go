// internal/server/handlers/websocket.go

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"

	"geochat/internal/adapter/storage"
	"geochat/internal/domain/room"
	"geochat/internal/protocol"
)

// TopicRoomsCreated carries room-created broadcasts to every client.
const TopicRoomsCreated = "rooms.created"

// roomTopic is the per-room fanout subject for messages and presence.
func roomTopic(roomID string) string {
	return fmt.Sprintf("rooms.%s.events", roomID)
}

// defaultHistoryLimit caps the room history batch sent on join when the
// configuration does not say otherwise.
const defaultHistoryLimit = 100

// WebSocketConfig contains configuration for WebSocket connections.
type WebSocketConfig struct {
	// Time allowed to write a message to the peer
	WriteWait time.Duration

	// Time allowed to read the next pong message from the peer
	PongWait time.Duration

	// Send pings to peer with this period
	PingPeriod time.Duration

	// Maximum message size allowed from peer
	MaxMessageSize int64
}

// DefaultWebSocketConfig returns the default WebSocket configuration.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     (60 * time.Second * 9) / 10,
		MaxMessageSize: 64 * 1024,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, this should be more restrictive
		return true
	},
}

// WebSocketClient represents one connected chat client.
type WebSocketClient struct {
	conn     *websocket.Conn
	send     chan []byte
	userID   string
	username string
	natsConn *nats.Conn
	store    *storage.RoomStore
	history  int

	mu       sync.Mutex
	roomSubs map[string]*nats.Subscription
	subs     []*nats.Subscription
	closed   bool
}

// ChatWebSocketHandler handles the realtime chat channel. Clients identify
// themselves via query parameters and then exchange JSON envelopes: intents
// inbound, events outbound.
func ChatWebSocketHandler(natsConn *nats.Conn, store *storage.RoomStore, historyLimit int) http.HandlerFunc {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			http.Error(w, "Missing user ID", http.StatusBadRequest)
			return
		}
		username := r.URL.Query().Get("username")
		if username == "" {
			username = "Anonymous"
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("Failed to upgrade to WebSocket: %v", err)
			return
		}

		client := &WebSocketClient{
			conn:     conn,
			send:     make(chan []byte, 256),
			userID:   userID,
			username: username,
			natsConn: natsConn,
			store:    store,
			history:  historyLimit,
			roomSubs: make(map[string]*nats.Subscription),
		}

		go client.writePump()
		go client.readPump()

		// Every client sees new rooms as they appear on the map.
		if err := client.subscribeGlobal(); err != nil {
			log.Printf("Failed to subscribe to global topics: %v", err)
			client.closeConnection()
			return
		}

		// Resubscribe rooms the user already belongs to.
		roomIDs, err := store.MemberRoomIDs(r.Context(), userID)
		if err != nil {
			log.Printf("Failed to load memberships for %s: %v", userID, err)
		}
		for _, id := range roomIDs {
			if err := client.subscribeRoom(id); err != nil {
				log.Printf("Failed to resubscribe room %s: %v", id, err)
			}
		}

		log.Printf("New WebSocket connection from user %s", userID)
	}
}

// readPump pumps intents from the WebSocket connection into the handlers.
func (c *WebSocketClient) readPump() {
	config := DefaultWebSocketConfig()

	defer func() {
		c.closeConnection()
	}()

	c.conn.SetReadLimit(config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
		c.processIntent(data)
	}
}

// writePump pumps fanned-out events to the WebSocket connection.
func (c *WebSocketClient) writePump() {
	config := DefaultWebSocketConfig()
	ticker := time.NewTicker(config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processIntent dispatches one inbound intent envelope.
func (c *WebSocketClient) processIntent(data []byte) {
	var intent protocol.Intent
	if err := json.Unmarshal(data, &intent); err != nil {
		log.Printf("Failed to parse intent from %s: %v", c.userID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch intent.Type {
	case protocol.IntentSendMessage:
		c.handleSendMessage(ctx, intent)
	case protocol.IntentJoinRoom:
		c.handleJoinRoom(ctx, intent)
	case protocol.IntentLeaveRoom:
		c.handleLeaveRoom(ctx, intent)
	case protocol.IntentCreateRoom:
		c.handleCreateRoom(ctx, intent)
	default:
		log.Printf("Unknown intent type from %s: %q", c.userID, intent.Type)
	}
}

// handleSendMessage persists the message and fans it out to the room. The
// client-generated id and timestamp are preserved so the sender's
// optimistic copy and the echo are the same message.
func (c *WebSocketClient) handleSendMessage(ctx context.Context, intent protocol.Intent) {
	if intent.RoomID == "" || intent.Content == "" {
		log.Printf("send-message from %s missing roomId or content", c.userID)
		return
	}
	if len(intent.Content) > room.MaxMessageLength {
		log.Printf("send-message from %s exceeds length limit", c.userID)
		return
	}

	member, err := c.store.IsMember(ctx, intent.RoomID, c.userID)
	if err != nil {
		log.Printf("Failed to check membership: %v", err)
		return
	}
	if !member {
		log.Printf("send-message from non-member %s for room %s", c.userID, intent.RoomID)
		return
	}

	wm := protocol.WireMessage{
		ID:        intent.ID,
		RoomID:    intent.RoomID,
		UserID:    c.userID,
		Username:  c.username,
		Content:   intent.Content,
		Timestamp: intent.Timestamp,
	}
	if wm.ID == "" {
		wm.ID = uuid.NewString()
	}
	if wm.Timestamp == "" {
		wm.Timestamp = protocol.FormatTime(time.Now())
	}

	msg, err := wm.Model()
	if err != nil {
		log.Printf("send-message from %s has bad timestamp: %v", c.userID, err)
		return
	}
	if err := c.store.SaveMessage(ctx, msg); err != nil {
		log.Printf("Failed to save message: %v", err)
		return
	}

	publishEvent(c.natsConn, roomTopic(intent.RoomID), protocol.Event{
		Type:    protocol.EventNewMessage,
		Message: &wm,
	})
}

// handleJoinRoom records membership, confirms to the caller, announces the
// join to the room and ships the room history.
func (c *WebSocketClient) handleJoinRoom(ctx context.Context, intent protocol.Intent) {
	if intent.RoomID == "" {
		log.Printf("join-room from %s missing roomId", c.userID)
		return
	}
	if _, err := c.store.GetRoom(ctx, intent.RoomID); err != nil {
		log.Printf("join-room for unknown room %s: %v", intent.RoomID, err)
		return
	}
	if err := c.store.AddMember(ctx, intent.RoomID, c.userID); err != nil {
		log.Printf("Failed to add member: %v", err)
		return
	}
	if err := c.subscribeRoom(intent.RoomID); err != nil {
		log.Printf("Failed to subscribe room %s: %v", intent.RoomID, err)
	}

	// Confirmation goes only to the caller; membership is a
	// server-authoritative fact the client waits for.
	c.sendEvent(protocol.Event{
		Type:   protocol.EventJoinConfirmed,
		RoomID: intent.RoomID,
	})

	msgs, err := c.store.RoomMessages(ctx, intent.RoomID, c.history)
	if err != nil {
		log.Printf("Failed to load history for room %s: %v", intent.RoomID, err)
	} else {
		wire := make([]protocol.WireMessage, 0, len(msgs))
		for _, m := range msgs {
			wire = append(wire, protocol.FromModel(m))
		}
		c.sendEvent(protocol.Event{
			Type:     protocol.EventRoomMessages,
			RoomID:   intent.RoomID,
			Messages: wire,
		})
	}

	publishEvent(c.natsConn, roomTopic(intent.RoomID), protocol.Event{
		Type:     protocol.EventUserJoined,
		RoomID:   intent.RoomID,
		UserID:   c.userID,
		Username: c.username,
	})
}

// handleLeaveRoom removes membership, confirms to the caller and announces
// the departure to the room.
func (c *WebSocketClient) handleLeaveRoom(ctx context.Context, intent protocol.Intent) {
	if intent.RoomID == "" {
		log.Printf("leave-room from %s missing roomId", c.userID)
		return
	}
	if err := c.store.RemoveMember(ctx, intent.RoomID, c.userID); err != nil {
		log.Printf("Failed to remove member: %v", err)
		return
	}

	// Announce before unsubscribing so the leaver's own client also sees
	// the activity record.
	publishEvent(c.natsConn, roomTopic(intent.RoomID), protocol.Event{
		Type:     protocol.EventUserLeft,
		RoomID:   intent.RoomID,
		UserID:   c.userID,
		Username: c.username,
	})

	c.unsubscribeRoom(intent.RoomID)

	c.sendEvent(protocol.Event{
		Type:     protocol.EventLeaveConfirmed,
		RoomID:   intent.RoomID,
		Username: c.username,
	})
}

// handleCreateRoom assigns the room identity, persists it, makes the
// creator a member and broadcasts the new room to everyone.
func (c *WebSocketClient) handleCreateRoom(ctx context.Context, intent protocol.Intent) {
	if intent.Name == "" {
		log.Printf("create-room from %s missing name", c.userID)
		return
	}

	created := protocol.WireRoom{
		ID:              uuid.NewString(),
		Name:            intent.Name,
		Latitude:        intent.Latitude,
		Longitude:       intent.Longitude,
		CreatorID:       c.userID,
		CreatorUsername: c.username,
	}
	if err := c.store.SaveRoom(ctx, created.Model()); err != nil {
		log.Printf("Failed to save room: %v", err)
		return
	}
	if err := c.store.AddMember(ctx, created.ID, c.userID); err != nil {
		log.Printf("Failed to add creator membership: %v", err)
	}
	if err := c.subscribeRoom(created.ID); err != nil {
		log.Printf("Failed to subscribe room %s: %v", created.ID, err)
	}

	publishEvent(c.natsConn, TopicRoomsCreated, protocol.Event{
		Type: protocol.EventRoomCreated,
		Room: &created,
	})
}

// subscribeGlobal subscribes to topics every client receives.
func (c *WebSocketClient) subscribeGlobal() error {
	sub, err := c.natsConn.Subscribe(TopicRoomsCreated, func(msg *nats.Msg) {
		c.enqueue(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", TopicRoomsCreated, err)
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return nil
}

// subscribeRoom subscribes the client to a room's fanout topic.
func (c *WebSocketClient) subscribeRoom(roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.roomSubs[roomID]; ok {
		return nil
	}
	sub, err := c.natsConn.Subscribe(roomTopic(roomID), func(msg *nats.Msg) {
		c.enqueue(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to room %s: %w", roomID, err)
	}
	c.roomSubs[roomID] = sub
	return nil
}

// unsubscribeRoom drops the client's subscription to a room topic.
func (c *WebSocketClient) unsubscribeRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sub, ok := c.roomSubs[roomID]; ok {
		sub.Unsubscribe()
		delete(c.roomSubs, roomID)
	}
}

// sendEvent queues an event for this client only.
func (c *WebSocketClient) sendEvent(ev protocol.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Failed to encode %s event: %v", ev.Type, err)
		return
	}
	c.enqueue(data)
}

// enqueue hands a frame to the write pump, dropping it when the client's
// buffer is full rather than blocking the fanout path.
func (c *WebSocketClient) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		log.Printf("Dropping frame for slow client %s", c.userID)
	}
}

// publishEvent marshals and publishes an event to a NATS topic.
func publishEvent(natsConn *nats.Conn, topic string, ev protocol.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Failed to encode %s event: %v", ev.Type, err)
		return
	}
	if err := natsConn.Publish(topic, data); err != nil {
		log.Printf("Failed to publish to %s: %v", topic, err)
	}
}

// closeConnection tears down subscriptions and the socket.
func (c *WebSocketClient) closeConnection() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for _, sub := range c.subs {
		sub.Unsubscribe()
	}
	for _, sub := range c.roomSubs {
		sub.Unsubscribe()
	}
	c.mu.Unlock()

	close(c.send)
	c.conn.Close()
	log.Printf("WebSocket connection closed for user %s", c.userID)
}
