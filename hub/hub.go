// Package hub provides connection management for WebSocket observers.
package hub

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection represents a single WebSocket connection. A connection observes
// at most one conversation at a time; re-subscribing moves it.
type Connection struct {
	ID             string
	ConversationID string
	Conn           *websocket.Conn
	Send           chan []byte
	hub            *Hub
	mu             sync.Mutex
}

// Hub manages all WebSocket connections and their conversation bindings.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// conversations maps conversation_id to set of connection IDs
	conversations map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection

	// Broadcast channel for fan-out to a conversation's observers
	broadcast chan *ConversationMessage

	mu sync.RWMutex
}

// ConversationMessage is used to broadcast a frame to a conversation's observers.
type ConversationMessage struct {
	ConversationID string
	Data           []byte
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections:   make(map[string]*Connection),
		conversations: make(map[string]map[string]bool),
		register:      make(chan *Connection),
		unregister:    make(chan *Connection),
		broadcast:     make(chan *ConversationMessage, 256),
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			if conn.ConversationID != "" {
				if h.conversations[conn.ConversationID] == nil {
					h.conversations[conn.ConversationID] = make(map[string]bool)
				}
				h.conversations[conn.ConversationID][conn.ID] = true
			}
			h.mu.Unlock()
			log.Printf("Connection registered: %s", conn.ID)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				if conn.ConversationID != "" && h.conversations[conn.ConversationID] != nil {
					delete(h.conversations[conn.ConversationID], conn.ID)
					if len(h.conversations[conn.ConversationID]) == 0 {
						delete(h.conversations, conn.ConversationID)
					}
				}
				close(conn.Send)
			}
			h.mu.Unlock()
			log.Printf("Connection unregistered: %s", conn.ID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			if connIDs, ok := h.conversations[msg.ConversationID]; ok {
				for connID := range connIDs {
					if conn, exists := h.connections[connID]; exists {
						select {
						case conn.Send <- msg.Data:
						default:
							// Buffer full, close the connection
							log.Printf("Connection %s buffer full, closing", connID)
							go h.Unregister(conn)
						}
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// NewConnection creates a new connection and registers it with the hub.
func (h *Hub) NewConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ID:   "conn_" + uuid.New().String()[:8],
		Conn: ws,
		Send: make(chan []byte, 256),
		hub:  h,
	}
}

// Register registers a connection with the hub.
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister unregisters a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// BindConversation binds a connection to a conversation, detaching it from
// any previous one.
func (h *Hub) BindConversation(conn *Connection, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conn.ConversationID != "" && h.conversations[conn.ConversationID] != nil {
		delete(h.conversations[conn.ConversationID], conn.ID)
		if len(h.conversations[conn.ConversationID]) == 0 {
			delete(h.conversations, conn.ConversationID)
		}
	}

	conn.ConversationID = conversationID
	if h.conversations[conversationID] == nil {
		h.conversations[conversationID] = make(map[string]bool)
	}
	h.conversations[conversationID][conn.ID] = true
}

// Detach synchronously removes the connection's conversation binding.
// Unlike Unregister it does not go through the run loop, so the caller
// can immediately observe whether the conversation lost its last
// observer.
func (h *Hub) Detach(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conn.ConversationID == "" {
		return
	}
	if h.conversations[conn.ConversationID] != nil {
		delete(h.conversations[conn.ConversationID], conn.ID)
		if len(h.conversations[conn.ConversationID]) == 0 {
			delete(h.conversations, conn.ConversationID)
		}
	}
	conn.ConversationID = ""
}

// Broadcast sends a frame to all observers of a conversation.
func (h *Hub) Broadcast(conversationID string, data []byte) {
	h.broadcast <- &ConversationMessage{
		ConversationID: conversationID,
		Data:           data,
	}
}

// BroadcastJSON sends a JSON frame to all observers of a conversation.
func (h *Hub) BroadcastJSON(conversationID string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(conversationID, data)
	return nil
}

// SendToConnection sends a frame to a specific connection.
func (h *Hub) SendToConnection(conn *Connection, data []byte) error {
	select {
	case conn.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// SendJSONToConnection sends a JSON frame to a specific connection.
func (h *Hub) SendJSONToConnection(conn *Connection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.SendToConnection(conn, data)
}

// GetConnectionCount returns the number of active connections.
func (h *Hub) GetConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// HasObservers reports whether any connection observes the conversation.
func (h *Hub) HasObservers(conversationID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	connIDs, ok := h.conversations[conversationID]
	return ok && len(connIDs) > 0
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// ErrBufferFull is returned when the send buffer is full.
var ErrBufferFull = &BufferFullError{}

// BufferFullError represents a buffer full error.
type BufferFullError struct{}

func (e *BufferFullError) Error() string {
	return "send buffer full"
}
