// Package ws provides the WebSocket server for observer connections.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/marcinbunsch/overseer-sub001/agent"
	"github.com/marcinbunsch/overseer-sub001/config"
	"github.com/marcinbunsch/overseer-sub001/conversation"
	"github.com/marcinbunsch/overseer-sub001/domain"
	"github.com/marcinbunsch/overseer-sub001/hub"
	"github.com/marcinbunsch/overseer-sub001/protocol"
	"github.com/marcinbunsch/overseer-sub001/store"
)

// Broadcaster fans conversation output out to the hub as protocol frames.
// It satisfies conversation.Broadcaster so the fold never touches the
// transport directly.
type Broadcaster struct {
	hub *hub.Hub
}

// NewBroadcaster creates a hub-backed broadcaster.
func NewBroadcaster(h *hub.Hub) *Broadcaster {
	return &Broadcaster{hub: h}
}

// BroadcastEvent delivers a raw agent event to the conversation's observers.
func (b *Broadcaster) BroadcastEvent(conversationID string, event domain.Event) {
	frame := protocol.EventMessage{
		BaseMessage: protocol.BaseMessage{
			Type:           protocol.TypeEvent,
			Ts:             time.Now().UnixMilli(),
			ConversationID: conversationID,
		},
		Event: event,
	}
	if err := b.hub.BroadcastJSON(conversationID, frame); err != nil {
		log.Printf("ERROR: failed to broadcast event: %v", err)
	}
}

// BroadcastState delivers a full view snapshot to the conversation's observers.
func (b *Broadcaster) BroadcastState(conversationID string, view domain.ConversationView) {
	frame := protocol.StateMessage{
		BaseMessage: protocol.BaseMessage{
			Type:           protocol.TypeState,
			Ts:             time.Now().UnixMilli(),
			ConversationID: conversationID,
		},
		View: view,
	}
	if err := b.hub.BroadcastJSON(conversationID, frame); err != nil {
		log.Printf("ERROR: failed to broadcast state: %v", err)
	}
}

// Notify delivers a transient notice to the conversation's observers.
func (b *Broadcaster) Notify(conversationID string, text string) {
	frame := protocol.NoticeMessage{
		BaseMessage: protocol.BaseMessage{
			Type:           protocol.TypeNotice,
			Ts:             time.Now().UnixMilli(),
			ConversationID: conversationID,
		},
		Text: text,
	}
	if err := b.hub.BroadcastJSON(conversationID, frame); err != nil {
		log.Printf("ERROR: failed to broadcast notice: %v", err)
	}
}

// Server handles WebSocket connections.
type Server struct {
	cfg        *config.Config
	hub        *hub.Hub
	registry   *conversation.Registry
	reconciler *conversation.Reconciler
	store      store.Store
	upgrader   websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(cfg *config.Config, h *hub.Hub, registry *conversation.Registry, reconciler *conversation.Reconciler, st store.Store) *Server {
	return &Server{
		cfg:        cfg,
		hub:        h,
		registry:   registry,
		reconciler: reconciler,
		store:      st,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Observers connect from local tooling; no origin policy.
				return true
			},
		},
	}
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("ERROR: failed to upgrade WebSocket: %v", err)
		return err
	}

	conn := s.hub.NewConnection(ws)
	s.hub.Register(conn)

	ws.SetReadLimit(s.cfg.MaxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// readPump reads messages from the WebSocket connection.
func (s *Server) readPump(conn *hub.Connection) {
	defer func() {
		conversationID := conn.ConversationID
		s.hub.Detach(conn)
		s.hub.Unregister(conn)
		conn.Close()

		// Losing the last observer drops focus, so the next completed
		// turn finalizes the conversation normally.
		if conversationID != "" && !s.hub.HasObservers(conversationID) {
			s.registry.Blur(conversationID)
		}
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ERROR: WebSocket read: %v", err)
			}
			break
		}

		s.handleMessage(conn, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("ERROR: failed to write message: %v", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches incoming messages to appropriate handlers.
func (s *Server) handleMessage(conn *hub.Connection, data []byte) {
	var baseMsg protocol.BaseMessage
	if err := json.Unmarshal(data, &baseMsg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	switch baseMsg.Type {
	case protocol.TypeHello:
		s.handleHello(conn, data)
	case protocol.TypeSubscribe:
		s.handleSubscribe(conn, data)
	case protocol.TypeUserMessage:
		s.handleUserMessage(conn, data)
	case protocol.TypeToolDecision:
		s.handleToolDecision(conn, data)
	case protocol.TypePlanDecision:
		s.handlePlanDecision(conn, data)
	case protocol.TypeQuestionAnswer:
		s.handleQuestionAnswer(conn, data)
	case protocol.TypeInterrupt:
		s.handleInterrupt(conn, data)
	default:
		s.sendError(conn, baseMsg.ConversationID, protocol.ErrorCodeInvalidMessage, "unknown message type: "+baseMsg.Type)
	}
}

// handleHello handles the hello handshake message.
func (s *Server) handleHello(conn *hub.Connection, data []byte) {
	var msg protocol.HelloMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid hello message")
		return
	}

	if s.cfg.APIKey != "" && msg.APIKey != s.cfg.APIKey {
		s.sendError(conn, "", protocol.ErrorCodeUnauthorized, "invalid api_key")
		return
	}

	ack := protocol.HelloAckMessage{
		BaseMessage: protocol.BaseMessage{
			Type: protocol.TypeHelloAck,
			Ts:   time.Now().UnixMilli(),
		},
		ClientID: conn.ID,
	}
	s.hub.SendJSONToConnection(conn, ack)
}

// handleSubscribe binds the connection to a conversation and replays any
// events the client missed. Replay frames go only to the subscribing
// connection; the final state frame gives it a consistent snapshot.
func (s *Server) handleSubscribe(conn *hub.Connection, data []byte) {
	var msg protocol.SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid subscribe message")
		return
	}
	if msg.ConversationID == "" {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "conversation_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conv, err := s.registry.Open(ctx, msg.ConversationID, msg.Project)
	if err != nil {
		log.Printf("ERROR: failed to open conversation %s: %v", msg.ConversationID, err)
		s.sendError(conn, msg.ConversationID, protocol.ErrorCodeConversationFail, err.Error())
		return
	}

	s.hub.BindConversation(conn, msg.ConversationID)
	s.registry.SetFocused(msg.ConversationID)

	// A reconnect may mean the fold missed events while nobody listened.
	if s.reconciler != nil {
		s.reconciler.Trigger(msg.ConversationID)
	}

	events, err := s.store.LoadEventsSince(ctx, msg.ConversationID, msg.LastSeq)
	if err != nil {
		log.Printf("ERROR: failed to load events for replay: %v", err)
		s.sendError(conn, msg.ConversationID, protocol.ErrorCodeInternalError, "replay failed")
		return
	}
	for _, event := range events {
		frame := protocol.EventMessage{
			BaseMessage: protocol.BaseMessage{
				Type:           protocol.TypeEvent,
				Ts:             time.Now().UnixMilli(),
				ConversationID: msg.ConversationID,
			},
			Event: event,
		}
		if err := s.hub.SendJSONToConnection(conn, frame); err != nil {
			log.Printf("ERROR: replay to %s interrupted: %v", conn.ID, err)
			return
		}
	}

	state := protocol.StateMessage{
		BaseMessage: protocol.BaseMessage{
			Type:           protocol.TypeState,
			Ts:             time.Now().UnixMilli(),
			ConversationID: msg.ConversationID,
		},
		View: conv.View(),
	}
	s.hub.SendJSONToConnection(conn, state)
}

// subscribed returns the connection's conversation, or reports an error
// frame and nil when no subscription is bound yet.
func (s *Server) subscribed(conn *hub.Connection) *conversation.Conversation {
	if conn.ConversationID == "" {
		s.sendError(conn, "", protocol.ErrorCodeSubscriptionRequired, "must send subscribe first")
		return nil
	}
	conv := s.registry.Get(conn.ConversationID)
	if conv == nil {
		s.sendError(conn, conn.ConversationID, protocol.ErrorCodeSubscriptionRequired, "conversation not open")
		return nil
	}
	return conv
}

// handleUserMessage submits user input to the subscribed conversation.
func (s *Server) handleUserMessage(conn *hub.Connection, data []byte) {
	var msg protocol.UserMessageMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid user_message message")
		return
	}
	conv := s.subscribed(conn)
	if conv == nil {
		return
	}
	if msg.Content == "" {
		s.sendError(conn, conn.ConversationID, protocol.ErrorCodeInvalidMessage, "content is required")
		return
	}

	conversationID := conn.ConversationID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if _, err := conv.Send(ctx, msg.Content, agent.SendOptions{}); err != nil {
			log.Printf("ERROR: send failed for %s: %v", conversationID, err)
			s.sendErrorToConversation(conversationID, protocol.ErrorCodeConversationFail, err.Error())
		}
	}()
}

// handleToolDecision resolves a pending tool-use approval.
func (s *Server) handleToolDecision(conn *hub.Connection, data []byte) {
	var msg protocol.ToolDecisionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid tool_decision message")
		return
	}
	conv := s.subscribed(conn)
	if conv == nil {
		return
	}
	if msg.RequestID == "" {
		s.sendError(conn, conn.ConversationID, protocol.ErrorCodeInvalidMessage, "request_id is required")
		return
	}

	conversationID := conn.ConversationID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := conv.RespondToolUse(ctx, msg.RequestID, msg.Decision, msg.Reason); err != nil {
			log.Printf("ERROR: tool decision failed for %s: %v", conversationID, err)
			s.sendErrorToConversation(conversationID, protocol.ErrorCodeConversationFail, err.Error())
		}
	}()
}

// handlePlanDecision resolves a pending plan review.
func (s *Server) handlePlanDecision(conn *hub.Connection, data []byte) {
	var msg protocol.PlanDecisionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid plan_decision message")
		return
	}
	conv := s.subscribed(conn)
	if conv == nil {
		return
	}

	conversationID := conn.ConversationID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := conv.RespondPlan(ctx, msg.Approved, msg.Reason); err != nil {
			log.Printf("ERROR: plan decision failed for %s: %v", conversationID, err)
			s.sendErrorToConversation(conversationID, protocol.ErrorCodeConversationFail, err.Error())
		}
	}()
}

// handleQuestionAnswer answers a pending agent question.
func (s *Server) handleQuestionAnswer(conn *hub.Connection, data []byte) {
	var msg protocol.QuestionAnswerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid question_answer message")
		return
	}
	conv := s.subscribed(conn)
	if conv == nil {
		return
	}
	if msg.RequestID == "" {
		s.sendError(conn, conn.ConversationID, protocol.ErrorCodeInvalidMessage, "request_id is required")
		return
	}

	conversationID := conn.ConversationID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := conv.AnswerQuestion(ctx, msg.RequestID, msg.Answers); err != nil {
			log.Printf("ERROR: question answer failed for %s: %v", conversationID, err)
			s.sendErrorToConversation(conversationID, protocol.ErrorCodeConversationFail, err.Error())
		}
	}()
}

// handleInterrupt stops the subscribed conversation's current turn.
func (s *Server) handleInterrupt(conn *hub.Connection, data []byte) {
	var msg protocol.InterruptMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid interrupt message")
		return
	}
	conv := s.subscribed(conn)
	if conv == nil {
		return
	}

	conversationID := conn.ConversationID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := conv.Interrupt(ctx); err != nil {
			log.Printf("ERROR: interrupt failed for %s: %v", conversationID, err)
			s.sendErrorToConversation(conversationID, protocol.ErrorCodeConversationFail, err.Error())
		}
	}()
}

// sendError sends an error frame to a connection.
func (s *Server) sendError(conn *hub.Connection, conversationID, code, message string) {
	errMsg := protocol.ErrorMessage{
		BaseMessage: protocol.BaseMessage{
			Type:           protocol.TypeError,
			Ts:             time.Now().UnixMilli(),
			ConversationID: conversationID,
		},
		Code:    code,
		Message: message,
	}
	s.hub.SendJSONToConnection(conn, errMsg)
}

// sendErrorToConversation sends an error frame to all observers of a conversation.
func (s *Server) sendErrorToConversation(conversationID, code, message string) {
	errMsg := protocol.ErrorMessage{
		BaseMessage: protocol.BaseMessage{
			Type:           protocol.TypeError,
			Ts:             time.Now().UnixMilli(),
			ConversationID: conversationID,
		},
		Code:    code,
		Message: message,
	}
	s.hub.BroadcastJSON(conversationID, errMsg)
}
