// Package protocol defines the WebSocket message protocol between observer
// clients and the sync server.
package protocol

import (
	"github.com/marcinbunsch/overseer-sub001/domain"
)

// Message types from client to server
const (
	TypeHello          = "hello"
	TypeSubscribe      = "subscribe"
	TypeUserMessage    = "user_message"
	TypeToolDecision   = "tool_decision"
	TypePlanDecision   = "plan_decision"
	TypeQuestionAnswer = "question_answer"
	TypeInterrupt      = "interrupt"
)

// Message types from server to client
const (
	TypeHelloAck = "hello_ack"
	TypeEvent    = "event"
	TypeState    = "state"
	TypeNotice   = "notice"
	TypeError    = "error"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type           string `json:"type"`
	Ts             int64  `json:"ts"`
	ConversationID string `json:"conversation_id,omitempty"`
	RequestID      string `json:"request_id,omitempty"`
}

// HelloMessage is sent by a client to establish a connection.
type HelloMessage struct {
	BaseMessage
	APIKey     string            `json:"api_key,omitempty"`
	ClientMeta map[string]string `json:"client_meta,omitempty"`
}

// HelloAckMessage is sent by the server after a successful hello.
type HelloAckMessage struct {
	BaseMessage
	ClientID string `json:"client_id"`
}

// SubscribeMessage binds a connection to a conversation. When LastSeq is
// non-zero the server replays all stored events after that sequence number
// before live delivery resumes.
type SubscribeMessage struct {
	BaseMessage
	Project string `json:"project,omitempty"`
	LastSeq int64  `json:"last_seq,omitempty"`
}

// UserMessageMessage submits user input to the conversation's agent.
type UserMessageMessage struct {
	BaseMessage
	Content string `json:"content"`
}

// ToolDecisionMessage resolves a pending tool-use approval.
type ToolDecisionMessage struct {
	BaseMessage
	Decision string `json:"decision"` // approve, approve_all_tool, approve_all_commands, deny
	Reason   string `json:"reason,omitempty"`
}

// PlanDecisionMessage resolves a pending plan review.
type PlanDecisionMessage struct {
	BaseMessage
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// QuestionAnswerMessage answers a pending agent question.
type QuestionAnswerMessage struct {
	BaseMessage
	Answers []string `json:"answers"`
}

// InterruptMessage stops the conversation's current turn.
type InterruptMessage struct {
	BaseMessage
}

// EventMessage carries one raw agent event to subscribed observers.
type EventMessage struct {
	BaseMessage
	Event domain.Event `json:"event"`
}

// StateMessage carries a full conversation view snapshot. Clients replace
// their local view wholesale; state frames are self-contained.
type StateMessage struct {
	BaseMessage
	View domain.ConversationView `json:"view"`
}

// NoticeMessage carries a human-readable server notice.
type NoticeMessage struct {
	BaseMessage
	Text string `json:"text"`
}

// ErrorMessage is sent by the server when a request fails.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrorCodeInvalidMessage       = "invalid_message"
	ErrorCodeUnauthorized         = "unauthorized"
	ErrorCodeSubscriptionRequired = "subscription_required"
	ErrorCodeConversationFail     = "conversation_fail"
	ErrorCodeInternalError        = "internal_error"
)
