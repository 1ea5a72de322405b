package domain

import (
	"encoding/json"
	"time"
)

// ConversationStatus is derived from the pending collections and flags;
// it is never stored except for the Done flag in ConversationMeta.
type ConversationStatus string

const (
	StatusNeedsAttention ConversationStatus = "NEEDS_ATTENTION"
	StatusRunning        ConversationStatus = "RUNNING"
	StatusDone           ConversationStatus = "DONE"
	StatusIdle           ConversationStatus = "IDLE"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single message in a conversation. It is owned exclusively
// by the conversation fold: streaming deltas append to Content, and no
// other code mutates it.
type Message struct {
	MessageID       string    `json:"message_id"`
	Role            string    `json:"role"`
	Content         string    `json:"content"`
	CreatedAt       time.Time `json:"created_at"`
	ToolName        string    `json:"tool_name,omitempty"`
	LinesAdded      int       `json:"lines_added,omitempty"`
	LinesRemoved    int       `json:"lines_removed,omitempty"`
	ToolUseID       string    `json:"tool_use_id,omitempty"`
	ParentToolUseID string    `json:"parent_tool_use_id,omitempty"`
	IsBashOutput    bool      `json:"is_bash_output,omitempty"`
	IsInfo          bool      `json:"is_info,omitempty"`
}

// PendingToolUse is an agent tool-use request awaiting an operator or
// policy response.
type PendingToolUse struct {
	RequestID       string          `json:"request_id"`
	ToolName        string          `json:"tool_name"`
	DisplayInput    string          `json:"display_input,omitempty"`
	RawInput        json.RawMessage `json:"raw_input,omitempty"`
	CommandPrefixes []string        `json:"command_prefixes,omitempty"`
}

// PendingQuestion is an agent question awaiting an operator answer.
type PendingQuestion struct {
	RequestID string          `json:"request_id"`
	Questions []Question      `json:"questions"`
	RawInput  json.RawMessage `json:"raw_input,omitempty"`
}

// PendingPlanApproval is an agent plan awaiting review. PreviousPlan
// carries the last rejected or superseded plan for diffing; it is empty
// for a first proposal.
type PendingPlanApproval struct {
	RequestID    string `json:"request_id"`
	Plan         string `json:"plan"`
	PreviousPlan string `json:"previous_plan,omitempty"`
}

// ConversationMeta is the persisted metadata for a conversation.
type ConversationMeta struct {
	ConversationID string    `json:"conversation_id"`
	Project        string    `json:"project"`
	Workspace      string    `json:"workspace,omitempty"`
	Label          string    `json:"label,omitempty"`
	AgentKind      string    `json:"agent_kind,omitempty"`
	SessionID      string    `json:"session_id,omitempty"`
	Model          string    `json:"model,omitempty"`
	PermissionMode string    `json:"permission_mode,omitempty"`
	Done           bool      `json:"done,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
