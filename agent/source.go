// Package agent defines the per-vendor agent collaborator: the event
// source a conversation sends to and receives parsed events from.
package agent

import (
	"context"
	"encoding/json"

	"github.com/marcinbunsch/overseer-sub001/domain"
)

// EventHandler receives one parsed event for a conversation.
type EventHandler func(event domain.Event)

// DoneHandler is invoked when the agent process for a conversation
// exits.
type DoneHandler func()

// SendOptions carries the per-send parameters forwarded to the agent
// vendor CLI.
type SendOptions struct {
	WorkingDir     string `json:"working_dir,omitempty"`
	LogDir         string `json:"log_dir,omitempty"`
	Model          string `json:"model,omitempty"`
	PermissionMode string `json:"permission_mode,omitempty"`
	InitPrompt     string `json:"init_prompt,omitempty"`
	ProjectName    string `json:"project_name,omitempty"`
}

// EventSource is the canonical producer of events for a conversation.
// Exactly one instance is canonical for a given conversation at any time;
// any number of observers may read the folded state concurrently.
type EventSource interface {
	// SendMessage starts or continues a turn with the given content.
	SendMessage(ctx context.Context, conversationID, content string, opts SendOptions) error

	// SendToolApproval answers a pending tool-use request. RawInput is the
	//original request input echoed back for replay; reason carries
	// operator-authored denial text when approved is false.
	SendToolApproval(ctx context.Context, conversationID, requestID string, approved bool, rawInput json.RawMessage, reason string) error

	// InterruptTurn requests the current turn stop. Cancellation is
	// optimistic: callers update local state without awaiting the actual
	// process termination.
	InterruptTurn(ctx context.Context, conversationID string) error

	// OnEvent registers a handler for parsed events.
	OnEvent(conversationID string, handler EventHandler)

	// OnDone registers a handler for process exit.
	OnDone(conversationID string, handler DoneHandler)

	// Session id handling: sends after the first reuse the recorded id.
	SetSessionID(conversationID, sessionID string)
	GetSessionID(conversationID string) string

	// AttachListeners is idempotent and safe to call from multiple
	// observers.
	AttachListeners(conversationID string)
}
