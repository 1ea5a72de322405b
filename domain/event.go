// Package domain defines the core domain models for the conversation engine.
package domain

import "encoding/json"

// EventKind discriminates the flat wire event union.
type EventKind string

const (
	EventKindSessionID    EventKind = "sessionId"
	EventKindMessage      EventKind = "message"
	EventKindText         EventKind = "text"
	EventKindBashOutput   EventKind = "bashOutput"
	EventKindToolApproval EventKind = "toolApproval"
	EventKindQuestion     EventKind = "question"
	EventKindPlanApproval EventKind = "planApproval"
	EventKindUserMessage  EventKind = "userMessage"
	EventKindTurnComplete EventKind = "turnComplete"
	EventKindDone         EventKind = "done"
)

// Event is one atomic unit of a conversation's append-only history. The
// wire shape is a single flat object: the kind-specific fields sit next to
// the discriminant, and on the multi-reader channel a seq number is
// flattened alongside them. Events delivered over the direct in-process
// callback carry no seq.
type Event struct {
	Kind EventKind `json:"kind"`
	Seq  *int64    `json:"seq,omitempty"`
	Ts   int64     `json:"ts,omitempty"`

	// sessionId
	SessionID string `json:"session_id,omitempty"`

	// message / text / bashOutput / userMessage
	MessageID       string `json:"message_id,omitempty"`
	Content         string `json:"content,omitempty"`
	ToolName        string `json:"tool_name,omitempty"`
	LinesAdded      int    `json:"lines_added,omitempty"`
	LinesRemoved    int    `json:"lines_removed,omitempty"`
	ToolUseID       string `json:"tool_use_id,omitempty"`
	ParentToolUseID string `json:"parent_tool_use_id,omitempty"`

	// userMessage: set when this is the synthetic init-prompt-plus-user-text
	// combination actually sent to the agent, which must not render as a
	// second visible bubble.
	Internal bool `json:"internal,omitempty"`

	// toolApproval / question / planApproval
	RequestID       string          `json:"request_id,omitempty"`
	DisplayInput    string          `json:"display_input,omitempty"`
	RawInput        json.RawMessage `json:"raw_input,omitempty"`
	CommandPrefixes []string        `json:"command_prefixes,omitempty"`
	Questions       []Question      `json:"questions,omitempty"`
	Plan            string          `json:"plan,omitempty"`

	// Set by the upstream policy layer when the request was already
	// answered before it reached the fold.
	Processed    bool `json:"processed,omitempty"`
	AutoApproved bool `json:"auto_approved,omitempty"`
}

// Question is one prompt inside a question event.
type Question struct {
	Prompt      string   `json:"prompt"`
	Header      string   `json:"header,omitempty"`
	Options     []string `json:"options,omitempty"`
	MultiSelect bool     `json:"multi_select,omitempty"`
}
