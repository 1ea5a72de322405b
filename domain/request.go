package domain

// SendMessageRequest is the body for posting a message to a conversation.
type SendMessageRequest struct {
	Content        string `json:"content"`
	WorkingDir     string `json:"working_dir,omitempty"`
	Model          string `json:"model,omitempty"`
	PermissionMode string `json:"permission_mode,omitempty"`
}

// SendMessageResponse reports whether the message was dispatched or
// queued behind a turn in progress.
type SendMessageResponse struct {
	Queued bool `json:"queued"`
}

// ToolDecisionRequest is the body for deciding a pending tool use.
// Decision is one of: approve, approve_all_tool, approve_all_commands,
// deny.
type ToolDecisionRequest struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
}

// PlanDecisionRequest is the body for deciding a pending plan approval.
type PlanDecisionRequest struct {
	Decision string `json:"decision"` // approve or deny
	Reason   string `json:"reason,omitempty"`
}

// QuestionAnswerRequest is the body for answering a pending question.
type QuestionAnswerRequest struct {
	Answers []string `json:"answers"`
}

// ConversationView is the snapshot returned by the conversation endpoints.
type ConversationView struct {
	ConversationID      string               `json:"conversation_id"`
	Status              ConversationStatus   `json:"status"`
	Label               string               `json:"label,omitempty"`
	SessionID           string               `json:"session_id,omitempty"`
	PendingToolUses     []*PendingToolUse    `json:"pending_tool_uses,omitempty"`
	PendingQuestions    []*PendingQuestion   `json:"pending_questions,omitempty"`
	PendingPlanApproval *PendingPlanApproval `json:"pending_plan_approval,omitempty"`
	FollowUps           []string             `json:"follow_ups,omitempty"`
}
