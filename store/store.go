// Package store defines the durable conversation log and its
// implementations.
package store

import (
	"context"

	"github.com/marcinbunsch/overseer-sub001/domain"
)

// Store is the persistence collaborator for conversations: the
// append-only, seq-tagged event log, conversation metadata, and the
// project-scoped approval sets.
type Store interface {
	// AppendEvent assigns the next sequence number for the conversation,
	// stores the event, and returns the assigned seq. Sequence numbers
	// are strictly increasing per conversation.
	AppendEvent(ctx context.Context, conversationID string, event *domain.Event) (int64, error)

	// LoadEvents returns the full event log in ascending seq order.
	LoadEvents(ctx context.Context, conversationID string) ([]domain.Event, error)

	// LoadEventsSince returns events with seq > sinceSeq in ascending
	// order.
	LoadEventsSince(ctx context.Context, conversationID string, sinceSeq int64) ([]domain.Event, error)

	// Metadata operations.
	SaveMeta(ctx context.Context, meta *domain.ConversationMeta) error
	GetMeta(ctx context.Context, conversationID string) (*domain.ConversationMeta, error)
	ListMeta(ctx context.Context) ([]domain.ConversationMeta, error)

	// Approval set operations (project scoped).
	LoadApprovalSet(ctx context.Context, project string) (tools []string, prefixes []string, err error)
	AddApprovedTool(ctx context.Context, project, tool string) error
	AddApprovedPrefixes(ctx context.Context, project string, prefixes []string) error

	// Lifecycle.
	Close() error
}
