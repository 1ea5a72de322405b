package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marcinbunsch/overseer-sub001/agent"
	"github.com/marcinbunsch/overseer-sub001/approval"
	"github.com/marcinbunsch/overseer-sub001/domain"
	"github.com/marcinbunsch/overseer-sub001/overseer"
	"github.com/marcinbunsch/overseer-sub001/store"
)

// RegistryParams wires the shared collaborators handed to each
// conversation.
type RegistryParams struct {
	Source           agent.EventSource
	Store            store.Store
	Safety           approval.SafetyClassifier
	Dispatcher       overseer.Dispatcher
	Broadcaster      Broadcaster
	FilesChanged     func(conversationID string)
	SettleDelay      time.Duration
	DebounceInterval time.Duration
}

// Registry holds one state-machine instance per conversation id. There
// is no implicit global state: everything a conversation needs is wired
// through here.
type Registry struct {
	params RegistryParams

	mu            sync.Mutex
	conversations map[string]*Conversation
	policies      map[string]*approval.Policy
	focused       string
}

// NewRegistry creates an empty registry.
func NewRegistry(params RegistryParams) *Registry {
	return &Registry{
		params:        params,
		conversations: make(map[string]*Conversation),
		policies:      make(map[string]*approval.Policy),
	}
}

// Get returns the open conversation for the id, or nil.
func (r *Registry) Get(conversationID string) *Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conversations[conversationID]
}

// Open returns the conversation for the id, creating it on first use:
// metadata and the project approval set are loaded, the durable log is
// replayed through the fold, and source listeners are attached.
func (r *Registry) Open(ctx context.Context, conversationID, project string) (*Conversation, error) {
	r.mu.Lock()
	if c, ok := r.conversations[conversationID]; ok {
		r.mu.Unlock()
		return c, nil
	}
	r.mu.Unlock()

	meta, err := r.params.Store.GetMeta(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load meta: %w", err)
	}
	if meta == nil {
		meta = &domain.ConversationMeta{
			ConversationID: conversationID,
			Project:        project,
			CreatedAt:      time.Now().UTC(),
		}
		if err := r.params.Store.SaveMeta(ctx, meta); err != nil {
			return nil, fmt.Errorf("failed to save meta: %w", err)
		}
	}

	policy, err := r.policyFor(ctx, meta.Project)
	if err != nil {
		return nil, err
	}

	c := New(Params{
		ConversationID:   conversationID,
		Meta:             meta,
		Source:           r.params.Source,
		Store:            r.params.Store,
		Policy:           policy,
		Dispatcher:       r.params.Dispatcher,
		Broadcaster:      r.params.Broadcaster,
		FilesChanged:     r.params.FilesChanged,
		SettleDelay:      r.params.SettleDelay,
		DebounceInterval: r.params.DebounceInterval,
	})

	r.mu.Lock()
	if existing, ok := r.conversations[conversationID]; ok {
		// Lost the race to another opener.
		r.mu.Unlock()
		return existing, nil
	}
	r.conversations[conversationID] = c
	r.mu.Unlock()

	// Initial load: replay the durable log through the fold. The seq gate
	// makes a concurrent live event harmless.
	events, err := r.params.Store.LoadEvents(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	for _, event := range events {
		c.Apply(event, false)
	}

	if meta.SessionID != "" {
		r.params.Source.SetSessionID(conversationID, meta.SessionID)
	}
	r.params.Source.OnEvent(conversationID, func(event domain.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.Ingest(ctx, event)
	})
	r.params.Source.OnDone(conversationID, c.HandleProcessExit)
	r.params.Source.AttachListeners(conversationID)

	return c, nil
}

// policyFor returns the project's approval policy, loading it once.
func (r *Registry) policyFor(ctx context.Context, project string) (*approval.Policy, error) {
	r.mu.Lock()
	if p, ok := r.policies[project]; ok {
		r.mu.Unlock()
		return p, nil
	}
	r.mu.Unlock()

	policy, err := approval.NewPolicy(ctx, project, r.params.Store, r.params.Safety)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.policies[project]; ok {
		return p, nil
	}
	r.policies[project] = policy
	return policy, nil
}

// SetFocused records which conversation the operator is viewing. At most
// one conversation is focused at a time.
func (r *Registry) SetFocused(conversationID string) {
	r.mu.Lock()
	previous := r.focused
	r.focused = conversationID
	prevConv := r.conversations[previous]
	conv := r.conversations[conversationID]
	r.mu.Unlock()

	if prevConv != nil && previous != conversationID {
		prevConv.SetFocused(false)
	}
	if conv != nil {
		conv.SetFocused(true)
	}
}

// Blur clears focus from the given conversation.
func (r *Registry) Blur(conversationID string) {
	r.mu.Lock()
	if r.focused == conversationID {
		r.focused = ""
	}
	conv := r.conversations[conversationID]
	r.mu.Unlock()

	if conv != nil {
		conv.SetFocused(false)
	}
}

// AnythingRunning reports whether any open conversation is mid-turn. It
// is a read-only, staleness-tolerant scan; no cross-conversation locking
// exists.
func (r *Registry) AnythingRunning() bool {
	r.mu.Lock()
	conversations := make([]*Conversation, 0, len(r.conversations))
	for _, c := range r.conversations {
		conversations = append(conversations, c)
	}
	r.mu.Unlock()

	for _, c := range conversations {
		if c.Status() == domain.StatusRunning {
			return true
		}
	}
	return false
}

// List returns a view of every known conversation: open ones with live
// status, persisted-only ones from their metadata.
func (r *Registry) List(ctx context.Context) ([]domain.ConversationView, error) {
	metas, err := r.params.Store.ListMeta(ctx)
	if err != nil {
		return nil, err
	}

	var views []domain.ConversationView
	for _, meta := range metas {
		if c := r.Get(meta.ConversationID); c != nil {
			views = append(views, c.View())
			continue
		}
		status := domain.StatusIdle
		if meta.Done {
			status = domain.StatusDone
		}
		views = append(views, domain.ConversationView{
			ConversationID: meta.ConversationID,
			Status:         status,
			Label:          meta.Label,
			SessionID:      meta.SessionID,
		})
	}
	return views, nil
}

// Meta returns the persisted metadata for a conversation, if any.
func (r *Registry) Meta(ctx context.Context, conversationID string) (*domain.ConversationMeta, error) {
	return r.params.Store.GetMeta(ctx, conversationID)
}
