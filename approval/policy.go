// Package approval decides whether agent tool-use requests are already
// authorized, and persists operator grants at project scope.
package approval

import (
	"context"
	"fmt"
	"sync"
)

// SetStore persists the project-scoped approval set.
type SetStore interface {
	LoadApprovalSet(ctx context.Context, project string) (tools []string, prefixes []string, err error)
	AddApprovedTool(ctx context.Context, project, tool string) error
	AddApprovedPrefixes(ctx context.Context, project string, prefixes []string) error
}

// Policy is the approval policy for one project. All conversations under
// the project share it: a grant made in one window immediately applies to
// pending requests in every other.
type Policy struct {
	project string
	store   SetStore
	safety  SafetyClassifier

	mu       sync.Mutex
	tools    map[string]bool
	prefixes map[string]bool
}

// NewPolicy loads the project's persisted approval set and returns the
// policy backed by it.
func NewPolicy(ctx context.Context, project string, store SetStore, safety SafetyClassifier) (*Policy, error) {
	tools, prefixes, err := store.LoadApprovalSet(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("failed to load approval set: %w", err)
	}

	p := &Policy{
		project:  project,
		store:    store,
		safety:   safety,
		tools:    make(map[string]bool),
		prefixes: make(map[string]bool),
	}
	for _, t := range tools {
		p.tools[t] = true
	}
	for _, pre := range prefixes {
		p.prefixes[pre] = true
	}
	return p, nil
}

// Authorizes reports whether a tool-use request is already covered: by an
// approved tool name, by the approved command-prefix set (the entire
// prefix list must be a subset; partial overlap does not qualify), or by
// the always-safe classifier (which never consults the persisted set).
func (p *Policy) Authorizes(ctx context.Context, toolName string, commandPrefixes []string) bool {
	p.mu.Lock()
	if p.tools[toolName] {
		p.mu.Unlock()
		return true
	}
	if len(commandPrefixes) > 0 && p.coversLocked(commandPrefixes) {
		p.mu.Unlock()
		return true
	}
	p.mu.Unlock()

	if p.safety != nil && len(commandPrefixes) > 0 {
		return p.safety.Safe(ctx, commandPrefixes)
	}
	return false
}

// Covers reports whether every prefix of the invocation is already in the
// approved set.
func (p *Policy) Covers(commandPrefixes []string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(commandPrefixes) > 0 && p.coversLocked(commandPrefixes)
}

func (p *Policy) coversLocked(commandPrefixes []string) bool {
	for _, prefix := range commandPrefixes {
		if !p.prefixes[prefix] {
			return false
		}
	}
	return true
}

// ApproveTool persists a tool name into the project's approval set. The
// persistence write happens before the in-memory set is updated so a
// failed write leaves the grant retryable.
func (p *Policy) ApproveTool(ctx context.Context, toolName string) error {
	if err := p.store.AddApprovedTool(ctx, p.project, toolName); err != nil {
		return fmt.Errorf("failed to persist tool approval: %w", err)
	}
	p.mu.Lock()
	p.tools[toolName] = true
	p.mu.Unlock()
	return nil
}

// ApprovePrefixes persists every prefix of one invocation into the
// project's approval set.
func (p *Policy) ApprovePrefixes(ctx context.Context, commandPrefixes []string) error {
	if err := p.store.AddApprovedPrefixes(ctx, p.project, commandPrefixes); err != nil {
		return fmt.Errorf("failed to persist prefix approvals: %w", err)
	}
	p.mu.Lock()
	for _, prefix := range commandPrefixes {
		p.prefixes[prefix] = true
	}
	p.mu.Unlock()
	return nil
}

// ApprovedTool reports whether the exact tool name is in the approved set.
func (p *Policy) ApprovedTool(toolName string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tools[toolName]
}
