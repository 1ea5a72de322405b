package overseer

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/marcinbunsch/overseer-sub001/domain"
)

// MetaStore is the subset of the store needed to rename conversations.
type MetaStore interface {
	GetMeta(ctx context.Context, conversationID string) (*domain.ConversationMeta, error)
	SaveMeta(ctx context.Context, meta *domain.ConversationMeta) error
}

// CommandDispatcher executes actions against the conversation's workspace.
// rename_chat touches only stored metadata; open_pr and merge_branch shell
// out to gh and git in the workspace directory.
type CommandDispatcher struct {
	meta MetaStore
}

// NewCommandDispatcher creates a dispatcher backed by the meta store.
func NewCommandDispatcher(meta MetaStore) *CommandDispatcher {
	return &CommandDispatcher{meta: meta}
}

// RenameChat updates the conversation's label.
func (d *CommandDispatcher) RenameChat(ctx context.Context, conversationID, title string) error {
	meta, err := d.meta.GetMeta(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to load meta: %w", err)
	}
	if meta == nil {
		return fmt.Errorf("unknown conversation: %s", conversationID)
	}
	meta.Label = title
	if err := d.meta.SaveMeta(ctx, meta); err != nil {
		return fmt.Errorf("failed to save meta: %w", err)
	}
	return nil
}

// OpenPR opens a pull request from the workspace's current branch.
func (d *CommandDispatcher) OpenPR(ctx context.Context, conversationID, title, body string) error {
	workspace, err := d.workspace(ctx, conversationID)
	if err != nil {
		return err
	}
	return d.run(ctx, workspace, "gh", "pr", "create", "--title", title, "--body", body)
}

// MergeBranch merges the workspace's current branch into the target branch.
func (d *CommandDispatcher) MergeBranch(ctx context.Context, conversationID, into string) error {
	workspace, err := d.workspace(ctx, conversationID)
	if err != nil {
		return err
	}

	out, err := exec.CommandContext(ctx, "git", "-C", workspace, "rev-parse", "--abbrev-ref", "HEAD").Output()
	if err != nil {
		return fmt.Errorf("failed to resolve current branch: %w", err)
	}
	branch := strings.TrimSpace(string(out))
	if branch == into {
		return fmt.Errorf("already on branch %s", into)
	}

	if err := d.run(ctx, workspace, "git", "checkout", into); err != nil {
		return err
	}
	return d.run(ctx, workspace, "git", "merge", "--no-ff", branch)
}

func (d *CommandDispatcher) workspace(ctx context.Context, conversationID string) (string, error) {
	meta, err := d.meta.GetMeta(ctx, conversationID)
	if err != nil {
		return "", fmt.Errorf("failed to load meta: %w", err)
	}
	if meta == nil || meta.Workspace == "" {
		return "", fmt.Errorf("no workspace for conversation %s", conversationID)
	}
	return meta.Workspace, nil
}

func (d *CommandDispatcher) run(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}
