// Package overseer parses and routes action blocks that the agent embeds
// in its text output.
package overseer

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
)

// Action names recognized by the extractor. The set is closed: anything
// else inside an overseer fence is treated as ordinary prose.
const (
	ActionRenameChat  = "rename_chat"
	ActionOpenPR      = "open_pr"
	ActionMergeBranch = "merge_branch"
)

// Action is one side-effect request extracted from assistant text.
type Action struct {
	Name   string
	Params Params
}

// Params holds the action parameters.
type Params struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	Into  string `json:"into,omitempty"`
}

// Dispatcher executes extracted actions. Execution results surface as
// transient notifications, never as conversation content.
type Dispatcher interface {
	RenameChat(ctx context.Context, conversationID, title string) error
	OpenPR(ctx context.Context, conversationID, title, body string) error
	MergeBranch(ctx context.Context, conversationID, into string) error
}

// block is the JSON body of an overseer fence.
type block struct {
	Action string `json:"action"`
	Params Params `json:"params"`
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// Extract removes recognized overseer blocks from content and returns the
// cleaned text plus the extracted actions. Blocks that fail to parse, name
// an unknown action, or are missing a closing fence are left untouched:
// destroying agent prose that merely resembles the format is worse than an
// occasional stray fence.
func Extract(content string) (string, []Action) {
	if !strings.Contains(content, "```overseer") {
		return content, nil
	}

	lines := strings.Split(content, "\n")
	var out []string
	var actions []Action

	for i := 0; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != "```overseer" {
			out = append(out, lines[i])
			continue
		}

		// Collect the fence body up to the closing ```.
		end := -1
		for j := i + 1; j < len(lines); j++ {
			if strings.TrimSpace(lines[j]) == "```" {
				end = j
				break
			}
		}
		if end == -1 {
			// Unterminated fence; possibly still streaming.
			out = append(out, lines[i])
			continue
		}

		body := strings.Join(lines[i+1:end], "\n")
		action, ok := parseBlock(body)
		if !ok {
			out = append(out, lines[i:end+1]...)
			i = end
			continue
		}

		actions = append(actions, action)
		i = end
	}

	if len(actions) == 0 {
		return content, nil
	}

	cleaned := strings.Join(out, "\n")
	cleaned = blankRuns.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned), actions
}

// parseBlock decodes a fence body into an action, rejecting unknown
// actions and bodies that are not a single JSON object.
func parseBlock(body string) (Action, bool) {
	decoder := json.NewDecoder(strings.NewReader(body))
	var b block
	if err := decoder.Decode(&b); err != nil {
		return Action{}, false
	}
	// Trailing content after the object means this is not exactly one
	// JSON object.
	if decoder.More() {
		return Action{}, false
	}

	switch b.Action {
	case ActionRenameChat, ActionOpenPR, ActionMergeBranch:
		return Action{Name: b.Action, Params: b.Params}, true
	default:
		return Action{}, false
	}
}

// Dispatch routes an action to the dispatcher.
func Dispatch(ctx context.Context, d Dispatcher, conversationID string, action Action) error {
	switch action.Name {
	case ActionRenameChat:
		return d.RenameChat(ctx, conversationID, action.Params.Title)
	case ActionOpenPR:
		return d.OpenPR(ctx, conversationID, action.Params.Title, action.Params.Body)
	case ActionMergeBranch:
		return d.MergeBranch(ctx, conversationID, action.Params.Into)
	}
	return nil
}
