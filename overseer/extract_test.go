package overseer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSingleBlock(t *testing.T) {
	input := "A\n\n```overseer\n{\"action\":\"rename_chat\",\"params\":{\"title\":\"T\"}}\n```\n\nB"

	cleaned, actions := Extract(input)

	assert.Equal(t, "A\n\nB", cleaned)
	assert.Len(t, actions, 1)
	assert.Equal(t, ActionRenameChat, actions[0].Name)
	assert.Equal(t, "T", actions[0].Params.Title)
}

func TestExtractMultipleBlocks(t *testing.T) {
	input := "intro\n```overseer\n{\"action\":\"open_pr\",\"params\":{\"title\":\"Fix\",\"body\":\"details\"}}\n```\nmiddle\n```overseer\n{\"action\":\"merge_branch\",\"params\":{\"into\":\"main\"}}\n```\noutro"

	cleaned, actions := Extract(input)

	assert.Equal(t, "intro\nmiddle\noutro", cleaned)
	assert.Len(t, actions, 2)
	assert.Equal(t, ActionOpenPR, actions[0].Name)
	assert.Equal(t, "Fix", actions[0].Params.Title)
	assert.Equal(t, "details", actions[0].Params.Body)
	assert.Equal(t, ActionMergeBranch, actions[1].Name)
	assert.Equal(t, "main", actions[1].Params.Into)
}

func TestExtractUnknownActionLeftUntouched(t *testing.T) {
	input := "A\n```overseer\n{\"action\":\"self_destruct\",\"params\":{}}\n```\nB"

	cleaned, actions := Extract(input)

	assert.Equal(t, input, cleaned)
	assert.Empty(t, actions)
}

func TestExtractInvalidJSONLeftUntouched(t *testing.T) {
	input := "A\n```overseer\nnot json at all\n```\nB"

	cleaned, actions := Extract(input)

	assert.Equal(t, input, cleaned)
	assert.Empty(t, actions)
}

func TestExtractUnterminatedFenceLeftUntouched(t *testing.T) {
	input := "A\n```overseer\n{\"action\":\"rename_chat\""

	cleaned, actions := Extract(input)

	assert.Equal(t, input, cleaned)
	assert.Empty(t, actions)
}

func TestExtractTrailingContentAfterObjectRejected(t *testing.T) {
	input := "```overseer\n{\"action\":\"rename_chat\",\"params\":{\"title\":\"T\"}}\n{\"second\":true}\n```"

	cleaned, actions := Extract(input)

	assert.Equal(t, input, cleaned)
	assert.Empty(t, actions)
}

func TestExtractCollapsesBlankRuns(t *testing.T) {
	input := "A\n\n```overseer\n{\"action\":\"rename_chat\",\"params\":{\"title\":\"T\"}}\n```\n\n\n\nB"

	cleaned, actions := Extract(input)

	assert.Equal(t, "A\n\nB", cleaned)
	assert.Len(t, actions, 1)
}

func TestExtractNoFence(t *testing.T) {
	cleaned, actions := Extract("plain prose with ``` a fence-ish thing")

	assert.Equal(t, "plain prose with ``` a fence-ish thing", cleaned)
	assert.Empty(t, actions)
}

func TestExtractBlockOnly(t *testing.T) {
	input := "```overseer\n{\"action\":\"merge_branch\",\"params\":{\"into\":\"develop\"}}\n```"

	cleaned, actions := Extract(input)

	assert.Equal(t, "", cleaned)
	assert.Len(t, actions, 1)
	assert.Equal(t, "develop", actions[0].Params.Into)
}
