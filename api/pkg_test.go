package api

import (
	"testing"
	"time"

	"github.com/marcinbunsch/overseer-sub001/agent"
	"github.com/marcinbunsch/overseer-sub001/config"
	"github.com/marcinbunsch/overseer-sub001/conversation"
	"github.com/marcinbunsch/overseer-sub001/tests/helpers"
)

func newTestHandler(t *testing.T) (*Handler, *agent.MockSource) {
	t.Helper()

	st := helpers.NewTestSQLiteStore(t)
	source := agent.NewMockSource()
	registry := conversation.NewRegistry(conversation.RegistryParams{
		Source: source,
		Store:  st,
	})
	reconciler := conversation.NewReconciler(registry, st, time.Millisecond)

	cfg := &config.Config{}
	return NewHandler(registry, reconciler, st, cfg), source
}
