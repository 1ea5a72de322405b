package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcinbunsch/overseer-sub001/agent"
	"github.com/marcinbunsch/overseer-sub001/domain"
	"github.com/marcinbunsch/overseer-sub001/tests/helpers"
)

func TestReconcilerFoldsMissedEvents(t *testing.T) {
	st := helpers.NewTestSQLiteStore(t)
	source := agent.NewMockSource()
	registry := NewRegistry(RegistryParams{Source: source, Store: st})

	conv, err := registry.Open(context.Background(), "c1", "proj")
	require.NoError(t, err)

	// Events appended behind the fold's back, as a second writer would.
	for _, content := range []string{"Hello", " world"} {
		event := &domain.Event{Kind: domain.EventKindText, Content: content, MessageID: "a1"}
		_, err := st.AppendEvent(context.Background(), "c1", event)
		require.NoError(t, err)
	}

	r := NewReconciler(registry, st, 5*time.Millisecond)
	go r.Run()
	defer r.Shutdown()

	r.Trigger("c1")

	require.Eventually(t, func() bool {
		messages := conv.Messages()
		return len(messages) == 1 && messages[0].Content == "Hello world"
	}, time.Second, 10*time.Millisecond)
}

func TestReconcilerIdempotentAcrossRepeatedSignals(t *testing.T) {
	st := helpers.NewTestSQLiteStore(t)
	source := agent.NewMockSource()
	registry := NewRegistry(RegistryParams{Source: source, Store: st})

	conv, err := registry.Open(context.Background(), "c1", "proj")
	require.NoError(t, err)

	event := &domain.Event{Kind: domain.EventKindText, Content: "Once", MessageID: "a1"}
	_, err = st.AppendEvent(context.Background(), "c1", event)
	require.NoError(t, err)

	r := NewReconciler(registry, st, 5*time.Millisecond)
	go r.Run()
	defer r.Shutdown()

	for i := 0; i < 5; i++ {
		r.Trigger("c1")
	}

	require.Eventually(t, func() bool {
		return len(conv.Messages()) == 1
	}, time.Second, 10*time.Millisecond)

	// Another burst after catch-up must not duplicate anything.
	r.Trigger("c1")
	r.Trigger("c1")
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, conv.Messages(), 1)
}

func TestReconcilerIgnoresUnknownConversation(t *testing.T) {
	st := helpers.NewTestSQLiteStore(t)
	registry := NewRegistry(RegistryParams{Source: agent.NewMockSource(), Store: st})

	r := NewReconciler(registry, st, 5*time.Millisecond)
	go r.Run()
	defer r.Shutdown()

	r.Trigger("nobody-home")
	time.Sleep(30 * time.Millisecond)
}

func TestRegistryReplaysDurableLogOnOpen(t *testing.T) {
	st := helpers.NewTestSQLiteStore(t)
	source := agent.NewMockSource()

	ctx := context.Background()
	for _, event := range []*domain.Event{
		{Kind: domain.EventKindSessionID, SessionID: "sess-1"},
		{Kind: domain.EventKindText, Content: "Restored", MessageID: "a1"},
		{Kind: domain.EventKindTurnComplete},
	} {
		_, err := st.AppendEvent(ctx, "c1", event)
		require.NoError(t, err)
	}

	registry := NewRegistry(RegistryParams{Source: source, Store: st})
	conv, err := registry.Open(ctx, "c1", "proj")
	require.NoError(t, err)

	messages := conv.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "Restored", messages[0].Content)
	assert.Equal(t, "sess-1", source.GetSessionID("c1"))

	// Reopening returns the same instance, not a second replay.
	again, err := registry.Open(ctx, "c1", "proj")
	require.NoError(t, err)
	assert.Same(t, conv, again)
}
