package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcinbunsch/overseer-sub001/domain"
)

func TestSendMessageStreamsEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/send", r.URL.Path)

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "c1", req["conversation_id"])
		assert.Equal(t, "hello", req["content"])

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"kind\":\"text\",\"content\":\"Hi\"}\n\n")
		fmt.Fprint(w, ": heartbeat\n\n")
		fmt.Fprint(w, "data: {\"kind\":\"turnComplete\"}\n\n")
	}))
	defer server.Close()

	client := NewClient(server.URL)

	var mu sync.Mutex
	var kinds []domain.EventKind
	done := make(chan struct{})

	client.OnEvent("c1", func(event domain.Event) {
		mu.Lock()
		kinds = append(kinds, event.Kind)
		mu.Unlock()
	})
	client.OnDone("c1", func() { close(done) })

	err := client.SendMessage(context.Background(), "c1", "hello", SendOptions{})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream never completed")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []domain.EventKind{domain.EventKindText, domain.EventKindTurnComplete}, kinds)
}

func TestSendMessageRejectsNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	err := client.SendMessage(context.Background(), "c1", "hello", SendOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestSendMessageForwardsSessionID(t *testing.T) {
	var gotSession string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		json.NewDecoder(r.Body).Decode(&req)
		gotSession, _ = req["session_id"].(string)
		w.Header().Set("Content-Type", "text/event-stream")
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.SetSessionID("c1", "sess-42")

	require.NoError(t, client.SendMessage(context.Background(), "c1", "hello", SendOptions{}))
	assert.Equal(t, "sess-42", gotSession)
}

func TestSendToolApproval(t *testing.T) {
	var got approvalRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/approval", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	err := client.SendToolApproval(context.Background(), "c1", "r1", true, json.RawMessage(`{"command":"ls"}`), "")
	require.NoError(t, err)

	assert.Equal(t, "c1", got.ConversationID)
	assert.Equal(t, "r1", got.RequestID)
	assert.True(t, got.Approved)
}

func TestInterruptTurn(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
	}))
	defer server.Close()

	client := NewClient(server.URL)
	require.NoError(t, client.InterruptTurn(context.Background(), "c1"))
	assert.Equal(t, "/v1/interrupt", path)
}
