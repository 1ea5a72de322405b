package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/marcinbunsch/overseer-sub001/domain"
)

// Client is an EventSource backed by an agent sidecar speaking SSE. The
// sidecar owns process spawning and tokenizing the vendor CLI's native
// stdout into protocol events; this client only consumes already-parsed
// events.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu           sync.Mutex
	sessions     map[string]string
	handlers     map[string][]EventHandler
	doneHandlers map[string][]DoneHandler
	attached     map[string]bool
}

// NewClient creates a new sidecar client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Minute, // long timeout for streaming turns
		},
		sessions:     make(map[string]string),
		handlers:     make(map[string][]EventHandler),
		doneHandlers: make(map[string][]DoneHandler),
		attached:     make(map[string]bool),
	}
}

// sendRequest is the body for /v1/send.
type sendRequest struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	SessionID      string `json:"session_id,omitempty"`
	SendOptions
}

// approvalRequest is the body for /v1/approval.
type approvalRequest struct {
	ConversationID string          `json:"conversation_id"`
	RequestID      string          `json:"request_id"`
	Approved       bool            `json:"approved"`
	RawInput       json.RawMessage `json:"raw_input,omitempty"`
	Reason         string          `json:"reason,omitempty"`
}

// SendMessage posts the message to the sidecar and streams the resulting
// SSE events to the registered handlers in a background goroutine. The
// call itself returns once the sidecar has accepted the turn.
func (c *Client) SendMessage(ctx context.Context, conversationID, content string, opts SendOptions) error {
	body, err := json.Marshal(sendRequest{
		ConversationID: conversationID,
		Content:        content,
		SessionID:      c.GetSessionID(conversationID),
		SendOptions:    opts,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return fmt.Errorf("sidecar returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	go c.consumeStream(conversationID, resp.Body)
	return nil
}

// consumeStream parses the SSE stream and dispatches each event, then
// fires the done handlers when the stream ends.
func (c *Client) consumeStream(conversationID string, body io.ReadCloser) {
	defer body.Close()
	defer c.fireDone(conversationID)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var data string

	flush := func() {
		if data == "" {
			return
		}
		var event domain.Event
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			log.Printf("ERROR: failed to parse agent event: %v", err)
		} else {
			c.dispatch(conversationID, event)
		}
		data = ""
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			flush()
			continue
		}
		if strings.HasPrefix(line, "data:") {
			chunk := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data != "" {
				data += "\n" + chunk
			} else {
				data = chunk
			}
		}
		// Ignore comments (lines starting with :) and other fields.
	}
	flush()

	if err := scanner.Err(); err != nil {
		log.Printf("ERROR: agent stream for %s ended: %v", conversationID, err)
	}
}

func (c *Client) dispatch(conversationID string, event domain.Event) {
	c.mu.Lock()
	handlers := append([]EventHandler(nil), c.handlers[conversationID]...)
	c.mu.Unlock()

	for _, handler := range handlers {
		handler(event)
	}
}

func (c *Client) fireDone(conversationID string) {
	c.mu.Lock()
	handlers := append([]DoneHandler(nil), c.doneHandlers[conversationID]...)
	c.mu.Unlock()

	for _, handler := range handlers {
		handler()
	}
}

// SendToolApproval answers a pending tool-use request.
func (c *Client) SendToolApproval(ctx context.Context, conversationID, requestID string, approved bool, rawInput json.RawMessage, reason string) error {
	body, err := json.Marshal(approvalRequest{
		ConversationID: conversationID,
		RequestID:      requestID,
		Approved:       approved,
		RawInput:       rawInput,
		Reason:         reason,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.post(ctx, "/v1/approval", body)
}

// InterruptTurn asks the sidecar to stop the current turn.
func (c *Client) InterruptTurn(ctx context.Context, conversationID string) error {
	body, err := json.Marshal(map[string]string{"conversation_id": conversationID})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.post(ctx, "/v1/interrupt", body)
}

func (c *Client) post(ctx context.Context, path string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call sidecar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sidecar returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	return nil
}

// OnEvent registers a handler for parsed events.
func (c *Client) OnEvent(conversationID string, handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[conversationID] = append(c.handlers[conversationID], handler)
}

// OnDone registers a handler for process exit.
func (c *Client) OnDone(conversationID string, handler DoneHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.doneHandlers[conversationID] = append(c.doneHandlers[conversationID], handler)
}

// SetSessionID records the vendor session id for subsequent sends.
func (c *Client) SetSessionID(conversationID, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[conversationID] = sessionID
}

// GetSessionID returns the recorded vendor session id, if any.
func (c *Client) GetSessionID(conversationID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[conversationID]
}

// AttachListeners marks the conversation attached. Idempotent; handler
// registration is what actually wires delivery, so repeated attaches from
// multiple observers are harmless.
func (c *Client) AttachListeners(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attached[conversationID] = true
}
