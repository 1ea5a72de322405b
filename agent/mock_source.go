package agent

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/marcinbunsch/overseer-sub001/domain"
)

// SentMessage records one SendMessage call on the mock.
type SentMessage struct {
	ConversationID string
	Content        string
	Opts           SendOptions
}

// SentApproval records one SendToolApproval call on the mock.
type SentApproval struct {
	ConversationID string
	RequestID      string
	Approved       bool
	RawInput       json.RawMessage
	Reason         string
}

// MockSource is an in-memory EventSource for tests. Events are delivered
// by calling Emit; outbound calls are recorded and can be made to fail.
type MockSource struct {
	mu           sync.Mutex
	sessions     map[string]string
	handlers     map[string][]EventHandler
	doneHandlers map[string][]DoneHandler

	Messages   []SentMessage
	Approvals  []SentApproval
	Interrupts []string

	// SendErr, when set, is returned by SendMessage and SendToolApproval.
	SendErr error

	// Sent is signalled once per successful SendMessage.
	Sent chan SentMessage
}

// NewMockSource creates a mock event source.
func NewMockSource() *MockSource {
	return &MockSource{
		sessions:     make(map[string]string),
		handlers:     make(map[string][]EventHandler),
		doneHandlers: make(map[string][]DoneHandler),
		Sent:         make(chan SentMessage, 16),
	}
}

func (m *MockSource) SendMessage(ctx context.Context, conversationID, content string, opts SendOptions) error {
	m.mu.Lock()
	err := m.SendErr
	if err == nil {
		m.Messages = append(m.Messages, SentMessage{ConversationID: conversationID, Content: content, Opts: opts})
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}
	select {
	case m.Sent <- SentMessage{ConversationID: conversationID, Content: content, Opts: opts}:
	default:
	}
	return nil
}

func (m *MockSource) SendToolApproval(ctx context.Context, conversationID, requestID string, approved bool, rawInput json.RawMessage, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	m.Approvals = append(m.Approvals, SentApproval{
		ConversationID: conversationID,
		RequestID:      requestID,
		Approved:       approved,
		RawInput:       rawInput,
		Reason:         reason,
	})
	return nil
}

func (m *MockSource) InterruptTurn(ctx context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Interrupts = append(m.Interrupts, conversationID)
	return nil
}

func (m *MockSource) OnEvent(conversationID string, handler EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[conversationID] = append(m.handlers[conversationID], handler)
}

func (m *MockSource) OnDone(conversationID string, handler DoneHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doneHandlers[conversationID] = append(m.doneHandlers[conversationID], handler)
}

func (m *MockSource) SetSessionID(conversationID, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[conversationID] = sessionID
}

func (m *MockSource) GetSessionID(conversationID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[conversationID]
}

func (m *MockSource) AttachListeners(conversationID string) {}

// Emit delivers an event to the registered handlers.
func (m *MockSource) Emit(conversationID string, event domain.Event) {
	m.mu.Lock()
	handlers := append([]EventHandler(nil), m.handlers[conversationID]...)
	m.mu.Unlock()
	for _, handler := range handlers {
		handler(event)
	}
}

// EmitDone fires the done handlers.
func (m *MockSource) EmitDone(conversationID string) {
	m.mu.Lock()
	handlers := append([]DoneHandler(nil), m.doneHandlers[conversationID]...)
	m.mu.Unlock()
	for _, handler := range handlers {
		handler()
	}
}

// SentMessages returns a copy of the recorded SendMessage calls.
func (m *MockSource) SentMessages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.Messages...)
}

// SentApprovals returns a copy of the recorded SendToolApproval calls.
func (m *MockSource) SentApprovals() []SentApproval {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentApproval(nil), m.Approvals...)
}

// SetSendErr sets the error returned by outbound calls.
func (m *MockSource) SetSendErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SendErr = err
}
