// Package conversation implements the per-conversation event-sourced
// synchronization engine: the fold from a stream of possibly-duplicated,
// possibly-reordered events into conversation state, and the policies
// layered on it.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marcinbunsch/overseer-sub001/agent"
	"github.com/marcinbunsch/overseer-sub001/approval"
	"github.com/marcinbunsch/overseer-sub001/domain"
	"github.com/marcinbunsch/overseer-sub001/overseer"
	"github.com/marcinbunsch/overseer-sub001/store"
)

// Tool-use decision verbs accepted by RespondToolUse.
const (
	DecisionApprove            = "approve"
	DecisionApproveAllTool     = "approve_all_tool"
	DecisionApproveAllCommands = "approve_all_commands"
	DecisionDeny               = "deny"
)

var (
	ErrNoPendingToolUse  = errors.New("no pending tool use with that request id")
	ErrNoPendingQuestion = errors.New("no pending question with that request id")
	ErrNoPendingPlan     = errors.New("no pending plan approval")
)

// How many trailing assistant messages the turn-complete rescan covers.
// Action blocks can become syntactically complete only once the last
// delta lands, so the rescan picks up what the per-message extraction
// missed.
const rescanWindow = 5

// Broadcaster fans conversation output out to connected observers.
type Broadcaster interface {
	// BroadcastEvent delivers a seq-tagged event frame.
	BroadcastEvent(conversationID string, event domain.Event)
	// BroadcastState delivers a state snapshot after operator-driven
	// mutations that produce no log event of their own.
	BroadcastState(conversationID string, view domain.ConversationView)
	// Notify delivers a transient notification (never conversation
	// content).
	Notify(conversationID string, text string)
}

// Params wires a Conversation's collaborators.
type Params struct {
	ConversationID string
	Meta           *domain.ConversationMeta
	Source         agent.EventSource
	Store          store.Store
	Policy         *approval.Policy
	Dispatcher     overseer.Dispatcher
	Broadcaster    Broadcaster

	// FilesChanged is the debounced "files may have changed" sink
	// signalled after each completed turn.
	FilesChanged func(conversationID string)

	// SettleDelay is the pause before a combined follow-up is dispatched
	// after turn completion.
	SettleDelay time.Duration

	// DebounceInterval batches FilesChanged triggers.
	DebounceInterval time.Duration
}

// Conversation folds events into conversation state. All mutation runs
// under one mutex: "concurrent" delivery means interleaved asynchronous
// callbacks, never parallel writers to the same state.
type Conversation struct {
	id          string
	meta        *domain.ConversationMeta
	source      agent.EventSource
	store       store.Store
	policy      *approval.Policy
	dispatcher  overseer.Dispatcher
	broadcaster Broadcaster
	settleDelay time.Duration

	tracker      *SequenceTracker
	queue        *FollowUpQueue
	filesChanged *Debouncer

	mu               sync.Mutex
	messages         []*domain.Message
	pendingToolUses  []*domain.PendingToolUse
	pendingQuestions []*domain.PendingQuestion
	pendingPlan      *domain.PendingPlanApproval
	lastRejectedPlan string
	sessionID        string
	isSending        bool
	done             bool
	focused          bool
}

// New creates a conversation from its wiring. The caller is responsible
// for replaying the durable log (via Apply) and attaching source
// listeners.
func New(params Params) *Conversation {
	c := &Conversation{
		id:          params.ConversationID,
		meta:        params.Meta,
		source:      params.Source,
		store:       params.Store,
		policy:      params.Policy,
		dispatcher:  params.Dispatcher,
		broadcaster: params.Broadcaster,
		settleDelay: params.SettleDelay,
		tracker:     NewSequenceTracker(),
		queue:       NewFollowUpQueue(),
	}
	if params.Meta != nil {
		c.done = params.Meta.Done
		c.sessionID = params.Meta.SessionID
	}
	if params.FilesChanged != nil {
		interval := params.DebounceInterval
		if interval <= 0 {
			interval = 250 * time.Millisecond
		}
		id := params.ConversationID
		sink := params.FilesChanged
		c.filesChanged = NewDebouncer(interval, func() { sink(id) })
	}
	return c
}

// ID returns the conversation id.
func (c *Conversation) ID() string {
	return c.id
}

// LastSeen returns the highest applied sequence number.
func (c *Conversation) LastSeen() int64 {
	return c.tracker.LastSeen()
}

// Ingest is the live pipeline for events arriving from the agent source:
// policy pre-gate, durable append (which assigns the seq), observer
// fan-out, then the fold. Catch-up replay skips straight to Apply; the
// fold itself never branches on transport origin.
func (c *Conversation) Ingest(ctx context.Context, event domain.Event) {
	if event.Ts == 0 {
		event.Ts = time.Now().UnixMilli()
	}

	// Already-authorized tool uses are answered before the fold sees
	// them, so no pending item ever appears for them.
	if event.Kind == domain.EventKindToolApproval && !event.Processed && !event.AutoApproved && c.policy != nil {
		if c.policy.Authorizes(ctx, event.ToolName, event.CommandPrefixes) {
			if err := c.source.SendToolApproval(ctx, c.id, event.RequestID, true, event.RawInput, ""); err != nil {
				log.Printf("ERROR: auto-approval for %s failed, leaving pending: %v", event.RequestID, err)
			} else {
				event.AutoApproved = true
			}
		}
	}

	if c.store != nil {
		if _, err := c.store.AppendEvent(ctx, c.id, &event); err != nil {
			// Fold it anyway, without a seq: the local view stays live and
			// the dedup heuristics absorb a later re-append.
			log.Printf("ERROR: failed to append event for %s: %v", c.id, err)
			event.Seq = nil
		}
	}

	if c.broadcaster != nil {
		c.broadcaster.BroadcastEvent(c.id, event)
	}

	c.Apply(event, true)
}

// Apply runs one event through the dedup gate and the fold. live
// distinguishes freshly-produced events from initial-load/catch-up
// replay; the only transition that cares is userMessage's isSending
// promotion.
func (c *Conversation) Apply(event domain.Event, live bool) {
	if event.Seq != nil && !c.tracker.Observe(*event.Seq) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.fold(event, live)
}

func (c *Conversation) fold(event domain.Event, live bool) {
	switch event.Kind {
	case domain.EventKindSessionID:
		c.sessionID = event.SessionID
		c.source.SetSessionID(c.id, event.SessionID)
		c.saveMetaLocked()

	case domain.EventKindMessage:
		cleaned, actions := overseer.Extract(event.Content)
		c.runActions(actions)
		if cleaned != "" {
			c.appendMessageLocked(&domain.Message{
				MessageID:       event.MessageID,
				Role:            domain.RoleAssistant,
				Content:         cleaned,
				ToolName:        event.ToolName,
				LinesAdded:      event.LinesAdded,
				LinesRemoved:    event.LinesRemoved,
				ToolUseID:       event.ToolUseID,
				ParentToolUseID: event.ParentToolUseID,
			})
		}

	case domain.EventKindText:
		last := c.lastMessageLocked()
		if last != nil && last.Role == domain.RoleAssistant && last.ToolName == "" && !last.IsBashOutput && !last.IsInfo {
			last.Content += event.Content
		} else {
			c.appendMessageLocked(&domain.Message{
				MessageID: event.MessageID,
				Role:      domain.RoleAssistant,
				Content:   event.Content,
			})
		}

	case domain.EventKindBashOutput:
		// Separate lane: bash output only ever appends to a message
		// already flagged as bash output, so it never merges with
		// narrative text.
		last := c.lastMessageLocked()
		if last != nil && last.IsBashOutput {
			last.Content += event.Content
		} else {
			c.appendMessageLocked(&domain.Message{
				MessageID:    event.MessageID,
				Role:         domain.RoleAssistant,
				Content:      event.Content,
				IsBashOutput: true,
			})
		}

	case domain.EventKindUserMessage:
		c.foldUserMessage(event, live)

	case domain.EventKindToolApproval:
		if event.Processed || event.AutoApproved {
			return
		}
		if c.findToolUseLocked(event.RequestID) != nil {
			return
		}
		c.pendingToolUses = append(c.pendingToolUses, &domain.PendingToolUse{
			RequestID:       event.RequestID,
			ToolName:        event.ToolName,
			DisplayInput:    event.DisplayInput,
			RawInput:        event.RawInput,
			CommandPrefixes: event.CommandPrefixes,
		})

	case domain.EventKindQuestion:
		if event.Processed || event.AutoApproved {
			return
		}
		if c.findQuestionLocked(event.RequestID) != nil {
			return
		}
		c.pendingQuestions = append(c.pendingQuestions, &domain.PendingQuestion{
			RequestID: event.RequestID,
			Questions: event.Questions,
			RawInput:  event.RawInput,
		})

	case domain.EventKindPlanApproval:
		// Mid-revision the still-pending plan becomes the previous one;
		// after a rejection the last rejected plan does.
		previous := c.lastRejectedPlan
		if c.pendingPlan != nil {
			previous = c.pendingPlan.Plan
		}
		c.pendingPlan = &domain.PendingPlanApproval{
			RequestID:    event.RequestID,
			Plan:         event.Plan,
			PreviousPlan: previous,
		}

	case domain.EventKindTurnComplete:
		c.foldTurnComplete()

	case domain.EventKindDone:
		// Process exit is handled by the source's done callback
		// (HandleProcessExit); the persisted done flag makes replaying
		// this event unnecessary.
	}
}

func (c *Conversation) foldUserMessage(event domain.Event, live bool) {
	// The init-prompt-plus-user-text combination actually sent to the
	// agent must not double as a second visible bubble.
	if event.Internal {
		return
	}
	if event.MessageID != "" {
		for _, m := range c.messages {
			if m.MessageID == event.MessageID {
				return
			}
		}
	}
	// A local optimistic insert races its own persisted echo; identical
	// content among the last few messages means this is the echo.
	for i := len(c.messages) - 1; i >= 0 && i >= len(c.messages)-3; i-- {
		if c.messages[i].Role == domain.RoleUser && c.messages[i].Content == event.Content {
			return
		}
	}

	idle := c.statusLocked() == domain.StatusIdle
	c.appendMessageLocked(&domain.Message{
		MessageID: event.MessageID,
		Role:      domain.RoleUser,
		Content:   event.Content,
	})
	// Another client started a turn.
	if live && idle {
		c.isSending = true
	}
}

func (c *Conversation) foldTurnComplete() {
	c.isSending = false
	if !c.focused {
		c.done = true
		c.saveMetaLocked()
	}

	c.rescanForActionsLocked()

	if c.filesChanged != nil {
		c.filesChanged.Trigger()
	}

	// The queue is cleared here, immediately; the combined send happens
	// after a short settle delay.
	if combined := c.queue.Flush(); combined != "" {
		go c.dispatchFollowUp(combined)
	}
}

// rescanForActionsLocked re-extracts action blocks from the trailing
// assistant messages. Blocks split across streaming deltas only become
// syntactically complete once the turn ends.
func (c *Conversation) rescanForActionsLocked() {
	seen := 0
	for i := len(c.messages) - 1; i >= 0 && seen < rescanWindow; i-- {
		m := c.messages[i]
		if m.Role != domain.RoleAssistant {
			continue
		}
		seen++
		if m.ToolName != "" || m.IsBashOutput {
			continue
		}
		cleaned, actions := overseer.Extract(m.Content)
		if len(actions) == 0 {
			continue
		}
		m.Content = cleaned
		c.runActions(actions)
	}
}

// runActions routes extracted actions to the dispatcher. Results surface
// only as transient notifications.
func (c *Conversation) runActions(actions []overseer.Action) {
	if c.dispatcher == nil || len(actions) == 0 {
		return
	}
	for _, action := range actions {
		action := action
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := overseer.Dispatch(ctx, c.dispatcher, c.id, action); err != nil {
				log.Printf("ERROR: action %s failed for %s: %v", action.Name, c.id, err)
				c.notify(fmt.Sprintf("Action %s failed: %v", action.Name, err))
				return
			}
			c.notify(fmt.Sprintf("Action %s completed", action.Name))
		}()
	}
}

func (c *Conversation) notify(text string) {
	if c.broadcaster != nil {
		c.broadcaster.Notify(c.id, text)
	}
}

func (c *Conversation) dispatchFollowUp(combined string) {
	time.Sleep(c.settleDelay)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := c.Send(ctx, combined, agent.SendOptions{}); err != nil {
		// Preserved for a future retry, never silently dropped.
		log.Printf("ERROR: follow-up dispatch for %s failed, re-queueing: %v", c.id, err)
		c.queue.Enqueue(combined)
	}
}

// HandleProcessExit is the done callback from the agent source. It runs
// outside the fold: clears the sending flag, records done respecting
// focus, and drops any queued follow-ups since no receiver remains.
func (c *Conversation) HandleProcessExit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isSending = false
	if !c.focused {
		c.done = true
		c.saveMetaLocked()
	}
	c.queue.Clear()
	c.broadcastStateLocked()
}

// Send dispatches a message to the agent, or queues it when a turn is in
// flight. Returns whether the message was queued.
func (c *Conversation) Send(ctx context.Context, content string, opts agent.SendOptions) (bool, error) {
	c.mu.Lock()
	if c.isSending {
		c.queue.Enqueue(content)
		c.mu.Unlock()
		return true, nil
	}
	c.mu.Unlock()

	err := c.source.SendMessage(ctx, c.id, content, opts)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		// Surfaced in the conversation itself; follow-ups stay queued.
		c.appendMessageLocked(&domain.Message{
			Role:    domain.RoleAssistant,
			Content: fmt.Sprintf("Failed to send message: %v", err),
			IsInfo:  true,
		})
		c.isSending = false
		c.broadcastStateLocked()
		return false, fmt.Errorf("failed to send message: %w", err)
	}

	c.isSending = true
	c.done = false
	// Optimistic insert; the persisted echo is deduplicated by the
	// userMessage fold rule.
	c.appendMessageLocked(&domain.Message{
		MessageID: "msg_" + uuid.New().String()[:8],
		Role:      domain.RoleUser,
		Content:   content,
	})
	c.broadcastStateLocked()
	return false, nil
}

// RespondToolUse answers a pending tool-use request. The transport call
// completes before the pending item is removed: on failure the item
// stays pending and the error is surfaced to the caller.
func (c *Conversation) RespondToolUse(ctx context.Context, requestID, decision, reason string) error {
	c.mu.Lock()
	pending := c.findToolUseLocked(requestID)
	if pending == nil {
		c.mu.Unlock()
		return ErrNoPendingToolUse
	}
	request := *pending
	c.mu.Unlock()

	switch decision {
	case DecisionApprove:
		if err := c.source.SendToolApproval(ctx, c.id, requestID, true, request.RawInput, ""); err != nil {
			return fmt.Errorf("failed to send approval: %w", err)
		}
		c.removeToolUse(requestID)

	case DecisionApproveAllTool:
		if err := c.policy.ApproveTool(ctx, request.ToolName); err != nil {
			return err
		}
		if err := c.source.SendToolApproval(ctx, c.id, requestID, true, request.RawInput, ""); err != nil {
			return fmt.Errorf("failed to send approval: %w", err)
		}
		c.removeToolUse(requestID)
		c.approveCovered(ctx, func(p *domain.PendingToolUse) bool {
			return p.ToolName == request.ToolName
		})

	case DecisionApproveAllCommands:
		if err := c.policy.ApprovePrefixes(ctx, request.CommandPrefixes); err != nil {
			return err
		}
		if err := c.source.SendToolApproval(ctx, c.id, requestID, true, request.RawInput, ""); err != nil {
			return fmt.Errorf("failed to send approval: %w", err)
		}
		c.removeToolUse(requestID)
		c.approveCovered(ctx, func(p *domain.PendingToolUse) bool {
			return len(p.CommandPrefixes) > 0 && c.policy.Covers(p.CommandPrefixes)
		})

	case DecisionDeny:
		if err := c.source.SendToolApproval(ctx, c.id, requestID, false, request.RawInput, reason); err != nil {
			return fmt.Errorf("failed to send denial: %w", err)
		}
		c.mu.Lock()
		c.removeToolUseLocked(requestID)
		if reason != "" {
			c.appendMessageLocked(&domain.Message{
				MessageID: "msg_" + uuid.New().String()[:8],
				Role:      domain.RoleUser,
				Content:   reason,
			})
		}
		c.mu.Unlock()

	default:
		return fmt.Errorf("unknown decision: %s", decision)
	}

	c.broadcastState()
	return nil
}

// approveCovered auto-approves every other pending tool use matched by
// the predicate. A transport failure leaves that item pending.
func (c *Conversation) approveCovered(ctx context.Context, matches func(*domain.PendingToolUse) bool) {
	c.mu.Lock()
	var covered []domain.PendingToolUse
	for _, p := range c.pendingToolUses {
		if matches(p) {
			covered = append(covered, *p)
		}
	}
	c.mu.Unlock()

	for _, p := range covered {
		if err := c.source.SendToolApproval(ctx, c.id, p.RequestID, true, p.RawInput, ""); err != nil {
			log.Printf("ERROR: auto-approval for %s failed, leaving pending: %v", p.RequestID, err)
			continue
		}
		c.removeToolUse(p.RequestID)
	}
}

// AnswerQuestion answers a pending question. Answers travel back through
// the approval channel with the original raw input.
func (c *Conversation) AnswerQuestion(ctx context.Context, requestID string, answers []string) error {
	c.mu.Lock()
	pending := c.findQuestionLocked(requestID)
	if pending == nil {
		c.mu.Unlock()
		return ErrNoPendingQuestion
	}
	request := *pending
	c.mu.Unlock()

	if err := c.source.SendToolApproval(ctx, c.id, requestID, true, request.RawInput, strings.Join(answers, "\n")); err != nil {
		return fmt.Errorf("failed to send answer: %w", err)
	}

	c.mu.Lock()
	for i, p := range c.pendingQuestions {
		if p.RequestID == requestID {
			c.pendingQuestions = append(c.pendingQuestions[:i], c.pendingQuestions[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	c.broadcastState()
	return nil
}

// RespondPlan approves or rejects the pending plan.
func (c *Conversation) RespondPlan(ctx context.Context, approved bool, reason string) error {
	c.mu.Lock()
	if c.pendingPlan == nil {
		c.mu.Unlock()
		return ErrNoPendingPlan
	}
	pending := *c.pendingPlan
	c.mu.Unlock()

	rawInput, _ := json.Marshal(map[string]string{"plan": pending.Plan})
	if err := c.source.SendToolApproval(ctx, c.id, pending.RequestID, approved, rawInput, reason); err != nil {
		return fmt.Errorf("failed to send plan decision: %w", err)
	}

	c.mu.Lock()
	if !approved {
		// Kept for diffing against the agent's revision.
		c.lastRejectedPlan = pending.Plan
		if reason != "" {
			c.appendMessageLocked(&domain.Message{
				MessageID: "msg_" + uuid.New().String()[:8],
				Role:      domain.RoleUser,
				Content:   reason,
			})
		}
	}
	c.pendingPlan = nil
	c.mu.Unlock()
	c.broadcastState()
	return nil
}

// Interrupt requests the current turn stop. Local state updates
// immediately without awaiting the subprocess's actual termination, and
// queued follow-ups are discarded.
func (c *Conversation) Interrupt(ctx context.Context) error {
	err := c.source.InterruptTurn(ctx, c.id)

	c.mu.Lock()
	c.isSending = false
	c.queue.Clear()
	c.mu.Unlock()
	c.broadcastState()

	if err != nil {
		return fmt.Errorf("failed to interrupt: %w", err)
	}
	return nil
}

// SetFocused marks whether the operator is actively viewing this
// conversation. Focusing clears the passive done notification.
func (c *Conversation) SetFocused(focused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.focused = focused
	if focused && c.done {
		c.done = false
		c.saveMetaLocked()
	}
}

// Status derives the conversation status. It is a pure function of the
// pending collections and flags, recomputed on every read.
func (c *Conversation) Status() domain.ConversationStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Conversation) statusLocked() domain.ConversationStatus {
	switch {
	case len(c.pendingToolUses) > 0 || len(c.pendingQuestions) > 0 || c.pendingPlan != nil:
		return domain.StatusNeedsAttention
	case c.isSending:
		return domain.StatusRunning
	case c.done:
		return domain.StatusDone
	default:
		return domain.StatusIdle
	}
}

// Messages returns a copy of the message list.
func (c *Conversation) Messages() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = *m
	}
	return out
}

// View returns a snapshot of status and pending work.
func (c *Conversation) View() domain.ConversationView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Conversation) viewLocked() domain.ConversationView {
	view := domain.ConversationView{
		ConversationID: c.id,
		Status:         c.statusLocked(),
		SessionID:      c.sessionID,
		FollowUps:      c.queue.Items(),
	}
	if c.meta != nil {
		view.Label = c.meta.Label
	}
	view.PendingToolUses = append(view.PendingToolUses, c.pendingToolUses...)
	view.PendingQuestions = append(view.PendingQuestions, c.pendingQuestions...)
	if c.pendingPlan != nil {
		plan := *c.pendingPlan
		view.PendingPlanApproval = &plan
	}
	return view
}

// FollowUps returns the queued follow-up messages.
func (c *Conversation) FollowUps() []string {
	return c.queue.Items()
}

// RemoveFollowUp removes a queued follow-up by index.
func (c *Conversation) RemoveFollowUp(index int) error {
	if err := c.queue.RemoveAt(index); err != nil {
		return err
	}
	c.broadcastState()
	return nil
}

// ClearFollowUps drops all queued follow-ups.
func (c *Conversation) ClearFollowUps() {
	c.queue.Clear()
	c.broadcastState()
}

func (c *Conversation) appendMessageLocked(message *domain.Message) {
	if message.MessageID == "" {
		message.MessageID = "msg_" + uuid.New().String()[:8]
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	c.messages = append(c.messages, message)
}

func (c *Conversation) lastMessageLocked() *domain.Message {
	if len(c.messages) == 0 {
		return nil
	}
	return c.messages[len(c.messages)-1]
}

func (c *Conversation) findToolUseLocked(requestID string) *domain.PendingToolUse {
	for _, p := range c.pendingToolUses {
		if p.RequestID == requestID {
			return p
		}
	}
	return nil
}

func (c *Conversation) findQuestionLocked(requestID string) *domain.PendingQuestion {
	for _, p := range c.pendingQuestions {
		if p.RequestID == requestID {
			return p
		}
	}
	return nil
}

func (c *Conversation) removeToolUse(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeToolUseLocked(requestID)
}

func (c *Conversation) removeToolUseLocked(requestID string) {
	for i, p := range c.pendingToolUses {
		if p.RequestID == requestID {
			c.pendingToolUses = append(c.pendingToolUses[:i], c.pendingToolUses[i+1:]...)
			return
		}
	}
}

// saveMetaLocked persists metadata updates (session id, done flag).
// Failures are logged; the in-memory state stays authoritative.
func (c *Conversation) saveMetaLocked() {
	if c.store == nil || c.meta == nil {
		return
	}
	c.meta.SessionID = c.sessionID
	c.meta.Done = c.done
	meta := *c.meta
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.store.SaveMeta(ctx, &meta); err != nil {
			log.Printf("ERROR: failed to save meta for %s: %v", meta.ConversationID, err)
		}
	}()
}

func (c *Conversation) broadcastState() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcastStateLocked()
}

func (c *Conversation) broadcastStateLocked() {
	if c.broadcaster == nil {
		return
	}
	c.broadcaster.BroadcastState(c.id, c.viewLocked())
}
