package conversation

import (
	"fmt"
	"strings"
	"sync"
)

// FollowUpQueue buffers messages the operator sends while the agent is
// still working a turn. Entries are combined and dispatched on turn
// completion, or discarded when the agent process exits.
type FollowUpQueue struct {
	mu      sync.Mutex
	entries []string
}

// NewFollowUpQueue creates an empty queue.
func NewFollowUpQueue() *FollowUpQueue {
	return &FollowUpQueue{}
}

// Enqueue appends a message to the queue.
func (q *FollowUpQueue) Enqueue(content string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, content)
}

// Items returns a copy of the queued messages.
func (q *FollowUpQueue) Items() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.entries...)
}

// Len returns the number of queued messages.
func (q *FollowUpQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// RemoveAt removes the entry at the given index.
func (q *FollowUpQueue) RemoveAt(index int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if index < 0 || index >= len(q.entries) {
		return fmt.Errorf("follow-up index %d out of range", index)
	}
	q.entries = append(q.entries[:index], q.entries[index+1:]...)
	return nil
}

// Clear drops all queued messages without sending them.
func (q *FollowUpQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = nil
}

// Flush joins the queued messages with a blank-line separator and clears
// the queue. The clear happens here, before any dispatch resolves, so the
// queue is observably empty the moment the turn completes.
func (q *FollowUpQueue) Flush() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return ""
	}
	combined := strings.Join(q.entries, "\n\n")
	q.entries = nil
	return combined
}
