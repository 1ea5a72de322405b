package conversation

import "sync"

// SequenceTracker is the dedup/ordering gate over the per-conversation
// sequence counter. It is the single source of truth for "already
// applied", which is what makes live delivery and catch-up safe to run
// concurrently without locking anywhere else.
type SequenceTracker struct {
	mu       sync.Mutex
	seen     map[int64]bool
	lastSeen int64
}

// NewSequenceTracker creates an empty tracker.
func NewSequenceTracker() *SequenceTracker {
	return &SequenceTracker{seen: make(map[int64]bool)}
}

// Observe records a sequence number and reports whether the event should
// be applied. A seq already in the seen set is dropped; otherwise it is
// recorded and lastSeen advances.
func (t *SequenceTracker) Observe(seq int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.seen[seq] {
		return false
	}
	t.seen[seq] = true
	if seq > t.lastSeen {
		t.lastSeen = seq
	}
	return true
}

// LastSeen returns the highest sequence number observed so far.
func (t *SequenceTracker) LastSeen() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSeen
}
