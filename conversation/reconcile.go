package conversation

import (
	"context"
	"log"
	"time"

	"github.com/marcinbunsch/overseer-sub001/store"
)

// Reconciler drives catch-up queries against the durable log. It is
// triggered by independent asynchronous signals (transport reconnect,
// the application returning to foreground) and may run concurrently with
// live delivery: both paths go through the same sequence gate, so
// catch-up is purely additive and idempotent.
type Reconciler struct {
	registry *Registry
	store    store.Store
	debounce time.Duration

	signals chan string
	stop    chan struct{}
}

// NewReconciler creates a reconciler for the registry.
func NewReconciler(registry *Registry, st store.Store, debounce time.Duration) *Reconciler {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	return &Reconciler{
		registry: registry,
		store:    st,
		debounce: debounce,
		signals:  make(chan string, 64),
		stop:     make(chan struct{}),
	}
}

// Trigger requests a catch-up for the conversation. Never blocks; a full
// signal buffer just collapses into the pending batch.
func (r *Reconciler) Trigger(conversationID string) {
	select {
	case r.signals <- conversationID:
	default:
	}
}

// Run processes signals until Shutdown. Bursts are debounced with a
// reset-on-retrigger timer so repeated reconnect/foreground signals
// collapse into one catch-up pass.
func (r *Reconciler) Run() {
	pending := make(map[string]bool)
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case id := <-r.signals:
			pending[id] = true
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(r.debounce)
			fire = timer.C

		case <-fire:
			fire = nil
			batch := pending
			pending = make(map[string]bool)
			for id := range batch {
				r.catchUp(id)
			}

		case <-r.stop:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// Shutdown stops the run loop.
func (r *Reconciler) Shutdown() {
	close(r.stop)
}

// catchUp fetches and applies everything past the conversation's
// last-seen seq. Failures are logged and retried on the next signal; no
// corruption risk since the gate drops anything already applied.
func (r *Reconciler) catchUp(conversationID string) {
	c := r.registry.Get(conversationID)
	if c == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	events, err := r.store.LoadEventsSince(ctx, conversationID, c.LastSeen())
	if err != nil {
		log.Printf("ERROR: catch-up for %s failed: %v", conversationID, err)
		return
	}
	for _, event := range events {
		c.Apply(event, false)
	}
}
