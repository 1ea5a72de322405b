package conversation

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcinbunsch/overseer-sub001/agent"
	"github.com/marcinbunsch/overseer-sub001/domain"
)

func TestDebouncerCollapsesBurst(t *testing.T) {
	var calls int32
	d := NewDebouncer(30*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })

	for i := 0; i < 5; i++ {
		d.Trigger()
		time.Sleep(2 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 1
	}, time.Second, 5*time.Millisecond)

	// Quiet period: nothing further may fire.
	time.Sleep(60 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestDebouncerResetsRatherThanStacks(t *testing.T) {
	var calls int32
	d := NewDebouncer(100*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })

	d.Trigger()
	time.Sleep(60 * time.Millisecond)
	d.Trigger()

	// 120ms after the first trigger: a stacked timer would have fired,
	// a reset one still has 40ms to go.
	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&calls))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDebouncerStopCancelsPending(t *testing.T) {
	var calls int32
	d := NewDebouncer(20*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })

	d.Trigger()
	d.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestTurnCompleteSignalsFilesChangedOnce(t *testing.T) {
	var mu sync.Mutex
	var got []string
	c := New(Params{
		ConversationID: "c1",
		Source:         agent.NewMockSource(),
		FilesChanged: func(conversationID string) {
			mu.Lock()
			got = append(got, conversationID)
			mu.Unlock()
		},
		DebounceInterval: 20 * time.Millisecond,
	})

	// A burst of completed turns collapses into one downstream signal.
	for i := int64(1); i <= 3; i++ {
		c.Apply(domain.Event{Kind: domain.EventKindTurnComplete, Seq: seq(i)}, true)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0] == "c1"
	}, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 1)
}
