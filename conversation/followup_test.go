package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFollowUpQueueFlush(t *testing.T) {
	q := NewFollowUpQueue()
	q.Enqueue("f1")
	q.Enqueue("f2")

	assert.Equal(t, "f1\n\nf2", q.Flush())
	assert.Zero(t, q.Len())
	assert.Equal(t, "", q.Flush())
}

func TestFollowUpQueueRemoveAt(t *testing.T) {
	q := NewFollowUpQueue()
	q.Enqueue("a")
	q.Enqueue("b")
	q.Enqueue("c")

	assert.NoError(t, q.RemoveAt(1))
	assert.Equal(t, []string{"a", "c"}, q.Items())

	assert.Error(t, q.RemoveAt(5))
	assert.Error(t, q.RemoveAt(-1))
}

func TestFollowUpQueueClear(t *testing.T) {
	q := NewFollowUpQueue()
	q.Enqueue("a")
	q.Clear()
	assert.Empty(t, q.Items())
	assert.Equal(t, "", q.Flush())
}
