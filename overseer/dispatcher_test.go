package overseer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcinbunsch/overseer-sub001/domain"
)

type memoryMetaStore struct {
	metas map[string]*domain.ConversationMeta
}

func (m *memoryMetaStore) GetMeta(_ context.Context, conversationID string) (*domain.ConversationMeta, error) {
	return m.metas[conversationID], nil
}

func (m *memoryMetaStore) SaveMeta(_ context.Context, meta *domain.ConversationMeta) error {
	m.metas[meta.ConversationID] = meta
	return nil
}

func TestRenameChatUpdatesLabel(t *testing.T) {
	metas := &memoryMetaStore{metas: map[string]*domain.ConversationMeta{
		"c1": {ConversationID: "c1", Label: "old"},
	}}
	d := NewCommandDispatcher(metas)

	err := d.RenameChat(context.Background(), "c1", "Fix login flow")
	require.NoError(t, err)
	assert.Equal(t, "Fix login flow", metas.metas["c1"].Label)
}

func TestRenameChatUnknownConversation(t *testing.T) {
	d := NewCommandDispatcher(&memoryMetaStore{metas: map[string]*domain.ConversationMeta{}})

	err := d.RenameChat(context.Background(), "missing", "title")
	assert.Error(t, err)
}

func TestOpenPRRequiresWorkspace(t *testing.T) {
	metas := &memoryMetaStore{metas: map[string]*domain.ConversationMeta{
		"c1": {ConversationID: "c1"},
	}}
	d := NewCommandDispatcher(metas)

	err := d.OpenPR(context.Background(), "c1", "title", "body")
	assert.Error(t, err)
}
