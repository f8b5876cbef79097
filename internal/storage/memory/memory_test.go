package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/telegram-harvester/internal/core/domain"
	apperrors "github.com/lueurxax/telegram-harvester/internal/core/errors"
)

func TestStore_Contract(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.UpsertChat(ctx, domain.Chat{ID: 1, Title: "a", Active: true}))

	ids, err := s.GetActiveChatIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids, "first insert is always inactive")

	require.NoError(t, s.SetChatActive(ctx, 1, true))
	require.NoError(t, s.UpsertChat(ctx, domain.Chat{ID: 1, Title: "b"}))

	chat, err := s.GetChat(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.Chat{ID: 1, Title: "b", Active: true}, chat)

	require.ErrorIs(t, s.SetChatActive(ctx, 2, true), apperrors.ErrNotFound)

	require.NoError(t, s.SetLastMessageID(ctx, 1, 9))
	require.NoError(t, s.SetLastMessageID(ctx, 1, 3))

	cur, err := s.GetLastMessageID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(9), cur)

	require.NoError(t, s.SaveMessages(ctx, []domain.Record{{ChatID: 1, MessageID: 2, Text: "x"}, {ChatID: 1, MessageID: 1}}))
	require.NoError(t, s.SaveMessages(ctx, []domain.Record{{ChatID: 1, MessageID: 2, Text: "y"}}))

	got, err := s.ListMessages(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].MessageID)
	assert.Equal(t, "x", got[1].Text)
}

func TestStore_SaveErr(t *testing.T) {
	s := New()
	s.SaveErr = errors.New("disk full")

	require.Error(t, s.SaveMessages(context.Background(), []domain.Record{{ChatID: 1, MessageID: 1}}))

	got, err := s.ListMessages(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, got)
}
