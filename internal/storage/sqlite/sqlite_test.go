package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/telegram-harvester/internal/core/domain"
	apperrors "github.com/lueurxax/telegram-harvester/internal/core/errors"
)

const testChatID = int64(-1001512290359)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(":memory:", nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestStore_UpsertChatKeepsActiveFlag(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertChat(ctx, domain.Chat{ID: testChatID, Title: "Old"}))

	chat, err := s.GetChat(ctx, testChatID)
	require.NoError(t, err)
	assert.False(t, chat.Active)

	require.NoError(t, s.SetChatActive(ctx, testChatID, true))
	require.NoError(t, s.UpsertChat(ctx, domain.Chat{ID: testChatID, Title: "New"}))

	chat, err = s.GetChat(ctx, testChatID)
	require.NoError(t, err)

	if diff := cmp.Diff(domain.Chat{ID: testChatID, Title: "New", Active: true}, chat); diff != "" {
		t.Errorf("GetChat() mismatch (-want +got):\n%s", diff)
	}

	ids, err := s.GetActiveChatIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{testChatID}, ids)
}

func TestStore_GetChatNotFound(t *testing.T) {
	_, err := newTestStore(t).GetChat(context.Background(), 1)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStore_CursorNeverDecreases(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	got, err := s.GetLastMessageID(ctx, testChatID)
	require.NoError(t, err)
	assert.Zero(t, got)

	tests := []struct {
		set  int64
		want int64
	}{
		{set: 10, want: 10},
		{set: 5, want: 10},
		{set: 10, want: 10},
		{set: 103, want: 103},
	}

	for _, tt := range tests {
		require.NoError(t, s.SetLastMessageID(ctx, testChatID, tt.set))

		got, err := s.GetLastMessageID(ctx, testChatID)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "after set %d", tt.set)
	}
}

func TestStore_SaveMessagesIgnoresDuplicates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	date := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	text := domain.Record{ChatID: testChatID, MessageID: 101, Date: date, SenderID: 7, Text: "hello #go"}
	photo := domain.Record{
		ChatID: testChatID, MessageID: 102, Date: date, AlbumID: 55, Text: "caption",
		MediaKind: "photo", MediaMIME: "image/jpeg", MediaSize: 2048, MediaPath: "media/1/102.jpg",
	}

	require.NoError(t, s.SaveMessages(ctx, []domain.Record{text, photo}))

	rewritten := text
	rewritten.Text = "edited"
	require.NoError(t, s.SaveMessages(ctx, []domain.Record{rewritten}))
	require.NoError(t, s.SaveMessages(ctx, nil))

	got, err := s.ListMessages(ctx, testChatID)
	require.NoError(t, err)

	if diff := cmp.Diff([]domain.Record{text, photo}, got); diff != "" {
		t.Errorf("ListMessages() mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_Ping(t *testing.T) {
	require.NoError(t, newTestStore(t).Ping(context.Background()))
}
