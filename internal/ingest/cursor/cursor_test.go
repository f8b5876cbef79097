package cursor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lueurxax/telegram-harvester/internal/core/errors"
)

const (
	testGetLastMessageID = "GetLastMessageID"
	testSetLastMessageID = "SetLastMessageID"
	testChatID           = int64(-1001512290359)
)

var errDown = errors.New("database down")

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetLastMessageID(ctx context.Context, chatID int64) (int64, error) {
	args := m.Called(ctx, chatID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRepo) SetLastMessageID(ctx context.Context, chatID, messageID int64) error {
	args := m.Called(ctx, chatID, messageID)
	return args.Error(0)
}

func TestManager_GetDefaultsToZero(t *testing.T) {
	repo := new(mockRepo)
	repo.On(testGetLastMessageID, mock.Anything, testChatID).Return(int64(0), nil)

	m := New(repo, nil)

	assert.Equal(t, int64(0), m.Get(context.Background(), testChatID))
	repo.AssertExpectations(t)
}

func TestManager_GetSwallowsReadErrors(t *testing.T) {
	repo := new(mockRepo)
	repo.On(testGetLastMessageID, mock.Anything, testChatID).Return(int64(0), errDown)

	m := New(repo, nil)

	assert.Equal(t, int64(0), m.Get(context.Background(), testChatID))
}

func TestManager_AdvanceIsMonotonic(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	repo.On(testGetLastMessageID, mock.Anything, testChatID).Return(int64(100), nil)
	repo.On(testSetLastMessageID, mock.Anything, testChatID, int64(150)).Return(nil).Once()

	m := New(repo, nil)
	require.Equal(t, int64(100), m.Get(ctx, testChatID))

	require.NoError(t, m.Advance(ctx, testChatID, 150))

	// Equal value does not hit the store.
	require.NoError(t, m.Advance(ctx, testChatID, 150))

	err := m.Advance(ctx, testChatID, 120)
	require.ErrorIs(t, err, apperrors.ErrCursorRegression)

	repo.AssertExpectations(t)
	repo.AssertNumberOfCalls(t, testSetLastMessageID, 1)
}

func TestManager_AdvanceFailureKeepsOldValue(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	repo.On(testGetLastMessageID, mock.Anything, testChatID).Return(int64(10), nil)
	repo.On(testSetLastMessageID, mock.Anything, testChatID, int64(20)).Return(errDown)

	m := New(repo, nil)
	m.Get(ctx, testChatID)

	require.ErrorIs(t, m.Advance(ctx, testChatID, 20), errDown)
	assert.Equal(t, int64(10), m.current[testChatID])
}

func TestManager_GetNeverReturnsBelowCachedValue(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	repo.On(testGetLastMessageID, mock.Anything, testChatID).Return(int64(5), nil).Once()
	repo.On(testSetLastMessageID, mock.Anything, testChatID, int64(9)).Return(nil)
	repo.On(testGetLastMessageID, mock.Anything, testChatID).Return(int64(0), errDown)

	m := New(repo, nil)
	m.Get(ctx, testChatID)
	require.NoError(t, m.Advance(ctx, testChatID, 9))

	assert.Equal(t, int64(9), m.Get(ctx, testChatID))
}
