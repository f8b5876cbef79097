// Package memory is an in-process store for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lueurxax/telegram-harvester/internal/core/domain"
	apperrors "github.com/lueurxax/telegram-harvester/internal/core/errors"
)

type messageKey struct {
	chatID    int64
	messageID int64
}

// Store implements ports.Store in memory. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	chats    map[int64]domain.Chat
	cursors  map[int64]int64
	messages map[messageKey]domain.Record

	// SaveErr, when set, is returned by SaveMessages without storing anything.
	SaveErr error
	// Saves counts SaveMessages calls that reached the store.
	Saves int
}

func New() *Store {
	return &Store{
		chats:    make(map[int64]domain.Chat),
		cursors:  make(map[int64]int64),
		messages: make(map[messageKey]domain.Record),
	}
}

func (s *Store) UpsertChat(_ context.Context, chat domain.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.chats[chat.ID]; ok {
		existing.Title = chat.Title
		s.chats[chat.ID] = existing

		return nil
	}

	chat.Active = false
	s.chats[chat.ID] = chat

	return nil
}

func (s *Store) GetActiveChatIDs(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []int64

	for id, c := range s.chats {
		if c.Active {
			ids = append(ids, id)
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids, nil
}

// SetChatActive toggles the active flag of a known chat.
func (s *Store) SetChatActive(_ context.Context, chatID int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	if !ok {
		return fmt.Errorf("chat %d: %w", chatID, apperrors.ErrNotFound)
	}

	c.Active = active
	s.chats[chatID] = c

	return nil
}

func (s *Store) GetChat(_ context.Context, chatID int64) (domain.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chats[chatID]
	if !ok {
		return domain.Chat{}, fmt.Errorf("chat %d: %w", chatID, apperrors.ErrNotFound)
	}

	return c, nil
}

func (s *Store) GetLastMessageID(_ context.Context, chatID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cursors[chatID], nil
}

func (s *Store) SetLastMessageID(_ context.Context, chatID, messageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if messageID > s.cursors[chatID] {
		s.cursors[chatID] = messageID
	}

	return nil
}

func (s *Store) SaveMessages(_ context.Context, records []domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SaveErr != nil {
		return s.SaveErr
	}

	s.Saves++

	for _, r := range records {
		k := messageKey{chatID: r.ChatID, messageID: r.MessageID}
		if _, dup := s.messages[k]; dup {
			continue
		}

		s.messages[k] = r
	}

	return nil
}

// ListMessages returns the stored messages of a chat in id order.
func (s *Store) ListMessages(_ context.Context, chatID int64) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Record

	for k, r := range s.messages {
		if k.chatID == chatID {
			out = append(out, r)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].MessageID < out[j].MessageID })

	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
