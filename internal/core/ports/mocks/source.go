package mocks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/lueurxax/telegram-harvester/internal/core/domain"
	apperrors "github.com/lueurxax/telegram-harvester/internal/core/errors"
)

const mockFilePerm = 0o600

// FetchCall records the arguments of one FetchMessages call.
type FetchCall struct {
	ChatID  int64
	AfterID int64
	Limit   int
}

// ChatSource is a thread-safe in-memory implementation of ports.ChatSource.
type ChatSource struct {
	mu        sync.Mutex
	entities  map[int64]domain.Entity
	messages  map[int64][]domain.Message
	service   map[int64]map[int64]bool
	fetchErrs []error

	// FetchCalls lists every FetchMessages call, including failed ones.
	FetchCalls []FetchCall

	// Downloads counts DownloadMedia calls.
	Downloads int

	// ResolveChatFn allows overriding ResolveChat behavior.
	ResolveChatFn func(ctx context.Context, chatID int64) (domain.Entity, error)

	// DownloadMediaFn allows overriding DownloadMedia behavior.
	DownloadMediaFn func(ctx context.Context, msg domain.Message, dir string) (string, error)
}

// NewChatSource creates an empty mock chat source.
func NewChatSource() *ChatSource {
	return &ChatSource{
		entities: make(map[int64]domain.Entity),
		messages: make(map[int64][]domain.Message),
		service:  make(map[int64]map[int64]bool),
	}
}

// AddChat registers a resolvable chat.
func (s *ChatSource) AddChat(e domain.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entities[e.ID] = e
}

// AddMessages appends history to a chat. ChatID is filled in when zero.
func (s *ChatSource) AddMessages(chatID int64, msgs ...domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range msgs {
		if m.ChatID == 0 {
			m.ChatID = chatID
		}

		s.messages[chatID] = append(s.messages[chatID], m)
	}

	sort.Slice(s.messages[chatID], func(i, j int) bool {
		return s.messages[chatID][i].ID < s.messages[chatID][j].ID
	})
}

// AddServiceEntries registers history ids that are not messages, such as
// joins or pins. They occupy page slots but are never returned.
func (s *ChatSource) AddServiceEntries(chatID int64, ids ...int64) {
	msgs := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		msgs = append(msgs, domain.Message{ID: id, ChatID: chatID})
	}

	s.AddMessages(chatID, msgs...)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.service[chatID] == nil {
		s.service[chatID] = make(map[int64]bool)
	}

	for _, id := range ids {
		s.service[chatID][id] = true
	}
}

// FailNextFetch queues errors returned by the next FetchMessages calls, in order.
func (s *ChatSource) FailNextFetch(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetchErrs = append(s.fetchErrs, errs...)
}

// ListDialogs returns every registered chat ordered by id.
func (s *ChatSource) ListDialogs(_ context.Context) ([]domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

// ResolveChat returns the registered chat or an ErrNotFound error.
func (s *ChatSource) ResolveChat(ctx context.Context, chatID int64) (domain.Entity, error) {
	if s.ResolveChatFn != nil {
		return s.ResolveChatFn(ctx, chatID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[chatID]
	if !ok {
		return domain.Entity{}, fmt.Errorf("resolve chat %d: %w", chatID, apperrors.ErrNotFound)
	}

	return e, nil
}

// FetchMessages returns up to limit entries with id > afterID, oldest first.
// Service entries fill page slots and LastID but are left out of Messages.
func (s *ChatSource) FetchMessages(_ context.Context, chatID, afterID int64, limit int) (domain.HistoryPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.FetchCalls = append(s.FetchCalls, FetchCall{ChatID: chatID, AfterID: afterID, Limit: limit})

	if len(s.fetchErrs) > 0 {
		err := s.fetchErrs[0]
		s.fetchErrs = s.fetchErrs[1:]

		return domain.HistoryPage{}, err
	}

	var (
		page domain.HistoryPage
		raw  int
	)

	for _, m := range s.messages[chatID] {
		if m.ID <= afterID {
			continue
		}

		raw++
		page.LastID = m.ID

		if !s.service[chatID][m.ID] {
			page.Messages = append(page.Messages, m)
		}

		if limit > 0 && raw == limit {
			break
		}
	}

	return page, nil
}

// DownloadMedia writes a small placeholder file named <id>.<ext> under dir/<chat id>.
func (s *ChatSource) DownloadMedia(ctx context.Context, msg domain.Message, dir string) (string, error) {
	s.mu.Lock()
	s.Downloads++
	s.mu.Unlock()

	if s.DownloadMediaFn != nil {
		return s.DownloadMediaFn(ctx, msg, dir)
	}

	if msg.Media == nil {
		return "", ErrNoMedia
	}

	chatDir := filepath.Join(dir, strconv.FormatInt(msg.ChatID, 10))
	if err := os.MkdirAll(chatDir, 0o750); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}

	name := strconv.FormatInt(msg.ID, 10)
	if ext := msg.Media.Extension(); ext != "" {
		name += "." + ext
	}

	path := filepath.Join(chatDir, name)
	if err := os.WriteFile(path, []byte("media"), mockFilePerm); err != nil {
		return "", fmt.Errorf("write media: %w", err)
	}

	return path, nil
}
