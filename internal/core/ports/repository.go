// Package ports provides domain-centric interfaces for external dependencies.
// These interfaces follow the ports and adapters (hexagonal) architecture pattern,
// allowing business logic to remain independent of infrastructure concerns.
package ports

import (
	"context"

	"github.com/lueurxax/telegram-harvester/internal/core/domain"
)

// ChatRepository handles chat metadata.
type ChatRepository interface {
	// UpsertChat inserts the chat as inactive or refreshes its title.
	// The active flag of an existing chat is never overwritten.
	UpsertChat(ctx context.Context, chat domain.Chat) error
	GetActiveChatIDs(ctx context.Context) ([]int64, error)
}

// CursorRepository persists the per-chat watermark.
type CursorRepository interface {
	// GetLastMessageID returns 0 when the chat has never been fetched.
	GetLastMessageID(ctx context.Context, chatID int64) (int64, error)
	SetLastMessageID(ctx context.Context, chatID, messageID int64) error
}

// MessageRepository persists harvested messages.
type MessageRepository interface {
	// SaveMessages inserts records, silently ignoring (chat_id, message_id) duplicates.
	SaveMessages(ctx context.Context, records []domain.Record) error
}

// Store combines every repository a harvester run needs.
type Store interface {
	ChatRepository
	CursorRepository
	MessageRepository
	Ping(ctx context.Context) error
	Close() error
}

// ChatSource is the upstream messaging service.
type ChatSource interface {
	ListDialogs(ctx context.Context) ([]domain.Entity, error)
	// ResolveChat returns an error wrapping errors.ErrNotFound when the chat is unknown.
	ResolveChat(ctx context.Context, chatID int64) (domain.Entity, error)
	// FetchMessages returns up to limit history entries with id > afterID.
	// Messages are in ascending id order; entries that are not messages are
	// omitted but still count towards LastID. An empty page has LastID 0.
	FetchMessages(ctx context.Context, chatID, afterID int64, limit int) (domain.HistoryPage, error)
	// DownloadMedia stores the attachment under dir and returns the file path.
	DownloadMedia(ctx context.Context, msg domain.Message, dir string) (string, error)
}
