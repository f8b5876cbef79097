// Package cursor tracks the per-chat watermark of durably stored messages.
package cursor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	apperrors "github.com/lueurxax/telegram-harvester/internal/core/errors"
	"github.com/lueurxax/telegram-harvester/internal/core/ports"
)

// Manager reads and advances cursors. It caches the last known value per chat
// and refuses to move a cursor backwards.
type Manager struct {
	repo    ports.CursorRepository
	logger  *zerolog.Logger
	current map[int64]int64
}

// New creates a Manager backed by repo.
func New(repo ports.CursorRepository, logger *zerolog.Logger) *Manager {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Manager{
		repo:    repo,
		logger:  logger,
		current: make(map[int64]int64),
	}
}

// Get returns the stored watermark, or 0 when the chat was never fetched.
// A read failure is logged and treated as 0; re-ingesting is safe because the
// store ignores duplicate messages.
func (m *Manager) Get(ctx context.Context, chatID int64) int64 {
	id, err := m.repo.GetLastMessageID(ctx, chatID)
	if err != nil {
		m.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("failed to read cursor, starting from the beginning")

		id = 0
	}

	if cached, ok := m.current[chatID]; ok && cached > id {
		id = cached
	}

	m.current[chatID] = id

	return id
}

// Advance persists id as the new watermark. Equal values are a no-op and
// lower values fail with ErrCursorRegression.
func (m *Manager) Advance(ctx context.Context, chatID, id int64) error {
	cur := m.current[chatID]

	if id < cur {
		return fmt.Errorf("chat %d: %d < %d: %w", chatID, id, cur, apperrors.ErrCursorRegression)
	}

	if id == cur {
		return nil
	}

	if err := m.repo.SetLastMessageID(ctx, chatID, id); err != nil {
		return fmt.Errorf("advance cursor for chat %d: %w", chatID, err)
	}

	m.current[chatID] = id

	m.logger.Debug().Int64("chat_id", chatID).Int64("cursor", id).Msg("cursor advanced")

	return nil
}
