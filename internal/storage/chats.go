package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lueurxax/telegram-harvester/internal/core/domain"
	apperrors "github.com/lueurxax/telegram-harvester/internal/core/errors"
)

// UpsertChat inserts a chat as inactive or refreshes the title of an existing one.
func (db *DB) UpsertChat(ctx context.Context, chat domain.Chat) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO chats (id, title, active)
		VALUES ($1, $2, FALSE)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, updated_at = now()`,
		chat.ID, SanitizeUTF8(chat.Title))
	if err != nil {
		return fmt.Errorf("upsert chat %d: %w", chat.ID, err)
	}

	return nil
}

func (db *DB) GetActiveChatIDs(ctx context.Context) ([]int64, error) {
	rows, err := db.Pool.Query(ctx, `SELECT id FROM chats WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("get active chats: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scan active chats: %w", err)
	}

	return ids, nil
}

// SetChatActive toggles the active flag. The harvester never calls it.
func (db *DB) SetChatActive(ctx context.Context, chatID int64, active bool) error {
	if _, err := db.Pool.Exec(ctx, `UPDATE chats SET active = $2, updated_at = now() WHERE id = $1`, chatID, active); err != nil {
		return fmt.Errorf("set chat %d active: %w", chatID, err)
	}

	return nil
}

func (db *DB) GetChat(ctx context.Context, chatID int64) (domain.Chat, error) {
	var chat domain.Chat

	err := db.Pool.QueryRow(ctx, `SELECT id, title, active FROM chats WHERE id = $1`, chatID).
		Scan(&chat.ID, &chat.Title, &chat.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Chat{}, fmt.Errorf("chat %d: %w", chatID, apperrors.ErrNotFound)
	}

	if err != nil {
		return domain.Chat{}, fmt.Errorf("get chat %d: %w", chatID, err)
	}

	return chat, nil
}
