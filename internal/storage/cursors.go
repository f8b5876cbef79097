package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetLastMessageID returns 0 when the chat has no cursor yet.
func (db *DB) GetLastMessageID(ctx context.Context, chatID int64) (int64, error) {
	var id int64

	err := db.Pool.QueryRow(ctx, `SELECT last_message_id FROM cursors WHERE chat_id = $1`, chatID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("get cursor for chat %d: %w", chatID, err)
	}

	return id, nil
}

// SetLastMessageID stores the watermark. A lower value never replaces a higher one.
func (db *DB) SetLastMessageID(ctx context.Context, chatID, messageID int64) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO cursors (chat_id, last_message_id)
		VALUES ($1, $2)
		ON CONFLICT (chat_id) DO UPDATE
		SET last_message_id = GREATEST(cursors.last_message_id, EXCLUDED.last_message_id),
		    updated_at = now()`,
		chatID, messageID)
	if err != nil {
		return fmt.Errorf("set cursor for chat %d: %w", chatID, err)
	}

	return nil
}
