package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/telegram-harvester/internal/core/domain"
)

const insertMessageSQL = `
	INSERT INTO messages (chat_id, message_id, date, sender_id, text, album_id,
	                      media_kind, media_mime, media_size, media_path)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (chat_id, message_id) DO NOTHING`

// SaveMessages writes records in one transaction, ignoring duplicates.
func (db *DB) SaveMessages(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}

		for _, r := range records {
			batch.Queue(insertMessageSQL,
				r.ChatID,
				r.MessageID,
				toTimestamptz(r.Date.UTC()),
				toInt8(r.SenderID),
				toText(r.Text),
				toInt8(r.AlbumID),
				toText(r.MediaKind),
				toText(r.MediaMIME),
				toInt8(r.MediaSize),
				toText(r.MediaPath),
			)
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("save %d messages: %w", len(records), err)
		}

		return nil
	})
}

// ListMessages returns the stored messages of a chat in id order.
func (db *DB) ListMessages(ctx context.Context, chatID int64) ([]domain.Record, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT chat_id, message_id, date, sender_id, text, album_id,
		       media_kind, media_mime, media_size, media_path
		FROM messages WHERE chat_id = $1 ORDER BY message_id`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages for chat %d: %w", chatID, err)
	}
	defer rows.Close()

	var out []domain.Record

	for rows.Next() {
		var (
			r                                     domain.Record
			date                                  pgtype.Timestamptz
			sender, album, size                   pgtype.Int8
			text, mediaKind, mediaMIME, mediaPath pgtype.Text
		)

		if err := rows.Scan(&r.ChatID, &r.MessageID, &date, &sender, &text, &album,
			&mediaKind, &mediaMIME, &size, &mediaPath); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		r.Date = date.Time.UTC()
		r.SenderID = fromInt8(sender)
		r.Text = fromText(text)
		r.AlbumID = fromInt8(album)
		r.MediaKind = fromText(mediaKind)
		r.MediaMIME = fromText(mediaMIME)
		r.MediaSize = fromInt8(size)
		r.MediaPath = fromText(mediaPath)

		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return out, nil
}
