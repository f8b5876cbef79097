// Package sqlite implements the harvester store on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // SQLite driver registration.

	"github.com/lueurxax/telegram-harvester/internal/core/domain"
	apperrors "github.com/lueurxax/telegram-harvester/internal/core/errors"
	"github.com/lueurxax/telegram-harvester/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// Store implements ports.Store backed by a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens a SQLite database at dsn and runs pending migrations.
func Open(dsn string, logger *zerolog.Logger) (*Store, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Every connection to :memory: is a separate database.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(conn, "sqlite3", migrations.SQLiteDir, &migrations.Logger{Logger: logger}); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &Store{db: conn}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}

	return nil
}

// UpsertChat inserts a chat as inactive or refreshes the title of an existing one.
func (s *Store) UpsertChat(ctx context.Context, chat domain.Chat) error {
	now := time.Now().UTC().Format(timeLayout)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (id, title, active, created_at, updated_at)
		 VALUES (?, ?, 0, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at`,
		chat.ID, chat.Title, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert chat %d: %w", chat.ID, err)
	}

	return nil
}

func (s *Store) GetActiveChatIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chats WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("get active chats: %w", err)
	}
	defer rows.Close()

	var ids []int64

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chat id: %w", err)
		}

		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// SetChatActive toggles the active flag.
func (s *Store) SetChatActive(ctx context.Context, chatID int64, active bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE chats SET active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), time.Now().UTC().Format(timeLayout), chatID)
	if err != nil {
		return fmt.Errorf("set chat %d active: %w", chatID, err)
	}

	return nil
}

func (s *Store) GetChat(ctx context.Context, chatID int64) (domain.Chat, error) {
	var (
		chat   domain.Chat
		active int
	)

	err := s.db.QueryRowContext(ctx, `SELECT id, title, active FROM chats WHERE id = ?`, chatID).
		Scan(&chat.ID, &chat.Title, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Chat{}, fmt.Errorf("chat %d: %w", chatID, apperrors.ErrNotFound)
	}

	if err != nil {
		return domain.Chat{}, fmt.Errorf("get chat %d: %w", chatID, err)
	}

	chat.Active = active != 0

	return chat, nil
}

// GetLastMessageID returns 0 when the chat has no cursor yet.
func (s *Store) GetLastMessageID(ctx context.Context, chatID int64) (int64, error) {
	var id int64

	err := s.db.QueryRowContext(ctx, `SELECT last_message_id FROM cursors WHERE chat_id = ?`, chatID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("get cursor for chat %d: %w", chatID, err)
	}

	return id, nil
}

// SetLastMessageID stores the watermark. A lower value never replaces a higher one.
func (s *Store) SetLastMessageID(ctx context.Context, chatID, messageID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cursors (chat_id, last_message_id, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (chat_id) DO UPDATE
		 SET last_message_id = MAX(cursors.last_message_id, excluded.last_message_id),
		     updated_at = excluded.updated_at`,
		chatID, messageID, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("set cursor for chat %d: %w", chatID, err)
	}

	return nil
}

// SaveMessages writes records in one transaction, ignoring duplicates.
func (s *Store) SaveMessages(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO messages (chat_id, message_id, date, sender_id, text, album_id,
		                       media_kind, media_mime, media_size, media_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (chat_id, message_id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.ChatID, r.MessageID, r.Date.UTC().Format(time.RFC3339Nano),
			nullInt(r.SenderID), nullString(r.Text), nullInt(r.AlbumID),
			nullString(r.MediaKind), nullString(r.MediaMIME), nullInt(r.MediaSize), nullString(r.MediaPath),
		); err != nil {
			return fmt.Errorf("insert message %d/%d: %w", r.ChatID, r.MessageID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit messages: %w", err)
	}

	return nil
}

// ListMessages returns the stored messages of a chat in id order.
func (s *Store) ListMessages(ctx context.Context, chatID int64) ([]domain.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, message_id, date, sender_id, text, album_id,
		        media_kind, media_mime, media_size, media_path
		 FROM messages WHERE chat_id = ? ORDER BY message_id`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages for chat %d: %w", chatID, err)
	}
	defer rows.Close()

	var out []domain.Record

	for rows.Next() {
		var (
			r                                     domain.Record
			date                                  string
			sender, album, size                   sql.NullInt64
			text, mediaKind, mediaMIME, mediaPath sql.NullString
		)

		if err := rows.Scan(&r.ChatID, &r.MessageID, &date, &sender, &text, &album,
			&mediaKind, &mediaMIME, &size, &mediaPath); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		r.Date, err = time.Parse(time.RFC3339Nano, date)
		if err != nil {
			return nil, fmt.Errorf("parse message date %q: %w", date, err)
		}

		r.SenderID = sender.Int64
		r.Text = text.String
		r.AlbumID = album.Int64
		r.MediaKind = mediaKind.String
		r.MediaMIME = mediaMIME.String
		r.MediaSize = size.Int64
		r.MediaPath = mediaPath.String

		out = append(out, r)
	}

	return out, rows.Err()
}

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
