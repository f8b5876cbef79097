package domain

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/lueurxax/telegram-harvester/internal/core/errors"
)

// NoTextCaption is the shared caption of an album whose members carry no text.
const NoTextCaption = "<no text>"

// ChatKind classifies a resolved conversation.
type ChatKind string

const (
	ChatKindUser    ChatKind = "user"
	ChatKindGroup   ChatKind = "group"
	ChatKindChannel ChatKind = "channel"
	ChatKindUnknown ChatKind = "unknown"
)

// Entity is a conversation as reported by the chat source.
type Entity struct {
	ID        int64
	Kind      ChatKind
	Title     string
	Username  string
	FirstName string
	LastName  string
}

// Chat is the stored view of a conversation.
type Chat struct {
	ID     int64
	Title  string
	Active bool
}

// MediaKind is the coarse category of an attachment.
type MediaKind string

const (
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
)

// Media describes a message attachment. Path is set only after a download.
type Media struct {
	Kind     MediaKind
	MIMEType string
	Size     int64
	FileName string
	Path     string
}

// Message is a single history entry. SenderID and AlbumID are 0 when absent.
type Message struct {
	ID       int64
	ChatID   int64
	Date     time.Time
	SenderID int64
	Text     string
	AlbumID  int64
	Media    *Media
}

// HasMedia reports whether the message carries an attachment.
func (m Message) HasMedia() bool {
	return m.Media != nil
}

// HistoryPage is one page of chat history. LastID is the highest id the
// upstream returned, counting service entries that carry no Message. It is 0
// when the page was empty.
type HistoryPage struct {
	Messages []Message
	LastID   int64
}

// Candidate pairs a source message with the caption that album reconstruction
// assigned to it. The source message is never modified.
type Candidate struct {
	Message         Message
	CaptionOverride *string
}

// NewCandidate wraps a message that is not part of a reconstructed album.
func NewCandidate(msg Message) Candidate {
	return Candidate{Message: msg}
}

// Text returns the text stored for the candidate.
func (c Candidate) Text() string {
	if c.CaptionOverride != nil {
		return *c.CaptionOverride
	}

	return c.Message.Text
}

// Caption returns the text used for filtering. An album caption equal to the
// no-text sentinel counts as empty.
func (c Candidate) Caption() string {
	if c.CaptionOverride == nil {
		return c.Message.Text
	}

	if *c.CaptionOverride == NoTextCaption {
		return ""
	}

	return *c.CaptionOverride
}

// Record builds the persisted form of the candidate.
func (c Candidate) Record(mediaPath string) Record {
	rec := Record{
		ChatID:    c.Message.ChatID,
		MessageID: c.Message.ID,
		Date:      c.Message.Date.UTC(),
		SenderID:  c.Message.SenderID,
		Text:      c.Text(),
		AlbumID:   c.Message.AlbumID,
		MediaPath: mediaPath,
	}

	if media := c.Message.Media; media != nil {
		rec.MediaKind = string(media.Kind)
		rec.MediaMIME = media.MIMEType
		rec.MediaSize = media.Size
	}

	return rec
}

// Record is a message as written to the store.
type Record struct {
	ChatID    int64
	MessageID int64
	Date      time.Time
	SenderID  int64
	Text      string
	AlbumID   int64
	MediaKind string
	MediaMIME string
	MediaSize int64
	MediaPath string
}

// RateLimitError is returned by the chat source when the upstream throttles us.
type RateLimitError struct {
	Wait time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.Wait)
}

func (e *RateLimitError) Unwrap() error {
	return apperrors.ErrRateLimited
}

var mimeExtensions = map[string]string{
	"image/jpeg":         "jpg",
	"image/png":          "png",
	"image/gif":          "gif",
	"image/webp":         "webp",
	"image/heic":         "heic",
	"video/mp4":          "mp4",
	"video/quicktime":    "mov",
	"video/webm":         "webm",
	"video/x-matroska":   "mkv",
	"audio/mpeg":         "mp3",
	"audio/ogg":          "ogg",
	"application/pdf":    "pdf",
	"application/zip":    "zip",
	"application/x-rar":  "rar",
	"application/msword": "doc",
	"text/plain":         "txt",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "docx",
}

// Extension returns the lower-case file extension of the attachment without
// a leading dot. The file name wins over the MIME type; photos are always jpg.
func (m *Media) Extension() string {
	if m == nil {
		return ""
	}

	if m.Kind == MediaPhoto && m.FileName == "" {
		return "jpg"
	}

	if ext := NormalizeExtension(filepath.Ext(m.FileName)); ext != "" {
		return ext
	}

	return ExtensionForMIME(m.MIMEType)
}

// ExtensionForMIME maps a MIME type to a file extension, or "" when unknown.
func ExtensionForMIME(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if ext, ok := mimeExtensions[mimeType]; ok {
		return ext
	}

	exts, err := mime.ExtensionsByType(mimeType)
	if err != nil || len(exts) == 0 {
		return ""
	}

	return NormalizeExtension(exts[0])
}

// NormalizeExtension lower-cases an extension and strips the leading dot.
func NormalizeExtension(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// KindForMIME classifies a document by MIME type.
func KindForMIME(mimeType string) MediaKind {
	if strings.HasPrefix(strings.ToLower(mimeType), "video/") {
		return MediaVideo
	}

	return MediaDocument
}
