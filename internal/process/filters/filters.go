// Package filters implements the message filter policy.
//
// Evaluation short-circuits in a fixed order:
//   - Pass-through mode when no message types are configured (date and sender still apply)
//   - Date range on second-truncated UTC timestamps
//   - Sender allow-list
//   - Hashtag and keyword content filters
//   - Type/category match (text, photo, video, document or a raw extension)
//   - Captioned-media policy
//
// All functions here are pure: the result depends only on the candidate and the Config.
package filters

import (
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/lueurxax/telegram-harvester/internal/core/domain"
)

const (
	TypeText     = "text"
	TypePhoto    = "photo"
	TypeVideo    = "video"
	TypeDocument = "document"

	ReasonDate        = "filter_date"
	ReasonSender      = "filter_sender"
	ReasonHashtag     = "filter_hashtag"
	ReasonKeyword     = "filter_keyword"
	ReasonUncaptioned = "filter_uncaptioned_media"
	ReasonType        = "filter_type"
)

// Extension groups used when a category token is configured.
var (
	PhotoExtensions = []string{"jpg", "jpeg", "png", "gif", "webp", "bmp", "heic", "heif", "tif", "tiff"}
	VideoExtensions = []string{"mp4", "mkv", "avi", "mov", "webm", "m4v", "3gp", "flv", "wmv", "mpg", "mpeg"}

	DocumentExtensions = []string{
		"pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx", "odt", "ods", "rtf", "txt", "csv",
		"json", "xml", "epub", "djvu", "fb2", "zip", "rar", "7z", "tar", "gz", "apk",
		"mp3", "ogg", "oga", "wav", "flac", "m4a",
	}
)

var extensionAliases = map[string]string{
	"jpeg": "jpg",
	"tif":  "tiff",
	"mpeg": "mpg",
}

// Config is the immutable filter policy of a run. Zero values disable a rule.
type Config struct {
	Types       []string
	Keywords    []string
	Hashtags    []string
	DateFrom    time.Time
	DateTo      time.Time
	SenderIDs   []int64
	MaxFileSize int64
	ChatIDs     []int64
}

// PassThrough reports whether no message types are configured.
func (c Config) PassThrough() bool {
	for _, t := range c.Types {
		if normalizeToken(t) != "" {
			return false
		}
	}

	return true
}

// HasContentFilters reports whether hashtag or keyword filtering is active.
func (c Config) HasContentFilters() bool {
	return len(c.Hashtags) > 0 || len(c.Keywords) > 0
}

// HasType reports whether the normalized token is configured.
func (c Config) HasType(token string) bool {
	token = canonicalExtension(normalizeToken(token))

	for _, t := range c.Types {
		if canonicalExtension(normalizeToken(t)) == token {
			return true
		}
	}

	return false
}

// ShouldProcess reports whether the candidate is kept.
func ShouldProcess(c domain.Candidate, cfg Config) bool {
	keep, _ := Evaluate(c, cfg)
	return keep
}

// Evaluate returns whether the candidate is kept and, when it is not, the reason code.
func Evaluate(c domain.Candidate, cfg Config) (bool, string) {
	if cfg.PassThrough() {
		if ok, reason := checkEnvelope(c.Message, cfg); !ok {
			return false, reason
		}

		return true, ""
	}

	if ok, reason := CheckBase(c, cfg); !ok {
		return false, reason
	}

	if cfg.HasType(TypeText) && c.Caption() != "" {
		return true, ""
	}

	if MatchesMediaType(c.Message.Media, cfg) {
		if !CaptionPolicyAllows(c, cfg) {
			return false, ReasonUncaptioned
		}

		return true, ""
	}

	return false, ReasonType
}

// CheckBase applies the date, sender, hashtag and keyword rules.
func CheckBase(c domain.Candidate, cfg Config) (bool, string) {
	if ok, reason := checkEnvelope(c.Message, cfg); !ok {
		return false, reason
	}

	text := c.Caption()
	if text == "" {
		return true, ""
	}

	if len(cfg.Hashtags) > 0 && !containsAny(text, cfg.Hashtags) {
		return false, ReasonHashtag
	}

	if len(cfg.Keywords) > 0 && !containsAnyFold(text, cfg.Keywords) {
		return false, ReasonKeyword
	}

	return true, ""
}

// InDateRange reports whether t, truncated to seconds, lies within the configured bounds.
func InDateRange(t time.Time, cfg Config) bool {
	ts := t.UTC().Truncate(time.Second)

	if !cfg.DateFrom.IsZero() && ts.Before(cfg.DateFrom) {
		return false
	}

	if !cfg.DateTo.IsZero() && ts.After(cfg.DateTo) {
		return false
	}

	return true
}

// MatchesMediaType reports whether the attachment matches a configured category or extension.
func MatchesMediaType(media *domain.Media, cfg Config) bool {
	if media == nil {
		return false
	}

	switch media.Kind {
	case domain.MediaPhoto:
		if cfg.HasType(TypePhoto) {
			return true
		}
	case domain.MediaVideo:
		if cfg.HasType(TypeVideo) {
			return true
		}
	case domain.MediaDocument:
		if cfg.HasType(TypeDocument) {
			return true
		}
	}

	ext := media.Extension()

	return ext != "" && !isCategory(ext) && cfg.HasType(ext)
}

// CaptionPolicyAllows refuses uncaptioned media when content filters are configured.
func CaptionPolicyAllows(c domain.Candidate, cfg Config) bool {
	return !cfg.HasContentFilters() || c.Caption() != ""
}

// ExtensionAllowed reports whether a file extension is configured directly or
// belongs to a configured category group.
func ExtensionAllowed(ext string, cfg Config) bool {
	ext = normalizeToken(ext)
	if ext == "" {
		return false
	}

	if cfg.HasType(ext) {
		return true
	}

	groups := map[string][]string{
		TypePhoto:    PhotoExtensions,
		TypeVideo:    VideoExtensions,
		TypeDocument: DocumentExtensions,
	}

	for category, exts := range groups {
		if cfg.HasType(category) && contains(exts, ext) {
			return true
		}
	}

	return false
}

func checkEnvelope(msg domain.Message, cfg Config) (bool, string) {
	if !InDateRange(msg.Date, cfg) {
		return false, ReasonDate
	}

	if len(cfg.SenderIDs) > 0 && !containsID(cfg.SenderIDs, msg.SenderID) {
		return false, ReasonSender
	}

	return true, ""
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(text, n) {
			return true
		}
	}

	return false
}

func containsAnyFold(text string, needles []string) bool {
	caser := cases.Fold()
	folded := caser.String(text)

	for _, n := range needles {
		if n != "" && strings.Contains(folded, caser.String(n)) {
			return true
		}
	}

	return false
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}

	return false
}

func contains(list []string, s string) bool {
	s = canonicalExtension(s)

	for _, v := range list {
		if canonicalExtension(v) == s {
			return true
		}
	}

	return false
}

func isCategory(token string) bool {
	switch token {
	case TypeText, TypePhoto, TypeVideo, TypeDocument:
		return true
	}

	return false
}

func normalizeToken(token string) string {
	return domain.NormalizeExtension(token)
}

func canonicalExtension(ext string) string {
	if alias, ok := extensionAliases[ext]; ok {
		return alias
	}

	return ext
}
