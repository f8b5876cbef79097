package filters

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	apperrors "github.com/lueurxax/telegram-harvester/internal/core/errors"
)

// DateLayout is the documented format of date_from and date_to, in local time.
const DateLayout = "2006-01-02 15:04:05"

// Document is the on-disk filter configuration, as JSON or YAML.
type Document struct {
	MessageTypes []string `json:"message_types" yaml:"message_types"`
	Keywords     []string `json:"keywords" yaml:"keywords"`
	Hashtags     []string `json:"hashtags" yaml:"hashtags"`
	DateFrom     string   `json:"date_from" yaml:"date_from"`
	DateTo       string   `json:"date_to" yaml:"date_to"`
	SenderIDs    []int64  `json:"sender_ids" yaml:"sender_ids"`
	MaxFileSize  int64    `json:"max_file_size" yaml:"max_file_size"`
	ChatIDs      []int64  `json:"chat_ids" yaml:"chat_ids"`
}

// ResolveLocation returns the named zone, the system zone when name is empty,
// or UTC when the name cannot be loaded.
func ResolveLocation(name string) *time.Location {
	if name == "" {
		if time.Local == nil {
			return time.UTC
		}

		return time.Local
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}

	return loc
}

// Load reads and parses the filter document at path.
func Load(path string, loc *time.Location) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read filter config: %w", err)
	}

	var doc Document

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}

	if err != nil {
		return Config{}, fmt.Errorf("parse filter config %s: %w", path, err)
	}

	return doc.Compile(loc)
}

// LoadOrDefault loads the filter document and falls back to the
// all-accepting Config when the file is missing or malformed.
func LoadOrDefault(path string, loc *time.Location, logger *zerolog.Logger) Config {
	if path == "" {
		return Config{}
	}

	cfg, err := Load(path, loc)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("filter config unavailable, accepting all messages")
		return Config{}
	}

	logger.Info().
		Str("path", path).
		Strs("types", cfg.Types).
		Int("keywords", len(cfg.Keywords)).
		Int("hashtags", len(cfg.Hashtags)).
		Int("chats", len(cfg.ChatIDs)).
		Msg("Loaded filter config")

	return cfg
}

// Compile validates the document and converts local dates to UTC.
func (d Document) Compile(loc *time.Location) (Config, error) {
	if loc == nil {
		loc = time.UTC
	}

	from, err := parseLocalDate(d.DateFrom, loc)
	if err != nil {
		return Config{}, fmt.Errorf("date_from: %w", err)
	}

	to, err := parseLocalDate(d.DateTo, loc)
	if err != nil {
		return Config{}, fmt.Errorf("date_to: %w", err)
	}

	if d.MaxFileSize < 0 {
		return Config{}, fmt.Errorf("max_file_size %d: %w", d.MaxFileSize, apperrors.ErrInvalidInput)
	}

	types := make([]string, 0, len(d.MessageTypes))

	for _, t := range d.MessageTypes {
		if n := normalizeToken(t); n != "" {
			types = append(types, n)
		}
	}

	return Config{
		Types:       types,
		Keywords:    nonEmpty(d.Keywords),
		Hashtags:    nonEmpty(d.Hashtags),
		DateFrom:    from,
		DateTo:      to,
		SenderIDs:   d.SenderIDs,
		MaxFileSize: d.MaxFileSize,
		ChatIDs:     d.ChatIDs,
	}, nil
}

func parseLocalDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}

	if t, err := time.ParseInLocation(DateLayout, s, loc); err == nil {
		return t.UTC(), nil
	}

	t, err := dateparse.ParseIn(s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", s, err)
	}

	return t.UTC().Truncate(time.Second), nil
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))

	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}

	return out
}
