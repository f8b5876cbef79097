// Package media decides whether an attachment is downloaded and whether a
// downloaded file is kept.
package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/lueurxax/telegram-harvester/internal/core/domain"
	"github.com/lueurxax/telegram-harvester/internal/process/filters"
)

const (
	ReasonNoMedia   = "media_absent"
	ReasonTooLarge  = "media_too_large"
	ReasonExtension = "media_extension"
)

// ShouldDownload reports whether the candidate's attachment should be fetched.
// It is only consulted for candidates that filters.ShouldProcess kept.
func ShouldDownload(c domain.Candidate, cfg filters.Config) bool {
	ok, _ := DownloadDecision(c, cfg)
	return ok
}

// DownloadDecision returns the download verdict and, when negative, the reason code.
func DownloadDecision(c domain.Candidate, cfg filters.Config) (bool, string) {
	if !c.Message.HasMedia() {
		return false, ReasonNoMedia
	}

	m := c.Message.Media

	if exceedsSizeLimit(m, cfg.MaxFileSize) {
		return false, ReasonTooLarge
	}

	if cfg.PassThrough() {
		return true, ""
	}

	if ok, reason := filters.CheckBase(c, cfg); !ok {
		return false, reason
	}

	if !filters.MatchesMediaType(m, cfg) {
		return false, filters.ReasonType
	}

	if !filters.CaptionPolicyAllows(c, cfg) {
		return false, filters.ReasonUncaptioned
	}

	return true, ""
}

// ValidateExtension reports whether the downloaded file's extension is
// configured directly or through a category. Pass-through mode accepts any file.
func ValidateExtension(path string, cfg filters.Config) bool {
	if cfg.PassThrough() {
		return true
	}

	return filters.ExtensionAllowed(filepath.Ext(path), cfg)
}

// Gate applies ValidateExtension to downloaded files and removes rejected ones.
type Gate struct {
	cfg    filters.Config
	remove func(string) error
	logger *zerolog.Logger
}

// NewGate creates a Gate for the given policy.
func NewGate(cfg filters.Config, logger *zerolog.Logger) *Gate {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Gate{cfg: cfg, remove: os.Remove, logger: logger}
}

// ShouldDownload reports whether the candidate's attachment should be fetched.
func (g *Gate) ShouldDownload(c domain.Candidate) bool {
	ok, reason := DownloadDecision(c, g.cfg)
	if !ok && reason != ReasonNoMedia {
		g.logger.Debug().Int64("msg_id", c.Message.ID).Str("reason", reason).Msg("skipping media download")
	}

	return ok
}

// Keep validates a downloaded file. A rejected file is deleted and "" is returned;
// otherwise the path is returned unchanged.
func (g *Gate) Keep(path string) (string, error) {
	if path == "" || ValidateExtension(path, g.cfg) {
		return path, nil
	}

	g.logger.Info().Str("path", path).Str("reason", ReasonExtension).Msg("discarding downloaded media")

	if err := g.remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("remove rejected media %s: %w", path, err)
	}

	return "", nil
}

func exceedsSizeLimit(m *domain.Media, limit int64) bool {
	if limit <= 0 {
		return false
	}

	switch m.Kind {
	case domain.MediaVideo, domain.MediaDocument:
		return m.Size > limit
	default:
		return false
	}
}
