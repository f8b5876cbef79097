package harvester

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/lueurxax/telegram-harvester/internal/core/domain"
	apperrors "github.com/lueurxax/telegram-harvester/internal/core/errors"
	"github.com/lueurxax/telegram-harvester/internal/ingest/backoff"
)

// Discover lists every dialog visible to the account, upserts each one as a
// chat and writes a "Title: ..., ID: ..., Type: ..." line per dialog to out.
// It returns the number of dialogs found.
func (h *Harvester) Discover(ctx context.Context, out io.Writer) (int, error) {
	dialogs, err := backoff.Call(ctx, h.backoff, "list_dialogs", func(ctx context.Context) ([]domain.Entity, error) {
		return h.source.ListDialogs(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("list dialogs: %w", err)
	}

	bw := bufio.NewWriter(out)

	for _, d := range dialogs {
		title := DeriveTitle(d)

		if err := h.store.UpsertChat(ctx, domain.Chat{ID: d.ID, Title: title}); err != nil {
			return 0, fmt.Errorf("%w: %w", apperrors.ErrStoreWrite, err)
		}

		if _, err := fmt.Fprintf(bw, "Title: %s, ID: %d, Type: %s\n", title, d.ID, d.Kind); err != nil {
			return 0, fmt.Errorf("write dialog line: %w", err)
		}

		h.logger.Debug().Int64(logFieldChat, d.ID).Str("title", title).Str("type", string(d.Kind)).Msg("dialog")
	}

	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("flush dialogs output: %w", err)
	}

	h.logger.Info().Int("dialogs", len(dialogs)).Msg("dialog discovery finished")

	return len(dialogs), nil
}
