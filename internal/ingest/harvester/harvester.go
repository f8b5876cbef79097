// Package harvester walks chat histories, filters messages and persists the
// survivors in batches while advancing each chat's cursor.
package harvester

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lueurxax/telegram-harvester/internal/core/domain"
	apperrors "github.com/lueurxax/telegram-harvester/internal/core/errors"
	"github.com/lueurxax/telegram-harvester/internal/core/ports"
	"github.com/lueurxax/telegram-harvester/internal/ingest/backoff"
	"github.com/lueurxax/telegram-harvester/internal/ingest/cursor"
	"github.com/lueurxax/telegram-harvester/internal/platform/observability"
	"github.com/lueurxax/telegram-harvester/internal/process/album"
	"github.com/lueurxax/telegram-harvester/internal/process/filters"
	"github.com/lueurxax/telegram-harvester/internal/process/media"
)

const (
	DefaultBatchSize = 50
	DefaultPageSize  = 100
	unknownChatTitle = "Unknown chat"

	logFieldChat  = "chat_id"
	logFieldMsgID = "msg_id"
	logFieldRunID = "run_id"

	mediaStatusOK       = "ok"
	mediaStatusFailed   = "failed"
	mediaStatusRejected = "rejected"
)

// Options tunes a Harvester. Zero values select the defaults.
type Options struct {
	BatchSize int
	Lookahead int
	PageSize  int
	// MediaDir receives downloaded attachments. Empty disables downloads.
	MediaDir string
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}

	if o.Lookahead <= 0 {
		o.Lookahead = album.DefaultWindow
	}

	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}

	return o
}

type Harvester struct {
	source  ports.ChatSource
	store   ports.Store
	cursors *cursor.Manager
	backoff *backoff.Controller
	filter  filters.Config
	gate    *media.Gate
	opts    Options
	logger  *zerolog.Logger
}

func New(source ports.ChatSource, store ports.Store, bc *backoff.Controller, filter filters.Config, opts Options, logger *zerolog.Logger) *Harvester {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	if bc == nil {
		bc = backoff.New(0, logger)
	}

	return &Harvester{
		source:  source,
		store:   store,
		cursors: cursor.New(store, logger),
		backoff: bc,
		filter:  filter,
		gate:    media.NewGate(filter, logger),
		opts:    opts.withDefaults(),
		logger:  logger,
	}
}

// Run ingests every chat in scope, one at a time. Unresolvable chats are
// skipped. A store write failure or cancellation stops the run.
func (h *Harvester) Run(ctx context.Context) (Summary, error) {
	sum := Summary{RunID: uuid.NewString()}
	logger := h.logger.With().Str(logFieldRunID, sum.RunID).Logger()

	chatIDs, err := h.scope(ctx)
	if err != nil {
		return sum, err
	}

	logger.Info().Int("chats", len(chatIDs)).Msg("starting harvest run")

	for _, chatID := range chatIDs {
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("harvest run: %w", err)
		}

		sum.Chats++

		stats, err := h.ingestChat(ctx, chatID, &logger)
		sum.add(stats)

		var skip *skipError
		if errors.As(err, &skip) {
			sum.Skipped++
			observability.ChatsSkipped.Inc()
			logger.Warn().Err(skip.err).Int64(logFieldChat, chatID).Msg("skipping chat")

			continue
		}

		if err != nil {
			logger.Error().Err(err).Int64(logFieldChat, chatID).Object("summary", sum).Msg("harvest run aborted")
			return sum, err
		}
	}

	logger.Info().Object("summary", sum).Msg("harvest run finished")

	return sum, nil
}

func (h *Harvester) scope(ctx context.Context) ([]int64, error) {
	if len(h.filter.ChatIDs) > 0 {
		return h.filter.ChatIDs, nil
	}

	ids, err := h.store.GetActiveChatIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active chats: %w", err)
	}

	return ids, nil
}

// skipError marks a per-chat failure that does not stop the run.
type skipError struct {
	err error
}

func (e *skipError) Error() string { return e.err.Error() }

func (e *skipError) Unwrap() error { return e.err }

// chatWalk holds the state of one chat's ingestion.
type chatWalk struct {
	chatID  int64
	label   string
	cursor  int64
	maxSeen int64
	batch   []domain.Record
	pages   *pager
	rec     *album.Reconstructor
	stats   Summary
	logger  zerolog.Logger
}

// IngestChat ingests a single chat. Resolution failures are returned wrapped
// in an error that Run treats as a skip.
func (h *Harvester) IngestChat(ctx context.Context, chatID int64) (Summary, error) {
	return h.ingestChat(ctx, chatID, h.logger)
}

func (h *Harvester) ingestChat(ctx context.Context, chatID int64, parent *zerolog.Logger) (Summary, error) {
	logger := parent.With().Int64(logFieldChat, chatID).Logger()

	entity, err := backoff.Call(ctx, h.backoff, "resolve_chat", func(ctx context.Context) (domain.Entity, error) {
		return h.source.ResolveChat(ctx, chatID)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Summary{}, fmt.Errorf("resolve chat %d: %w", chatID, ctxErr)
		}

		return Summary{}, &skipError{err: fmt.Errorf("resolve chat %d: %w", chatID, err)}
	}

	title := DeriveTitle(entity)
	if err := h.store.UpsertChat(ctx, domain.Chat{ID: chatID, Title: title}); err != nil {
		return Summary{}, fmt.Errorf("%w: %w", apperrors.ErrStoreWrite, err)
	}

	w := &chatWalk{
		chatID: chatID,
		label:  strconv.FormatInt(chatID, 10),
		logger: logger,
	}
	w.cursor = h.cursors.Get(ctx, chatID)
	w.maxSeen = w.cursor
	w.pages = newPager(h.source, h.backoff, chatID, w.cursor, h.opts.PageSize)
	w.rec = album.New(w.pages, h.opts.Lookahead)

	logger.Info().Str("title", title).Int64("cursor", w.cursor).Msg("walking chat history")

	if err := h.walk(ctx, w); err != nil {
		return w.stats, err
	}

	if err := h.flush(ctx, w); err != nil {
		return w.stats, err
	}

	logger.Info().Object("stats", w.stats).Int64("cursor", w.cursor).Msg("chat done")

	return w.stats, nil
}

func (h *Harvester) walk(ctx context.Context, w *chatWalk) error {
	for {
		g, ok, err := w.rec.Next(ctx)
		if err != nil {
			return h.abortWalk(ctx, w, err)
		}

		if !ok {
			// Trailing service entries are covered by the cursor too.
			if pos := w.pages.position(); pos > w.maxSeen {
				w.maxSeen = pos
			}

			return nil
		}

		if g.Straggler {
			w.logger.Warn().
				Int64("album_id", g.AlbumID).
				Int64(logFieldMsgID, g.Members[0].ID).
				Msg("album member found past the look-ahead window")
		}

		for _, c := range g.Candidates() {
			if err := h.handle(ctx, w, c); err != nil {
				return err
			}
		}

		if len(w.batch) >= h.opts.BatchSize {
			if err := h.flush(ctx, w); err != nil {
				return err
			}
		}
	}
}

// abortWalk keeps the progress made so far when the stream fails mid-chat.
// Cancellation and flush failures are fatal; other errors skip the chat.
func (h *Harvester) abortWalk(ctx context.Context, w *chatWalk, cause error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("walk chat %d: %w", w.chatID, cause)
	}

	if err := h.flush(ctx, w); err != nil {
		return err
	}

	return &skipError{err: fmt.Errorf("walk chat %d: %w", w.chatID, cause)}
}

func (h *Harvester) handle(ctx context.Context, w *chatWalk, c domain.Candidate) error {
	id := c.Message.ID
	if id <= w.cursor {
		return nil
	}

	w.stats.Processed++
	observability.MessagesProcessed.WithLabelValues(w.label).Inc()

	if id > w.maxSeen {
		w.maxSeen = id
	}

	if keep, reason := filters.Evaluate(c, h.filter); !keep {
		w.stats.Filtered++
		observability.DropsTotal.WithLabelValues(reason).Inc()
		w.logger.Debug().Int64(logFieldMsgID, id).Str("reason", reason).Msg("message filtered")

		return nil
	}

	path, err := h.fetchMedia(ctx, w, c)
	if err != nil {
		return err
	}

	w.batch = append(w.batch, c.Record(path))

	return nil
}

// fetchMedia downloads the attachment when the gate allows it. Download
// failures keep the message without a media path; only cancellation is returned.
func (h *Harvester) fetchMedia(ctx context.Context, w *chatWalk, c domain.Candidate) (string, error) {
	if h.opts.MediaDir == "" || !h.gate.ShouldDownload(c) {
		return "", nil
	}

	path, err := backoff.Call(ctx, h.backoff, "download_media", func(ctx context.Context) (string, error) {
		return h.source.DownloadMedia(ctx, c.Message, h.opts.MediaDir)
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("download media %d: %w", c.Message.ID, ctx.Err())
		}

		w.stats.DownloadFails++
		observability.MediaDownloads.WithLabelValues(mediaStatusFailed).Inc()
		w.logger.Warn().Err(err).Int64(logFieldMsgID, c.Message.ID).Msg("media download failed, keeping message without media")

		return "", nil
	}

	kept, err := h.gate.Keep(path)
	if err != nil {
		w.logger.Warn().Err(err).Int64(logFieldMsgID, c.Message.ID).Msg("failed to remove rejected media")
	}

	if kept == "" {
		w.stats.MediaRejected++
		observability.MediaDownloads.WithLabelValues(mediaStatusRejected).Inc()

		return "", nil
	}

	w.stats.Downloaded++
	observability.MediaDownloads.WithLabelValues(mediaStatusOK).Inc()

	return kept, nil
}

// flush writes the batch and moves the cursor to the highest id whose
// predecessors have all been processed.
func (h *Harvester) flush(ctx context.Context, w *chatWalk) error {
	if len(w.batch) > 0 {
		start := time.Now()

		if err := h.store.SaveMessages(ctx, w.batch); err != nil {
			return fmt.Errorf("%w: chat %d: %w", apperrors.ErrStoreWrite, w.chatID, err)
		}

		observability.BatchFlushDuration.Observe(time.Since(start).Seconds())
		observability.MessagesStored.WithLabelValues(w.label).Add(float64(len(w.batch)))

		w.stats.Stored += len(w.batch)
		w.batch = w.batch[:0]
	}

	mark := watermark(w.maxSeen, w.rec)
	if mark <= w.cursor {
		return nil
	}

	if err := h.cursors.Advance(ctx, w.chatID, mark); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrStoreWrite, err)
	}

	w.cursor = mark
	observability.CursorPosition.WithLabelValues(w.label).Set(float64(mark))

	return nil
}

// watermark caps maxSeen below any message still held in the look-ahead buffer.
func watermark(maxSeen int64, rec *album.Reconstructor) int64 {
	if lowest, ok := rec.LowestPending(); ok && lowest-1 < maxSeen {
		return lowest - 1
	}

	return maxSeen
}

// DeriveTitle picks the display title of a chat: its title, else @username,
// else first name, else a placeholder.
func DeriveTitle(e domain.Entity) string {
	switch {
	case e.Title != "":
		return e.Title
	case e.Username != "":
		return "@" + e.Username
	case e.FirstName != "":
		return e.FirstName
	default:
		return unknownChatTitle
	}
}
