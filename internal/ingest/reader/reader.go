// Package reader is the Telegram chat source: an MTProto user client that
// lists dialogs, pages through chat history and downloads attachments.
package reader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/rs/zerolog"

	"github.com/lueurxax/telegram-harvester/internal/core/domain"
	apperrors "github.com/lueurxax/telegram-harvester/internal/core/errors"
	"github.com/lueurxax/telegram-harvester/internal/core/ports"
)

const (
	dialogsPageSize = 100
	mediaDirPerm    = 0o750
	sessionDirPerm  = 0o700
)

// Errors that mean the peer does not exist or is not accessible to this account.
var notFoundTypes = []string{
	"CHANNEL_PRIVATE",
	"CHANNEL_INVALID",
	"CHAT_ID_INVALID",
	"PEER_ID_INVALID",
	"USERNAME_NOT_OCCUPIED",
}

var _ ports.ChatSource = (*Reader)(nil)

// Config holds the MTProto credentials and session location.
type Config struct {
	APIID       int
	APIHash     string
	SessionPath string
	Phone       string
	Password    string
}

type msgKey struct {
	chatID int64
	id     int64
}

// Reader implements ports.ChatSource. It is usable only inside Run.
type Reader struct {
	cfg    Config
	logger *zerolog.Logger
	in     io.Reader
	out    io.Writer

	mu            sync.Mutex
	api           *tg.Client
	peers         map[int64]peerRef
	dialogsLoaded bool
	locations     map[msgKey]tg.InputFileLocationClass
}

func New(cfg Config, logger *zerolog.Logger) *Reader {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Reader{
		cfg:       cfg,
		logger:    logger,
		in:        os.Stdin,
		out:       os.Stdout,
		peers:     make(map[int64]peerRef),
		locations: make(map[msgKey]tg.InputFileLocationClass),
	}
}

// Run connects, authenticates if the session is not yet authorized, and calls
// fn. The connection is closed when fn returns.
func (r *Reader) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if dir := filepath.Dir(r.cfg.SessionPath); dir != "" {
		if err := os.MkdirAll(dir, sessionDirPerm); err != nil {
			return fmt.Errorf("create session dir: %w", err)
		}
	}

	client := telegram.NewClient(r.cfg.APIID, r.cfg.APIHash, telegram.Options{
		SessionStorage: &telegram.FileSessionStorage{
			Path: r.cfg.SessionPath,
		},
	})

	return client.Run(ctx, func(ctx context.Context) error {
		flow := newTerminal(r.cfg.Phone, r.cfg.Password, r.in, r.out, r.logger).flow()
		if err := client.Auth().IfNecessary(ctx, flow); err != nil {
			return fmt.Errorf("auth: %w", err)
		}

		r.logger.Info().Msg("Successfully authenticated as user")

		r.mu.Lock()
		r.api = tg.NewClient(client)
		r.mu.Unlock()

		defer func() {
			r.mu.Lock()
			r.api = nil
			r.mu.Unlock()
		}()

		return fn(ctx)
	})
}

func (r *Reader) client() (*tg.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.api == nil {
		return nil, fmt.Errorf("telegram client is not running: %w", apperrors.ErrInvalidInput)
	}

	return r.api, nil
}

func (r *Reader) remember(refs ...peerRef) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ref := range refs {
		r.peers[ref.entity.ID] = ref
	}
}

func (r *Reader) lookup(id int64) (peerRef, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ref, ok := r.peers[id]

	return ref, ok
}

// ListDialogs enumerates every dialog of the account and caches their peers.
func (r *Reader) ListDialogs(ctx context.Context) ([]domain.Entity, error) {
	api, err := r.client()
	if err != nil {
		return nil, err
	}

	var (
		out  []domain.Entity
		seen = make(map[int64]bool)
		req  = &tg.MessagesGetDialogsRequest{OffsetPeer: &tg.InputPeerEmpty{}, Limit: dialogsPageSize}
	)

	for {
		resp, err := api.MessagesGetDialogs(ctx, req)
		if err != nil {
			return nil, mapError("get dialogs", err)
		}

		page, ok := newDialogsPage(resp)
		if !ok {
			break
		}

		r.remember(chatRefs(page.chats)...)
		r.remember(userRefs(page.users)...)

		for _, d := range page.dialogs {
			id := peerID(d.Peer)
			if seen[id] {
				continue
			}

			seen[id] = true

			if ref, ok := r.lookup(id); ok {
				out = append(out, ref.entity)
			}
		}

		if page.complete || len(page.dialogs) < dialogsPageSize {
			break
		}

		next, ok := r.nextDialogsOffset(page)
		if !ok {
			break
		}

		req.OffsetDate, req.OffsetID, req.OffsetPeer = next.date, next.id, next.peer
	}

	r.mu.Lock()
	r.dialogsLoaded = true
	r.mu.Unlock()

	r.logger.Debug().Int("dialogs", len(out)).Msg("dialogs listed")

	return out, nil
}

type dialogsPage struct {
	dialogs  []*tg.Dialog
	messages []tg.MessageClass
	chats    []tg.ChatClass
	users    []tg.UserClass
	complete bool
}

func newDialogsPage(resp tg.MessagesDialogsClass) (dialogsPage, bool) {
	var (
		page    dialogsPage
		dialogs []tg.DialogClass
	)

	switch d := resp.(type) {
	case *tg.MessagesDialogs:
		dialogs, page.messages, page.chats, page.users = d.Dialogs, d.Messages, d.Chats, d.Users
		page.complete = true
	case *tg.MessagesDialogsSlice:
		dialogs, page.messages, page.chats, page.users = d.Dialogs, d.Messages, d.Chats, d.Users
	default:
		return dialogsPage{}, false
	}

	for _, d := range dialogs {
		if dlg, ok := d.(*tg.Dialog); ok {
			page.dialogs = append(page.dialogs, dlg)
		}
	}

	return page, true
}

type dialogsOffset struct {
	date int
	id   int
	peer tg.InputPeerClass
}

// nextDialogsOffset derives the pagination offset from the last dialog's top message.
func (r *Reader) nextDialogsOffset(page dialogsPage) (dialogsOffset, bool) {
	if len(page.dialogs) == 0 {
		return dialogsOffset{}, false
	}

	last := page.dialogs[len(page.dialogs)-1]
	lastPeer := peerID(last.Peer)

	ref, ok := r.lookup(lastPeer)
	if !ok {
		return dialogsOffset{}, false
	}

	for _, m := range page.messages {
		var date, id int

		var peer tg.PeerClass

		switch m := m.(type) {
		case *tg.Message:
			date, id, peer = m.Date, m.ID, m.PeerID
		case *tg.MessageService:
			date, id, peer = m.Date, m.ID, m.PeerID
		default:
			continue
		}

		if id == last.TopMessage && peerID(peer) == lastPeer {
			return dialogsOffset{date: date, id: id, peer: ref.input}, true
		}
	}

	return dialogsOffset{}, false
}

// ResolveChat returns the entity for chatID. Peers come from the dialog list,
// which is loaded on first miss.
func (r *Reader) ResolveChat(ctx context.Context, chatID int64) (domain.Entity, error) {
	ref, err := r.peer(ctx, chatID)
	if err != nil {
		return domain.Entity{}, err
	}

	return ref.entity, nil
}

func (r *Reader) peer(ctx context.Context, chatID int64) (peerRef, error) {
	if ref, ok := r.lookup(chatID); ok {
		return ref, nil
	}

	r.mu.Lock()
	loaded := r.dialogsLoaded
	r.mu.Unlock()

	if !loaded {
		if _, err := r.ListDialogs(ctx); err != nil {
			return peerRef{}, fmt.Errorf("resolve chat %d: %w", chatID, err)
		}

		if ref, ok := r.lookup(chatID); ok {
			return ref, nil
		}
	}

	return peerRef{}, fmt.Errorf("resolve chat %d: %w", chatID, apperrors.ErrNotFound)
}

// FetchMessages returns up to limit messages newer than afterID, oldest first.
// Service messages are left out but counted in LastID.
func (r *Reader) FetchMessages(ctx context.Context, chatID, afterID int64, limit int) (domain.HistoryPage, error) {
	api, err := r.client()
	if err != nil {
		return domain.HistoryPage{}, err
	}

	ref, err := r.peer(ctx, chatID)
	if err != nil {
		return domain.HistoryPage{}, err
	}

	r.pruneLocations(chatID, afterID)

	history, err := api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:      ref.input,
		OffsetID:  int(afterID) + 1,
		AddOffset: -limit,
		Limit:     limit,
		MinID:     int(afterID),
	})
	if err != nil {
		return domain.HistoryPage{}, mapError("get history", err)
	}

	var raw []tg.MessageClass

	switch h := history.(type) {
	case *tg.MessagesMessages:
		raw = h.Messages
	case *tg.MessagesMessagesSlice:
		raw = h.Messages
	case *tg.MessagesChannelMessages:
		raw = h.Messages
	case *tg.MessagesMessagesNotModified:
		return domain.HistoryPage{}, nil
	}

	page, locs := historyPage(chatID, afterID, raw)

	r.mu.Lock()
	for k, v := range locs {
		r.locations[k] = v
	}
	r.mu.Unlock()

	r.logger.Debug().
		Int64("chat_id", chatID).
		Int64("after_id", afterID).
		Int64("last_id", page.LastID).
		Int("count", len(page.Messages)).
		Msg("history page")

	return page, nil
}

// historyPage converts a raw history slice. LastID covers every entry newer
// than afterID, including those convertMessage rejects.
func historyPage(chatID, afterID int64, raw []tg.MessageClass) (domain.HistoryPage, map[msgKey]tg.InputFileLocationClass) {
	page := domain.HistoryPage{Messages: make([]domain.Message, 0, len(raw))}
	locs := make(map[msgKey]tg.InputFileLocationClass)

	for _, m := range raw {
		if id := int64(m.GetID()); id > afterID && id > page.LastID {
			page.LastID = id
		}

		msg, loc, ok := convertMessage(chatID, m)
		if !ok || msg.ID <= afterID {
			continue
		}

		if loc != nil {
			locs[msgKey{chatID: chatID, id: msg.ID}] = loc
		}

		page.Messages = append(page.Messages, msg)
	}

	sort.Slice(page.Messages, func(i, j int) bool { return page.Messages[i].ID < page.Messages[j].ID })

	return page, locs
}

// pruneLocations forgets file locations of chatID messages at or below
// afterID. The walk has moved past them, so they will not be downloaded.
func (r *Reader) pruneLocations(chatID, afterID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k := range r.locations {
		if k.chatID == chatID && k.id <= afterID {
			delete(r.locations, k)
		}
	}
}

// DownloadMedia saves the attachment to <dir>/<chat id>/<message id>.<ext>.
// Only messages returned by FetchMessages can be downloaded.
func (r *Reader) DownloadMedia(ctx context.Context, msg domain.Message, dir string) (string, error) {
	api, err := r.client()
	if err != nil {
		return "", err
	}

	key := msgKey{chatID: msg.ChatID, id: msg.ID}

	r.mu.Lock()
	loc, ok := r.locations[key]
	r.mu.Unlock()

	if !ok || msg.Media == nil {
		return "", fmt.Errorf("download media %d/%d: no file location: %w", msg.ChatID, msg.ID, apperrors.ErrNotFound)
	}

	path := mediaPath(dir, msg)
	if err := os.MkdirAll(filepath.Dir(path), mediaDirPerm); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}

	if _, err := downloader.NewDownloader().Download(api, loc).ToPath(ctx, path); err != nil {
		_ = os.Remove(path)
		return "", mapError("download media", err)
	}

	r.mu.Lock()
	delete(r.locations, key)
	r.mu.Unlock()

	return path, nil
}

func mediaPath(dir string, msg domain.Message) string {
	name := strconv.FormatInt(msg.ID, 10)
	if ext := msg.Media.Extension(); ext != "" {
		name += "." + ext
	}

	return filepath.Join(dir, strconv.FormatInt(msg.ChatID, 10), name)
}

// mapError converts throttling into *domain.RateLimitError and inaccessible
// peers into ErrNotFound.
func mapError(op string, err error) error {
	if rpcErr, ok := tgerr.As(err); ok {
		switch rpcErr.Type {
		case "FLOOD_WAIT", "FLOOD_PREMIUM_WAIT":
			return fmt.Errorf("%s: %w", op, &domain.RateLimitError{Wait: time.Duration(rpcErr.Argument) * time.Second})
		}
	}

	if tgerr.Is(err, notFoundTypes...) {
		return fmt.Errorf("%s: %w: %w", op, apperrors.ErrNotFound, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
