package harvester

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/telegram-harvester/internal/core/domain"
	apperrors "github.com/lueurxax/telegram-harvester/internal/core/errors"
	"github.com/lueurxax/telegram-harvester/internal/core/ports/mocks"
	"github.com/lueurxax/telegram-harvester/internal/process/filters"
	"github.com/lueurxax/telegram-harvester/internal/storage/memory"
)

const testChatID = int64(-1001512290359)

var baseDate = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func textMsg(id int64, text string) domain.Message {
	return domain.Message{ID: id, ChatID: testChatID, Date: baseDate.Add(time.Duration(id) * time.Minute), Text: text}
}

func photoMsg(id, albumID int64, text string) domain.Message {
	m := textMsg(id, text)
	m.AlbumID = albumID
	m.Media = &domain.Media{Kind: domain.MediaPhoto, MIMEType: "image/jpeg", Size: 1024}

	return m
}

type fixture struct {
	source *mocks.ChatSource
	store  *memory.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	src := mocks.NewChatSource()
	src.AddChat(domain.Entity{ID: testChatID, Kind: domain.ChatKindChannel, Title: "Deep sermons"})

	st := memory.New()
	require.NoError(t, st.UpsertChat(context.Background(), domain.Chat{ID: testChatID}))
	require.NoError(t, st.SetChatActive(context.Background(), testChatID, true))

	return &fixture{source: src, store: st}
}

func (f *fixture) harvester(cfg filters.Config, opts Options) *Harvester {
	return New(f.source, f.store, nil, cfg, opts, nil)
}

func (f *fixture) stored(t *testing.T) []int64 {
	t.Helper()

	recs, err := f.store.ListMessages(context.Background(), testChatID)
	require.NoError(t, err)

	ids := make([]int64, len(recs))
	for i, r := range recs {
		ids[i] = r.MessageID
	}

	return ids
}

func (f *fixture) cursor(t *testing.T) int64 {
	t.Helper()

	id, err := f.store.GetLastMessageID(context.Background(), testChatID)
	require.NoError(t, err)

	return id
}

func TestRun_HashtagScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SetLastMessageID(ctx, testChatID, 100))
	f.source.AddMessages(testChatID,
		textMsg(99, "old"),
		textMsg(101, "hello"),
		photoMsg(102, 0, ""),
		textMsg(103, "#news update"),
	)

	cfg := filters.Config{Types: []string{filters.TypeText}, Hashtags: []string{"#news"}}

	sum, err := f.harvester(cfg, Options{}).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, []int64{103}, f.stored(t))
	assert.Equal(t, int64(103), f.cursor(t))
	assert.Equal(t, 3, sum.Processed)
	assert.Equal(t, 2, sum.Filtered)
	assert.Equal(t, 1, sum.Stored)
	assert.NotEmpty(t, sum.RunID)

	require.NotEmpty(t, f.source.FetchCalls)
	assert.Equal(t, int64(100), f.source.FetchCalls[0].AfterID)

	chat, err := f.store.GetChat(ctx, testChatID)
	require.NoError(t, err)
	assert.Equal(t, "Deep sermons", chat.Title)
	assert.True(t, chat.Active)
}

func TestRun_ResumptionIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := int64(1); i <= 7; i++ {
		f.source.AddMessages(testChatID, textMsg(i, "m"+strconv.FormatInt(i, 10)))
	}

	h := f.harvester(filters.Config{}, Options{BatchSize: 3, PageSize: 2})

	_, err := h.Run(ctx)
	require.NoError(t, err)

	first := f.stored(t)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7}, first)
	assert.Equal(t, int64(7), f.cursor(t))

	sum, err := h.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.Processed)
	assert.Equal(t, first, f.stored(t))
}

func TestRun_WalksPastServiceOnlyPage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.source.AddMessages(testChatID, textMsg(1, "a"), textMsg(5, "e"), textMsg(6, "f"))
	f.source.AddServiceEntries(testChatID, 2, 3, 4)

	h := f.harvester(filters.Config{}, Options{PageSize: 3})

	sum, err := h.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 5, 6}, f.stored(t))
	assert.Equal(t, int64(6), f.cursor(t))
	assert.Equal(t, 3, sum.Processed)

	sum, err = h.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.Processed)
	assert.Equal(t, []int64{1, 5, 6}, f.stored(t))
}

func TestRun_CursorCoversTrailingServiceEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.source.AddMessages(testChatID, textMsg(1, "a"))
	f.source.AddServiceEntries(testChatID, 2, 3)

	_, err := f.harvester(filters.Config{}, Options{PageSize: 2}).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, []int64{1}, f.stored(t))
	assert.Equal(t, int64(3), f.cursor(t))
}

func TestRun_ReplayAfterLostCursor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.source.AddMessages(testChatID, textMsg(1, "a"), textMsg(2, "b"))

	_, err := f.harvester(filters.Config{}, Options{}).Run(ctx)
	require.NoError(t, err)

	fresh := memory.New()
	require.NoError(t, fresh.UpsertChat(ctx, domain.Chat{ID: testChatID}))
	require.NoError(t, fresh.SetChatActive(ctx, testChatID, true))
	require.NoError(t, fresh.SaveMessages(ctx, []domain.Record{{ChatID: testChatID, MessageID: 1, Text: "a"}}))

	_, err = New(f.source, fresh, nil, filters.Config{}, Options{}, nil).Run(ctx)
	require.NoError(t, err)

	recs, err := fresh.ListMessages(ctx, testChatID)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestRun_CursorAdvancesAtFlushPoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		f.source.AddMessages(testChatID, textMsg(i, "x"))
	}

	sum, err := f.harvester(filters.Config{}, Options{BatchSize: 2}).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(5), f.cursor(t))
	assert.Equal(t, 3, f.store.Saves, "two full batches and the remainder")
	assert.Equal(t, 5, sum.Stored)
}

func TestRun_AlbumMembersShareCaption(t *testing.T) {
	f := newFixture(t)

	f.source.AddMessages(testChatID,
		photoMsg(10, 500, ""),
		textMsg(11, "interleaved"),
		photoMsg(12, 500, "Sunday service"),
		photoMsg(13, 500, "ignored"),
	)

	_, err := f.harvester(filters.Config{}, Options{}).Run(context.Background())
	require.NoError(t, err)

	recs, err := f.store.ListMessages(context.Background(), testChatID)
	require.NoError(t, err)
	require.Len(t, recs, 4)

	for _, r := range recs {
		if r.AlbumID == 500 {
			assert.Equal(t, "Sunday service", r.Text, "message %d", r.MessageID)
		}
	}

	assert.Equal(t, "interleaved", recs[1].Text)
	assert.Equal(t, int64(13), f.cursor(t))
}

func TestRun_AlbumWithoutTextUsesSentinelAndPassesCaptionPolicy(t *testing.T) {
	f := newFixture(t)

	f.source.AddMessages(testChatID, photoMsg(1, 9, ""), photoMsg(2, 9, ""))

	cfg := filters.Config{Types: []string{filters.TypePhoto}, Keywords: []string{"sermon"}}

	sum, err := f.harvester(cfg, Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, f.stored(t), "uncaptioned media is refused when content filters exist")
	assert.Equal(t, 2, sum.Filtered)
	assert.Equal(t, int64(2), f.cursor(t))
}

func TestRun_RetriesAfterRateLimit(t *testing.T) {
	f := newFixture(t)

	f.source.AddMessages(testChatID, textMsg(1, "a"), textMsg(2, "b"))
	f.source.FailNextFetch(&domain.RateLimitError{Wait: time.Millisecond})

	_, err := f.harvester(filters.Config{}, Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2}, f.stored(t))
	require.GreaterOrEqual(t, len(f.source.FetchCalls), 2)
	assert.Equal(t, f.source.FetchCalls[0], f.source.FetchCalls[1], "same request is re-issued")
}

func TestRun_SkipsUnresolvableChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const missing = int64(-1009999)

	f.source.AddMessages(testChatID, textMsg(1, "a"))

	cfg := filters.Config{ChatIDs: []int64{missing, testChatID}}

	sum, err := f.harvester(cfg, Options{}).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Chats)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, []int64{1}, f.stored(t))

	_, err = f.store.GetChat(ctx, missing)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

// flakySource fails history requests starting after failAfter.
type flakySource struct {
	*mocks.ChatSource
	failAfter int64
}

func (s *flakySource) FetchMessages(ctx context.Context, chatID, afterID int64, limit int) (domain.HistoryPage, error) {
	if afterID >= s.failAfter {
		return domain.HistoryPage{}, errors.New("connection reset")
	}

	return s.ChatSource.FetchMessages(ctx, chatID, afterID, limit)
}

func TestRun_FetchErrorSkipsChatButKeepsProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.source.AddMessages(testChatID, textMsg(1, "a"), textMsg(2, "b"), textMsg(3, "c"))

	flaky := &flakySource{ChatSource: f.source, failAfter: 2}

	sum, err := New(flaky, f.store, nil, filters.Config{}, Options{PageSize: 2}, nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, []int64{1, 2}, f.stored(t))
	assert.Equal(t, int64(2), f.cursor(t))

	_, err = f.harvester(filters.Config{}, Options{PageSize: 2}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, f.stored(t))
}

func TestRun_StoreFailureAbortsWithoutAdvancingCursor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SetLastMessageID(ctx, testChatID, 10))
	f.source.AddMessages(testChatID, textMsg(11, "a"), textMsg(12, "b"))

	f.store.SaveErr = errors.New("disk full")

	_, err := f.harvester(filters.Config{}, Options{}).Run(ctx)
	require.ErrorIs(t, err, apperrors.ErrStoreWrite)

	assert.Equal(t, int64(10), f.cursor(t))
	assert.Empty(t, f.stored(t))
}

func TestRun_RejectsMismatchedExtension(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()

	f.source.AddMessages(testChatID, photoMsg(1, 0, "pic"))
	f.source.DownloadMediaFn = func(_ context.Context, msg domain.Message, dir string) (string, error) {
		path := filepath.Join(dir, strconv.FormatInt(msg.ID, 10)+".webp")
		return path, os.WriteFile(path, []byte("webp"), 0o600)
	}

	cfg := filters.Config{Types: []string{"jpg"}}

	sum, err := f.harvester(cfg, Options{MediaDir: dir}).Run(context.Background())
	require.NoError(t, err)

	recs, err := f.store.ListMessages(context.Background(), testChatID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Empty(t, recs[0].MediaPath)
	assert.Equal(t, 1, sum.MediaRejected)

	_, statErr := os.Stat(filepath.Join(dir, "1.webp"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_DownloadsMediaAndKeepsMessageOnFailure(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()

	f.source.AddMessages(testChatID, photoMsg(1, 0, "ok"), photoMsg(2, 0, "broken"))

	h := f.harvester(filters.Config{}, Options{MediaDir: dir})

	f.source.DownloadMediaFn = func(ctx context.Context, msg domain.Message, dir string) (string, error) {
		if msg.ID == 2 {
			return "", errors.New("file reference expired")
		}

		path := filepath.Join(dir, "1.jpg")

		return path, os.WriteFile(path, []byte("jpg"), 0o600)
	}

	sum, err := h.Run(context.Background())
	require.NoError(t, err)

	recs, err := f.store.ListMessages(context.Background(), testChatID)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, filepath.Join(dir, "1.jpg"), recs[0].MediaPath)
	assert.Empty(t, recs[1].MediaPath)
	assert.Equal(t, 1, sum.Downloaded)
	assert.Equal(t, 1, sum.DownloadFails)
}

func TestRun_UsesActiveChatsWhenNoAllowList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.UpsertChat(ctx, domain.Chat{ID: 42, Title: "inactive"}))

	sum, err := f.harvester(filters.Config{}, Options{}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Chats)
}

func TestDiscover_WritesDialogLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.source.AddChat(domain.Entity{ID: 50095099, Kind: domain.ChatKindUser, Username: "suenot"})

	var out bytes.Buffer

	n, err := f.harvester(filters.Config{}, Options{}).Discover(ctx, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t,
		"Title: Deep sermons, ID: -1001512290359, Type: channel\n"+
			"Title: @suenot, ID: 50095099, Type: user\n",
		out.String())

	chat, err := f.store.GetChat(ctx, 50095099)
	require.NoError(t, err)
	assert.False(t, chat.Active)
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name string
		in   domain.Entity
		want string
	}{
		{name: "title", in: domain.Entity{Title: "T", Username: "u"}, want: "T"},
		{name: "username", in: domain.Entity{Username: "u", FirstName: "F"}, want: "@u"},
		{name: "first name", in: domain.Entity{FirstName: "F"}, want: "F"},
		{name: "nothing", in: domain.Entity{}, want: "Unknown chat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveTitle(tt.in))
		})
	}
}
