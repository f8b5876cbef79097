package harvester

import (
	"context"

	"github.com/lueurxax/telegram-harvester/internal/core/domain"
	"github.com/lueurxax/telegram-harvester/internal/core/ports"
	"github.com/lueurxax/telegram-harvester/internal/ingest/backoff"
)

// pager streams a chat's history page by page, oldest first. A rate-limited
// page is re-requested from the same position. Pages holding only service
// entries move the position forward without yielding messages.
type pager struct {
	source   ports.ChatSource
	backoff  *backoff.Controller
	chatID   int64
	after    int64
	pageSize int
	buf      []domain.Message
	done     bool
}

func newPager(source ports.ChatSource, bc *backoff.Controller, chatID, after int64, pageSize int) *pager {
	return &pager{
		source:   source,
		backoff:  bc,
		chatID:   chatID,
		after:    after,
		pageSize: pageSize,
	}
}

// Next implements album.Stream.
func (p *pager) Next(ctx context.Context) (domain.Message, bool, error) {
	for len(p.buf) == 0 {
		if p.done {
			return domain.Message{}, false, nil
		}

		if err := p.fetch(ctx); err != nil {
			return domain.Message{}, false, err
		}
	}

	m := p.buf[0]
	p.buf = p.buf[1:]

	return m, true, nil
}

// position is the highest upstream id fetched so far.
func (p *pager) position() int64 {
	return p.after
}

func (p *pager) fetch(ctx context.Context) error {
	page, err := backoff.Call(ctx, p.backoff, "get_history", func(ctx context.Context) (domain.HistoryPage, error) {
		return p.source.FetchMessages(ctx, p.chatID, p.after, p.pageSize)
	})
	if err != nil {
		return err
	}

	next := p.after
	if page.LastID > next {
		next = page.LastID
	}

	fresh := make([]domain.Message, 0, len(page.Messages))

	for _, m := range page.Messages {
		if m.ID <= p.after {
			continue
		}

		if m.ChatID == 0 {
			m.ChatID = p.chatID
		}

		if m.ID > next {
			next = m.ID
		}

		fresh = append(fresh, m)
	}

	if next == p.after {
		p.done = true
		return nil
	}

	p.after = next
	p.buf = fresh

	return nil
}
