// Package album reassembles grouped messages (albums) from an ascending
// message stream.
//
// When a message with an unseen album id arrives, the reconstructor scans a
// bounded window of upcoming messages and pulls every member of that album
// forward. Messages of other albums or without an album stay buffered in their
// original order. All members share one caption: the first non-empty text, or
// domain.NoTextCaption.
package album

import (
	"context"

	"github.com/lueurxax/telegram-harvester/internal/core/domain"
)

// DefaultWindow is the look-ahead cap used when none is configured.
const DefaultWindow = 100

// Stream yields messages in ascending id order. ok is false at end of stream.
type Stream interface {
	Next(ctx context.Context) (msg domain.Message, ok bool, err error)
}

// Group is a completed album or a single ungrouped message.
type Group struct {
	AlbumID int64
	Members []domain.Message
	// Caption is the shared album caption. It is empty for ungrouped messages.
	Caption string
	// Straggler marks album members found after the album was completed.
	Straggler bool
}

// Candidates returns the members with the shared caption threaded as an override.
func (g Group) Candidates() []domain.Candidate {
	out := make([]domain.Candidate, len(g.Members))

	for i, m := range g.Members {
		if g.AlbumID == 0 {
			out[i] = domain.NewCandidate(m)
			continue
		}

		caption := g.Caption
		out[i] = domain.Candidate{Message: m, CaptionOverride: &caption}
	}

	return out
}

// Reconstructor turns a flat Stream into Groups.
type Reconstructor struct {
	src       Stream
	window    int
	pending   []domain.Message
	completed map[int64]string
	exhausted bool
}

// New wraps src. A non-positive window selects DefaultWindow.
func New(src Stream, window int) *Reconstructor {
	if window <= 0 {
		window = DefaultWindow
	}

	return &Reconstructor{
		src:       src,
		window:    window,
		completed: make(map[int64]string),
	}
}

// Next returns the next group. ok is false once the stream and buffer are drained.
func (r *Reconstructor) Next(ctx context.Context) (Group, bool, error) {
	first, ok, err := r.pop(ctx)
	if err != nil || !ok {
		return Group{}, false, err
	}

	if first.AlbumID == 0 {
		return Group{Members: []domain.Message{first}}, true, nil
	}

	if caption, done := r.completed[first.AlbumID]; done {
		return Group{AlbumID: first.AlbumID, Members: []domain.Message{first}, Caption: caption, Straggler: true}, true, nil
	}

	if err := r.fill(ctx); err != nil {
		r.pending = append([]domain.Message{first}, r.pending...)
		return Group{}, false, err
	}

	members := []domain.Message{first}
	rest := r.pending[:0]

	for _, m := range r.pending {
		if m.AlbumID == first.AlbumID {
			members = append(members, m)
		} else {
			rest = append(rest, m)
		}
	}

	r.pending = rest

	caption := SharedCaption(members)
	r.completed[first.AlbumID] = caption

	return Group{AlbumID: first.AlbumID, Members: members, Caption: caption}, true, nil
}

// LowestPending returns the smallest id pulled from the stream but not yet emitted.
func (r *Reconstructor) LowestPending() (int64, bool) {
	if len(r.pending) == 0 {
		return 0, false
	}

	lowest := r.pending[0].ID

	for _, m := range r.pending[1:] {
		if m.ID < lowest {
			lowest = m.ID
		}
	}

	return lowest, true
}

// SharedCaption returns the first non-empty text among members, or the no-text sentinel.
func SharedCaption(members []domain.Message) string {
	for _, m := range members {
		if m.Text != "" {
			return m.Text
		}
	}

	return domain.NoTextCaption
}

func (r *Reconstructor) pop(ctx context.Context) (domain.Message, bool, error) {
	if len(r.pending) > 0 {
		m := r.pending[0]
		r.pending = r.pending[1:]

		return m, true, nil
	}

	if r.exhausted {
		return domain.Message{}, false, nil
	}

	m, ok, err := r.src.Next(ctx)
	if err != nil {
		return domain.Message{}, false, err
	}

	if !ok {
		r.exhausted = true
	}

	return m, ok, nil
}

// fill tops the look-ahead buffer up to the window size.
func (r *Reconstructor) fill(ctx context.Context) error {
	for len(r.pending) < r.window && !r.exhausted {
		m, ok, err := r.src.Next(ctx)
		if err != nil {
			return err
		}

		if !ok {
			r.exhausted = true
			break
		}

		r.pending = append(r.pending, m)
	}

	return nil
}
