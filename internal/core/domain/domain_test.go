package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCandidateCaption(t *testing.T) {
	sentinel := NoTextCaption
	shared := "album caption"

	tests := []struct {
		name string
		cand Candidate
		want string
	}{
		{name: "plain text", cand: NewCandidate(Message{Text: "hello"}), want: "hello"},
		{name: "literal sentinel text without album", cand: NewCandidate(Message{Text: NoTextCaption}), want: NoTextCaption},
		{name: "album sentinel", cand: Candidate{Message: Message{}, CaptionOverride: &sentinel}, want: ""},
		{name: "album caption overrides own text", cand: Candidate{Message: Message{Text: "own"}, CaptionOverride: &shared}, want: shared},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cand.Caption())
		})
	}
}

func TestMessageHasMedia(t *testing.T) {
	assert.False(t, Message{}.HasMedia())
	assert.True(t, Message{Media: &Media{Kind: MediaPhoto}}.HasMedia())
}
