package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"relaymirror/internal/destination"
	"relaymirror/pkg/models"
)

func TestAllow(t *testing.T) {
	media := &models.MediaPayload{FileName: "photo.png", Data: []byte{1, 2, 3}}

	tests := []struct {
		name       string
		filters    destination.FilterConfig
		msg        InboundMessage
		want       bool
		wantReason string
	}{
		{
			name:    "no filters pass everything",
			filters: destination.FilterConfig{},
			msg:     InboundMessage{Text: "hi"},
			want:    true,
		},
		{
			name:       "blocked sender",
			filters:    destination.FilterConfig{BlockedSenders: []int64{7, 8}},
			msg:        InboundMessage{SenderID: 8, Text: "hello there"},
			want:       false,
			wantReason: "sender_blocked",
		},
		{
			name:    "unblocked sender passes",
			filters: destination.FilterConfig{BlockedSenders: []int64{7}},
			msg:     InboundMessage{SenderID: 9, Text: "hello there"},
			want:    true,
		},
		{
			name:       "deny word is case insensitive",
			filters:    destination.FilterConfig{DenyWords: []string{"SPAM"}},
			msg:        InboundMessage{Text: "buy spam now"},
			want:       false,
			wantReason: "deny_word",
		},
		{
			name:       "deny word matches substrings",
			filters:    destination.FilterConfig{DenyWords: []string{"scam"}},
			msg:        InboundMessage{Text: "notascamatall"},
			want:       false,
			wantReason: "deny_word",
		},
		{
			name:    "allow word present",
			filters: destination.FilterConfig{AllowWords: []string{"deal"}},
			msg:     InboundMessage{Text: "today's DEAL is live"},
			want:    true,
		},
		{
			name:       "allow word missing",
			filters:    destination.FilterConfig{AllowWords: []string{"deal"}},
			msg:        InboundMessage{Text: "nothing to see"},
			want:       false,
			wantReason: "no_allow_word",
		},
		{
			name:    "allow words waived for captionless media",
			filters: destination.FilterConfig{AllowWords: []string{"deal"}},
			msg:     InboundMessage{Media: media},
			want:    true,
		},
		{
			name:       "allow words still apply to captioned media",
			filters:    destination.FilterConfig{AllowWords: []string{"deal"}},
			msg:        InboundMessage{Text: "look at this", Media: media},
			want:       false,
			wantReason: "no_allow_word",
		},
		{
			name:       "deny word wins over allow word",
			filters:    destination.FilterConfig{AllowWords: []string{"deal"}, DenyWords: []string{"spam"}},
			msg:        InboundMessage{Text: "spam deal"},
			want:       false,
			wantReason: "deny_word",
		},
		{
			name:       "below minimum length",
			filters:    destination.FilterConfig{MinLength: 10},
			msg:        InboundMessage{Text: "short"},
			want:       false,
			wantReason: "below_min_length",
		},
		{
			name:    "minimum length counts runes",
			filters: destination.FilterConfig{MinLength: 5},
			msg:     InboundMessage{Text: "héllo"},
			want:    true,
		},
		{
			name:    "minimum length skipped for media",
			filters: destination.FilterConfig{MinLength: 10},
			msg:     InboundMessage{Text: "hi", Media: media},
			want:    true,
		},
		{
			name:    "empty deny word ignored",
			filters: destination.FilterConfig{DenyWords: []string{""}},
			msg:     InboundMessage{Text: "anything"},
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := Allow(tt.filters, tt.msg)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}
