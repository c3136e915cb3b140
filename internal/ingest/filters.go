package ingest

import (
	"strings"
	"unicode/utf8"

	"relaymirror/internal/destination"
)

// Allow reports whether msg passes a destination's filters. The returned
// reason names the first rule that rejected the message, for logs and
// counters. Word matching is case-insensitive substring matching; word
// rules and the minimum length apply to text, so a media attachment
// without a caption is not held to them.
func Allow(f destination.FilterConfig, msg InboundMessage) (bool, string) {
	for _, blocked := range f.BlockedSenders {
		if msg.SenderID == blocked {
			return false, "sender_blocked"
		}
	}

	text := strings.ToLower(msg.Text)

	for _, word := range f.DenyWords {
		if word == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(word)) {
			return false, "deny_word"
		}
	}

	if len(f.AllowWords) > 0 && !(msg.Text == "" && msg.Media != nil) {
		matched := false
		for _, word := range f.AllowWords {
			if word == "" {
				continue
			}
			if strings.Contains(text, strings.ToLower(word)) {
				matched = true
				break
			}
		}
		if !matched {
			return false, "no_allow_word"
		}
	}

	if f.MinLength > 0 && msg.Media == nil && utf8.RuneCountInString(msg.Text) < f.MinLength {
		return false, "below_min_length"
	}

	return true, ""
}
