package ingest

import (
	"time"

	"relaymirror/pkg/models"
)

// InboundMessage is the transient per-event view the loop works with. It
// is constructed from the source envelope, consumed once, and never
// persisted.
type InboundMessage struct {
	SourceMessageID string
	ChatID          int64
	SenderID        int64
	Text            string
	Media           *models.MediaPayload
	ReceivedAt      time.Time
}

func FromEnvelope(envelope models.EventEnvelope) InboundMessage {
	received := envelope.Timestamp
	if received.IsZero() {
		received = time.Now()
	}
	return InboundMessage{
		SourceMessageID: envelope.Event.SourceMessageID,
		ChatID:          envelope.Event.ChatID,
		SenderID:        envelope.Event.SenderID,
		Text:            envelope.Event.Text,
		Media:           envelope.Event.Media,
		ReceivedAt:      received,
	}
}

// HasContent reports whether there is anything to relay.
func (m InboundMessage) HasContent() bool {
	return m.Text != "" || m.Media != nil
}
