package models

import "time"

// EventEnvelope is the wire shape consumed from the source platform's
// event stream. Payload carries the message itself; Metadata carries
// pipeline concerns (trace propagation, redelivery hints).
type EventEnvelope struct {
	ID        string      `json:"id"`
	Source    string      `json:"source"`
	Timestamp time.Time   `json:"timestamp"`
	Event     SourceEvent `json:"event"`
	Metadata  Metadata    `json:"metadata"`
}

type SourceEvent struct {
	SourceMessageID string        `json:"source_message_id"`
	ChatID          int64         `json:"chat_id"`
	SenderID        int64         `json:"sender_id"`
	Text            string        `json:"text,omitempty"`
	Media           *MediaPayload `json:"media,omitempty"`
}

// MediaPayload carries attachment bytes. Kind is an optional upstream hint;
// when empty the ingestion loop sniffs it from the content.
type MediaPayload struct {
	Kind     string `json:"kind,omitempty"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

type Metadata struct {
	TraceID     string            `json:"trace_id,omitempty"`
	Redelivered bool              `json:"redelivered,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}
