package models

import "time"

type EventEnvelopeBuilder struct {
	envelope *EventEnvelope
}

func NewEventEnvelopeBuilder() *EventEnvelopeBuilder {
	return &EventEnvelopeBuilder{
		envelope: &EventEnvelope{
			Metadata: Metadata{},
		},
	}
}

func (b *EventEnvelopeBuilder) WithID(id string) *EventEnvelopeBuilder {
	b.envelope.ID = id
	return b
}

func (b *EventEnvelopeBuilder) WithSource(source string) *EventEnvelopeBuilder {
	b.envelope.Source = source
	return b
}

func (b *EventEnvelopeBuilder) WithTimestamp(timestamp time.Time) *EventEnvelopeBuilder {
	b.envelope.Timestamp = timestamp
	return b
}

func (b *EventEnvelopeBuilder) WithEvent(event SourceEvent) *EventEnvelopeBuilder {
	b.envelope.Event = event
	return b
}

func (b *EventEnvelopeBuilder) WithMetadata(metadata Metadata) *EventEnvelopeBuilder {
	b.envelope.Metadata = metadata
	return b
}

func (b *EventEnvelopeBuilder) WithTraceID(traceID string) *EventEnvelopeBuilder {
	b.envelope.Metadata.TraceID = traceID
	return b
}

func (b *EventEnvelopeBuilder) Build() *EventEnvelope {
	if b.envelope.Timestamp.IsZero() {
		b.envelope.Timestamp = time.Now()
	}
	return b.envelope
}
