package delivery

import "time"

// Outcome is the terminal state of one delivery job.
type Outcome string

const (
	OutcomeDelivered       Outcome = "delivered"
	OutcomeFailedPermanent Outcome = "failed_permanent"
	OutcomeDroppedCircuit  Outcome = "dropped_circuit_open"
	OutcomeDroppedQueue    Outcome = "dropped_queue_full"
	OutcomeDroppedGone     Outcome = "dropped_destination_gone"
)

// OutboundMedia is one transformed attachment ready to post.
type OutboundMedia struct {
	FileName string
	MimeType string
	Kind     string
	Data     []byte
}

// Job pairs one transformed message with one destination. The dispatcher
// owns a job from Submit until it reaches a terminal outcome; the
// destination config is re-resolved at attempt time so deletes and edits
// between enqueue and send take effect.
type Job struct {
	ID              string
	DestinationID   int64
	SourceMessageID string
	ChatID          int64
	Content         string
	Media           *OutboundMedia
	Attempt         int
	EnqueuedAt      time.Time

	// paced marks that the current attempt already holds a pacer
	// reservation, so a parked job is not charged twice.
	paced bool
}
