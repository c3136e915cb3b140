package destination

import (
	"context"
	"sync"
	"time"

	"relaymirror/internal/logger"
	"relaymirror/pkg/models"
)

// Notifier fans destination config events out to in-process subscribers,
// typically the delivery subsystem dropping per-destination breaker state
// when a destination is deleted. Publishing never blocks: a subscriber
// that fell behind loses the event and the drop is logged.
type Notifier struct {
	mu     sync.RWMutex
	subs   []chan models.ConfigUpdateEvent
	closed bool
	logger logger.Logger
}

func NewNotifier(log logger.Logger) *Notifier {
	return &Notifier{logger: log}
}

func (n *Notifier) Subscribe(buffer int) <-chan models.ConfigUpdateEvent {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan models.ConfigUpdateEvent, buffer)

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		close(ch)
		return ch
	}
	n.subs = append(n.subs, ch)
	return ch
}

func (n *Notifier) PublishDestinationEvent(ctx context.Context, action string, destinationID int64, changedBy string) {
	event := models.ConfigUpdateEvent{
		EventType:     models.EventTypeDestinationUpdated,
		DestinationID: destinationID,
		Action:        action,
		Timestamp:     time.Now(),
		ChangedBy:     changedBy,
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return
	}

	for _, ch := range n.subs {
		select {
		case ch <- event:
		default:
			n.logger.WarnwCtx(ctx, "Config event subscriber behind, dropping event",
				"event_type", event.EventType,
				"action", event.Action,
				"destination_id", event.DestinationID,
			)
		}
	}
}

func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	n.closed = true
	for _, ch := range n.subs {
		close(ch)
	}
	n.subs = nil
}
