package ingest

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"relaymirror/internal/constants"
	"relaymirror/pkg/metrics"
)

// Deduper tracks recently seen source message IDs per chat so a message
// redelivered by the source is forwarded at most once. Each chat gets its
// own fixed-size LRU window; IDs older than the window are forgotten and
// a very late redelivery of one would be forwarded again.
type Deduper struct {
	mu      sync.Mutex
	windows map[int64]*lru.Cache[string, struct{}]
	size    int
}

func NewDeduper(windowSize int) *Deduper {
	if windowSize <= 0 {
		windowSize = constants.DedupWindowSize
	}
	return &Deduper{
		windows: make(map[int64]*lru.Cache[string, struct{}]),
		size:    windowSize,
	}
}

// Seen reports whether messageID was already recorded for chatID. A hit
// promotes the entry so active duplicates stay in the window.
func (d *Deduper) Seen(chatID int64, messageID string) bool {
	if messageID == "" {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	window, ok := d.windows[chatID]
	if !ok {
		return false
	}
	_, hit := window.Get(messageID)
	return hit
}

// Record marks messageID as processed for chatID. Callers record after a
// message has been handed off, so a message that failed mid-processing is
// retried by the source rather than swallowed as a duplicate.
func (d *Deduper) Record(chatID int64, messageID string) {
	if messageID == "" {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	window, ok := d.windows[chatID]
	if !ok {
		window, _ = lru.New[string, struct{}](d.size)
		d.windows[chatID] = window
		metrics.SetDedupTrackedChats(len(d.windows))
	}
	window.Add(messageID, struct{}{})
}
