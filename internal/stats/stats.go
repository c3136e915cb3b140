package stats

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Media kinds the pipeline reports. Anything unrecognized lands in "other".
const (
	KindImage    = "image"
	KindVideo    = "video"
	KindAudio    = "audio"
	KindDocument = "document"
	KindText     = "text"
)

// Stats accumulates pipeline counters using atomics so the ingestion loop
// and delivery workers never contend on a lock for the hot-path mutators.
// The mutex only guards the per-destination map shape and the reset window.
type Stats struct {
	messagesSeen       atomic.Uint64
	messagesReplicated atomic.Uint64
	messagesFiltered   atomic.Uint64
	watermarksApplied  atomic.Uint64
	errors             atomic.Uint64
	circuitOpenDrops   atomic.Uint64
	backpressureDrops  atomic.Uint64

	images    atomic.Uint64
	videos    atomic.Uint64
	audios    atomic.Uint64
	documents atomic.Uint64
	texts     atomic.Uint64
	other     atomic.Uint64

	lastMessageUnixNano atomic.Int64

	mu           sync.RWMutex
	startedAt    time.Time
	destinations map[int64]*destinationCounters
}

type destinationCounters struct {
	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

func New() *Stats {
	return &Stats{
		startedAt:    time.Now(),
		destinations: make(map[int64]*destinationCounters),
	}
}

func (s *Stats) RecordSeen() {
	s.messagesSeen.Add(1)
	s.lastMessageUnixNano.Store(time.Now().UnixNano())
}

func (s *Stats) RecordReplicated(destinationID int64) {
	s.messagesReplicated.Add(1)
	s.forDestination(destinationID).delivered.Add(1)
}

func (s *Stats) RecordDeliveryFailed(destinationID int64) {
	s.forDestination(destinationID).failed.Add(1)
}

// RecordCircuitDrop counts a job discarded because the destination's
// circuit is open. Drops stay out of the failure column so a success rate
// reflects actual delivery attempts, not outage duration.
func (s *Stats) RecordCircuitDrop(destinationID int64) {
	s.circuitOpenDrops.Add(1)
	s.forDestination(destinationID).dropped.Add(1)
}

// RecordBackpressureDrop counts a job discarded because the delivery queue
// was full.
func (s *Stats) RecordBackpressureDrop(destinationID int64) {
	s.backpressureDrops.Add(1)
	s.forDestination(destinationID).dropped.Add(1)
}

func (s *Stats) RecordFiltered() { s.messagesFiltered.Add(1) }

func (s *Stats) RecordMediaProcessed(kind string) {
	switch kind {
	case KindImage:
		s.images.Add(1)
	case KindVideo:
		s.videos.Add(1)
	case KindAudio:
		s.audios.Add(1)
	case KindDocument:
		s.documents.Add(1)
	case KindText:
		s.texts.Add(1)
	default:
		s.other.Add(1)
	}
}

func (s *Stats) RecordWatermark() { s.watermarksApplied.Add(1) }
func (s *Stats) RecordError()     { s.errors.Add(1) }

func (s *Stats) forDestination(id int64) *destinationCounters {
	s.mu.RLock()
	c, ok := s.destinations[id]
	s.mu.RUnlock()
	if ok {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.destinations[id]; ok {
		return c
	}
	c = &destinationCounters{}
	s.destinations[id] = c
	return c
}

// DestinationView is one destination's delivery record in a snapshot.
type DestinationView struct {
	Delivered   uint64  `json:"delivered"`
	Failed      uint64  `json:"failed"`
	Dropped     uint64  `json:"dropped"`
	SuccessRate float64 `json:"success_rate"`
}

// View is a point-in-time copy of every counter, safe to serialize.
type View struct {
	MessagesSeen       uint64                    `json:"messages_seen"`
	MessagesReplicated uint64                    `json:"messages_replicated"`
	MessagesFiltered   uint64                    `json:"messages_filtered"`
	MediaProcessed     map[string]uint64         `json:"media_processed"`
	WatermarksApplied  uint64                    `json:"watermarks_applied"`
	Errors             uint64                    `json:"errors"`
	CircuitOpenDrops   uint64                    `json:"circuit_open_drops"`
	BackpressureDrops  uint64                    `json:"backpressure_drops"`
	Destinations       map[int64]DestinationView `json:"destinations"`
	ActiveDestinations []int64                   `json:"active_destinations"`
	LastMessageAt      time.Time                 `json:"last_message_at"`
	StartedAt          time.Time                 `json:"started_at"`
	UptimeSeconds      float64                   `json:"uptime_seconds"`
}

// Snapshot copies the counters into a View. Writers are only held off for
// the duration of one map copy under a read lock.
func (s *Stats) Snapshot() View {
	s.mu.RLock()
	startedAt := s.startedAt
	perDest := make(map[int64]*destinationCounters, len(s.destinations))
	for id, c := range s.destinations {
		perDest[id] = c
	}
	s.mu.RUnlock()

	view := View{
		MessagesSeen:       s.messagesSeen.Load(),
		MessagesReplicated: s.messagesReplicated.Load(),
		MessagesFiltered:   s.messagesFiltered.Load(),
		WatermarksApplied:  s.watermarksApplied.Load(),
		Errors:             s.errors.Load(),
		CircuitOpenDrops:   s.circuitOpenDrops.Load(),
		BackpressureDrops:  s.backpressureDrops.Load(),
		MediaProcessed: map[string]uint64{
			KindImage:    s.images.Load(),
			KindVideo:    s.videos.Load(),
			KindAudio:    s.audios.Load(),
			KindDocument: s.documents.Load(),
			KindText:     s.texts.Load(),
		},
		Destinations:       make(map[int64]DestinationView, len(perDest)),
		ActiveDestinations: make([]int64, 0, len(perDest)),
		StartedAt:          startedAt,
		UptimeSeconds:      time.Since(startedAt).Seconds(),
	}
	if o := s.other.Load(); o > 0 {
		view.MediaProcessed["other"] = o
	}

	for id, c := range perDest {
		delivered := c.delivered.Load()
		failed := c.failed.Load()
		view.Destinations[id] = DestinationView{
			Delivered:   delivered,
			Failed:      failed,
			Dropped:     c.dropped.Load(),
			SuccessRate: successRate(delivered, failed),
		}
		view.ActiveDestinations = append(view.ActiveDestinations, id)
	}
	sort.Slice(view.ActiveDestinations, func(i, j int) bool {
		return view.ActiveDestinations[i] < view.ActiveDestinations[j]
	})

	if ns := s.lastMessageUnixNano.Load(); ns > 0 {
		view.LastMessageAt = time.Unix(0, ns)
	}

	return view
}

// Reset zeroes every counter and restarts the uptime window. Administrative
// action only; the pipeline never calls this.
func (s *Stats) Reset() {
	s.mu.Lock()
	s.startedAt = time.Now()
	s.destinations = make(map[int64]*destinationCounters)
	s.mu.Unlock()

	s.messagesSeen.Store(0)
	s.messagesReplicated.Store(0)
	s.messagesFiltered.Store(0)
	s.watermarksApplied.Store(0)
	s.errors.Store(0)
	s.circuitOpenDrops.Store(0)
	s.backpressureDrops.Store(0)
	s.images.Store(0)
	s.videos.Store(0)
	s.audios.Store(0)
	s.documents.Store(0)
	s.texts.Store(0)
	s.other.Store(0)
	s.lastMessageUnixNano.Store(0)
}

func successRate(delivered, failed uint64) float64 {
	total := delivered + failed
	if total == 0 {
		return 0
	}
	return float64(delivered) / float64(total)
}
