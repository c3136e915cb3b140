package stats

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStats_RecordAndSnapshot(t *testing.T) {
	s := New()

	s.RecordSeen()
	s.RecordSeen()
	s.RecordReplicated(42)
	s.RecordFiltered()
	s.RecordMediaProcessed(KindImage)
	s.RecordMediaProcessed(KindImage)
	s.RecordMediaProcessed(KindVideo)
	s.RecordMediaProcessed("weird")
	s.RecordWatermark()
	s.RecordError()
	s.RecordDeliveryFailed(43)

	view := s.Snapshot()

	assert.Equal(t, uint64(2), view.MessagesSeen)
	assert.Equal(t, uint64(1), view.MessagesReplicated)
	assert.Equal(t, uint64(1), view.MessagesFiltered)
	assert.Equal(t, uint64(2), view.MediaProcessed[KindImage])
	assert.Equal(t, uint64(1), view.MediaProcessed[KindVideo])
	assert.Equal(t, uint64(1), view.MediaProcessed["other"])
	assert.Equal(t, uint64(1), view.WatermarksApplied)
	assert.Equal(t, uint64(1), view.Errors)
	assert.False(t, view.LastMessageAt.IsZero())
	assert.False(t, view.StartedAt.IsZero())
}

func TestStats_PerDestinationSuccessRate(t *testing.T) {
	s := New()

	s.RecordReplicated(1)
	s.RecordReplicated(1)
	s.RecordReplicated(1)
	s.RecordDeliveryFailed(1)

	view := s.Snapshot()
	dest, ok := view.Destinations[1]
	require.True(t, ok)
	assert.Equal(t, uint64(3), dest.Delivered)
	assert.Equal(t, uint64(1), dest.Failed)
	assert.InDelta(t, 0.75, dest.SuccessRate, 0.0001)
}

func TestStats_DropsStayOutOfSuccessRate(t *testing.T) {
	s := New()

	s.RecordReplicated(1)
	s.RecordDeliveryFailed(1)
	s.RecordCircuitDrop(1)
	s.RecordCircuitDrop(1)
	s.RecordBackpressureDrop(1)

	view := s.Snapshot()
	dest := view.Destinations[1]
	assert.Equal(t, uint64(1), dest.Delivered)
	assert.Equal(t, uint64(1), dest.Failed)
	assert.Equal(t, uint64(3), dest.Dropped)
	assert.InDelta(t, 0.5, dest.SuccessRate, 0.0001,
		"drops are not delivery attempts")
	assert.Equal(t, uint64(2), view.CircuitOpenDrops)
	assert.Equal(t, uint64(1), view.BackpressureDrops)
}

func TestStats_ActiveDestinationsSorted(t *testing.T) {
	s := New()

	s.RecordReplicated(30)
	s.RecordReplicated(10)
	s.RecordDeliveryFailed(20)

	view := s.Snapshot()
	assert.Equal(t, []int64{10, 20, 30}, view.ActiveDestinations)
}

func TestStats_Reset(t *testing.T) {
	s := New()

	s.RecordSeen()
	s.RecordReplicated(1)
	s.RecordError()
	s.RecordCircuitDrop(1)
	before := s.Snapshot()
	require.Equal(t, uint64(1), before.MessagesSeen)

	s.Reset()

	view := s.Snapshot()
	assert.Zero(t, view.MessagesSeen)
	assert.Zero(t, view.MessagesReplicated)
	assert.Zero(t, view.Errors)
	assert.Zero(t, view.CircuitOpenDrops)
	assert.Empty(t, view.Destinations)
	assert.True(t, view.LastMessageAt.IsZero())
	assert.False(t, view.StartedAt.Before(before.StartedAt))
}

func TestStats_ConcurrentMutators(t *testing.T) {
	s := New()

	const goroutines = 16
	const perGoroutine = 250

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(id int64) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				s.RecordSeen()
				s.RecordReplicated(id % 4)
				s.RecordMediaProcessed(KindImage)
				if i%10 == 0 {
					s.Snapshot()
				}
			}
		}(int64(g))
	}
	wg.Wait()

	view := s.Snapshot()
	assert.Equal(t, uint64(goroutines*perGoroutine), view.MessagesSeen)
	assert.Equal(t, uint64(goroutines*perGoroutine), view.MessagesReplicated)
	assert.Equal(t, uint64(goroutines*perGoroutine), view.MediaProcessed[KindImage])
	assert.Len(t, view.Destinations, 4)
}
