package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaymirror/internal/constants"
)

func TestDeduper_RecordThenSeen(t *testing.T) {
	d := NewDeduper(4)

	assert.False(t, d.Seen(1, "m-1"))
	d.Record(1, "m-1")
	assert.True(t, d.Seen(1, "m-1"))
	assert.False(t, d.Seen(2, "m-1"), "windows are per chat")
}

func TestDeduper_WindowEvictsOldest(t *testing.T) {
	d := NewDeduper(2)

	d.Record(1, "m-1")
	d.Record(1, "m-2")
	d.Record(1, "m-3")

	assert.False(t, d.Seen(1, "m-1"))
	assert.True(t, d.Seen(1, "m-2"))
	assert.True(t, d.Seen(1, "m-3"))
}

func TestDeduper_SeenKeepsActiveDuplicatesWarm(t *testing.T) {
	d := NewDeduper(2)

	d.Record(1, "m-1")
	d.Record(1, "m-2")
	require.True(t, d.Seen(1, "m-1"))

	d.Record(1, "m-3")

	assert.True(t, d.Seen(1, "m-1"))
	assert.False(t, d.Seen(1, "m-2"))
}

func TestDeduper_EmptyMessageIDNeverTracked(t *testing.T) {
	d := NewDeduper(2)

	d.Record(1, "")
	assert.False(t, d.Seen(1, ""))
}

func TestNewDeduper_DefaultsWindowSize(t *testing.T) {
	assert.Equal(t, constants.DedupWindowSize, NewDeduper(0).size)
	assert.Equal(t, constants.DedupWindowSize, NewDeduper(-5).size)
	assert.Equal(t, 16, NewDeduper(16).size)
}
