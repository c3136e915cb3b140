package watermark

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"relaymirror/internal/destination"
)

func TestCalculatePosition(t *testing.T) {
	tests := []struct {
		name    string
		pos     destination.Position
		offsetX int
		offsetY int
		wantX   int
		wantY   int
	}{
		{
			name:  "top left",
			pos:   destination.PositionTopLeft,
			wantX: 20, wantY: 20,
		},
		{
			name:  "top right",
			pos:   destination.PositionTopRight,
			wantX: 880, wantY: 20,
		},
		{
			name:  "bottom left",
			pos:   destination.PositionBottomLeft,
			wantX: 20, wantY: 730,
		},
		{
			name:  "bottom right",
			pos:   destination.PositionBottomRight,
			wantX: 880, wantY: 730,
		},
		{
			name:  "center",
			pos:   destination.PositionCenter,
			wantX: 450, wantY: 375,
		},
		{
			name:    "custom uses offsets",
			pos:     destination.PositionCustom,
			offsetX: 300, offsetY: 200,
			wantX: 300, wantY: 200,
		},
		{
			name:    "custom offsets verbatim even past the edge",
			pos:     destination.PositionCustom,
			offsetX: 950, offsetY: 790,
			wantX: 950, wantY: 790,
		},
		{
			name:    "negative custom offsets verbatim",
			pos:     destination.PositionCustom,
			offsetX: -40, offsetY: -10,
			wantX: -40, wantY: -10,
		},
		{
			name:  "unknown position falls back to bottom right",
			pos:   destination.Position("somewhere"),
			wantX: 880, wantY: 730,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := CalculatePosition(1000, 800, 100, 50, tt.pos, tt.offsetX, tt.offsetY)
			assert.Equal(t, tt.wantX, x)
			assert.Equal(t, tt.wantY, y)
		})
	}
}

func TestCalculatePosition_MarkLargerThanImage(t *testing.T) {
	x, y := CalculatePosition(50, 40, 100, 60, destination.PositionBottomRight, 0, 0)
	assert.Equal(t, 0, x)
	assert.Equal(t, 0, y)
}

func TestDrawtextPosition(t *testing.T) {
	tests := []struct {
		name  string
		pos   destination.Position
		wantX string
		wantY string
	}{
		{name: "top left", pos: destination.PositionTopLeft, wantX: "20", wantY: "20"},
		{name: "top right", pos: destination.PositionTopRight, wantX: "w-text_w-20", wantY: "20"},
		{name: "bottom left", pos: destination.PositionBottomLeft, wantX: "20", wantY: "h-text_h-20"},
		{name: "bottom right", pos: destination.PositionBottomRight, wantX: "w-text_w-20", wantY: "h-text_h-20"},
		{name: "center", pos: destination.PositionCenter, wantX: "(w-text_w)/2", wantY: "(h-text_h)/2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := drawtextPosition(tt.pos, 0, 0)
			assert.Equal(t, tt.wantX, x)
			assert.Equal(t, tt.wantY, y)
		})
	}

	t.Run("custom uses offsets verbatim", func(t *testing.T) {
		x, y := drawtextPosition(destination.PositionCustom, 33, 44)
		assert.Equal(t, "33", x)
		assert.Equal(t, "44", y)
	})
}
