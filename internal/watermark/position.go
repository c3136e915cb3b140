package watermark

import (
	"relaymirror/internal/constants"
	"relaymirror/internal/destination"
)

// CalculatePosition resolves a named anchor to top-left pixel coordinates
// for a mark of markW x markH inside an image of imgW x imgH. Custom
// positions return the configured offsets verbatim, matching the ffmpeg
// drawtext path; named anchors are clamped so the mark stays inside the
// image whenever it fits.
func CalculatePosition(imgW, imgH, markW, markH int, pos destination.Position, offsetX, offsetY int) (int, int) {
	margin := constants.DefaultPositionMargin

	var x, y int
	switch pos {
	case destination.PositionTopLeft:
		x, y = margin, margin
	case destination.PositionTopRight:
		x, y = imgW-markW-margin, margin
	case destination.PositionBottomLeft:
		x, y = margin, imgH-markH-margin
	case destination.PositionCenter:
		x, y = (imgW-markW)/2, (imgH-markH)/2
	case destination.PositionCustom:
		return offsetX, offsetY
	default:
		x, y = imgW-markW-margin, imgH-markH-margin
	}

	if x > imgW-markW {
		x = imgW - markW
	}
	if x < 0 {
		x = 0
	}
	if y > imgH-markH {
		y = imgH - markH
	}
	if y < 0 {
		y = 0
	}

	return x, y
}
