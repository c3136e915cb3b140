package watermark

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"

	"relaymirror/internal/constants"
	"relaymirror/internal/destination"
	pkgerrors "relaymirror/pkg/errors"
)

// TransformImage decodes data, applies the destination's watermark passes
// and re-encodes the result under maxBytes when possible. Animated GIFs
// pass through untouched because re-encoding would flatten them to a
// single frame; static GIFs are watermarked and come back as PNG. On any
// failure the caller keeps the original payload.
func (e *Engine) TransformImage(ctx context.Context, data []byte, wm *destination.WatermarkConfig, maxBytes int64) (*MediaResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, pkgerrors.ErrTransformFailed.WithCause(err).
			WithDetail("message", "undecodable image")
	}

	if format == "gif" {
		if animated, decErr := gif.DecodeAll(bytes.NewReader(data)); decErr == nil && len(animated.Image) > 1 {
			return &MediaResult{Data: data, MimeType: "image/gif", Watermarked: false}, nil
		}
		format = "png"
	}

	if maxBytes > 0 && int64(len(data)) > maxBytes {
		img = downscaleToFit(img, int64(len(data)), maxBytes)
	}

	base := toNRGBA(img)
	watermarked := false

	if wm.Mode.HasOverlay() {
		if err := e.applyOverlay(base, &wm.Overlay); err != nil {
			return nil, err
		}
		watermarked = true
	}
	if wm.Mode.HasText() && wm.Text.Content != "" {
		if err := e.drawText(base, &wm.Text); err != nil {
			return nil, err
		}
		watermarked = true
	}

	out, mime, err := encodeImage(base, format, maxBytes)
	if err != nil {
		return nil, pkgerrors.ErrTransformFailed.WithCause(err)
	}

	return &MediaResult{Data: out, MimeType: mime, Watermarked: watermarked}, nil
}

func (e *Engine) applyOverlay(base *image.NRGBA, cfg *destination.OverlayWatermark) error {
	overlay, err := e.overlays.Get(cfg.AssetPath)
	if err != nil {
		return pkgerrors.ErrTransformFailed.WithCause(err).
			WithDetail("message", "overlay asset unavailable")
	}

	bounds := base.Bounds()
	scaled := scaleOverlay(overlay, bounds.Dx(), bounds.Dy(), cfg.Scale)
	mark := toNRGBA(scaled)
	applyOpacity(mark, cfg.Opacity)

	markBounds := mark.Bounds()
	x, y := CalculatePosition(bounds.Dx(), bounds.Dy(), markBounds.Dx(), markBounds.Dy(), cfg.Position, cfg.OffsetX, cfg.OffsetY)
	draw.Draw(base, image.Rect(x, y, x+markBounds.Dx(), y+markBounds.Dy()), mark, image.Point{}, draw.Over)
	return nil
}

// scaleOverlay resizes the overlay so its larger dimension equals
// scale times the base image's shorter dimension, preserving aspect ratio.
func scaleOverlay(overlay image.Image, baseW, baseH int, scale float64) image.Image {
	shorter := baseW
	if baseH < shorter {
		shorter = baseH
	}
	target := int(math.Round(scale * float64(shorter)))
	if target < 1 {
		target = 1
	}

	bounds := overlay.Bounds()
	ow, oh := bounds.Dx(), bounds.Dy()
	longer := ow
	if oh > longer {
		longer = oh
	}
	if longer == 0 || longer == target {
		return overlay
	}

	factor := float64(target) / float64(longer)
	newW := uint(math.Round(float64(ow) * factor))
	newH := uint(math.Round(float64(oh) * factor))
	if newW == 0 {
		newW = 1
	}
	if newH == 0 {
		newH = 1
	}
	return resize.Resize(newW, newH, overlay, resize.Lanczos3)
}

// applyOpacity multiplies every pixel's alpha channel in place.
func applyOpacity(img *image.NRGBA, opacity float64) {
	if opacity >= 1.0 {
		return
	}
	if opacity < 0 {
		opacity = 0
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(float64(img.Pix[i])*opacity + 0.5)
	}
}

// downscaleToFit shrinks an image whose encoded form exceeds maxBytes.
// Byte size scales roughly with pixel count, so both dimensions shrink by
// the square root of the size ratio.
func downscaleToFit(img image.Image, curBytes, maxBytes int64) image.Image {
	factor := math.Sqrt(float64(maxBytes) / float64(curBytes))
	bounds := img.Bounds()
	newW := uint(math.Round(float64(bounds.Dx()) * factor))
	newH := uint(math.Round(float64(bounds.Dy()) * factor))
	if newW == 0 {
		newW = 1
	}
	if newH == 0 {
		newH = 1
	}
	return resize.Resize(newW, newH, img, resize.Lanczos3)
}

func toNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok {
		return nrgba
	}
	bounds := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	return dst
}

// encodeImage writes the transformed image back out. PNG inputs stay PNG
// unless the result exceeds maxBytes, in which case they fall back to
// JPEG. JPEG quality steps down until the payload fits or the quality
// floor is reached; a floor-quality result is returned as-is and the
// delivery layer decides what to do with an oversize payload.
func encodeImage(img image.Image, format string, maxBytes int64) ([]byte, string, error) {
	if format == "png" {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, "", fmt.Errorf("failed to encode png: %w", err)
		}
		if maxBytes <= 0 || int64(buf.Len()) <= maxBytes {
			return buf.Bytes(), "image/png", nil
		}
	}

	quality := constants.DefaultJPEGQuality
	for {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, "", fmt.Errorf("failed to encode jpeg: %w", err)
		}
		if maxBytes <= 0 || int64(buf.Len()) <= maxBytes || quality <= constants.MinJPEGQuality {
			return buf.Bytes(), "image/jpeg", nil
		}
		quality -= constants.JPEGQualityStep
		if quality < constants.MinJPEGQuality {
			quality = constants.MinJPEGQuality
		}
	}
}
