package watermark

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"relaymirror/internal/destination"
	pkgerrors "relaymirror/pkg/errors"
)

// drawText renders the text watermark onto base with an outline pass in
// eight directions followed by the fill pass, so the text stays legible on
// both light and dark content.
func (e *Engine) drawText(base *image.NRGBA, cfg *destination.TextWatermark) error {
	face, err := opentype.NewFace(e.font, &opentype.FaceOptions{
		Size:    cfg.FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return pkgerrors.ErrTransformFailed.WithCause(err).
			WithDetail("message", "failed to build font face")
	}
	defer face.Close()

	fill, err := parseHexColor(cfg.FillColor)
	if err != nil {
		return pkgerrors.ErrTransformFailed.WithCause(err)
	}
	outline, err := parseHexColor(cfg.OutlineColor)
	if err != nil {
		return pkgerrors.ErrTransformFailed.WithCause(err)
	}

	bounds := base.Bounds()
	textW := font.MeasureString(face, cfg.Content).Ceil()
	metrics := face.Metrics()
	textH := (metrics.Ascent + metrics.Descent).Ceil()

	x, y := CalculatePosition(bounds.Dx(), bounds.Dy(), textW, textH, cfg.Position, cfg.OffsetX, cfg.OffsetY)
	baseline := y + metrics.Ascent.Ceil()

	if cfg.OutlineWidth > 0 {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				drawString(base, face, cfg.Content, x+dx*cfg.OutlineWidth, baseline+dy*cfg.OutlineWidth, outline)
			}
		}
	}
	drawString(base, face, cfg.Content, x, baseline, fill)

	return nil
}

func drawString(dst *image.NRGBA, face font.Face, s string, x, y int, col color.Color) {
	drawer := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	drawer.DrawString(s)
}

// parseHexColor parses #RGB and #RRGGBB notations.
func parseHexColor(s string) (color.NRGBA, error) {
	c := color.NRGBA{A: 0xff}

	if len(s) == 0 || s[0] != '#' {
		return c, fmt.Errorf("invalid color %q: must start with #", s)
	}

	hexVal := func(b byte) (uint8, error) {
		switch {
		case b >= '0' && b <= '9':
			return b - '0', nil
		case b >= 'a' && b <= 'f':
			return b - 'a' + 10, nil
		case b >= 'A' && b <= 'F':
			return b - 'A' + 10, nil
		}
		return 0, fmt.Errorf("invalid color %q: bad hex digit %q", s, b)
	}

	switch len(s) {
	case 7:
		for i, dst := range []*uint8{&c.R, &c.G, &c.B} {
			hi, err := hexVal(s[1+i*2])
			if err != nil {
				return c, err
			}
			lo, err := hexVal(s[2+i*2])
			if err != nil {
				return c, err
			}
			*dst = hi<<4 | lo
		}
	case 4:
		for i, dst := range []*uint8{&c.R, &c.G, &c.B} {
			v, err := hexVal(s[1+i])
			if err != nil {
				return c, err
			}
			*dst = v<<4 | v
		}
	default:
		return c, fmt.Errorf("invalid color %q: expected #RGB or #RRGGBB", s)
	}

	return c, nil
}
