package destination

import (
	"fmt"
	"strings"

	"relaymirror/internal/constants"
)

var validPositions = map[Position]bool{
	PositionTopLeft:     true,
	PositionTopRight:    true,
	PositionBottomLeft:  true,
	PositionBottomRight: true,
	PositionCenter:      true,
	PositionCustom:      true,
}

var validModes = map[WatermarkMode]bool{
	ModeNone:    true,
	ModeText:    true,
	ModeOverlay: true,
	ModeBoth:    true,
}

// Validate checks the parts of a config that cannot be repaired by
// Normalize. It never mutates cfg.
func Validate(cfg *DestinationConfig, urlPrefix string) error {
	if cfg.ID == 0 {
		return fmt.Errorf("destination id is required")
	}
	if cfg.WebhookURL == "" {
		return fmt.Errorf("webhook_url is required")
	}
	if !strings.HasPrefix(cfg.WebhookURL, urlPrefix) {
		return fmt.Errorf("webhook_url must start with %s", urlPrefix)
	}
	if cfg.Watermark.Mode != "" && !validModes[cfg.Watermark.Mode] {
		return fmt.Errorf("invalid watermark mode: %s. Allowed: none, text, image-overlay, both", cfg.Watermark.Mode)
	}
	if cfg.Watermark.Text.Position != "" && !validPositions[cfg.Watermark.Text.Position] {
		return fmt.Errorf("invalid text position: %s", cfg.Watermark.Text.Position)
	}
	if cfg.Watermark.Overlay.Position != "" && !validPositions[cfg.Watermark.Overlay.Position] {
		return fmt.Errorf("invalid overlay position: %s", cfg.Watermark.Overlay.Position)
	}
	if cfg.Watermark.Mode.HasText() && cfg.Watermark.Text.Content == "" {
		return fmt.Errorf("text watermark requires content")
	}
	if cfg.Watermark.Mode.HasOverlay() && cfg.Watermark.Overlay.AssetPath == "" {
		return fmt.Errorf("image-overlay watermark requires asset_path")
	}
	if c := cfg.Watermark.Text.FillColor; c != "" && !isHexColor(c) {
		return fmt.Errorf("invalid fill_color: %s. Expected #RGB or #RRGGBB", c)
	}
	if c := cfg.Watermark.Text.OutlineColor; c != "" && !isHexColor(c) {
		return fmt.Errorf("invalid outline_color: %s. Expected #RGB or #RRGGBB", c)
	}
	if cfg.Filters.MinLength < 0 {
		return fmt.Errorf("filters.min_length must be non-negative")
	}
	return nil
}

// Normalize clamps numeric watermark fields into their valid ranges and
// fills zero-valued fields with platform defaults. Runs before persisting
// so stored records are always directly usable by the transform engine.
func Normalize(cfg *DestinationConfig) {
	if cfg.Watermark.Mode == "" {
		cfg.Watermark.Mode = ModeNone
	}

	t := &cfg.Watermark.Text
	if t.Position == "" {
		t.Position = PositionBottomRight
	}
	if t.Position == PositionCustom && t.OffsetX == 0 && t.OffsetY == 0 {
		t.OffsetX = constants.DefaultTextOffsetX
		t.OffsetY = constants.DefaultTextOffsetY
	}
	if t.FontSize <= 0 {
		t.FontSize = constants.DefaultFontSize
	}
	if t.FillColor == "" {
		t.FillColor = constants.DefaultFillColor
	}
	if t.OutlineColor == "" {
		t.OutlineColor = constants.DefaultStrokeColor
	}
	if t.OutlineWidth <= 0 {
		t.OutlineWidth = constants.DefaultStrokeWidth
	}

	o := &cfg.Watermark.Overlay
	if o.Position == "" {
		o.Position = PositionBottomRight
	}
	if o.Scale <= 0 {
		o.Scale = constants.DefaultOverlayScale
	}
	o.Scale = clamp01(o.Scale)
	if o.Opacity <= 0 {
		o.Opacity = constants.DefaultOverlayOpacity
	}
	o.Opacity = clamp01(o.Opacity)

	if cfg.MaxAttachmentMB <= 0 || cfg.MaxAttachmentMB > constants.DefaultMaxAttachmentMB {
		cfg.MaxAttachmentMB = constants.DefaultMaxAttachmentMB
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func isHexColor(s string) bool {
	if len(s) != 4 && len(s) != 7 {
		return false
	}
	if s[0] != '#' {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		isDigit := c >= '0' && c <= '9'
		isLower := c >= 'a' && c <= 'f'
		isUpper := c >= 'A' && c <= 'F'
		if !isDigit && !isLower && !isUpper {
			return false
		}
	}
	return true
}
