package destination

import "time"

// Position anchors a watermark inside the target image.
type Position string

const (
	PositionTopLeft     Position = "top-left"
	PositionTopRight    Position = "top-right"
	PositionBottomLeft  Position = "bottom-left"
	PositionBottomRight Position = "bottom-right"
	PositionCenter      Position = "center"
	PositionCustom      Position = "custom"
)

// WatermarkMode selects which transform passes run on outbound media.
type WatermarkMode string

const (
	ModeNone    WatermarkMode = "none"
	ModeText    WatermarkMode = "text"
	ModeOverlay WatermarkMode = "image-overlay"
	ModeBoth    WatermarkMode = "both"
)

// HasText reports whether the mode includes the text pass.
func (m WatermarkMode) HasText() bool {
	return m == ModeText || m == ModeBoth
}

// HasOverlay reports whether the mode includes the image-overlay pass.
func (m WatermarkMode) HasOverlay() bool {
	return m == ModeOverlay || m == ModeBoth
}

type TextWatermark struct {
	Content      string   `json:"content"`
	Position     Position `json:"position"`
	FontSize     float64  `json:"font_size"`
	FillColor    string   `json:"fill_color"`
	OutlineColor string   `json:"outline_color"`
	OutlineWidth int      `json:"outline_width"`
	OffsetX      int      `json:"offset_x"`
	OffsetY      int      `json:"offset_y"`
}

type OverlayWatermark struct {
	AssetPath string   `json:"asset_path"`
	Position  Position `json:"position"`
	Scale     float64  `json:"scale"`
	Opacity   float64  `json:"opacity"`
	OffsetX   int      `json:"offset_x"`
	OffsetY   int      `json:"offset_y"`
}

type WatermarkConfig struct {
	Mode          WatermarkMode    `json:"mode"`
	Text          TextWatermark    `json:"text"`
	Overlay       OverlayWatermark `json:"overlay"`
	ApplyToImages bool             `json:"apply_to_images"`
	ApplyToVideos bool             `json:"apply_to_videos"`
}

// FilterConfig gates which inbound messages reach a destination.
type FilterConfig struct {
	MinLength      int      `json:"min_length"`
	AllowWords     []string `json:"allow_words"`
	DenyWords      []string `json:"deny_words"`
	BlockedSenders []int64  `json:"blocked_senders"`
}

// DestinationConfig is the full per-destination record. ID is the source
// chat id the destination mirrors, so lookups during ingestion are a
// single keyed read.
type DestinationConfig struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	WebhookURL      string          `json:"webhook_url"`
	Enabled         bool            `json:"enabled"`
	Username        string          `json:"username,omitempty"`
	AvatarURL       string          `json:"avatar_url,omitempty"`
	Filters         FilterConfig    `json:"filters"`
	Watermark       WatermarkConfig `json:"watermark"`
	MaxAttachmentMB int             `json:"max_attachment_mb"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// MaxAttachmentBytes converts the configured ceiling to bytes.
func (c *DestinationConfig) MaxAttachmentBytes() int64 {
	return int64(c.MaxAttachmentMB) << 20
}

// Clone returns a deep copy so callers can mutate without touching the
// store's published snapshot.
func (c *DestinationConfig) Clone() *DestinationConfig {
	out := *c
	out.Filters.AllowWords = append([]string(nil), c.Filters.AllowWords...)
	out.Filters.DenyWords = append([]string(nil), c.Filters.DenyWords...)
	out.Filters.BlockedSenders = append([]int64(nil), c.Filters.BlockedSenders...)
	return &out
}
