package watermark

import (
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"relaymirror/internal/constants"
	"relaymirror/internal/destination"
	pkgerrors "relaymirror/pkg/errors"
)

// ffmpegTextEscaper escapes characters with meaning inside a drawtext
// filter expression.
var ffmpegTextEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`:`, `\:`,
	`[`, `\[`,
	`]`, `\]`,
	`;`, `\;`,
	`%`, `\%`,
)

// TransformVideo re-encodes the video with the destination's watermark
// burned in. The input is written to a temp file because mp4 demuxing
// needs a seekable source. When ffmpeg is unavailable the caller falls
// back to relaying the original payload.
func (e *Engine) TransformVideo(ctx context.Context, data []byte, wm *destination.WatermarkConfig) (*MediaResult, error) {
	if e.ffmpeg == "" {
		return nil, pkgerrors.ErrTransformFailed.WithDetail("message", "ffmpeg unavailable")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "relaymirror-video-")
	if err != nil {
		return nil, pkgerrors.ErrTransformFailed.WithCause(err)
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "input.mp4")
	if err := os.WriteFile(inPath, data, 0o600); err != nil {
		return nil, pkgerrors.ErrTransformFailed.WithCause(err)
	}
	outPath := filepath.Join(dir, "output.mp4")

	args := []string{"-i", inPath}
	switch {
	case wm.Mode.HasOverlay():
		if e.ffprobe == "" {
			return nil, pkgerrors.ErrTransformFailed.
				WithDetail("message", "ffprobe unavailable for overlay scaling")
		}
		videoW, videoH, err := e.probeVideoDims(ctx, inPath)
		if err != nil {
			return nil, err
		}
		overlayPath, markW, markH, err := e.stageVideoOverlay(dir, videoW, videoH, &wm.Overlay)
		if err != nil {
			return nil, err
		}
		x, y := CalculatePosition(videoW, videoH, markW, markH, wm.Overlay.Position, wm.Overlay.OffsetX, wm.Overlay.OffsetY)
		filter := fmt.Sprintf("overlay=%d:%d", x, y)
		if wm.Mode.HasText() && wm.Text.Content != "" {
			filter += "," + e.drawtextFilter(&wm.Text)
		}
		args = append(args, "-i", overlayPath, "-filter_complex", filter)
	case wm.Mode.HasText() && wm.Text.Content != "":
		args = append(args, "-vf", e.drawtextFilter(&wm.Text))
	default:
		return &MediaResult{Data: data, MimeType: "video/mp4", Watermarked: false}, nil
	}

	args = append(args,
		"-c:v", "libx264",
		"-crf", strconv.Itoa(constants.DefaultVideoCRF),
		"-preset", "veryfast",
		"-c:a", "copy",
		"-movflags", "+faststart",
		"-y", outPath,
	)

	cmd := exec.CommandContext(ctx, e.ffmpeg, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, pkgerrors.ErrTransformFailed.
			WithCause(fmt.Errorf("ffmpeg: %w\noutput: %s", err, output)).
			WithDetail("message", "video transform failed")
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, pkgerrors.ErrTransformFailed.WithCause(err)
	}

	return &MediaResult{Data: out, MimeType: "video/mp4", Watermarked: true}, nil
}

// stageVideoOverlay writes the scaled, opacity-adjusted overlay to a temp
// PNG that ffmpeg consumes as a second input. Scaling happens here rather
// than in the filter graph so image and video overlays share one code path.
func (e *Engine) stageVideoOverlay(dir string, videoW, videoH int, cfg *destination.OverlayWatermark) (string, int, int, error) {
	overlay, err := e.overlays.Get(cfg.AssetPath)
	if err != nil {
		return "", 0, 0, pkgerrors.ErrTransformFailed.WithCause(err).
			WithDetail("message", "overlay asset unavailable")
	}

	scaled := scaleOverlay(overlay, videoW, videoH, cfg.Scale)
	mark := toNRGBA(scaled)
	applyOpacity(mark, cfg.Opacity)

	path := filepath.Join(dir, "overlay.png")
	f, err := os.Create(path)
	if err != nil {
		return "", 0, 0, pkgerrors.ErrTransformFailed.WithCause(err)
	}
	if err := png.Encode(f, mark); err != nil {
		f.Close()
		return "", 0, 0, pkgerrors.ErrTransformFailed.WithCause(err)
	}
	if err := f.Close(); err != nil {
		return "", 0, 0, pkgerrors.ErrTransformFailed.WithCause(err)
	}

	bounds := mark.Bounds()
	return path, bounds.Dx(), bounds.Dy(), nil
}

func (e *Engine) probeVideoDims(ctx context.Context, path string) (int, int, error) {
	cmd := exec.CommandContext(ctx, e.ffprobe,
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, 0, pkgerrors.ErrTransformFailed.
			WithCause(fmt.Errorf("ffprobe: %w", err))
	}

	var probed struct {
		Streams []struct {
			CodecType string `json:"codec_type"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(output, &probed); err != nil {
		return 0, 0, pkgerrors.ErrTransformFailed.
			WithCause(fmt.Errorf("failed to parse ffprobe output: %w", err))
	}

	for _, s := range probed.Streams {
		if s.CodecType == "video" && s.Width > 0 && s.Height > 0 {
			return s.Width, s.Height, nil
		}
	}
	return 0, 0, pkgerrors.ErrTransformFailed.WithDetail("message", "no video stream found")
}

func (e *Engine) drawtextFilter(cfg *destination.TextWatermark) string {
	xExpr, yExpr := drawtextPosition(cfg.Position, cfg.OffsetX, cfg.OffsetY)
	filter := fmt.Sprintf("drawtext=text='%s':fontsize=%d:fontcolor=%s:bordercolor=%s:borderw=%d:x=%s:y=%s",
		ffmpegTextEscaper.Replace(cfg.Content),
		int(cfg.FontSize),
		ffmpegColor(cfg.FillColor),
		ffmpegColor(cfg.OutlineColor),
		cfg.OutlineWidth,
		xExpr, yExpr,
	)
	if e.videoFont != "" {
		filter += fmt.Sprintf(":fontfile='%s'", ffmpegTextEscaper.Replace(e.videoFont))
	}
	return filter
}

// drawtextPosition returns drawtext x/y expressions using ffmpeg's text_w
// and text_h variables, mirroring CalculatePosition for rendered text.
func drawtextPosition(pos destination.Position, offsetX, offsetY int) (string, string) {
	margin := strconv.Itoa(constants.DefaultPositionMargin)
	switch pos {
	case destination.PositionTopLeft:
		return margin, margin
	case destination.PositionTopRight:
		return "w-text_w-" + margin, margin
	case destination.PositionBottomLeft:
		return margin, "h-text_h-" + margin
	case destination.PositionCenter:
		return "(w-text_w)/2", "(h-text_h)/2"
	case destination.PositionCustom:
		return strconv.Itoa(offsetX), strconv.Itoa(offsetY)
	default:
		return "w-text_w-" + margin, "h-text_h-" + margin
	}
}

// ffmpegColor converts #RRGGBB / #RGB notation to ffmpeg's 0x form, which
// is safe inside filter expressions.
func ffmpegColor(hex string) string {
	if len(hex) == 4 && hex[0] == '#' {
		var b strings.Builder
		b.WriteString("0x")
		for _, c := range hex[1:] {
			b.WriteRune(c)
			b.WriteRune(c)
		}
		return b.String()
	}
	if len(hex) > 0 && hex[0] == '#' {
		return "0x" + hex[1:]
	}
	return hex
}
