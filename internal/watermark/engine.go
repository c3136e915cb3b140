package watermark

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"relaymirror/internal/config"
	"relaymirror/internal/destination"
	"relaymirror/internal/logger"
)

// MediaResult is the outcome of one media transform. Watermarked reports
// whether any pass actually touched the pixels; pass-through results (for
// example animated GIFs) keep the original bytes and leave it false.
type MediaResult struct {
	Data        []byte
	MimeType    string
	Watermarked bool
}

// Engine applies per-destination watermark settings to text and media.
// It holds no per-destination state; every call receives the config of the
// destination it is transforming for.
type Engine struct {
	font      *opentype.Font
	overlays  *OverlayCache
	ffmpeg    string
	ffprobe   string
	videoFont string
	logger    logger.Logger
}

func NewEngine(cfg config.TransformConfig, log logger.Logger) (*Engine, error) {
	fontData := goregular.TTF
	if cfg.FontPath != "" {
		data, err := os.ReadFile(cfg.FontPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read font %s: %w", cfg.FontPath, err)
		}
		fontData = data
	}

	fnt, err := opentype.Parse(fontData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse watermark font: %w", err)
	}

	e := &Engine{
		font:     fnt,
		overlays: NewOverlayCache(),
		logger:   log,
	}

	if !cfg.DisableVideo {
		e.resolveVideoTools(cfg)
	}

	return e, nil
}

// resolveVideoTools locates ffmpeg/ffprobe and stages a font file for the
// drawtext filter. Missing binaries leave video transforms degraded to
// pass-through rather than failing startup.
func (e *Engine) resolveVideoTools(cfg config.TransformConfig) {
	ffmpegName := cfg.FFmpegPath
	if ffmpegName == "" {
		ffmpegName = "ffmpeg"
	}

	ffmpegPath, err := exec.LookPath(ffmpegName)
	if err != nil {
		e.logger.Warnw("ffmpeg not found, video watermarking disabled",
			"path", ffmpegName,
			"error", err,
		)
		return
	}
	e.ffmpeg = ffmpegPath

	if ffprobePath, err := exec.LookPath("ffprobe"); err == nil {
		e.ffprobe = ffprobePath
	} else {
		e.logger.Warnw("ffprobe not found, video overlay watermarks disabled",
			"error", err,
		)
	}

	e.videoFont = cfg.FontPath
	if e.videoFont == "" {
		// drawtext needs a font on disk; stage the embedded default.
		staged := filepath.Join(os.TempDir(), "relaymirror-watermark.ttf")
		if err := os.WriteFile(staged, goregular.TTF, 0o644); err != nil {
			e.logger.Warnw("Failed to stage font for video watermarks",
				"path", staged,
				"error", err,
			)
			return
		}
		e.videoFont = staged
	}
}

// TransformText appends the destination's text watermark to a message.
// Empty input stays empty so media-only messages do not grow a caption.
func (e *Engine) TransformText(text string, wm *destination.WatermarkConfig) string {
	if text == "" || !wm.Mode.HasText() || wm.Text.Content == "" {
		return text
	}
	return text + " " + wm.Text.Content
}

// VideoEnabled reports whether video transforms can run at all.
func (e *Engine) VideoEnabled() bool {
	return e.ffmpeg != ""
}
