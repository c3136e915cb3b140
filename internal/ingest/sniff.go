package ingest

import (
	"bytes"
	"path/filepath"
	"strings"

	"relaymirror/internal/stats"
)

// DetectKind classifies an attachment by magic numbers first, then the
// declared MIME type, then the file extension. Unrecognized payloads
// count as documents.
func DetectKind(data []byte, fileName, mimeType string) string {
	if kind := sniffMagic(data); kind != "" {
		return kind
	}
	if kind := kindFromMime(mimeType); kind != "" {
		return kind
	}
	return kindFromExtension(fileName)
}

func sniffMagic(data []byte) string {
	if len(data) < 12 {
		return ""
	}

	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return stats.KindImage
	case bytes.HasPrefix(data, []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		return stats.KindImage
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return stats.KindImage
	case bytes.HasPrefix(data, []byte("RIFF")):
		switch string(data[8:12]) {
		case "WEBP":
			return stats.KindImage
		case "AVI ":
			return stats.KindVideo
		case "WAVE":
			return stats.KindAudio
		}
		return ""
	case string(data[4:8]) == "ftyp":
		// mp4 family: the brand after the box size varies (isom, mp42,
		// qt) but the box name is stable.
		return stats.KindVideo
	case bytes.HasPrefix(data, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return stats.KindVideo
	case bytes.HasPrefix(data, []byte("ID3")):
		return stats.KindAudio
	case bytes.HasPrefix(data, []byte("OggS")):
		return stats.KindAudio
	case bytes.HasPrefix(data, []byte("fLaC")):
		return stats.KindAudio
	case bytes.HasPrefix(data, []byte("%PDF")):
		return stats.KindDocument
	}
	return ""
}

func kindFromMime(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return stats.KindImage
	case strings.HasPrefix(mimeType, "video/"):
		return stats.KindVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return stats.KindAudio
	case mimeType == "application/pdf":
		return stats.KindDocument
	}
	return ""
}

func kindFromExtension(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp":
		return stats.KindImage
	case ".mp4", ".mov", ".mkv", ".webm", ".avi":
		return stats.KindVideo
	case ".mp3", ".ogg", ".wav", ".flac", ".m4a":
		return stats.KindAudio
	default:
		return stats.KindDocument
	}
}
