package links

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Kind classifies stored media for the web player.
type Kind string

const (
	Video Kind = "video"
	Audio Kind = "audio"
	Image Kind = "image"
	Other Kind = "other"
)

var extKinds = map[string]Kind{}

func init() {
	for _, ext := range []string{".mp4", ".mkv", ".avi", ".mov", ".wmv", ".flv", ".webm", ".m4v", ".3gp", ".mpeg", ".mpg", ".ts"} {
		extKinds[ext] = Video
	}
	for _, ext := range []string{".mp3", ".m4a", ".flac", ".wav", ".aac", ".ogg", ".wma"} {
		extKinds[ext] = Audio
	}
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp"} {
		extKinds[ext] = Image
	}
}

// ParseKind validates a kind taken from a URL path.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(s)); k {
	case Video, Audio, Image, Other:
		return k, nil
	}
	return "", fmt.Errorf("unknown media kind %q", s)
}

// Playable reports whether the player can render k.
func (k Kind) Playable() bool {
	return k == Video || k == Audio || k == Image
}

// KindFromName classifies by file extension.
func KindFromName(name string) Kind {
	if k, ok := extKinds[strings.ToLower(filepath.Ext(name))]; ok {
		return k
	}
	return Other
}

// KindFromMIME classifies by MIME type ("video/mp4" -> Video).
func KindFromMIME(mime string) Kind {
	top, _, _ := strings.Cut(mime, "/")
	switch top {
	case "video":
		return Video
	case "audio":
		return Audio
	case "image":
		return Image
	}
	return Other
}

// Classify uses the extension of name and falls back to sniffing the file at
// path. It also returns the detected content type, empty if sniffing failed.
func Classify(name, path string) (Kind, string) {
	kind := KindFromName(name)
	if path == "" {
		return kind, ""
	}
	m, err := mimetype.DetectFile(path)
	if err != nil {
		return kind, ""
	}
	if kind == Other {
		kind = KindFromMIME(m.String())
	}
	return kind, m.String()
}
