package transfer

import (
	"fmt"
	"path/filepath"
	"regexp"
	"time"
)

const maxNameLen = 200

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9 _.-]`)

// SanitizeName replaces characters outside [a-zA-Z0-9 _.-] with '_' and
// trims the name to 200 characters while keeping its extension.
func SanitizeName(name string) string {
	name = filepath.Base(name)
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	name = unsafeNameChars.ReplaceAllString(name, "_")
	if len(name) > maxNameLen {
		ext := filepath.Ext(name)
		if len(ext) >= maxNameLen {
			ext = ""
		}
		name = name[:maxNameLen-len(ext)] + ext
	}
	return name
}

// ObjectKey builds user_{owner}/{unix}_{name}.
func ObjectKey(owner, name string, now time.Time) string {
	if owner == "" {
		owner = "anonymous"
	}
	return fmt.Sprintf("user_%s/%d_%s", owner, now.Unix(), SanitizeName(name))
}

// uniqueKey disambiguates key with a short suffix before the extension.
func uniqueKey(key, suffix string) string {
	ext := filepath.Ext(key)
	return key[:len(key)-len(ext)] + "_" + suffix + ext
}
