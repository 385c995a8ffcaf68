package staging

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/withObsrvr/obsrvr-media-relay/internal/util"
)

// Sweep removes artifacts older than maxAge, such as those left behind by a
// process that died mid-transfer. Only files named like artifacts are
// touched, so a shared directory such as os.TempDir is safe to sweep.
func (a *Area) Sweep(maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !isArtifactName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < maxAge {
			continue
		}

		path := filepath.Join(a.dir, e.Name())
		if err := util.RemoveFile(path); err != nil {
			slog.Warn("failed to sweep staging artifact", "component", "staging", "path", path, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		slog.Info("swept stale staging artifacts", "component", "staging", "dir", a.dir, "removed", removed)
	}
	return removed, nil
}

// isArtifactName matches the "<uuid>-<name>" pattern Create uses.
func isArtifactName(name string) bool {
	const idLen = 36
	if len(name) < idLen+2 || name[idLen] != '-' {
		return false
	}
	_, err := uuid.Parse(name[:idLen])
	return err == nil
}
