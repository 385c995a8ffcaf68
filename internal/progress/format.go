package progress

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const barWidth = 20

// Snapshot is everything needed to render one status line.
type Snapshot struct {
	Action  string // "Downloading", "Uploading", ...
	Name    string
	Done    int64
	Total   int64
	Sample  Sample
	Elapsed time.Duration
}

// Render formats a multi-line status message.
func Render(s Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", s.Action, s.Name)
	if s.Total > 0 {
		fmt.Fprintf(&b, "[%s] %.1f%%\n", Bar(s.Done, s.Total, barWidth), Percent(s.Done, s.Total))
		fmt.Fprintf(&b, "Size: %s / %s\n", humanize.IBytes(uint64(s.Done)), humanize.IBytes(uint64(s.Total)))
	} else {
		fmt.Fprintf(&b, "Size: %s\n", humanize.IBytes(uint64(s.Done)))
	}
	fmt.Fprintf(&b, "Speed: %s\n", s.Sample.Rate)
	fmt.Fprintf(&b, "Elapsed: %s | ETA: %s", Clock(s.Elapsed), FormatETA(s.Sample))
	return b.String()
}

// Bar draws a fixed-width bar of filled and empty cells.
func Bar(done, total int64, width int) string {
	filled := 0
	if total > 0 {
		filled = int(float64(width) * float64(done) / float64(total))
	}
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("○", width-filled)
}

// Percent returns done/total as a percentage capped at 100.
func Percent(done, total int64) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(done) * 100 / float64(total)
	if p > 100 {
		p = 100
	}
	return p
}

// FormatETA renders the ETA of s, or "--:--" when indeterminate.
func FormatETA(s Sample) string {
	if !s.Known() {
		return "--:--"
	}
	return Clock(s.ETA)
}

// Clock formats d as mm:ss, or hh:mm:ss from one hour up.
func Clock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d.Round(time.Second) / time.Second)
	h, m, sec := secs/3600, (secs%3600)/60, secs%60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", m, sec)
}
