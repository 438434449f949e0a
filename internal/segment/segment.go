// Package segment groups transcript entries into fixed-length time windows.
package segment

import (
	"fmt"
	"math"
	"strings"

	"github.com/veritube/veritube-agent/internal/caption"
)

// DefaultWindow is the window length in seconds used when none is given.
const DefaultWindow = 300

// Segment is the transcript text that falls inside one time window.
type Segment struct {
	ID             int    `json:"segment_id"`
	StartSeconds   int    `json:"start_time_seconds"`
	EndSeconds     int    `json:"end_time_seconds"`
	Text           string `json:"text"`
	TimestampRange string `json:"timestamp_range"`
}

// Split assigns every entry to the window floor(start/window) and returns the
// non-empty windows in time order, numbered from 1 without gaps. An entry that
// starts exactly on a boundary belongs to the later window.
func Split(entries []caption.Entry, windowSeconds int) []Segment {
	if windowSeconds <= 0 {
		windowSeconds = DefaultWindow
	}
	if len(entries) == 0 {
		return []Segment{}
	}

	var buckets []*strings.Builder
	for _, e := range entries {
		idx := bucketIndex(e.Start, windowSeconds)
		for len(buckets) <= idx {
			buckets = append(buckets, nil)
		}
		if buckets[idx] == nil {
			buckets[idx] = &strings.Builder{}
		}
		buckets[idx].WriteString(e.Text)
		buckets[idx].WriteByte(' ')
	}

	segments := make([]Segment, 0, len(buckets))
	for i, b := range buckets {
		if b == nil {
			continue
		}
		text := strings.TrimSpace(b.String())
		if text == "" {
			continue
		}
		start := i * windowSeconds
		end := start + windowSeconds
		segments = append(segments, Segment{
			ID:             len(segments) + 1,
			StartSeconds:   start,
			EndSeconds:     end,
			Text:           text,
			TimestampRange: FormatRange(start, end),
		})
	}
	return segments
}

// FormatClock renders whole seconds as H:MM:SS. Hours are not zero padded and
// keep counting past 24.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}

// FormatRange renders a window as "H:MM:SS - H:MM:SS".
func FormatRange(start, end int) string {
	return FormatClock(start) + " - " + FormatClock(end)
}

func bucketIndex(start float64, window int) int {
	if start <= 0 || math.IsNaN(start) || math.IsInf(start, 0) {
		return 0
	}
	return int(math.Floor(start / float64(window)))
}
