// Package export writes segmented transcripts as CMX3600 edit decision lists
// so an editor can jump between the summarized segments of a video.
package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/veritube/veritube-agent/internal/summarize"
)

const (
	DefaultFrameRate = 30.0

	maxClipName = 160
	maxNote     = 200
)

// FromTranscript turns every segment of t into an event on mediaName. The
// clip name is the segment topic, or "Segment N" for fallback segments.
func FromTranscript(t *summarize.Transcript, mediaName string) []Event {
	if t == nil {
		return []Event{}
	}
	if mediaName == "" {
		mediaName = t.VideoID
	}

	events := make([]Event, 0, len(t.Segments))
	for _, seg := range t.Segments {
		name := fmt.Sprintf("Segment %d", seg.SegmentID)
		if !seg.Analysis.IsFallback() {
			if topic := SanitizeName(seg.Analysis.Topic, maxClipName); topic != "" {
				name = topic
			}
		}
		events = append(events, Event{
			SegmentID:    seg.SegmentID,
			ClipName:     name,
			MediaName:    mediaName,
			StartSeconds: seg.Timestamps.StartSec,
			EndSeconds:   seg.Timestamps.EndSec,
			Note:         SanitizeName(seg.Analysis.Summary, maxNote),
		})
	}
	return events
}

// Select keeps the events whose segment ids are in ids, in timeline order,
// and returns the requested ids that matched no event.
func Select(events []Event, ids []int) (kept []Event, missing []int) {
	missing = []int{}
	if len(ids) == 0 {
		return events, missing
	}

	want := make(map[int]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	kept = make([]Event, 0, len(ids))
	for _, e := range events {
		if want[e.SegmentID] {
			kept = append(kept, e)
			delete(want, e.SegmentID)
		}
	}
	for _, id := range ids {
		if want[id] {
			missing = append(missing, id)
			delete(want, id)
		}
	}
	return kept, missing
}

// GenerateEDL renders events as a CMX3600 list. Record times are laid end to
// end starting at zero.
func GenerateEDL(events []Event, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = int(DefaultFrameRate)
	}

	dropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{"TITLE: " + title}
	if dropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	record := 0
	for i, e := range events {
		length := e.EndSeconds - e.StartSeconds
		if length < 0 {
			length = 0
		}
		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "V",
				timecode(e.StartSeconds*1000, fps), timecode((e.StartSeconds+length)*1000, fps),
				timecode(record*1000, fps), timecode((record+length)*1000, fps)),
			"* FROM CLIP NAME:  "+e.ClipName,
			"* SOURCE FILE:  "+e.MediaName,
		)
		if e.Note != "" {
			lines = append(lines, "* COMMENT:  "+e.Note)
		}
		record += length
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

// timecode formats a millisecond offset as HH:MM:SS:FF.
func timecode(ms, fps int) string {
	if ms < 0 {
		ms = 0
	}
	frames := int(math.Round(float64(ms) * float64(fps) / 1000.0))
	ff := frames % fps
	secs := frames / fps
	return fmt.Sprintf("%02d:%02d:%02d:%02d", secs/3600, secs/60%60, secs%60, ff)
}
