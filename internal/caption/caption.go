// Package caption turns WebVTT-style caption text into an ordered list of
// timed transcript entries.
package caption

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Entry is one deduplicated piece of transcript text and the time it starts.
type Entry struct {
	Start float64 `json:"start"`
	Text  string  `json:"text"`
}

var (
	timingRe = regexp.MustCompile(`((?:\d{2}:)?\d{2}:\d{2}\.\d{3})\s*-->\s*((?:\d{2}:)?\d{2}:\d{2}\.\d{3})`)
	tagRe    = regexp.MustCompile(`<[^>]*>`)

	entities = strings.NewReplacer(
		"&nbsp;", " ",
		"&gt;", ">",
		"&lt;", "<",
		"&amp;", "&",
	)
)

// maxLineBytes bounds a single caption line read from a stream.
const maxLineBytes = 1024 * 1024

// Parse converts caption lines into transcript entries.
//
// Rolling auto-captions repeat the same line across consecutive cues; the
// parser keeps one copy per cue and drops a cue whose joined text equals the
// previously emitted entry. The end time of each cue is ignored. Text that
// precedes the first timing line starts at 0.
func Parse(lines []string) []Entry {
	var (
		entries []Entry
		buffer  []string
		current float64
	)

	flush := func() {
		if len(buffer) == 0 {
			return
		}
		text := strings.TrimSpace(strings.Join(buffer, " "))
		buffer = buffer[:0]
		if text == "" {
			return
		}
		if n := len(entries); n > 0 && entries[n-1].Text == text {
			return
		}
		entries = append(entries, Entry{Start: current, Text: text})
	}

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if isHeader(line) {
			continue
		}

		if m := timingRe.FindStringSubmatch(line); m != nil {
			flush()
			current = ParseTimestamp(m[1])
			continue
		}

		text := cleanLine(line)
		if text == "" {
			continue
		}
		if n := len(buffer); n > 0 && buffer[n-1] == text {
			continue
		}
		buffer = append(buffer, text)
	}
	flush()

	return entries
}

// ParseReader reads caption text line by line and parses it.
func ParseReader(r io.Reader) ([]Entry, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, err
	}
	return Parse(lines), nil
}

// ParseFile parses the caption file at path.
func ParseFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open captions: %w", err)
	}
	defer f.Close()

	entries, err := ParseReader(f)
	if err != nil {
		return nil, fmt.Errorf("read captions %s: %w", path, err)
	}
	return entries, nil
}

// CleanText produces a plain transcript from caption lines: headers and
// timing lines removed, markup stripped, consecutive duplicate lines dropped.
func CleanText(lines []string) string {
	var (
		out  []string
		last string
	)
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if isHeader(line) || timingRe.MatchString(line) {
			continue
		}
		text := cleanLine(line)
		if text == "" || text == last {
			continue
		}
		out = append(out, text)
		last = text
	}
	return strings.Join(out, "\n")
}

// ParseTimestamp converts "HH:MM:SS.mmm" or "MM:SS.mmm" into seconds.
// Anything else yields 0.
func ParseTimestamp(ts string) float64 {
	parts := strings.Split(strings.TrimSpace(ts), ":")

	var h, m int
	var secField string
	var err error

	switch len(parts) {
	case 3:
		if h, err = strconv.Atoi(parts[0]); err != nil {
			return 0
		}
		if m, err = strconv.Atoi(parts[1]); err != nil {
			return 0
		}
		secField = parts[2]
	case 2:
		if m, err = strconv.Atoi(parts[0]); err != nil {
			return 0
		}
		secField = parts[1]
	default:
		return 0
	}

	s, err := strconv.ParseFloat(secField, 64)
	if err != nil {
		return 0
	}
	return float64(h)*3600 + float64(m)*60 + s
}

// SplitLines splits raw caption text on line breaks, tolerating CRLF.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}

func isHeader(line string) bool {
	switch {
	case line == "":
		return true
	case line == "WEBVTT", strings.HasPrefix(line, "WEBVTT "):
		return true
	case strings.HasPrefix(line, "Kind:"), strings.HasPrefix(line, "Language:"):
		return true
	}
	return false
}

func cleanLine(line string) string {
	line = tagRe.ReplaceAllString(line, "")
	line = entities.Replace(line)
	return strings.TrimSpace(line)
}

func readLines(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}
