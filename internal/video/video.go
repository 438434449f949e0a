// Package video holds the identity and metadata schema of an ingested video.
package video

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var idRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ErrInvalidMetadata marks a metadata payload that does not match the
// required schema.
var ErrInvalidMetadata = errors.New("invalid video metadata")

// ParseID extracts the video id from a watch URL. Recognised forms are the
// "v" query parameter, youtu.be/<id>, /shorts/<id>, /embed/<id> and /live/<id>.
// Anything else is returned trimmed, so a bare id passes through unchanged.
func ParseID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		if i := strings.Index(raw, "v="); i >= 0 {
			return cut(raw[i+2:], "&#")
		}
		if i := strings.Index(raw, "be/"); i >= 0 {
			return cut(raw[i+3:], "?&#/")
		}
		return raw
	}

	if v := u.Query().Get("v"); v != "" {
		return v
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	if host == "youtu.be" && len(parts) > 0 {
		return parts[0]
	}
	if len(parts) >= 2 {
		switch parts[0] {
		case "shorts", "embed", "live", "v":
			return parts[1]
		}
	}
	return raw
}

// ValidID reports whether id is safe to use as a folder name and cache key prefix.
func ValidID(id string) bool {
	return idRe.MatchString(id)
}

func cut(s, stops string) string {
	if i := strings.IndexAny(s, stops); i >= 0 {
		return s[:i]
	}
	return s
}

// Chapter is a creator-defined section of the video.
type Chapter struct {
	Title     string  `json:"title"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// Comment is a top-level comment or reply as written by the extractor.
type Comment struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Text      string `json:"text"`
	LikeCount int    `json:"like_count"`
	Parent    string `json:"parent,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// IsReply reports whether c answers another comment.
func (c Comment) IsReply() bool {
	return c.Parent != "" && c.Parent != "root"
}

// Metadata is the single ingestion schema for extractor output. Fields not
// listed here are discarded.
type Metadata struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Channel      string    `json:"channel"`
	UploadDate   string    `json:"upload_date,omitempty"`
	Duration     float64   `json:"duration"`
	ViewCount    int64     `json:"view_count"`
	LikeCount    int64     `json:"like_count"`
	CommentCount int64     `json:"comment_count"`
	Tags         []string  `json:"tags"`
	Chapters     []Chapter `json:"chapters"`
	Comments     []Comment `json:"comments"`
}

// DecodeMetadata validates and decodes an extractor payload. The payload must
// be a JSON object with a non-empty "id"; lists and scalars are rejected
// rather than reshaped.
func DecodeMetadata(data []byte) (Metadata, error) {
	trimmed := strings.TrimSpace(string(data))
	if !strings.HasPrefix(trimmed, "{") {
		return Metadata{}, fmt.Errorf("%w: expected a JSON object", ErrInvalidMetadata)
	}

	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	if m.ID == "" {
		return Metadata{}, fmt.Errorf("%w: missing id", ErrInvalidMetadata)
	}
	return m, nil
}

// TopLevelComments returns the comments that are not replies, in input order.
func (m Metadata) TopLevelComments() []Comment {
	out := make([]Comment, 0, len(m.Comments))
	for _, c := range m.Comments {
		if !c.IsReply() {
			out = append(out, c)
		}
	}
	return out
}

// Replies groups reply comments by the id of the comment they answer.
func (m Metadata) Replies() map[string][]Comment {
	out := make(map[string][]Comment)
	for _, c := range m.Comments {
		if c.IsReply() {
			out[c.Parent] = append(out[c.Parent], c)
		}
	}
	return out
}
