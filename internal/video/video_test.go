package video

import (
	"errors"
	"testing"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42s", "dQw4w9WgXcQ"},
		{"https://m.youtube.com/watch?feature=share&v=abc123", "abc123"},
		{"https://youtu.be/dQw4w9WgXcQ?si=xyz", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/shorts/Sh0rtID_1", "Sh0rtID_1"},
		{"https://www.youtube.com/embed/Emb-ed", "Emb-ed"},
		{"youtube.com/watch?v=noScheme&list=x", "noScheme"},
		{"youtu.be/bareHost?t=1", "bareHost"},
		{"dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"  spaced  ", "spaced"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ParseID(tt.in); got != tt.want {
			t.Errorf("ParseID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidID(t *testing.T) {
	valid := []string{"dQw4w9WgXcQ", "a", "A_b-9"}
	for _, id := range valid {
		if !ValidID(id) {
			t.Errorf("ValidID(%q) = false, want true", id)
		}
	}
	invalid := []string{"", "../etc", "a/b", "with space", "https://x"}
	for _, id := range invalid {
		if ValidID(id) {
			t.Errorf("ValidID(%q) = true, want false", id)
		}
	}
}

func TestDecodeMetadata(t *testing.T) {
	data := []byte(`{
		"id": "abc",
		"title": "A talk",
		"description": "desc",
		"tags": ["x"],
		"formats": [{"format_id": "18"}],
		"comments": [
			{"id": "c1", "text": "great", "author": "u1", "like_count": 3, "parent": "root"},
			{"id": "c2", "text": "agree", "author": "u2", "like_count": 1, "parent": "c1"}
		]
	}`)

	m, err := DecodeMetadata(data)
	if err != nil {
		t.Fatalf("DecodeMetadata() error = %v", err)
	}
	if m.ID != "abc" || m.Title != "A talk" {
		t.Fatalf("unexpected metadata: %+v", m)
	}
	if top := m.TopLevelComments(); len(top) != 1 || top[0].ID != "c1" {
		t.Fatalf("TopLevelComments() = %+v", top)
	}
	if replies := m.Replies()["c1"]; len(replies) != 1 || replies[0].ID != "c2" {
		t.Fatalf("Replies()[c1] = %+v", replies)
	}
}

func TestDecodeMetadata_RejectsNonConforming(t *testing.T) {
	payloads := []string{
		`[{"id": "abc"}]`,
		`"abc"`,
		`{"title": "no id"}`,
		`{"id": 12}`,
		`not json`,
	}
	for _, p := range payloads {
		_, err := DecodeMetadata([]byte(p))
		if !errors.Is(err, ErrInvalidMetadata) {
			t.Errorf("DecodeMetadata(%s) error = %v, want ErrInvalidMetadata", p, err)
		}
	}
}
