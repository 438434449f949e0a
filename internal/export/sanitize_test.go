package export

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		maxLen int
		want   string
	}{
		{name: "control characters dropped", in: " A\nB\rC\tD\x00 ", maxLen: 100, want: "ABCD"},
		{name: "allowed punctuation kept", in: "Intro (part 1) - claims, sources_v2.", maxLen: 100, want: "Intro (part 1) - claims, sources_v2."},
		{name: "unicode letters kept", in: "Café Überblick 東京", maxLen: 100, want: "Café Überblick 東京"},
		{name: "path and quote characters replaced", in: `a/b\c:"d"`, maxLen: 100, want: "a_b_c__d_"},
		{name: "truncated by runes", in: "ÉÉÉÉÉÉÉÉÉÉÉÉ", maxLen: 5, want: "ÉÉÉÉÉ"},
		{name: "trailing space trimmed after cut", in: "topic    tail", maxLen: 7, want: "topic"},
		{name: "no limit", in: "abcdefghijklmnopqrstuvwxyz", maxLen: 0, want: "abcdefghijklmnopqrstuvwxyz"},
		{name: "only whitespace", in: "   ", maxLen: 10, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeName(tt.in, tt.maxLen); got != tt.want {
				t.Errorf("SanitizeName(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestValidateOutputDir(t *testing.T) {
	base := t.TempDir()
	file := filepath.Join(base, "cut.edl")
	if err := os.WriteFile(file, []byte("TITLE: x\n"), 0o644); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}

	tests := []struct {
		name string
		dir  string
		want error
	}{
		{name: "existing directory", dir: base, want: nil},
		{name: "blank", dir: "  ", want: ErrOutputDirRequired},
		{name: "traversal", dir: "/tmp/../etc", want: ErrOutputDirTraversal},
		{name: "unclean", dir: base + "/./exports", want: ErrOutputDirUnclean},
		{name: "missing", dir: filepath.Join(base, "missing"), want: ErrOutputDirMissing},
		{name: "file not directory", dir: file, want: ErrOutputDirNotDir},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOutputDir(tt.dir)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("ValidateOutputDir(%q) = %v, want nil", tt.dir, err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("ValidateOutputDir(%q) = %v, want %v", tt.dir, err, tt.want)
			}
		})
	}
}
