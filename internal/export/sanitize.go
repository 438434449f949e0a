package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

var (
	ErrOutputDirRequired  = errors.New("output_dir is required")
	ErrOutputDirTraversal = errors.New("output_dir cannot contain path traversal")
	ErrOutputDirUnclean   = errors.New("output_dir must be a clean path")
	ErrOutputDirMissing   = errors.New("output_dir does not exist")
	ErrOutputDirNotDir    = errors.New("output_dir is not a directory")
)

// SanitizeName makes s safe for an EDL comment or a file name: control
// characters are dropped, anything outside letters, digits and " -_.,()"
// becomes '_', and the result is cut to maxLen runes when maxLen > 0.
func SanitizeName(s string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return -1
		case unicode.IsLetter(r), unicode.IsDigit(r), strings.ContainsRune(" -_.,()", r):
			return r
		default:
			return '_'
		}
	}, s)
	cleaned = strings.TrimSpace(cleaned)

	if maxLen > 0 {
		if runes := []rune(cleaned); len(runes) > maxLen {
			cleaned = strings.TrimSpace(string(runes[:maxLen]))
		}
	}
	return cleaned
}

// ValidateOutputDir checks that dir is an existing, clean directory path.
func ValidateOutputDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return ErrOutputDirRequired
	}
	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == ".." {
			return ErrOutputDirTraversal
		}
	}
	if filepath.Clean(dir) != dir {
		return ErrOutputDirUnclean
	}

	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return ErrOutputDirMissing
	}
	if err != nil {
		return fmt.Errorf("invalid output_dir: %w", err)
	}
	if !info.IsDir() {
		return ErrOutputDirNotDir
	}
	return nil
}
