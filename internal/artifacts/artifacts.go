// Package artifacts manages the per-video folders that hold extractor output
// and JSON copies of every pipeline artifact.
package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrInvalidVideoID is returned for ids that would escape the base directory.
var ErrInvalidVideoID = errors.New("invalid video id")

// Store lays out artifacts as <base>/<video_id>/<video_id>_<suffix>.json.
type Store struct {
	baseDir string
}

// NewStore creates the base directory if needed.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifacts directory: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

// BaseDir returns the root directory of all video folders.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// Dir returns the folder for videoID.
func (s *Store) Dir(videoID string) (string, error) {
	if videoID == "" || strings.ContainsAny(videoID, `/\`) || videoID == "." || videoID == ".." {
		return "", ErrInvalidVideoID
	}
	dir := filepath.Join(s.baseDir, videoID)
	if !strings.HasPrefix(filepath.Clean(dir), filepath.Clean(s.baseDir)+string(filepath.Separator)) {
		return "", ErrInvalidVideoID
	}
	return dir, nil
}

// Ensure creates the folder for videoID and returns its path.
func (s *Store) Ensure(videoID string) (string, error) {
	dir, err := s.Dir(videoID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create video folder: %w", err)
	}
	return dir, nil
}

// Exists reports whether the folder for videoID is present.
func (s *Store) Exists(videoID string) bool {
	dir, err := s.Dir(videoID)
	if err != nil {
		return false
	}
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// Path returns the JSON file path for one artifact of videoID.
func (s *Store) Path(videoID, suffix string) (string, error) {
	dir, err := s.Dir(videoID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, videoID+"_"+suffix+".json"), nil
}

// WriteJSON writes v as indented JSON through a temp file and rename.
func (s *Store) WriteJSON(videoID, suffix string, v any) (string, error) {
	if _, err := s.Ensure(videoID); err != nil {
		return "", err
	}
	path, err := s.Path(videoID, suffix)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", suffix, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", suffix, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to write %s: %w", suffix, err)
	}
	return path, nil
}

// ReadJSON decodes the artifact file into v. A missing file yields os.ErrNotExist.
func (s *Store) ReadJSON(videoID, suffix string, v any) error {
	path, err := s.Path(videoID, suffix)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Remove deletes the JSON files of the given artifacts. Missing files are ignored.
func (s *Store) Remove(videoID string, suffixes ...string) error {
	for _, suffix := range suffixes {
		path, err := s.Path(videoID, suffix)
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", suffix, err)
		}
	}
	return nil
}

// FindFile returns the first file in the video folder that matches the glob
// pattern, or "" when none does. Matches are sorted so the choice is stable.
func (s *Store) FindFile(videoID, pattern string) (string, error) {
	dir, err := s.Dir(videoID)
	if err != nil {
		return "", err
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", nil
	}
	sort.Strings(matches)
	return matches[0], nil
}
