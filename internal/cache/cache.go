// Package cache is the key/value store that makes the pipeline idempotent.
//
// Every value is stored as JSON. Absence is reported with ErrNotFound and
// never inferred from the value, so "", false and null are valid cached
// values.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is the absent marker returned by Get for unknown or expired keys.
	ErrNotFound = errors.New("cache: key not found")
	// ErrInvalidValue is returned by Set when the value is not valid JSON.
	ErrInvalidValue = errors.New("cache: value is not valid JSON")
)

// Artifact suffixes. The key for an artifact is "<video_id>_<suffix>.json".
const (
	SuffixSummary         = "summary"
	SuffixCaptions        = "captions"
	SuffixCleanTranscript = "clean_transcript"
	SuffixSegmented       = "segmented_summary"
	SuffixAnalysis        = "analysis"
	SuffixFactCheck       = "fact_check"
)

// PurgeSuffixes is the fixed set of artifacts removed by a purge.
var PurgeSuffixes = []string{
	SuffixCleanTranscript,
	SuffixSegmented,
	SuffixFactCheck,
	SuffixSummary,
	SuffixCaptions,
}

// Store is implemented by every cache backend.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (json.RawMessage, error)
	// Set stores value under key. A ttl of zero or less never expires.
	Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error
	// Delete removes the keys and returns how many existed.
	Delete(ctx context.Context, keys ...string) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// Sweeper is implemented by backends that keep expired rows until swept.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// Key builds the cache key for one artifact of a video.
func Key(videoID, suffix string) string {
	return videoID + "_" + suffix + ".json"
}

// PurgeKeys returns the keys removed by a purge of videoID.
func PurgeKeys(videoID string) []string {
	keys := make([]string, len(PurgeSuffixes))
	for i, s := range PurgeSuffixes {
		keys[i] = Key(videoID, s)
	}
	return keys
}

// Purge deletes the purge set of videoID in a single call.
func Purge(ctx context.Context, s Store, videoID string) (int, error) {
	return s.Delete(ctx, PurgeKeys(videoID)...)
}

// GetJSON decodes the value under key into v.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw, ttl)
}

func validate(value json.RawMessage) error {
	if len(value) == 0 || !json.Valid(value) {
		return ErrInvalidValue
	}
	return nil
}

func expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}
