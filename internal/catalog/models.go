package catalog

import (
	"time"

	"github.com/google/uuid"
)

const (
	RunKindProcess   = "process"
	RunKindImport    = "import"
	RunKindComments  = "comments"
	RunKindFactCheck = "fact_check"
	RunKindPurge     = "purge"
	RunKindSibling   = "sibling"

	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run records one pipeline invocation for a video.
type Run struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	VideoID string `json:"video_id"`
	Source  string `json:"source,omitempty"`
	Status  string `json:"status"`
	Stage   string `json:"stage,omitempty"`
	// Cached is set when the run was answered from the cache.
	Cached    bool      `json:"cached"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func NewID() string {
	return uuid.NewString()
}
