package export

// Event is one segment placed on the edit timeline.
type Event struct {
	SegmentID    int
	ClipName     string
	MediaName    string
	StartSeconds int
	EndSeconds   int
	// Note is written as an EDL comment; typically the segment summary.
	Note string
}

// Request asks for the segments of a processed video to be written as an
// edit decision list. An empty SegmentIDs selects every segment.
type Request struct {
	ProjectName string  `json:"project_name"`
	Format      string  `json:"format"`
	FrameRate   float64 `json:"frame_rate"`
	OutputDir   string  `json:"output_dir"`
	MediaName   string  `json:"media_name"`
	SegmentIDs  []int   `json:"segment_ids"`
}

type Response struct {
	Status          string `json:"status"`
	Format          string `json:"format"`
	OutputPath      string `json:"output_path"`
	EventCount      int    `json:"event_count"`
	MissingSegments []int  `json:"missing_segments"`
}
