// Package summarize produces the per-segment analysis of a transcript and
// assembles the segmented transcript artifact.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"google.golang.org/genai"

	"github.com/veritube/veritube-agent/internal/ai"
	"github.com/veritube/veritube-agent/internal/logging"
	"github.com/veritube/veritube-agent/internal/metrics"
	"github.com/veritube/veritube-agent/internal/segment"
)

// Sentiment of a segment.
type Sentiment string

const (
	Positive      Sentiment = "Positive"
	Neutral       Sentiment = "Neutral"
	Negative      Sentiment = "Negative"
	Controversial Sentiment = "Controversial"
	// Unknown only appears in the fallback analysis.
	Unknown Sentiment = "Unknown"
)

// Sentiments lists the values a successful analysis may carry.
var Sentiments = []Sentiment{Positive, Neutral, Negative, Controversial}

const (
	// UnavailableTopic marks the fallback analysis.
	UnavailableTopic   = "Analysis Unavailable"
	unavailableSummary = "AI summarization could not be completed for this segment."

	// MaxInputChars bounds the segment text sent to the model.
	MaxInputChars = 15000
)

// ErrInvalidAnalysis is returned when a model reply lacks required fields.
var ErrInvalidAnalysis = errors.New("summarize: invalid analysis")

// Analysis is the structured summary of one segment.
type Analysis struct {
	Topic             string    `json:"topic"`
	Summary           string    `json:"summary"`
	KeyPoints         []string  `json:"key_points"`
	Sentiment         Sentiment `json:"sentiment"`
	EntitiesMentioned []string  `json:"entities_mentioned"`
}

// Fallback returns the sentinel analysis used when summarization fails.
func Fallback() Analysis {
	return Analysis{
		Topic:             UnavailableTopic,
		Summary:           unavailableSummary,
		KeyPoints:         []string{},
		Sentiment:         Unknown,
		EntitiesMentioned: []string{},
	}
}

// IsFallback reports whether a is the sentinel analysis.
func (a Analysis) IsFallback() bool {
	return a.Topic == UnavailableTopic
}

// Validate checks the fields a successful analysis must carry and fills
// nil lists with empty ones.
func (a *Analysis) Validate() error {
	if a.Topic == "" {
		return fmt.Errorf("%w: missing topic", ErrInvalidAnalysis)
	}
	if a.Summary == "" {
		return fmt.Errorf("%w: missing summary", ErrInvalidAnalysis)
	}
	if !slices.Contains(Sentiments, a.Sentiment) {
		return fmt.Errorf("%w: sentiment %q", ErrInvalidAnalysis, a.Sentiment)
	}
	if a.KeyPoints == nil {
		a.KeyPoints = []string{}
	}
	if a.EntitiesMentioned == nil {
		a.EntitiesMentioned = []string{}
	}
	return nil
}

// Summarizer analyses the text of one segment.
type Summarizer interface {
	Summarize(ctx context.Context, text, timestampRange string) (Analysis, error)
}

// AISummarizer asks a model for the analysis through a JSON schema request.
type AISummarizer struct {
	client ai.Client
}

func NewAISummarizer(client ai.Client) *AISummarizer {
	return &AISummarizer{client: client}
}

const summarizePrompt = `You are analysing one segment of a video transcript covering %s.
Return the main topic, a concise summary, the key points, the overall sentiment
and the people, organisations, places or products mentioned.

Transcript:
%s`

var analysisSchema = ai.ObjectSchema(map[string]*genai.Schema{
	"topic":              ai.StringSchema(),
	"summary":            ai.StringSchema(),
	"key_points":         ai.ArraySchema(ai.StringSchema()),
	"sentiment":          ai.StringSchema("Positive", "Neutral", "Negative", "Controversial"),
	"entities_mentioned": ai.ArraySchema(ai.StringSchema()),
}, "topic", "summary", "key_points", "sentiment", "entities_mentioned")

func (s *AISummarizer) Summarize(ctx context.Context, text, timestampRange string) (Analysis, error) {
	req := ai.Request{
		Operation: "summarize",
		Prompt:    fmt.Sprintf(summarizePrompt, timestampRange, ai.Truncate(text, MaxInputChars)),
		Schema:    analysisSchema,
	}

	var a Analysis
	if err := ai.Generate(ctx, s.client, req, &a); err != nil {
		return Analysis{}, err
	}
	if err := a.Validate(); err != nil {
		return Analysis{}, err
	}
	return a, nil
}

// Timestamps locates a segment in the video.
type Timestamps struct {
	StartSec int    `json:"start_sec"`
	EndSec   int    `json:"end_sec"`
	Display  string `json:"display"`
}

// SegmentResult is one entry of the segmented transcript. RawTranscript is
// set exactly when Analysis is the fallback.
type SegmentResult struct {
	SegmentID     int        `json:"segment_id"`
	Timestamps    Timestamps `json:"timestamps"`
	Analysis      Analysis   `json:"analysis"`
	RawTranscript string     `json:"raw_transcript,omitempty"`
}

// Transcript is the segmented-summary artifact of a video.
type Transcript struct {
	VideoID       string          `json:"video_id"`
	SourceFile    string          `json:"source_file"`
	ProcessedAt   time.Time       `json:"processed_at"`
	WindowSeconds int             `json:"window_seconds"`
	TotalSegments int             `json:"total_segments"`
	Segments      []SegmentResult `json:"segments"`
}

// Builder runs the summarizer over every segment of a transcript.
type Builder struct {
	summarizer Summarizer
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewBuilder creates a Builder. A nil summarizer gives every segment the
// fallback analysis and its raw text.
func NewBuilder(s Summarizer, m *metrics.Metrics, logger *slog.Logger) *Builder {
	return &Builder{
		summarizer: s,
		metrics:    m,
		logger:     logging.OrDiscard(logger),
		now:        time.Now,
	}
}

// Build summarizes segments one by one. A failing segment never aborts the
// build; it gets the fallback analysis and keeps its text.
func (b *Builder) Build(ctx context.Context, videoID, sourceFile string, windowSeconds int, segments []segment.Segment) *Transcript {
	t := &Transcript{
		VideoID:       videoID,
		SourceFile:    sourceFile,
		ProcessedAt:   b.now().UTC(),
		WindowSeconds: windowSeconds,
		TotalSegments: len(segments),
		Segments:      make([]SegmentResult, 0, len(segments)),
	}

	for _, seg := range segments {
		analysis := b.summarize(ctx, videoID, seg)

		res := SegmentResult{
			SegmentID: seg.ID,
			Timestamps: Timestamps{
				StartSec: seg.StartSeconds,
				EndSec:   seg.EndSeconds,
				Display:  seg.TimestampRange,
			},
			Analysis: analysis,
		}
		if analysis.IsFallback() {
			res.RawTranscript = seg.Text
		}
		t.Segments = append(t.Segments, res)
	}

	return t
}

func (b *Builder) summarize(ctx context.Context, videoID string, seg segment.Segment) Analysis {
	if b.summarizer == nil {
		b.metrics.ObserveSummarizer("fallback")
		return Fallback()
	}

	a, err := b.summarizer.Summarize(ctx, seg.Text, seg.TimestampRange)
	if err != nil {
		b.metrics.ObserveSummarizer("fallback")
		level := slog.LevelWarn
		if errors.Is(err, ai.ErrDisabled) {
			level = slog.LevelDebug
		}
		b.logger.Log(ctx, level, "segment summarization failed, using fallback",
			"video_id", videoID,
			"segment_id", seg.ID,
			"error", err,
		)
		return Fallback()
	}

	b.metrics.ObserveSummarizer("ok")
	return a
}
