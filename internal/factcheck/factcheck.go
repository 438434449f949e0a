// Package factcheck extracts checkable claims from a segmented transcript and
// verifies them with a search-grounded model request.
package factcheck

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/veritube/veritube-agent/internal/ai"
	"github.com/veritube/veritube-agent/internal/logging"
	"github.com/veritube/veritube-agent/internal/summarize"
)

// Report statuses. Only processed and skipped reports are worth caching.
const (
	StatusProcessed           = "processed"
	StatusSkipped             = "skipped"
	StatusError               = "error"
	StatusNotFound            = "not_found"
	StatusMissingPrerequisite = "missing_prerequisite"
)

const (
	maxSummaryChars = 500
	maxContextChars = 8000
)

// Verdicts a fact check may carry.
var Verdicts = []string{"True", "False", "Unverified", "Context Missing"}

type Check struct {
	Claim       string `json:"claim"`
	Verdict     string `json:"verdict"`
	Explanation string `json:"explanation"`
}

type Perspective struct {
	Source      string `json:"source"`
	Type        string `json:"type"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

type BiasDistribution struct {
	LeftCount   int `json:"left_count"`
	CenterCount int `json:"center_count"`
	RightCount  int `json:"right_count"`
}

// Report is the fact-check artifact. Its slices are never nil so the JSON
// shape is the same for every status.
type Report struct {
	VideoID                 string           `json:"video_id"`
	SourceFile              string           `json:"source_file,omitempty"`
	CheckedAt               time.Time        `json:"checked_at"`
	FactChecks              []Check          `json:"fact_checks"`
	AlternativePerspectives []Perspective    `json:"alternative_perspectives"`
	BiasDistribution        BiasDistribution `json:"bias_distribution"`
	Status                  string           `json:"status"`
	Reason                  string           `json:"reason,omitempty"`
}

// Empty returns the safe payload for a report with no findings.
func Empty(videoID, status, reason string) *Report {
	return &Report{
		VideoID:                 videoID,
		CheckedAt:               time.Now().UTC(),
		FactChecks:              []Check{},
		AlternativePerspectives: []Perspective{},
		Status:                  status,
		Reason:                  reason,
	}
}

// Cacheable reports whether r is a final result rather than a failure.
func (r *Report) Cacheable() bool {
	return r.Status == StatusProcessed || r.Status == StatusSkipped
}

// Claim is a verifiable statement found in a segment.
type Claim struct {
	Text      string `json:"claim_text"`
	SegmentID int    `json:"segment_id"`
}

type extraction struct {
	IsCheckable bool    `json:"is_checkable"`
	Claims      []Claim `json:"claims"`
}

// Checker runs claim extraction and verification.
type Checker struct {
	client ai.Client
	logger *slog.Logger
}

func NewChecker(client ai.Client, logger *slog.Logger) *Checker {
	return &Checker{client: client, logger: logging.OrDiscard(logger)}
}

// Check fact-checks t. It never returns a nil report; failures are reported
// through the status field.
func (c *Checker) Check(ctx context.Context, t *summarize.Transcript) *Report {
	if t == nil || len(t.Segments) == 0 {
		return c.finish(t, Empty("", StatusSkipped, "No transcript segments"))
	}
	if !ai.Enabled(c.client) {
		return c.finish(t, Empty(t.VideoID, StatusError, "AI unavailable"))
	}

	ex, err := c.extractClaims(ctx, t)
	if err != nil {
		c.logger.Warn("claim extraction failed", "video_id", t.VideoID, "error", err)
		return c.finish(t, Empty(t.VideoID, StatusError, "Claim extraction failed"))
	}
	if !ex.IsCheckable {
		return c.finish(t, Empty(t.VideoID, StatusSkipped, "Non-News Content"))
	}
	if len(ex.Claims) == 0 {
		return c.finish(t, Empty(t.VideoID, StatusSkipped, "No verifiable claims"))
	}

	c.logger.Info("verifying claims", "video_id", t.VideoID, "claims", len(ex.Claims))
	r, err := c.verify(ctx, ex.Claims)
	if err != nil {
		c.logger.Warn("claim verification failed", "video_id", t.VideoID, "error", err)
		return c.finish(t, Empty(t.VideoID, StatusError, "AI Processing Failed"))
	}
	r.Status = StatusProcessed
	return c.finish(t, r)
}

func (c *Checker) finish(t *summarize.Transcript, r *Report) *Report {
	if t != nil {
		r.VideoID = t.VideoID
		r.SourceFile = t.SourceFile
	}
	return r
}

const extractPrompt = `You are a content triage assistant. Read these video segment summaries.

1. Decide whether the content is fact-checkable news or information, or subjective entertainment.
   Set is_checkable to false for gaming, music, vlogs or pure opinion.
   Set is_checkable to true for news, politics, science or educational content.
2. Only when it is checkable, extract verifiable factual claims (names, events, statistics) with
   the segment they come from.

Segments:
%s`

var extractionSchema = ai.ObjectSchema(map[string]*genai.Schema{
	"is_checkable": ai.BooleanSchema(),
	"claims": ai.ArraySchema(ai.ObjectSchema(map[string]*genai.Schema{
		"claim_text": ai.StringSchema(),
		"segment_id": ai.IntegerSchema(),
	}, "claim_text", "segment_id")),
}, "is_checkable", "claims")

func (c *Checker) extractClaims(ctx context.Context, t *summarize.Transcript) (extraction, error) {
	req := ai.Request{
		Operation: "extract_claims",
		Prompt:    fmt.Sprintf(extractPrompt, ai.Truncate(SegmentsText(t), maxContextChars)),
		Schema:    extractionSchema,
	}

	var ex extraction
	if err := ai.Generate(ctx, c.client, req, &ex); err != nil {
		return extraction{}, err
	}
	ex.Claims = slices.DeleteFunc(ex.Claims, func(cl Claim) bool {
		return strings.TrimSpace(cl.Text) == ""
	})
	return ex, nil
}

// SegmentsText renders the segment summaries sent for claim extraction.
// Fallback segments contribute their raw text.
func SegmentsText(t *summarize.Transcript) string {
	var b strings.Builder
	for _, seg := range t.Segments {
		summary := seg.Analysis.Summary
		if seg.Analysis.IsFallback() {
			summary = seg.RawTranscript
		}
		fmt.Fprintf(&b, "Segment %d: %s. Key Points: %s\n\n",
			seg.SegmentID,
			ai.Truncate(summary, maxSummaryChars),
			strings.Join(seg.Analysis.KeyPoints, "; "),
		)
	}
	return b.String()
}

const verifySystem = `Act as a fact checker and media bias analyst. Use web search to find evidence.`

const verifyPrompt = `For each claim below:
1. Give a verdict (True, False, Unverified or Context Missing) with a short explanation based on the evidence you found.
2. List news sources with varied perspectives on the topic, with their type, a description and a URL.
3. Count the left, center and right leaning sources among them.

Respond with a JSON object of the form:
{"fact_checks":[{"claim":"","verdict":"","explanation":""}],
 "alternative_perspectives":[{"source":"","type":"","description":"","url":""}],
 "bias_distribution":{"left_count":0,"center_count":0,"right_count":0}}

Claims:
%s`

func (c *Checker) verify(ctx context.Context, claims []Claim) (*Report, error) {
	var b strings.Builder
	for i, cl := range claims {
		fmt.Fprintf(&b, "%d. (segment %d) %q\n", i+1, cl.SegmentID, cl.Text)
	}

	req := ai.Request{
		Operation: "verify_claims",
		System:    verifySystem,
		Prompt:    fmt.Sprintf(verifyPrompt, b.String()),
		Grounded:  true,
	}

	r := Empty("", "", "")
	if err := ai.Generate(ctx, c.client, req, r); err != nil {
		return nil, err
	}
	normalize(r)
	return r, nil
}

// normalize repairs a decoded model reply so it keeps the fixed shape.
func normalize(r *Report) {
	if r.FactChecks == nil {
		r.FactChecks = []Check{}
	}
	if r.AlternativePerspectives == nil {
		r.AlternativePerspectives = []Perspective{}
	}
	for i := range r.FactChecks {
		if !slices.Contains(Verdicts, r.FactChecks[i].Verdict) {
			r.FactChecks[i].Verdict = "Unverified"
		}
	}
	r.BiasDistribution.LeftCount = max(0, r.BiasDistribution.LeftCount)
	r.BiasDistribution.CenterCount = max(0, r.BiasDistribution.CenterCount)
	r.BiasDistribution.RightCount = max(0, r.BiasDistribution.RightCount)
}
