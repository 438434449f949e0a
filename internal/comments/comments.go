// Package comments analyses the audience reaction to a video from its
// comment section.
package comments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"google.golang.org/genai"

	"github.com/veritube/veritube-agent/internal/ai"
	"github.com/veritube/veritube-agent/internal/logging"
	"github.com/veritube/veritube-agent/internal/summarize"
	"github.com/veritube/veritube-agent/internal/video"
)

// Report statuses.
const (
	StatusProcessed = "processed"
	StatusFallback  = "fallback"
	StatusEmpty     = "empty"
	StatusError     = "error"
)

const (
	SourceTranscript = "Transcript + Metadata"
	SourceMetadata   = "Metadata Only"

	maxPromptComments  = 200
	maxPromptReplies   = 2
	maxDescriptionLen  = 500
	botCommentMaxChars = 25
)

var (
	botKeywords      = []string{"great video", "nice", "love it", "amazing", "cool", "wow", "best", "promo", "check my channel"}
	skepticKeywords  = []string{"fake", "scam", "lie", "false", "debunk", "clickbait"}
	positiveKeywords = []string{"love", "agree", "good", "thanks", "informative", "lol", "funny"}

	controversyLevels = []string{"Low", "Medium", "High"}
)

type SentimentCounts struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Neutral  int `json:"neutral"`
}

type EngagementMetrics struct {
	EngagementScore       int `json:"engagement_score"`
	BotActivityPercentage int `json:"bot_activity_percentage"`
}

type CommunityInsights struct {
	DominantTopic    string `json:"dominant_topic"`
	ControversyLevel string `json:"controversy_level"`
}

type Analysis struct {
	SentimentCounts   SentimentCounts   `json:"sentiment_counts"`
	EngagementMetrics EngagementMetrics `json:"engagement_metrics"`
	CommunityInsights CommunityInsights `json:"community_insights"`
	SummaryOfVibe     string            `json:"summary_of_vibe"`
}

// Report is the comment-analysis artifact of a video.
type Report struct {
	VideoID       string    `json:"video_id"`
	AnalyzedAt    time.Time `json:"analyzed_at"`
	ContextSource string    `json:"context_source"`
	Analysis      Analysis  `json:"analysis"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason,omitempty"`
}

// EmptyAnalysis is the zero-valued analysis carrying reason as its summary.
func EmptyAnalysis(reason string) Analysis {
	return Analysis{
		CommunityInsights: CommunityInsights{DominantTopic: "None", ControversyLevel: "Unknown"},
		SummaryOfVibe:     reason,
	}
}

// Analyzer produces comment reports. The model is tried first when one is
// configured; any failure drops to the keyword rules.
type Analyzer struct {
	client ai.Client
	logger *slog.Logger
	now    func() time.Time
}

func NewAnalyzer(client ai.Client, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		client: client,
		logger: logging.OrDiscard(logger),
		now:    time.Now,
	}
}

// Analyze builds the report for meta. transcript may be nil.
func (a *Analyzer) Analyze(ctx context.Context, meta video.Metadata, transcript *summarize.Transcript) *Report {
	r := &Report{
		VideoID:       meta.ID,
		AnalyzedAt:    a.now().UTC(),
		ContextSource: SourceMetadata,
	}
	if transcript != nil {
		r.ContextSource = SourceTranscript
	}

	if len(meta.Comments) == 0 {
		r.Analysis = EmptyAnalysis("No comments to analyze")
		r.Status = StatusEmpty
		return r
	}

	if ai.Enabled(a.client) {
		analysis, err := a.analyzeWithAI(ctx, meta, transcript)
		if err == nil {
			r.Analysis = analysis
			r.Status = StatusProcessed
			return r
		}
		a.logger.Warn("comment analysis by model failed, using keyword rules",
			"video_id", meta.ID,
			"error", err,
		)
		r.Reason = "AI analysis failed"
	}

	r.Analysis = RuleBased(meta.Comments)
	r.Status = StatusFallback
	return r
}

const commentsSystem = `Act as an expert social media analyst. Analyse YouTube comments in the context of the video they belong to.
Recurring phrases that match the tone or content of the video and receive engagement are community culture, not bot activity.
Only flag repetitive text as bot activity when it is generic and unrelated to the video, such as channel promotion.
When the video covers a negative topic, angry comments usually agree with the video rather than attack the creator.`

const commentsPrompt = `=== VIDEO CONTEXT ===
Title: %q
Description: %q
%s

=== COMMENTS TO ANALYZE ===
%s
Return sentiment counts, an engagement score from 0 to 100 based on genuine discussion depth,
the percentage of bot-like comments, the dominant topic of the discussion, the controversy level
(Low, Medium or High) and two sentences summarising how the audience feels about the video.`

var analysisSchema = ai.ObjectSchema(map[string]*genai.Schema{
	"sentiment_counts": ai.ObjectSchema(map[string]*genai.Schema{
		"positive": ai.IntegerSchema(),
		"negative": ai.IntegerSchema(),
		"neutral":  ai.IntegerSchema(),
	}, "positive", "negative", "neutral"),
	"engagement_metrics": ai.ObjectSchema(map[string]*genai.Schema{
		"engagement_score":        ai.IntegerSchema(),
		"bot_activity_percentage": ai.IntegerSchema(),
	}, "engagement_score", "bot_activity_percentage"),
	"community_insights": ai.ObjectSchema(map[string]*genai.Schema{
		"dominant_topic":    ai.StringSchema(),
		"controversy_level": ai.StringSchema(controversyLevels...),
	}, "dominant_topic", "controversy_level"),
	"summary_of_vibe": ai.StringSchema(),
}, "sentiment_counts", "engagement_metrics", "community_insights", "summary_of_vibe")

func (a *Analyzer) analyzeWithAI(ctx context.Context, meta video.Metadata, transcript *summarize.Transcript) (Analysis, error) {
	req := ai.Request{
		Operation: "analyze_comments",
		System:    commentsSystem,
		Prompt: fmt.Sprintf(commentsPrompt,
			meta.Title,
			ai.Truncate(meta.Description, maxDescriptionLen),
			TranscriptContext(transcript),
			formatComments(meta),
		),
		Schema: analysisSchema,
	}

	var out Analysis
	if err := ai.Generate(ctx, a.client, req, &out); err != nil {
		return Analysis{}, err
	}
	if out.SummaryOfVibe == "" {
		return Analysis{}, errors.New("comments: model reply has no summary")
	}
	out.EngagementMetrics.EngagementScore = clamp(out.EngagementMetrics.EngagementScore)
	out.EngagementMetrics.BotActivityPercentage = clamp(out.EngagementMetrics.BotActivityPercentage)
	return out, nil
}

// TranscriptContext renders the segment timeline used as model context.
func TranscriptContext(t *summarize.Transcript) string {
	if t == nil || len(t.Segments) == 0 {
		return "No transcript context available."
	}

	var b strings.Builder
	b.WriteString("VIDEO TRANSCRIPT SUMMARY (Timeline):\n")
	for _, seg := range t.Segments {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", seg.Timestamps.Display, seg.Analysis.Topic, seg.Analysis.Summary)
	}
	return b.String()
}

func formatComments(meta video.Metadata) string {
	top := meta.TopLevelComments()
	if len(top) > maxPromptComments {
		top = top[:maxPromptComments]
	}
	replies := meta.Replies()

	var b strings.Builder
	for i, c := range top {
		fmt.Fprintf(&b, "%d. [%d likes] %s: %s\n", i+1, c.LikeCount, c.Author, c.Text)
		rs := replies[c.ID]
		if len(rs) > maxPromptReplies {
			rs = rs[:maxPromptReplies]
		}
		for _, r := range rs {
			fmt.Fprintf(&b, "    -> Reply: %s\n", r.Text)
		}
	}
	return b.String()
}

// RuleBased scores comments with keyword heuristics. Short comments that
// hit a bot keyword count as bot activity instead of sentiment.
func RuleBased(comments []video.Comment) Analysis {
	if len(comments) == 0 {
		return EmptyAnalysis("No comments available")
	}

	var counts SentimentCounts
	var bots, totalLen int
	for _, c := range comments {
		text := strings.ToLower(c.Text)
		n := utf8.RuneCountInString(text)
		totalLen += n

		switch {
		case n < botCommentMaxChars && containsAny(text, botKeywords):
			bots++
		case containsAny(text, positiveKeywords):
			counts.Positive++
		case containsAny(text, skepticKeywords):
			counts.Negative++
		default:
			counts.Neutral++
		}
	}

	total := len(comments)
	botPct := int(math.Round(float64(bots) / float64(total) * 100))
	avgLen := float64(totalLen) / float64(total)

	score := 50
	if avgLen > 50 {
		score += 20
	}
	if avgLen > 100 {
		score += 10
	}

	controversy := "Low"
	if counts.Negative > counts.Positive {
		controversy = "High"
	}

	return Analysis{
		SentimentCounts: counts,
		EngagementMetrics: EngagementMetrics{
			EngagementScore:       clamp(score - botPct),
			BotActivityPercentage: botPct,
		},
		CommunityInsights: CommunityInsights{
			DominantTopic:    "Unable to determine (AI Unavailable)",
			ControversyLevel: controversy,
		},
		SummaryOfVibe: "Rule-based analysis performed. Sentiment derived from keywords only.",
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func clamp(v int) int {
	return max(0, min(100, v))
}
