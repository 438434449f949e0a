package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/veritube/veritube-agent/internal/logging"
)

// GeminiConfig configures the Gemini client. Several API keys may be given;
// the client rotates to the next key when one is rate limited.
type GeminiConfig struct {
	APIKeys []string
	Model   string
	Logger  *slog.Logger
}

// GeminiClient calls the Gemini API through google.golang.org/genai.
type GeminiClient struct {
	clients []*genai.Client
	model   string
	logger  *slog.Logger

	mu      sync.Mutex
	current int
}

func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if len(cfg.APIKeys) == 0 {
		return nil, errors.New("gemini: at least one API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("gemini: model is required")
	}

	clients := make([]*genai.Client, 0, len(cfg.APIKeys))
	for i, key := range cfg.APIKeys {
		c, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini: create client for key %d: %w", i+1, err)
		}
		clients = append(clients, c)
	}

	return &GeminiClient{
		clients: clients,
		model:   cfg.Model,
		logger:  logging.OrDiscard(cfg.Logger),
	}, nil
}

func (g *GeminiClient) Provider() string { return "gemini" }

// GenerateJSON sends req and returns the reply text. Rate-limited keys are
// rotated; any other error is returned immediately.
func (g *GeminiClient) GenerateJSON(ctx context.Context, req Request) ([]byte, error) {
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Grounded {
		// Search tools cannot be combined with a JSON response schema.
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	} else {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = req.Schema
	}

	var lastErr error
	for range g.clients {
		client, idx := g.client()

		result, err := client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), cfg)
		if err != nil {
			if isRateLimited(err) && len(g.clients) > 1 {
				g.logger.Warn("gemini key rate limited, rotating", "key", idx+1, "operation", req.Operation)
				g.rotate(idx)
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("gemini: generate content: %w", err)
		}

		text := responseText(result)
		if text == "" {
			return nil, ErrEmptyResponse
		}
		return []byte(text), nil
	}

	return nil, fmt.Errorf("gemini: all API keys exhausted: %w", lastErr)
}

func (g *GeminiClient) client() (*genai.Client, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.clients[g.current], g.current
}

// rotate advances past idx unless another caller already did.
func (g *GeminiClient) rotate(idx int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == idx {
		g.current = (g.current + 1) % len(g.clients)
	}
}

func responseText(result *genai.GenerateContentResponse) string {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

func isRateLimited(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED")
}
