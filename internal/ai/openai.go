package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/veritube/veritube-agent/internal/logging"
)

const jsonOnlyInstruction = "Respond with a single JSON object and nothing else."

// OpenAIConfig configures any OpenAI-compatible chat completion endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *slog.Logger
}

// OpenAIClient calls an OpenAI-compatible API through go-openai. It has no
// web search, so grounded requests are answered from the model alone.
type OpenAIClient struct {
	cli    *openai.Client
	model  string
	logger *slog.Logger
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai: model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		cli:    openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
		logger: logging.OrDiscard(cfg.Logger),
	}, nil
}

func (o *OpenAIClient) Provider() string { return "openai" }

func (o *OpenAIClient) GenerateJSON(ctx context.Context, req Request) ([]byte, error) {
	if req.Grounded {
		o.logger.Debug("openai provider has no search grounding", "operation", req.Operation)
	}

	system := jsonOnlyInstruction
	if req.System != "" {
		system = req.System + "\n" + jsonOnlyInstruction
	}
	if req.Schema != nil {
		schema, err := json.Marshal(req.Schema)
		if err != nil {
			return nil, fmt.Errorf("openai: encode schema: %w", err)
		}
		system += "\nThe object must match this JSON schema:\n" + string(schema)
	}

	resp, err := o.cli.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, ErrEmptyResponse
	}
	return []byte(resp.Choices[0].Message.Content), nil
}
