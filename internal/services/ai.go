package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrConnectivity is returned when the model endpoint cannot be reached or
	// answers with an envelope that carries no message content.
	ErrConnectivity = errors.New("model endpoint unavailable")
	// ErrAIUnavailable is returned when no endpoint or model is configured.
	ErrAIUnavailable = errors.New("model integration is not configured")
)

// ChatModel sends one prompt to a chat model and returns the raw reply text.
type ChatModel interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// AIService talks to an OpenAI-compatible chat-completions endpoint.
type AIService struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

func NewAIService(apiKey, model, apiEndpoint string, logger *slog.Logger) *AIService {
	if apiEndpoint == "" || model == "" {
		return &AIService{logger: logger}
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = apiEndpoint
	return &AIService{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger,
	}
}

func (s *AIService) disabled() bool {
	return s.client == nil || s.model == ""
}

// Complete sends the fixed system message plus prompt and returns the reply
// content exactly as received. No timeout is applied here; callers bound ctx.
func (s *AIService) Complete(ctx context.Context, prompt string) (string, error) {
	if s.disabled() {
		return "", fmt.Errorf("%w: %w", ErrConnectivity, ErrAIUnavailable)
	}

	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	}

	s.logger.InfoContext(ctx, "sending request to model", "model", s.model, "prompt_length", len(prompt))
	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: request chat completion: %w", ErrConnectivity, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: model returned no choices", ErrConnectivity)
	}

	content := resp.Choices[0].Message.Content
	s.logger.InfoContext(ctx, "received response from model", "response_length", len(content))
	s.logger.DebugContext(ctx, "raw model response", "raw", content)
	return content, nil
}
