package services

import (
	"context"
	"log/slog"

	"flashgen/internal/models"
)

// ProgressCallback is called during generation to report progress.
type ProgressCallback func(step, message string, current, total int)

// Generator runs the prompt → model → validation pipeline for one request.
type Generator struct {
	model  ChatModel
	logger *slog.Logger
}

func NewGenerator(model ChatModel, logger *slog.Logger) *Generator {
	return &Generator{model: model, logger: logger}
}

func (g *Generator) complete(ctx context.Context, req models.GenerationRequest, progress ProgressCallback) (string, error) {
	if progress != nil {
		progress("prompt", "Building prompt", 5, 100)
	}
	prompt := BuildPrompt(req.Text, req.Subject)

	if progress != nil {
		progress("generate", "Waiting for model", 10, 100)
	}
	raw, err := g.model.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}

	if progress != nil {
		progress("validate", "Validating flashcards", 90, 100)
	}
	return raw, nil
}

// Attempt runs one generation and reports why it failed, if it did. The error
// wraps ErrConnectivity, ErrFormat or ErrSchema.
func (g *Generator) Attempt(ctx context.Context, req models.GenerationRequest) ([]models.Flashcard, error) {
	raw, err := g.complete(ctx, req, nil)
	if err != nil {
		return nil, err
	}
	return ValidateBatch(raw)
}

// Generate never fails: transport, format and schema failures are logged and
// collapse to an empty batch, so callers only see emptiness.
func (g *Generator) Generate(ctx context.Context, req models.GenerationRequest) []models.Flashcard {
	return g.GenerateWithProgress(ctx, req, nil)
}

func (g *Generator) GenerateWithProgress(ctx context.Context, req models.GenerationRequest, progress ProgressCallback) []models.Flashcard {
	g.logger.InfoContext(ctx, "generating flashcards",
		"subject", req.Subject,
		"text_length", len(req.Text))

	raw, err := g.complete(ctx, req, progress)
	if err != nil {
		g.logger.ErrorContext(ctx, "error generating flashcards", "error", err)
		return nil
	}

	cards := ParseFlashcards(g.logger, raw)
	if len(cards) > 0 {
		g.logger.InfoContext(ctx, "generated flashcards", "count", len(cards))
	}
	if progress != nil {
		progress("complete", "Generation complete", 100, 100)
	}
	return cards
}
