package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashgen/internal/logging"
	"flashgen/internal/models"
)

// cannedModel replies with a fixed string or error and records the prompt.
type cannedModel struct {
	reply  string
	err    error
	prompt string
	calls  int
}

func (m *cannedModel) Complete(_ context.Context, prompt string) (string, error) {
	m.calls++
	m.prompt = prompt
	return m.reply, m.err
}

func TestGeneratorGenerate(t *testing.T) {
	model := &cannedModel{reply: "```json\n[{\"question\":\"Q1\",\"answer\":\"A1\"},{\"question\":\"Q2\",\"answer\":\"A2\"}]\n```"}
	gen := NewGenerator(model, logging.Discard())

	cards := gen.Generate(context.Background(), models.GenerationRequest{Text: "source text", Subject: "Physics"})

	require.Len(t, cards, 2)
	assert.Equal(t, models.Flashcard{Question: "Q2", Answer: "A2"}, cards[1])
	assert.Equal(t, 1, model.calls, "no retries")
	assert.Contains(t, model.prompt, "source text")
	assert.Contains(t, model.prompt, "Subject area: Physics")
}

func TestGeneratorGenerateCollapsesFailures(t *testing.T) {
	tests := []struct {
		name  string
		model *cannedModel
	}{
		{"transport", &cannedModel{err: fmt.Errorf("%w: dial tcp: refused", ErrConnectivity)}},
		{"format", &cannedModel{reply: "Sure! Here are your flashcards."}},
		{"schema", &cannedModel{reply: `[{"question":"Q1"}]`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := NewGenerator(tt.model, logging.Discard())
			assert.Empty(t, gen.Generate(context.Background(), models.GenerationRequest{Text: "x"}))
			assert.Equal(t, 1, tt.model.calls)
		})
	}
}

func TestGeneratorAttemptClassifiesFailures(t *testing.T) {
	ctx := context.Background()
	req := models.GenerationRequest{Text: "x"}

	_, err := NewGenerator(&cannedModel{err: fmt.Errorf("%w: down", ErrConnectivity)}, logging.Discard()).Attempt(ctx, req)
	assert.ErrorIs(t, err, ErrConnectivity)

	_, err = NewGenerator(&cannedModel{reply: "nope"}, logging.Discard()).Attempt(ctx, req)
	assert.ErrorIs(t, err, ErrFormat)

	_, err = NewGenerator(&cannedModel{reply: `{"question":"Q","answer":"A"}`}, logging.Discard()).Attempt(ctx, req)
	assert.ErrorIs(t, err, ErrSchema)
	assert.False(t, errors.Is(err, ErrFormat))
}

func TestGeneratorDefaultsSubject(t *testing.T) {
	model := &cannedModel{reply: "[]"}
	NewGenerator(model, logging.Discard()).Generate(context.Background(), models.GenerationRequest{Text: "x"})
	assert.Contains(t, model.prompt, "Subject area: General")
}

func TestGeneratorReportsProgress(t *testing.T) {
	model := &cannedModel{reply: `[{"question":"Q1","answer":"A1"}]`}
	gen := NewGenerator(model, logging.Discard())

	var steps []string
	gen.GenerateWithProgress(context.Background(), models.GenerationRequest{Text: "x"}, func(step, _ string, _, _ int) {
		steps = append(steps, step)
	})
	assert.Equal(t, []string{"prompt", "generate", "validate", "complete"}, steps)
}
