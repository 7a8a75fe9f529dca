package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPromptDefaultsSubject(t *testing.T) {
	prompt := BuildPrompt("Cells are the basic unit of life.", "")
	assert.Contains(t, prompt, "Subject area: General")
}

func TestBuildPromptUsesGivenSubject(t *testing.T) {
	prompt := BuildPrompt("Cells are the basic unit of life.", "Biology")
	assert.Contains(t, prompt, "Subject area: Biology")
	assert.NotContains(t, prompt, "General")
}

func TestBuildPromptContents(t *testing.T) {
	text := "Mitochondria produce ATP.\nRibosomes build proteins."
	prompt := BuildPrompt(text, "Biology")

	assert.Contains(t, prompt, "10-15")
	assert.Contains(t, prompt, "clear question")
	assert.Contains(t, prompt, "concise, self-contained answer")
	assert.Contains(t, prompt, "'question' and 'answer' fields")
	assert.Contains(t, prompt, text)
	assert.True(t, strings.Contains(prompt, "Return ONLY the JSON array"))
}

func TestBuildPromptPassesEmptyTextThrough(t *testing.T) {
	prompt := BuildPrompt("", "")
	assert.Contains(t, prompt, "Text:\n\n\nSubject area: General")
}

func TestBuildPromptIsDeterministic(t *testing.T) {
	assert.Equal(t, BuildPrompt("abc", "Physics"), BuildPrompt("abc", "Physics"))
}

func TestBuildPromptKeepsFormatVerbs(t *testing.T) {
	prompt := BuildPrompt("growth of 5%s per year", "")
	assert.Contains(t, prompt, "growth of 5%s per year")
}
