package services

import (
	"fmt"

	"flashgen/internal/models"
)

const systemPrompt = "You are a helpful assistant that creates educational flashcards. Always respond with valid JSON."

const flashcardInstruction = `Generate 10-15 high-quality flashcards from the following text.
Each flashcard should have a clear question and a concise, self-contained answer.
Format each flashcard as a JSON array of objects with 'question' and 'answer' fields.
Example format:
[
    {"question": "What is photosynthesis?", "answer": "The process by which plants convert light energy into chemical energy."},
    {"question": "What are the main components of a cell?", "answer": "Cell membrane, cytoplasm, and nucleus."}
]

Text:
%s

Subject area: %s

Return ONLY the JSON array of flashcards, nothing else.
`

// BuildPrompt embeds text and subject into the flashcard instruction. Text is
// passed through untouched, even when empty. An empty subject becomes "General".
func BuildPrompt(text, subject string) string {
	if subject == "" {
		subject = models.DefaultSubject
	}
	return fmt.Sprintf(flashcardInstruction, text, subject)
}
