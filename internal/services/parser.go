package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"flashgen/internal/models"
)

var (
	// ErrFormat is returned when a reply is not parseable as JSON.
	ErrFormat = errors.New("reply is not valid JSON")
	// ErrSchema is returned when parsed JSON is not an array of question/answer objects.
	ErrSchema = errors.New("reply does not match flashcard schema")
)

// stripFences removes markdown code fence markers that models add around JSON
// even when told not to.
func stripFences(content string) string {
	content = strings.ReplaceAll(content, "```json", "")
	content = strings.ReplaceAll(content, "```", "")
	return strings.TrimSpace(content)
}

// ValidateBatch de-fences raw, parses it and checks the flashcard schema. The
// batch is accepted whole or rejected with ErrFormat or ErrSchema.
func ValidateBatch(raw string) ([]models.Flashcard, error) {
	cleaned := stripFences(raw)

	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.UseNumber()
	var parsed any
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after JSON value", ErrFormat)
	}

	items, ok := parsed.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: response is not a list", ErrSchema)
	}

	cards := make([]models.Flashcard, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: item %d is not an object", ErrSchema, i)
		}
		question, err := stringField(obj, "question")
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", ErrSchema, i, err)
		}
		answer, err := stringField(obj, "answer")
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", ErrSchema, i, err)
		}
		cards = append(cards, models.Flashcard{Question: question, Answer: answer})
	}
	return cards, nil
}

// stringField returns the value of key as text. Numbers and booleans keep
// their JSON spelling and null becomes "". Objects and arrays are rejected.
func stringField(obj map[string]any, key string) (string, error) {
	val, ok := obj[key]
	if !ok {
		return "", fmt.Errorf("missing %q", key)
	}
	switch v := val.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("%q is a JSON %s, not text", key, jsonKind(v))
	}
}

func jsonKind(v any) string {
	if _, ok := v.([]any); ok {
		return "array"
	}
	return "object"
}

// ParseFlashcards never fails: any format or schema problem is logged with
// the offending text and an empty batch is returned.
func ParseFlashcards(logger *slog.Logger, raw string) []models.Flashcard {
	cards, err := ValidateBatch(raw)
	if err != nil {
		logFailure(logger, err, raw)
		return nil
	}
	logger.Debug("parsed flashcards", "count", len(cards))
	return cards
}

func logFailure(logger *slog.Logger, err error, raw string) {
	switch {
	case errors.Is(err, ErrFormat):
		logger.Error("JSON parsing error", "error", err, "problematic_text", stripFences(raw))
	case errors.Is(err, ErrSchema):
		logger.Error("invalid flashcard format", "error", err, "raw", raw)
	default:
		logger.Error("error generating flashcards", "error", err)
	}
}
