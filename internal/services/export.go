package services

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"flashgen/internal/models"
)

// ExportFormat names a file format flashcards can be written in.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

var ErrUnknownFormat = errors.New("unknown export format")

func ParseFormat(raw string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, raw)
	}
}

// Filename is the default file name for an export in this format.
func (f ExportFormat) Filename() string {
	return "flashcards." + string(f)
}

func (f ExportFormat) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

// WriteCSV writes a question,answer header followed by one row per card.
func WriteCSV(w io.Writer, cards []models.Flashcard) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"question", "answer"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i, card := range cards {
		if err := cw.Write([]string{card.Question, card.Answer}); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteJSON writes cards as an indented JSON array. A nil batch is written as [].
func WriteJSON(w io.Writer, cards []models.Flashcard) error {
	if cards == nil {
		cards = []models.Flashcard{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cards); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func Write(w io.Writer, format ExportFormat, cards []models.Flashcard) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, cards)
	case FormatJSON:
		return WriteJSON(w, cards)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// ExportFile writes cards to dir/flashcards.<format>, replacing any previous
// export, and returns the path.
func ExportFile(dir string, format ExportFormat, cards []models.Flashcard) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure export dir: %w", err)
	}
	path := filepath.Join(dir, format.Filename())

	tmp, err := os.CreateTemp(dir, ".flashcards-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, format, cards); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename export: %w", err)
	}
	return path, nil
}
