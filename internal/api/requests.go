package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"flashgen/internal/models"
)

const maxJSONBody = 4 << 20 // 4 MB

var validate = validator.New()

type generateRequest struct {
	Text    string `json:"text" validate:"required_without=URL"`
	URL     string `json:"url" validate:"omitempty,url"`
	Subject string `json:"subject" validate:"max=100"`
}

type exportRequest struct {
	Format     string             `json:"format" validate:"required"`
	Flashcards []models.Flashcard `json:"flashcards"`
}

type saveDeckRequest struct {
	Subject    string             `json:"subject" validate:"max=100"`
	SourceID   *int64             `json:"sourceId" validate:"omitempty,gt=0"`
	Flashcards []models.Flashcard `json:"flashcards" validate:"required,min=1,dive"`
}

type replaceCardsRequest struct {
	Flashcards []models.Flashcard `json:"flashcards" validate:"required,min=1,dive"`
}

type reviewRequest struct {
	Rating string `json:"rating" validate:"required"`
}

// decodeJSON decodes the request body into v and validates its tags.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return validationMessage(err)
	}
	return nil
}

func validationMessage(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		field = strings.ToLower(field)
		switch fe.Tag() {
		case "required", "required_without":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must contain at least %s item(s)", field, fe.Param()))
		case "url":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid URL", field))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
