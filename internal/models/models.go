package models

import (
	"database/sql"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"
)

// DefaultSubject is embedded in prompts when the caller names no subject.
const DefaultSubject = "General"

// Subjects lists the subject areas offered to callers.
var Subjects = []string{
	"General",
	"Biology",
	"Chemistry",
	"Physics",
	"Mathematics",
	"History",
	"Literature",
	"Computer Science",
}

// Flashcard is a single question/answer pair. The JSON shape is the wire
// contract with both the model and export consumers.
type Flashcard struct {
	Question string `json:"question" validate:"required"`
	Answer   string `json:"answer" validate:"required"`
}

// GenerationRequest carries the source text for one generation call. An empty
// Subject means none was given.
type GenerationRequest struct {
	Text    string
	Subject string
}

type SourceKind string

const (
	SourcePDF  SourceKind = "pdf"
	SourceText SourceKind = "text"
	SourceURL  SourceKind = "url"
)

// Source records an uploaded or fetched document that text was extracted from.
type Source struct {
	ID           int64
	OriginalName string
	StoredPath   string
	Kind         SourceKind
	CharCount    int
	UploadedAt   time.Time
}

// Deck is a saved batch of flashcards.
type Deck struct {
	ID        string
	Subject   string
	SourceID  sql.NullInt64
	CardCount int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Card struct {
	ID            int64
	DeckID        string
	Position      int
	Question      string
	Answer        string
	Due           sql.NullTime
	Stability     float64
	Difficulty    float64
	ElapsedDays   int
	ScheduledDays int
	Reps          int
	Lapses        int
	State         int
	LastReview    sql.NullTime
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Subject       sql.NullString
}

type ReviewLog struct {
	ID            int64
	CardID        int64
	Rating        int
	ScheduledDays int
	ElapsedDays   int
	State         int
	ReviewedAt    time.Time
}

func (c *Card) Flashcard() Flashcard {
	return Flashcard{Question: c.Question, Answer: c.Answer}
}

func (c *Card) ToFSRSCard() fsrs.Card {
	card := fsrs.Card{
		Stability:     c.Stability,
		Difficulty:    c.Difficulty,
		ElapsedDays:   uint64(max(c.ElapsedDays, 0)),
		ScheduledDays: uint64(max(c.ScheduledDays, 0)),
		Reps:          uint64(max(c.Reps, 0)),
		Lapses:        uint64(max(c.Lapses, 0)),
		State:         fsrs.State(max(c.State, 0)),
	}
	if c.Due.Valid {
		card.Due = c.Due.Time
	}
	if c.LastReview.Valid {
		card.LastReview = c.LastReview.Time
	}
	return card
}

func (c *Card) ApplyFSRSCard(f fsrs.Card) {
	c.Due = sql.NullTime{Time: f.Due, Valid: !f.Due.IsZero()}
	c.Stability = f.Stability
	c.Difficulty = f.Difficulty
	c.ElapsedDays = int(f.ElapsedDays)
	c.ScheduledDays = int(f.ScheduledDays)
	c.Reps = int(f.Reps)
	c.Lapses = int(f.Lapses)
	c.State = int(f.State)
	c.LastReview = sql.NullTime{Time: f.LastReview, Valid: !f.LastReview.IsZero()}
}
