package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	fsrs "github.com/open-spaced-repetition/go-fsrs"

	"flashgen/internal/models"
)

var (
	// ErrNoDueCards indicates that there are no cards ready to review.
	ErrNoDueCards    = errors.New("no due cards")
	ErrDeckNotFound  = errors.New("deck not found")
	ErrCardNotFound  = errors.New("card not found")
	ErrEmptyDeck     = errors.New("deck has no flashcards")
	ErrBlankCard     = errors.New("flashcard question and answer must not be blank")
	ErrUnknownRating = errors.New("unknown rating")
)

const cardColumns = `
	c.id, c.deck_id, c.position, c.question, c.answer,
	c.due, c.stability, c.difficulty, c.elapsed_days, c.scheduled_days,
	c.reps, c.lapses, c.state, c.last_review, c.created_at, c.updated_at, d.subject`

// DeckService persists accepted batches as decks and schedules their review with FSRS.
type DeckService struct {
	db     *sql.DB
	params fsrs.Parameters
}

func NewDeckService(db *sql.DB) *DeckService {
	return &DeckService{db: db, params: fsrs.DefaultParam()}
}

func checkCards(cards []models.Flashcard) error {
	if len(cards) == 0 {
		return ErrEmptyDeck
	}
	for i, card := range cards {
		if strings.TrimSpace(card.Question) == "" || strings.TrimSpace(card.Answer) == "" {
			return fmt.Errorf("%w: card %d", ErrBlankCard, i)
		}
	}
	return nil
}

// SaveDeck stores a batch as a new deck. An empty subject is saved as "General".
func (s *DeckService) SaveDeck(ctx context.Context, subject string, sourceID sql.NullInt64, cards []models.Flashcard) (*models.Deck, error) {
	if err := checkCards(cards); err != nil {
		return nil, err
	}
	if subject == "" {
		subject = models.DefaultSubject
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	deck := &models.Deck{
		ID:        uuid.NewString(),
		Subject:   subject,
		SourceID:  sourceID,
		CardCount: len(cards),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO decks (id, subject, source_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?);
	`, deck.ID, deck.Subject, nullInt64Ptr(sourceID), now, now); err != nil {
		return nil, fmt.Errorf("insert deck: %w", err)
	}

	if err := insertCards(ctx, tx, deck.ID, cards, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit deck: %w", err)
	}
	return deck, nil
}

func insertCards(ctx context.Context, tx *sql.Tx, deckID string, cards []models.Flashcard, now time.Time) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cards (deck_id, position, question, answer, due, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?);
	`)
	if err != nil {
		return fmt.Errorf("prepare card insert: %w", err)
	}
	defer stmt.Close()

	for i, card := range cards {
		if _, err := stmt.ExecContext(ctx, deckID, i, card.Question, card.Answer, now, int(fsrs.New), now, now); err != nil {
			return fmt.Errorf("insert card %q: %w", card.Question, err)
		}
	}
	return nil
}

// ReplaceCards swaps a deck's cards for an edited batch. Scheduling state of
// the old cards is discarded.
func (s *DeckService) ReplaceCards(ctx context.Context, deckID string, cards []models.Flashcard) error {
	if err := checkCards(cards); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `UPDATE decks SET updated_at = ? WHERE id = ?;`, now, deckID)
	if err != nil {
		return fmt.Errorf("touch deck: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrDeckNotFound, deckID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM cards WHERE deck_id = ?;`, deckID); err != nil {
		return fmt.Errorf("delete cards: %w", err)
	}
	if err := insertCards(ctx, tx, deckID, cards, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

func (s *DeckService) DeleteDeck(ctx context.Context, deckID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM decks WHERE id = ?;`, deckID)
	if err != nil {
		return fmt.Errorf("delete deck: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrDeckNotFound, deckID)
	}
	return nil
}

// ListDecks returns every deck, newest first.
func (s *DeckService) ListDecks(ctx context.Context) ([]models.Deck, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.subject, d.source_id, d.created_at, d.updated_at, COUNT(c.id)
		FROM decks d
		LEFT JOIN cards c ON c.deck_id = d.id
		GROUP BY d.id
		ORDER BY d.created_at DESC;
	`)
	if err != nil {
		return nil, fmt.Errorf("list decks: %w", err)
	}
	defer rows.Close()

	var decks []models.Deck
	for rows.Next() {
		var deck models.Deck
		if err := rows.Scan(&deck.ID, &deck.Subject, &deck.SourceID, &deck.CreatedAt, &deck.UpdatedAt, &deck.CardCount); err != nil {
			return nil, fmt.Errorf("scan deck: %w", err)
		}
		decks = append(decks, deck)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decks: %w", err)
	}
	return decks, nil
}

// GetDeck returns a deck and its cards in their original order.
func (s *DeckService) GetDeck(ctx context.Context, deckID string) (*models.Deck, []models.Card, error) {
	var deck models.Deck
	err := s.db.QueryRowContext(ctx, `
		SELECT id, subject, source_id, created_at, updated_at FROM decks WHERE id = ?;
	`, deckID).Scan(&deck.ID, &deck.Subject, &deck.SourceID, &deck.CreatedAt, &deck.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: %s", ErrDeckNotFound, deckID)
		}
		return nil, nil, fmt.Errorf("load deck: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+cardColumns+`
		FROM cards c
		JOIN decks d ON c.deck_id = d.id
		WHERE c.deck_id = ?
		ORDER BY c.position ASC;
	`, deckID)
	if err != nil {
		return nil, nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	var cards []models.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("scan card: %w", err)
		}
		cards = append(cards, *card)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate cards: %w", err)
	}
	deck.CardCount = len(cards)
	return &deck, cards, nil
}

// DeckFlashcards returns a deck's cards as a plain batch, ready for export.
func (s *DeckService) DeckFlashcards(ctx context.Context, deckID string) ([]models.Flashcard, error) {
	_, cards, err := s.GetDeck(ctx, deckID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Flashcard, 0, len(cards))
	for i := range cards {
		out = append(out, cards[i].Flashcard())
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (*models.Card, error) {
	card := &models.Card{}
	if err := row.Scan(
		&card.ID,
		&card.DeckID,
		&card.Position,
		&card.Question,
		&card.Answer,
		&card.Due,
		&card.Stability,
		&card.Difficulty,
		&card.ElapsedDays,
		&card.ScheduledDays,
		&card.Reps,
		&card.Lapses,
		&card.State,
		&card.LastReview,
		&card.CreatedAt,
		&card.UpdatedAt,
		&card.Subject,
	); err != nil {
		return nil, err
	}
	return card, nil
}

// NextCard returns the card that has been due the longest.
func (s *DeckService) NextCard(ctx context.Context) (*models.Card, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+cardColumns+`
		FROM cards c
		JOIN decks d ON c.deck_id = d.id
		WHERE c.due IS NOT NULL AND c.due <= ?
		ORDER BY c.due ASC, c.position ASC
		LIMIT 1;
	`, time.Now().UTC())
	card, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoDueCards
		}
		return nil, fmt.Errorf("next card: %w", err)
	}
	return card, nil
}

// ParseRating maps again/hard/good/easy to an FSRS rating.
func ParseRating(raw string) (fsrs.Rating, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "again":
		return fsrs.Again, nil
	case "hard":
		return fsrs.Hard, nil
	case "good":
		return fsrs.Good, nil
	case "easy":
		return fsrs.Easy, nil
	default:
		return 0, fmt.Errorf("%w %q", ErrUnknownRating, raw)
	}
}

// ReviewCard updates the scheduling information based on the user's rating.
func (s *DeckService) ReviewCard(ctx context.Context, cardID int64, rating fsrs.Rating) (*models.Card, *models.ReviewLog, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	card, err := scanCard(tx.QueryRowContext(ctx, `SELECT `+cardColumns+`
		FROM cards c
		JOIN decks d ON c.deck_id = d.id
		WHERE c.id = ?;
	`, cardID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: %d", ErrCardNotFound, cardID)
		}
		return nil, nil, fmt.Errorf("load card %d: %w", cardID, err)
	}

	now := time.Now().UTC()
	scheduling := s.params.Repeat(card.ToFSRSCard(), now)
	info, ok := scheduling[rating]
	if !ok {
		return nil, nil, fmt.Errorf("%w %d", ErrUnknownRating, rating)
	}
	card.ApplyFSRSCard(info.Card)
	card.UpdatedAt = now

	if _, err := tx.ExecContext(ctx, `
		UPDATE cards
		SET due = ?, stability = ?, difficulty = ?, elapsed_days = ?, scheduled_days = ?,
		    reps = ?, lapses = ?, state = ?, last_review = ?, updated_at = ?
		WHERE id = ?;
	`,
		nullTimePtr(card.Due),
		card.Stability,
		card.Difficulty,
		card.ElapsedDays,
		card.ScheduledDays,
		card.Reps,
		card.Lapses,
		card.State,
		nullTimePtr(card.LastReview),
		card.UpdatedAt,
		card.ID,
	); err != nil {
		return nil, nil, fmt.Errorf("update card %d: %w", card.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO review_logs (card_id, rating, scheduled_days, elapsed_days, state, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?);
	`, card.ID, int(info.ReviewLog.Rating), info.ReviewLog.ScheduledDays, info.ReviewLog.ElapsedDays, int(info.ReviewLog.State), now); err != nil {
		return nil, nil, fmt.Errorf("insert review log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit review: %w", err)
	}

	log := &models.ReviewLog{
		CardID:        card.ID,
		Rating:        int(info.ReviewLog.Rating),
		ScheduledDays: int(info.ReviewLog.ScheduledDays),
		ElapsedDays:   int(info.ReviewLog.ElapsedDays),
		State:         int(info.ReviewLog.State),
		ReviewedAt:    now,
	}
	return card, log, nil
}

// Stats counts cards by review state.
func (s *DeckService) Stats(ctx context.Context) (map[string]int, error) {
	var total, due, fresh, learning, review int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN due IS NOT NULL AND due <= ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN state IN (?, ?) THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0)
		FROM cards;
	`, time.Now().UTC(), int(fsrs.New), int(fsrs.Learning), int(fsrs.Relearning), int(fsrs.Review)).
		Scan(&total, &due, &fresh, &learning, &review)
	if err != nil {
		return nil, fmt.Errorf("card stats: %w", err)
	}
	return map[string]int{
		"total":    total,
		"due":      due,
		"new":      fresh,
		"learning": learning,
		"review":   review,
	}, nil
}

func nullTimePtr(t sql.NullTime) any {
	if t.Valid {
		return t.Time
	}
	return nil
}

func nullInt64Ptr(v sql.NullInt64) any {
	if v.Valid {
		return v.Int64
	}
	return nil
}
