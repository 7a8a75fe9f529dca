package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"flashgen/internal/models"
	"flashgen/internal/services"
)

const (
	maxMultipartMemory = 8 << 20  // 8 MB
	maxUploadBytes     = 32 << 20 // 32 MB
	maxJobFiles        = 10
)

type Server struct {
	router    chi.Router
	generator *services.Generator
	text      *services.TextSource
	sources   *services.SourceService
	decks     *services.DeckService
	jobs      *JobManager
	logger    *slog.Logger
	timeout   time.Duration

	// Request body caps for single uploads and multi-file jobs.
	uploadLimit int64
	jobLimit    int64
}

// FileResult is the outcome of generating flashcards from one uploaded file.
type FileResult struct {
	SourceID   int64              `json:"sourceId"`
	Name       string             `json:"name"`
	Kind       models.SourceKind  `json:"kind"`
	Flashcards []models.Flashcard `json:"flashcards"`
	Count      int                `json:"count"`
}

// NewServer wires the HTTP routes. timeout bounds each generation; zero means
// the request context alone decides.
func NewServer(
	generator *services.Generator,
	text *services.TextSource,
	sources *services.SourceService,
	decks *services.DeckService,
	logger *slog.Logger,
	timeout time.Duration,
) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		generator: generator,
		text:      text,
		sources:   sources,
		decks:     decks,
		jobs:      NewJobManager(),
		logger:    logger,
		timeout:   timeout,

		uploadLimit: maxUploadBytes + maxMultipartMemory,
		jobLimit:    maxUploadBytes*maxJobFiles + maxMultipartMemory,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/subjects", s.handleSubjects)

		r.Post("/flashcards/generate", s.handleGenerate)
		r.Post("/flashcards/upload", s.handleUpload)
		r.Post("/flashcards/export", s.handleExport)

		r.Post("/jobs", s.handleCreateJob)
		r.Get("/jobs/{id}", s.handleJobStatus)

		r.Route("/decks", func(r chi.Router) {
			r.Post("/", s.handleSaveDeck)
			r.Get("/", s.handleListDecks)
			r.Get("/{id}", s.handleGetDeck)
			r.Put("/{id}/cards", s.handleReplaceCards)
			r.Delete("/{id}", s.handleDeleteDeck)
			r.Get("/{id}/export", s.handleExportDeck)
		})

		r.Get("/review/next", s.handleNextCard)
		r.Get("/review/stats", s.handleReviewStats)
		r.Post("/review/{cardID}", s.handleReviewCard)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "request handled",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}

func (s *Server) generationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubjects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"subjects": models.Subjects})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var payload generateRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := s.generationContext(r.Context())
	defer cancel()

	text := payload.Text
	var sourceID *int64
	if text == "" {
		fetched, err := s.text.FromURL(ctx, payload.URL)
		if err != nil {
			s.logger.WarnContext(ctx, "fetch url failed", "url", payload.URL, "error", err)
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		text = fetched

		src, err := s.sources.Create(ctx, payload.URL, models.SourceURL, nil, utf8.RuneCountInString(text))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		sourceID = &src.ID
	}

	cards := s.generator.Generate(ctx, models.GenerationRequest{Text: text, Subject: payload.Subject})
	writeJSON(w, http.StatusOK, map[string]any{
		"flashcards": nonNil(cards),
		"count":      len(cards),
		"sourceId":   sourceID,
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.uploadLimit)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeFormError(w, err)
		return
	}
	if form := r.MultipartForm; form != nil {
		defer form.RemoveAll()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	_ = file.Close()

	ctx, cancel := s.generationContext(r.Context())
	defer cancel()

	result, text, err := s.processFile(ctx, header, r.FormValue("subject"), nil)
	if err != nil {
		writeError(w, uploadStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"text":       text,
		"flashcards": result.Flashcards,
		"count":      result.Count,
		"sourceId":   result.SourceID,
	})
}

func uploadStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrUnsupportedSource):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, errFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, services.ErrInvalidText):
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}

var errFileTooLarge = fmt.Errorf("file exceeds %d bytes", maxUploadBytes)

// processFile extracts text from an uploaded file, records it as a source and
// generates flashcards from it.
func (s *Server) processFile(ctx context.Context, file *multipart.FileHeader, subject string, progress services.ProgressCallback) (FileResult, string, error) {
	result := FileResult{Name: file.Filename, Flashcards: []models.Flashcard{}}

	if progress != nil {
		progress("extract", "Extracting text", 1, 100)
	}
	if file.Size > maxUploadBytes {
		return result, "", errFileTooLarge
	}
	src, err := file.Open()
	if err != nil {
		return result, "", fmt.Errorf("open file %s: %w", file.Filename, err)
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes+1))
	if err != nil {
		return result, "", fmt.Errorf("read file %s: %w", file.Filename, err)
	}
	if len(data) > maxUploadBytes {
		return result, "", errFileTooLarge
	}

	text, kind, err := s.text.FromUpload(file.Filename, file.Header.Get("Content-Type"), data)
	if err != nil {
		return result, "", fmt.Errorf("extract %s: %w", file.Filename, err)
	}
	result.Kind = kind

	source, err := s.sources.Create(ctx, file.Filename, kind, bytes.NewReader(data), utf8.RuneCountInString(text))
	if err != nil {
		return result, "", fmt.Errorf("store %s: %w", file.Filename, err)
	}
	result.SourceID = source.ID

	cards := s.generator.GenerateWithProgress(ctx, models.GenerationRequest{Text: text, Subject: subject}, progress)
	result.Flashcards = nonNil(cards)
	result.Count = len(cards)
	return result, text, nil
}

func writeFormError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return
	}
	writeError(w, http.StatusBadRequest, "invalid multipart form")
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.jobLimit)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeFormError(w, err)
		return
	}
	form := r.MultipartForm
	if form == nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	files := form.File["files"]
	if len(files) == 0 || len(files) > maxJobFiles {
		_ = form.RemoveAll()
		writeError(w, http.StatusBadRequest, fmt.Sprintf("upload between 1 and %d files", maxJobFiles))
		return
	}

	fileNames := make([]string, len(files))
	for i, file := range files {
		fileNames[i] = file.Filename
	}

	subject := r.FormValue("subject")
	snapshot := s.jobs.Create(subject, fileNames)

	go s.runJob(snapshot.ID, subject, append([]*multipart.FileHeader(nil), files...), form)

	writeJSON(w, http.StatusAccepted, snapshot)
}

func (s *Server) runJob(jobID, subject string, files []*multipart.FileHeader, form *multipart.Form) {
	defer func() {
		_ = form.RemoveAll()
	}()

	for idx, file := range files {
		progress := func(step, _ string, current, total int) {
			s.jobs.Progress(jobID, idx, step, current, total)
		}

		ctx, cancel := s.generationContext(context.Background())
		result, _, err := s.processFile(ctx, file, subject, progress)
		cancel()
		if err != nil {
			s.logger.Error("job file failed", "job_id", jobID, "file", file.Filename, "error", err)
			s.jobs.Fail(jobID, idx, err)
			continue
		}
		s.jobs.Done(jobID, idx, result)
	}
	s.jobs.Finish(jobID)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var payload exportRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	format, err := services.ParseFormat(payload.Format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeExport(w, format, payload.Flashcards)
}

func (s *Server) writeExport(w http.ResponseWriter, format services.ExportFormat, cards []models.Flashcard) {
	var buf bytes.Buffer
	if err := services.Write(&buf, format, cards); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.Filename()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleSaveDeck(w http.ResponseWriter, r *http.Request) {
	var payload saveDeckRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var sourceID sql.NullInt64
	if payload.SourceID != nil {
		if _, err := s.sources.GetByID(r.Context(), *payload.SourceID); err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		sourceID = sql.NullInt64{Int64: *payload.SourceID, Valid: true}
	}

	deck, err := s.decks.SaveDeck(r.Context(), payload.Subject, sourceID, payload.Flashcards)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"deck": deckJSON(*deck)})
}

func (s *Server) handleListDecks(w http.ResponseWriter, r *http.Request) {
	decks, err := s.decks.ListDecks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]map[string]any, 0, len(decks))
	for _, deck := range decks {
		out = append(out, deckJSON(deck))
	}
	writeJSON(w, http.StatusOK, map[string]any{"decks": out})
}

func (s *Server) handleGetDeck(w http.ResponseWriter, r *http.Request) {
	deck, cards, err := s.decks.GetDeck(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	out := make([]map[string]any, 0, len(cards))
	for _, card := range cards {
		out = append(out, cardJSON(card))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deck":  deckJSON(*deck),
		"cards": out,
	})
}

func (s *Server) handleReplaceCards(w http.ResponseWriter, r *http.Request) {
	var payload replaceCardsRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	deckID := chi.URLParam(r, "id")
	if err := s.decks.ReplaceCards(r.Context(), deckID, payload.Flashcards); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	deck, _, err := s.decks.GetDeck(r.Context(), deckID)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deck": deckJSON(*deck)})
}

func (s *Server) handleDeleteDeck(w http.ResponseWriter, r *http.Request) {
	if err := s.decks.DeleteDeck(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExportDeck(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("format")
	if raw == "" {
		raw = string(services.FormatJSON)
	}
	format, err := services.ParseFormat(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cards, err := s.decks.DeckFlashcards(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeExport(w, format, cards)
}

func (s *Server) handleNextCard(w http.ResponseWriter, r *http.Request) {
	card, err := s.decks.NextCard(r.Context())
	if err != nil {
		if errors.Is(err, services.ErrNoDueCards) {
			writeJSON(w, http.StatusOK, map[string]any{
				"card":    nil,
				"message": "No cards due. Come back later!",
			})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"card": cardJSON(*card)})
}

func (s *Server) handleReviewStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.decks.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func (s *Server) handleReviewCard(w http.ResponseWriter, r *http.Request) {
	cardID, err := strconv.ParseInt(chi.URLParam(r, "cardID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid card id")
		return
	}

	var payload reviewRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rating, err := services.ParseRating(payload.Rating)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	card, logEntry, err := s.decks.ReviewCard(r.Context(), cardID, rating)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"card": map[string]any{
			"id":    card.ID,
			"due":   nullTimeToString(card.Due),
			"state": card.State,
		},
		"log": map[string]any{
			"rating":  logEntry.Rating,
			"due_in":  logEntry.ScheduledDays,
			"updated": logEntry.ReviewedAt.Format(timeLayout),
		},
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrDeckNotFound),
		errors.Is(err, services.ErrCardNotFound),
		errors.Is(err, services.ErrSourceNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrEmptyDeck),
		errors.Is(err, services.ErrBlankCard),
		errors.Is(err, services.ErrUnknownRating):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

const timeLayout = time.RFC3339

func deckJSON(deck models.Deck) map[string]any {
	var sourceID *int64
	if deck.SourceID.Valid {
		id := deck.SourceID.Int64
		sourceID = &id
	}
	return map[string]any{
		"id":        deck.ID,
		"subject":   deck.Subject,
		"sourceId":  sourceID,
		"cardCount": deck.CardCount,
		"createdAt": deck.CreatedAt.Format(timeLayout),
		"updatedAt": deck.UpdatedAt.Format(timeLayout),
	}
}

func cardJSON(card models.Card) map[string]any {
	return map[string]any{
		"id":        card.ID,
		"deckId":    card.DeckID,
		"question":  card.Question,
		"answer":    card.Answer,
		"subject":   nullString(card.Subject),
		"due":       nullTimeToString(card.Due),
		"state":     card.State,
		"stability": card.Stability,
		"reps":      card.Reps,
	}
}

func nonNil(cards []models.Flashcard) []models.Flashcard {
	if cards == nil {
		return []models.Flashcard{}
	}
	return cards
}

func nullTimeToString(t sql.NullTime) *string {
	if t.Valid {
		str := t.Time.Format(timeLayout)
		return &str
	}
	return nil
}

func nullString(v sql.NullString) *string {
	if v.Valid {
		str := v.String
		return &str
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": strings.TrimSpace(message)})
}
