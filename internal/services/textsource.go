package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"

	"flashgen/internal/models"
)

var (
	// ErrUnsupportedSource is returned for uploads that are neither PDF nor plain text.
	ErrUnsupportedSource = errors.New("unsupported source type")
	// ErrInvalidText is returned when plain text is not valid UTF-8.
	ErrInvalidText = errors.New("text is not valid UTF-8")
)

const maxPageBytes = 10 << 20

// TextSource normalizes uploaded files, pasted text and web pages into one
// plain-text string.
type TextSource struct {
	client *http.Client
	logger *slog.Logger
}

func NewTextSource(logger *slog.Logger) *TextSource {
	return &TextSource{
		client: &http.Client{Timeout: 60 * time.Second},
		logger: logger,
	}
}

// FromPDF concatenates the plain text of every page.
func (s *TextSource) FromPDF(r io.ReaderAt, size int64) (string, error) {
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	text, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, text); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	s.logger.Debug("extracted pdf text", "pages", reader.NumPage(), "chars", buf.Len())
	return buf.String(), nil
}

func (s *TextSource) FromPlain(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", ErrInvalidText
	}
	return string(data), nil
}

// KindFor classifies an upload by content type, falling back to the extension.
func KindFor(name, contentType string) (models.SourceKind, error) {
	switch {
	case strings.HasPrefix(contentType, "application/pdf"):
		return models.SourcePDF, nil
	case strings.HasPrefix(contentType, "text/plain"):
		return models.SourceText, nil
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return models.SourcePDF, nil
	case ".txt":
		return models.SourceText, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedSource, name)
}

// FromUpload dispatches on the upload type.
func (s *TextSource) FromUpload(name, contentType string, data []byte) (string, models.SourceKind, error) {
	kind, err := KindFor(name, contentType)
	if err != nil {
		return "", "", err
	}
	var text string
	switch kind {
	case models.SourcePDF:
		text, err = s.FromPDF(bytes.NewReader(data), int64(len(data)))
	default:
		text, err = s.FromPlain(data)
	}
	if err != nil {
		return "", kind, fmt.Errorf("read %s: %w", name, err)
	}
	return text, kind, nil
}

// FromURL fetches a page and extracts its readable text.
func (s *TextSource) FromURL(ctx context.Context, url string) (string, error) {
	s.logger.InfoContext(ctx, "fetching source url", "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; flashgen/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch url: status %d", resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, maxPageBytes)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
		data, err := io.ReadAll(body)
		if err != nil {
			return "", fmt.Errorf("read body: %w", err)
		}
		return s.FromPlain(data)
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	return extractArticleText(doc), nil
}

func extractArticleText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, nav, footer, header, aside").Remove()

	var sb strings.Builder
	collect := func(sel *goquery.Selection) {
		sel.Find("h1, h2, h3, p, li").Each(func(_ int, item *goquery.Selection) {
			text := strings.TrimSpace(item.Text())
			if text == "" {
				return
			}
			sb.WriteString(text)
			sb.WriteString("\n\n")
		})
	}

	for _, selector := range []string{"article", "[role='main']", "main"} {
		if sel := doc.Find(selector); sel.Length() > 0 {
			collect(sel)
			break
		}
	}
	if sb.Len() == 0 {
		collect(doc.Find("body"))
	}
	if sb.Len() == 0 {
		return strings.TrimSpace(doc.Find("body").Text())
	}
	return strings.TrimSpace(sb.String())
}
