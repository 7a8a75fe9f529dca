package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"flashgen/internal/models"
)

var ErrSourceNotFound = errors.New("source not found")

// SourceService keeps a copy of every uploaded document alongside a record of it.
type SourceService struct {
	db        *sql.DB
	uploadDir string
}

func NewSourceService(db *sql.DB, uploadDir string) *SourceService {
	return &SourceService{db: db, uploadDir: uploadDir}
}

// Create stores src under a generated name and records it. URL sources have
// no stored copy; pass a nil reader.
func (s *SourceService) Create(ctx context.Context, original string, kind models.SourceKind, src io.Reader, charCount int) (*models.Source, error) {
	var storedPath string
	if src != nil {
		if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure upload dir: %w", err)
		}

		storedPath = filepath.Join(s.uploadDir, uuid.NewString()+filepath.Ext(original))
		out, err := os.Create(storedPath)
		if err != nil {
			return nil, fmt.Errorf("create file: %w", err)
		}
		defer out.Close()

		if _, err := io.Copy(out, src); err != nil {
			return nil, fmt.Errorf("write file: %w", err)
		}
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (original_name, stored_path, kind, char_count, uploaded_at)
		VALUES (?, ?, ?, ?, ?);
	`, original, storedPath, kind, charCount, now)
	if err != nil {
		return nil, fmt.Errorf("insert source: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("source id: %w", err)
	}

	return &models.Source{
		ID:           id,
		OriginalName: original,
		StoredPath:   storedPath,
		Kind:         kind,
		CharCount:    charCount,
		UploadedAt:   now,
	}, nil
}

func (s *SourceService) GetByID(ctx context.Context, id int64) (*models.Source, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, original_name, stored_path, kind, char_count, uploaded_at
		FROM sources WHERE id = ?;
	`, id)
	var src models.Source
	if err := row.Scan(
		&src.ID,
		&src.OriginalName,
		&src.StoredPath,
		&src.Kind,
		&src.CharCount,
		&src.UploadedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrSourceNotFound, id)
		}
		return nil, fmt.Errorf("scan source: %w", err)
	}
	return &src, nil
}
