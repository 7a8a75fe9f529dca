package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashgen/internal/models"
)

func TestSourceServiceStoresUpload(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "uploads")
	sources := NewSourceService(openTestDB(t), dir)

	src, err := sources.Create(ctx, "notes.txt", models.SourceText, strings.NewReader("cell notes"), 10)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(src.StoredPath))
	assert.Equal(t, ".txt", filepath.Ext(src.StoredPath))

	data, err := os.ReadFile(src.StoredPath)
	require.NoError(t, err)
	assert.Equal(t, "cell notes", string(data))

	got, err := sources.GetByID(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", got.OriginalName)
	assert.Equal(t, models.SourceText, got.Kind)
	assert.Equal(t, 10, got.CharCount)
}

func TestSourceServiceURLHasNoFile(t *testing.T) {
	ctx := context.Background()
	sources := NewSourceService(openTestDB(t), t.TempDir())

	src, err := sources.Create(ctx, "https://example.com", models.SourceURL, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, src.StoredPath)

	_, err = sources.GetByID(ctx, src.ID+1)
	assert.ErrorIs(t, err, ErrSourceNotFound)
}
