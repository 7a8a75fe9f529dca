package api

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashgen/internal/models"
)

func oneCard() FileResult {
	return FileResult{Flashcards: []models.Flashcard{{Question: "Q", Answer: "A"}}, Count: 1}
}

func TestJobManagerLifecycle(t *testing.T) {
	m := NewJobManager()
	created := m.Create("Biology", []string{"a.pdf", "b.txt"})
	require.NotEmpty(t, created.ID)
	assert.Equal(t, JobStatusRunning, created.Status)
	require.Len(t, created.Files, 2)
	assert.Equal(t, FileStatusQueued, created.Files[1].Status)

	m.Progress(created.ID, 0, "generate", 10, 100)
	job, ok := m.Get(created.ID)
	require.True(t, ok)
	assert.Equal(t, FileStatusActive, job.Files[0].Status)
	assert.Equal(t, 10, job.Files[0].Percent)
	assert.Equal(t, "generate", job.Files[0].Step)

	m.Done(created.ID, 0, oneCard())
	m.Fail(created.ID, 1, errors.New("broken pdf"))
	m.Finish(created.ID)

	job, _ = m.Get(created.ID)
	assert.Equal(t, JobStatusComplete, job.Status)
	assert.Empty(t, job.Error)
	assert.Equal(t, 100, job.Files[0].Percent)
	assert.Equal(t, "broken pdf", job.Files[1].Error)
}

func TestJobManagerFinishWithoutCards(t *testing.T) {
	m := NewJobManager()

	allFailed := m.Create("", []string{"a.pdf"})
	m.Fail(allFailed.ID, 0, errors.New("broken pdf"))
	m.Finish(allFailed.ID)
	job, _ := m.Get(allFailed.ID)
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "every file failed", job.Error)

	allEmpty := m.Create("", []string{"a.txt", "b.txt"})
	m.Done(allEmpty.ID, 0, FileResult{Flashcards: []models.Flashcard{}})
	m.Fail(allEmpty.ID, 1, errors.New("unsupported"))
	m.Finish(allEmpty.ID)
	job, _ = m.Get(allEmpty.ID)
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "no file produced flashcards", job.Error)
}

func TestJobSnapshotsAreCopies(t *testing.T) {
	m := NewJobManager()
	created := m.Create("", []string{"a.txt"})
	m.Done(created.ID, 0, oneCard())

	first, _ := m.Get(created.ID)
	first.Files[0].Status = "tampered"
	first.Files[0].Result.Flashcards[0].Question = "tampered"

	second, _ := m.Get(created.ID)
	assert.Equal(t, FileStatusDone, second.Files[0].Status)
	assert.Equal(t, "Q", second.Files[0].Result.Flashcards[0].Question)

	m.Progress("missing", 0, "x", 1, 2)
	m.Progress(created.ID, 5, "x", 1, 2)
	_, ok := m.Get("missing")
	assert.False(t, ok)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, percent(0, 100))
	assert.Equal(t, 50, percent(1, 2))
	assert.Equal(t, 100, percent(5, 2))
	assert.Equal(t, 40, percent(40, 0))
	assert.Equal(t, 100, percent(400, 0))
	assert.Equal(t, 0, percent(-3, 0))
}
