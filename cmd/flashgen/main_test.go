package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEnv(t *testing.T, reply string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": reply},
				"finish_reason": "stop",
			}},
		})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	t.Setenv("OPENAI_API_ENDPOINT", srv.URL)
	t.Setenv("OPENAI_MODEL", "llama3")
	t.Setenv("DATABASE_PATH", filepath.Join(dir, "db", "flashgen.db"))
	t.Setenv("UPLOAD_DIR", filepath.Join(dir, "uploads"))
	t.Setenv("EXPORT_DIR", filepath.Join(dir, "exports"))
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func TestRunStdinToStdout(t *testing.T) {
	setupEnv(t, `[{"question":"Q1","answer":"A1"}]`)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-in", "-", "-out", "-", "-format", "csv"},
		strings.NewReader("some notes"), &stdout, &stderr)

	require.Equal(t, exitOK, code, stderr.String())
	assert.Equal(t, "question,answer\nQ1,A1\n", stdout.String())
}

func TestRunFileToExportDir(t *testing.T) {
	dir := setupEnv(t, "```json\n[{\"question\":\"Q1\",\"answer\":\"A1\"}]\n```")
	in := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(in, []byte("Cells divide."), 0o644))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-in", in, "-subject", "Biology"}, nil, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	path := filepath.Join(dir, "exports", "flashcards.json")
	assert.Contains(t, stdout.String(), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"question":"Q1","answer":"A1"}]`, string(data))
}

func TestRunReportsBadReply(t *testing.T) {
	setupEnv(t, "not json at all")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-in", "-", "-out", "-"}, strings.NewReader("x"), &stdout, &stderr)

	assert.Equal(t, exitEmpty, code)
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "no flashcards generated")
}

func TestRunUsageErrors(t *testing.T) {
	setupEnv(t, "[]")
	var stdout, stderr bytes.Buffer

	assert.Equal(t, exitUsage, run(context.Background(), nil, nil, &stdout, &stderr))
	assert.Equal(t, exitUsage, run(context.Background(), []string{"-in", "a", "-url", "http://x"}, nil, &stdout, &stderr))
	assert.Equal(t, exitUsage, run(context.Background(), []string{"-in", "-", "-format", "xlsx"}, nil, &stdout, &stderr))
	assert.Equal(t, exitUsage, run(context.Background(), []string{"-bogus"}, nil, &stdout, &stderr))
}
