package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	OpenAIKey       string
	OpenAIEndpoint  string
	OpenAIModel     string
	Database        string
	UploadDir       string
	ExportDir       string
	Port            string
	LogLevel        string
	GenerateTimeout time.Duration
}

// Load reads configuration from the environment, providing sensible defaults.
// The default endpoint is a local Ollama server, which speaks the OpenAI chat API
// and ignores the API key.
func Load() (Config, error) {
	// Load .env file if it exists (useful for development)
	_ = godotenv.Load()
	cfg := Config{
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIEndpoint: getEnv("OPENAI_API_ENDPOINT", "http://localhost:11434/v1"),
		OpenAIModel:    getEnv("OPENAI_MODEL", "llama3"),
		Database:       getEnv("DATABASE_PATH", "./data/flashgen.db"),
		UploadDir:      getEnv("UPLOAD_DIR", "./data/uploads"),
		ExportDir:      getEnv("EXPORT_DIR", "./data/exports"),
		Port:           getEnv("PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}

	timeout, err := time.ParseDuration(getEnv("GENERATE_TIMEOUT", "3m"))
	if err != nil {
		return Config{}, fmt.Errorf("parse GENERATE_TIMEOUT: %w", err)
	}
	cfg.GenerateTimeout = timeout

	for _, dir := range []string{cfg.UploadDir, cfg.ExportDir, filepath.Dir(cfg.Database)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Config{}, fmt.Errorf("ensure dir %s: %w", dir, err)
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}
