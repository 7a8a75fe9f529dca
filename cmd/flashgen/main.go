// Command flashgen turns a document, a web page or stdin into flashcards and
// writes them as CSV or JSON.
//
//	flashgen -in notes.pdf -subject Biology -format json -out ./exports
//	cat notes.txt | flashgen -in - -out -
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"flashgen/internal/config"
	"flashgen/internal/logging"
	"flashgen/internal/models"
	"flashgen/internal/services"
)

const (
	exitOK      = 0
	exitEmpty   = 1
	exitUsage   = 2
	exitFailure = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("flashgen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		flagIn      string
		flagURL     string
		flagSubject string
		flagFormat  string
		flagOut     string
	)
	fs.StringVar(&flagIn, "in", "", "input file (.pdf or .txt), or - for stdin")
	fs.StringVar(&flagURL, "url", "", "web page to generate from instead of -in")
	fs.StringVar(&flagSubject, "subject", "", "subject area (default General)")
	fs.StringVar(&flagFormat, "format", "json", "export format: csv or json")
	fs.StringVar(&flagOut, "out", "", "export directory, or - for stdout (default EXPORT_DIR)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	if (flagIn == "") == (flagURL == "") {
		fmt.Fprintln(stderr, "flashgen: exactly one of -in or -url is required")
		fs.Usage()
		return exitUsage
	}
	format, err := services.ParseFormat(flagFormat)
	if err != nil {
		fmt.Fprintf(stderr, "flashgen: %v\n", err)
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "flashgen: load config: %v\n", err)
		return exitFailure
	}
	logger := logging.Setup(stderr, cfg.LogLevel)
	source := services.NewTextSource(logger)

	text, err := readInput(ctx, source, flagIn, flagURL, stdin)
	if err != nil {
		fmt.Fprintf(stderr, "flashgen: %v\n", err)
		return exitFailure
	}

	genCtx, cancel := context.WithTimeout(ctx, cfg.GenerateTimeout)
	defer cancel()

	ai := services.NewAIService(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAIEndpoint, logger)
	cards, err := services.NewGenerator(ai, logger).Attempt(genCtx, models.GenerationRequest{
		Text:    text,
		Subject: flagSubject,
	})
	if err != nil {
		fmt.Fprintf(stderr, "flashgen: no flashcards generated: %v\n", err)
		return exitEmpty
	}
	if len(cards) == 0 {
		fmt.Fprintln(stderr, "flashgen: model returned no flashcards")
		return exitEmpty
	}

	out := flagOut
	if out == "" {
		out = cfg.ExportDir
	}
	if out == "-" {
		if err := services.Write(stdout, format, cards); err != nil {
			fmt.Fprintf(stderr, "flashgen: %v\n", err)
			return exitFailure
		}
		return exitOK
	}

	path, err := services.ExportFile(out, format, cards)
	if err != nil {
		fmt.Fprintf(stderr, "flashgen: %v\n", err)
		return exitFailure
	}
	fmt.Fprintf(stdout, "wrote %d flashcards to %s\n", len(cards), path)
	return exitOK
}

func readInput(ctx context.Context, source *services.TextSource, in, url string, stdin io.Reader) (string, error) {
	if url != "" {
		return source.FromURL(ctx, url)
	}
	if in == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return source.FromPlain(data)
	}

	data, err := os.ReadFile(in)
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	text, _, err := source.FromUpload(filepath.Base(in), "", data)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("input contains no text")
	}
	return text, nil
}
