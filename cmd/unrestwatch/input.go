package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rewired-gh/unrestwatch/internal/logger"
	"github.com/rewired-gh/unrestwatch/internal/models"
	"github.com/rewired-gh/unrestwatch/internal/scoring"
)

// readInputs reads scoring input records from path ("-" for stdin). The
// content is either a JSON array or one JSON object per line.
func readInputs(path string) ([]models.PostInput, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return parseInputs(data)
}

func parseInputs(data []byte) ([]models.PostInput, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var inputs []models.PostInput
		if err := json.Unmarshal(trimmed, &inputs); err != nil {
			return nil, fmt.Errorf("invalid JSON input: %w", err)
		}
		return inputs, nil
	}

	var inputs []models.PostInput
	sc := bufio.NewScanner(bytes.NewReader(trimmed))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var in models.PostInput
		if err := json.Unmarshal(raw, &in); err != nil {
			logger.Warn("Skipping input line %d: %v", line, err)
			continue
		}
		inputs = append(inputs, in)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan input: %w", err)
	}
	return inputs, nil
}

// scoreInputs converts and scores input records. Malformed timestamps leave
// the post undated.
func scoreInputs(ctx context.Context, scorer *scoring.Scorer, inputs []models.PostInput) ([]models.ScoredPost, error) {
	posts := make([]models.Post, len(inputs))
	for i, in := range inputs {
		post, err := in.ToPost()
		if err != nil {
			logger.Warn("Record %d: %v", i, err)
		}
		posts[i] = post
	}
	return scorer.ScoreBatch(ctx, posts)
}

func writeJSON(path string, v any) error {
	var w io.Writer = os.Stdout
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
