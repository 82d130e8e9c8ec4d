package tool

import (
	"context"
	"fmt"
	"os"
	"strings"

	domaintool "github.com/nilcaream/bobai/internal/domain/tool"
	"go.uber.org/zap"
)

const (
	// readDefaultSpan is the default number of lines per read.
	readDefaultSpan = 2000
	// readMaxLineBytes truncates pathological single lines.
	readMaxLineBytes = 2000
	// readMaxBytes caps one read_file payload.
	readMaxBytes = 50 * 1024
)

// ReadFileTool reads a line range of a UTF-8 file inside the project.
type ReadFileTool struct {
	logger *zap.Logger
}

// NewReadFileTool creates the read_file tool.
func NewReadFileTool(logger *zap.Logger) *ReadFileTool {
	return &ReadFileTool{logger: logger}
}

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read a file from the project as numbered lines. Reads up to 2000 lines per call; " +
		"use 'from' and 'to' (1-indexed, inclusive) to page through large files. " +
		"Output is capped at 50KB; the footer tells you where to continue."
}

func (t *ReadFileTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path of the file to read, relative to the project root",
			},
			"from": map[string]interface{}{
				"type":        "integer",
				"description": "First line to read (1-indexed, default 1)",
			},
			"to": map[string]interface{}{
				"type":        "integer",
				"description": "Last line to read (inclusive, default from+1999)",
			},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]interface{}, tc domaintool.Context) (*domaintool.Result, error) {
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		return domaintool.Errorf("path is required"), nil
	}

	abs, err := ResolvePath(tc.ProjectRoot, path)
	if err != nil {
		return domaintool.Errorf("%v", err), nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return domaintool.Errorf("file not found: %s", path), nil
		}
		return domaintool.Errorf("read %s: %v", path, err), nil
	}

	lines := strings.Split(string(data), "\n")
	// A trailing newline produces one empty trailing element, not a line.
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	total := len(lines)

	from, ok := intArg(args, "from")
	if !ok {
		from = 1
	}
	if from < 1 {
		return domaintool.Errorf("from must be >= 1, got %d", from), nil
	}
	if from > total {
		return domaintool.Errorf("from (%d) exceeds total lines (%d) in %s", from, total, path), nil
	}
	to, ok := intArg(args, "to")
	if !ok {
		to = from + readDefaultSpan - 1
	}
	if to < from {
		return domaintool.Errorf("to (%d) must be >= from (%d)", to, from), nil
	}
	if to > total {
		to = total
	}

	var sb strings.Builder
	capped := false
	lastLine := from - 1
	for i := from; i <= to; i++ {
		text := lines[i-1]
		if len(text) > readMaxLineBytes {
			text = text[:readMaxLineBytes] + "... (truncated)"
		}
		formatted := fmt.Sprintf("%d: %s\n", i, text)
		if sb.Len()+len(formatted) > readMaxBytes {
			capped = true
			break
		}
		sb.WriteString(formatted)
		lastLine = i
	}

	switch {
	case capped:
		sb.WriteString(fmt.Sprintf("--- Output capped at 50KB after line %d. Continue with from=%d ---\n", lastLine, lastLine+1))
	case to < total:
		sb.WriteString(fmt.Sprintf("--- Showing lines %d-%d of %d. Continue with from=%d ---\n", from, to, total, to+1))
	default:
		sb.WriteString(fmt.Sprintf("--- End of file (%d lines) ---\n", total))
	}

	return &domaintool.Result{Output: sb.String()}, nil
}
