package tool

import (
	"context"
	"fmt"
	"os"
	"strings"

	domaintool "github.com/nilcaream/bobai/internal/domain/tool"
	"go.uber.org/zap"
)

// editContextLines is the excerpt radius returned after an edit.
const editContextLines = 3

// EditFileTool replaces a unique substring of a file. The match is a
// plain substring, never a regex, and the replacement is inserted
// literally so metacharacters in new_string survive untouched.
type EditFileTool struct {
	logger *zap.Logger
}

// NewEditFileTool creates the edit_file tool.
func NewEditFileTool(logger *zap.Logger) *EditFileTool {
	return &EditFileTool{logger: logger}
}

func (t *EditFileTool) Name() string { return "edit_file" }

func (t *EditFileTool) Description() string {
	return "Replace an exact substring of a file. old_string must occur exactly once in the " +
		"current file contents; include enough surrounding context to make it unique."
}

func (t *EditFileTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path of the file to edit, relative to the project root",
			},
			"old_string": map[string]interface{}{
				"type":        "string",
				"description": "Exact text to replace (must match exactly once)",
			},
			"new_string": map[string]interface{}{
				"type":        "string",
				"description": "Text to insert instead",
			},
		},
		"required": []string{"path", "old_string", "new_string"},
	}
}

func (t *EditFileTool) Execute(ctx context.Context, args map[string]interface{}, tc domaintool.Context) (*domaintool.Result, error) {
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		return domaintool.Errorf("path is required"), nil
	}
	oldString, ok := stringArg(args, "old_string")
	if !ok || oldString == "" {
		return domaintool.Errorf("old_string is required"), nil
	}
	newString, ok := stringArg(args, "new_string")
	if !ok {
		return domaintool.Errorf("new_string is required"), nil
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
	content := string(data)

	switch count := strings.Count(content, oldString); {
	case count == 0:
		return domaintool.Errorf("old_string not found in %s", path), nil
	case count > 1:
		return domaintool.Errorf("old_string has multiple matches (%d) in %s; add surrounding context to make it unique", count, path), nil
	}

	idx := strings.Index(content, oldString)
	updated := content[:idx] + newString + content[idx+len(oldString):]

	if err := os.WriteFile(abs, []byte(updated), 0o644); err != nil {
		return domaintool.Errorf("write %s: %v", path, err), nil
	}

	t.logger.Info("Edited file", zap.String("path", path))

	return &domaintool.Result{Output: editExcerpt(updated, idx, len(newString))}, nil
}

// editExcerpt renders the edited region with editContextLines lines of
// context on each side, numbered like read_file output.
func editExcerpt(content string, start, length int) string {
	lines := strings.Split(content, "\n")

	firstLine := strings.Count(content[:start], "\n")           // 0-indexed
	lastLine := strings.Count(content[:start+length], "\n")     // 0-indexed
	lo := firstLine - editContextLines
	if lo < 0 {
		lo = 0
	}
	hi := lastLine + editContextLines
	if hi > len(lines)-1 {
		hi = len(lines) - 1
	}

	var sb strings.Builder
	sb.WriteString("Edit applied:\n")
	for i := lo; i <= hi; i++ {
		sb.WriteString(fmt.Sprintf("%d: %s\n", i+1, lines[i]))
	}
	return sb.String()
}
