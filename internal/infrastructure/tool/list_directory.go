package tool

import (
	"context"
	"os"
	"strings"

	domaintool "github.com/nilcaream/bobai/internal/domain/tool"
	"go.uber.org/zap"
)

// ListDirectoryTool lists one directory level inside the project.
type ListDirectoryTool struct {
	logger *zap.Logger
}

// NewListDirectoryTool creates the list_directory tool.
func NewListDirectoryTool(logger *zap.Logger) *ListDirectoryTool {
	return &ListDirectoryTool{logger: logger}
}

func (t *ListDirectoryTool) Name() string { return "list_directory" }

func (t *ListDirectoryTool) Description() string {
	return "List the entries of a directory, one per line. Directories are suffixed with '/'."
}

func (t *ListDirectoryTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory to list, relative to the project root (default \".\")",
			},
		},
	}
}

func (t *ListDirectoryTool) Execute(ctx context.Context, args map[string]interface{}, tc domaintool.Context) (*domaintool.Result, error) {
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		path = "."
	}

	abs, err := ResolvePath(tc.ProjectRoot, path)
	if err != nil {
		return domaintool.Errorf("%v", err), nil
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return domaintool.Errorf("directory not found: %s", path), nil
		}
		return domaintool.Errorf("stat %s: %v", path, err), nil
	}
	if !info.IsDir() {
		return domaintool.Errorf("not a directory: %s", path), nil
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return domaintool.Errorf("read directory %s: %v", path, err), nil
	}

	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(e.Name())
		if e.IsDir() {
			sb.WriteString("/")
		}
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		sb.WriteString("(empty directory)\n")
	}

	return &domaintool.Result{Output: sb.String()}, nil
}
