package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	domaintool "github.com/nilcaream/bobai/internal/domain/tool"
	"go.uber.org/zap"
)

// WriteFileTool creates or overwrites a file inside the project.
type WriteFileTool struct {
	logger *zap.Logger
}

// NewWriteFileTool creates the write_file tool.
func NewWriteFileTool(logger *zap.Logger) *WriteFileTool {
	return &WriteFileTool{logger: logger}
}

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Write content to a file. Creates missing parent directories and overwrites existing content."
}

func (t *WriteFileTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path of the file to write, relative to the project root",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Full content of the file",
			},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]interface{}, tc domaintool.Context) (*domaintool.Result, error) {
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		return domaintool.Errorf("path is required"), nil
	}
	content, ok := stringArg(args, "content")
	if !ok {
		return domaintool.Errorf("content is required"), nil
	}

	abs, err := ResolvePath(tc.ProjectRoot, path)
	if err != nil {
		return domaintool.Errorf("%v", err), nil
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return domaintool.Errorf("create parent directories for %s: %v", path, err), nil
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return domaintool.Errorf("write %s: %v", path, err), nil
	}

	t.logger.Info("Wrote file", zap.String("path", path), zap.Int("bytes", len(content)))

	return &domaintool.Result{Output: fmt.Sprintf("Wrote %d bytes to %s", len(content), path)}, nil
}
