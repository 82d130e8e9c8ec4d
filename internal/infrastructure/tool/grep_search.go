package tool

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	domaintool "github.com/nilcaream/bobai/internal/domain/tool"
	"go.uber.org/zap"
)

// grepMaxResults caps the number of reported matches.
const grepMaxResults = 100

// Directories never worth searching: VCS internals and bobai's own
// per-project store.
var grepSkipDirs = map[string]bool{
	".git":   true,
	".bobai": true,
}

// GrepSearchTool searches file contents recursively under a confined
// directory.
type GrepSearchTool struct {
	logger *zap.Logger
}

// NewGrepSearchTool creates the grep_search tool.
func NewGrepSearchTool(logger *zap.Logger) *GrepSearchTool {
	return &GrepSearchTool{logger: logger}
}

func (t *GrepSearchTool) Name() string { return "grep_search" }

func (t *GrepSearchTool) Description() string {
	return "Search file contents recursively with a regular expression. " +
		"Returns path:line:content matches; results are truncated after 100 matches."
}

func (t *GrepSearchTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern": map[string]interface{}{
				"type":        "string",
				"description": "Regular expression to search for",
			},
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory to search in, relative to the project root (default \".\")",
			},
			"include": map[string]interface{}{
				"type":        "string",
				"description": "Optional filename glob filter, e.g. \"*.go\"",
			},
		},
		"required": []string{"pattern"},
	}
}

func (t *GrepSearchTool) Execute(ctx context.Context, args map[string]interface{}, tc domaintool.Context) (*domaintool.Result, error) {
	pattern, ok := stringArg(args, "pattern")
	if !ok || pattern == "" {
		return domaintool.Errorf("pattern is required"), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return domaintool.Errorf("invalid pattern: %v", err), nil
	}

	searchPath, ok := stringArg(args, "path")
	if !ok || searchPath == "" {
		searchPath = "."
	}
	include, _ := stringArg(args, "include")

	abs, err := ResolvePath(tc.ProjectRoot, searchPath)
	if err != nil {
		return domaintool.Errorf("%v", err), nil
	}

	var matches []string
	truncated := false

	walkErr := filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if d.IsDir() {
			if grepSkipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if include != "" {
			if ok, _ := filepath.Match(include, d.Name()); !ok {
				return nil
			}
		}

		rel, err := filepath.Rel(tc.ProjectRoot, path)
		if err != nil {
			rel = path
		}

		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Text()
			if !re.MatchString(line) {
				continue
			}
			if len(matches) >= grepMaxResults {
				truncated = true
				return filepath.SkipAll
			}
			matches = append(matches, fmt.Sprintf("%s:%d:%s", rel, lineNo, line))
		}
		return nil
	})
	if walkErr != nil {
		return domaintool.Errorf("search %s: %v", searchPath, walkErr), nil
	}

	if len(matches) == 0 {
		return &domaintool.Result{Output: "No matches found"}, nil
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(matches, "\n"))
	sb.WriteString("\n")
	if truncated {
		sb.WriteString(fmt.Sprintf("(results truncated at %d matches)\n", grepMaxResults))
	}
	return &domaintool.Result{Output: sb.String()}, nil
}
