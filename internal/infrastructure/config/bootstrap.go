package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ProjectMeta is the persisted identity of a bootstrapped project.
type ProjectMeta struct {
	ID string `json:"id"`
}

// EnsureProject prepares a project directory for use: creates `.bobai/`
// and seeds `bobai.json` with a fresh project id. Idempotent; an already
// bootstrapped project keeps its id and any extra settings in the file.
func EnsureProject(projectRoot string) (*ProjectMeta, error) {
	dir := filepath.Join(projectRoot, ".bobai")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create project dir %s: %w", dir, err)
	}

	path := ProjectConfigPath(projectRoot)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var meta ProjectMeta
		if jsonErr := json.Unmarshal(data, &meta); jsonErr == nil && meta.ID != "" {
			return &meta, nil
		}
		// Present but missing an id: assign one, keep the other keys.
		var raw map[string]interface{}
		if jsonErr := json.Unmarshal(data, &raw); jsonErr != nil {
			raw = make(map[string]interface{})
		}
		meta.ID = uuid.New().String()
		raw["id"] = meta.ID
		if writeErr := writeJSON(path, raw); writeErr != nil {
			return nil, writeErr
		}
		return &meta, nil

	case os.IsNotExist(err):
		meta := &ProjectMeta{ID: uuid.New().String()}
		if writeErr := writeJSON(path, map[string]interface{}{"id": meta.ID}); writeErr != nil {
			return nil, writeErr
		}
		return meta, nil

	default:
		return nil, fmt.Errorf("read project config %s: %w", path, err)
	}
}

func writeJSON(path string, value interface{}) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal project config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write project config %s: %w", path, err)
	}
	return nil
}
