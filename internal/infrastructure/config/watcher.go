package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/nilcaream/bobai/pkg/safego"
)

// Watcher re-resolves configuration when the project config file
// changes and hands the result to a callback. Editors replace files by
// rename, so the watch covers the `.bobai` directory, not the file.
type Watcher struct {
	projectRoot string
	logger      *zap.Logger
	watcher     *fsnotify.Watcher
	onChange    func(*Config)
}

// NewWatcher starts watching the project's config directory. The
// callback runs on a background goroutine; it must not block for long.
func NewWatcher(projectRoot string, logger *zap.Logger, onChange func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Join(projectRoot, ".bobai")); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		projectRoot: projectRoot,
		logger:      logger,
		watcher:     fsw,
		onChange:    onChange,
	}
	safego.Go(logger, "config-watcher", w.run)
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) run() {
	target := ProjectConfigPath(w.projectRoot)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			cfg, err := Load(w.projectRoot)
			if err != nil {
				w.logger.Warn("Failed to reload config", zap.Error(err))
				continue
			}
			w.logger.Info("Config reloaded",
				zap.String("provider", cfg.Provider),
				zap.String("model", cfg.Model),
			)
			w.onChange(cfg)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", zap.Error(err))
		}
	}
}
