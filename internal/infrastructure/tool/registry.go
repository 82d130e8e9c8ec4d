package tool

import (
	domaintool "github.com/nilcaream/bobai/internal/domain/tool"
	"go.uber.org/zap"
)

// NewBuiltinRegistry builds the registry of builtin tools. This is the
// only tool registration entry point; adding a new tool means adding it
// here. Registration order is the order the catalogue reaches the
// provider.
func NewBuiltinRegistry(logger *zap.Logger) *domaintool.Registry {
	registry := domaintool.NewRegistry()

	tools := []domaintool.Tool{
		NewReadFileTool(logger),
		NewListDirectoryTool(logger),
		NewWriteFileTool(logger),
		NewEditFileTool(logger),
		NewGrepSearchTool(logger),
		NewBashTool(logger),
	}

	for _, t := range tools {
		if err := registry.Register(t); err != nil {
			logger.Warn("Failed to register tool",
				zap.String("tool", t.Name()),
				zap.Error(err),
			)
			continue
		}
		logger.Debug("Registered tool", zap.String("tool", t.Name()))
	}

	logger.Info("Tool layer initialized", zap.Int("registered", registry.Len()))
	return registry
}
