package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Built-in defaults. Callers never encode these; they always go through
// the resolver.
const (
	DefaultProvider = "copilot"
	DefaultModel    = "gpt-4o"
)

// Config is the resolved application configuration.
type Config struct {
	Provider string         `mapstructure:"provider"`
	Model    string         `mapstructure:"model"`
	Server   ServerConfig   `mapstructure:"server"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`

	// BaseURLs maps a provider id to a chat-completions base URL
	// override. Providers without an entry use their built-in endpoint.
	BaseURLs map[string]string `mapstructure:"base_urls"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// AgentConfig configures the conversation loop.
type AgentConfig struct {
	MaxIterations int `mapstructure:"max_iterations"`
}

// DatabaseConfig configures the session store.
type DatabaseConfig struct {
	Type string `mapstructure:"type"` // sqlite, postgres
	DSN  string `mapstructure:"dsn"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// GlobalDir returns the per-user configuration directory.
func GlobalDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(base, "bobai"), nil
}

// ProjectConfigPath returns the project-local configuration file.
func ProjectConfigPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".bobai", "bobai.json")
}

// Load resolves configuration for a project. Layers, lowest to highest
// precedence: built-in defaults, global <UserConfigDir>/bobai/bobai.json,
// project .bobai/bobai.json, BOBAI_* environment variables. For each key
// the highest layer that defines it wins.
func Load(projectRoot string) (*Config, error) {
	v := viper.New()
	setDefaults(v, projectRoot)

	globalDir, err := GlobalDir()
	if err == nil {
		if err := mergeJSONFile(v, filepath.Join(globalDir, "bobai.json")); err != nil {
			return nil, err
		}
	}

	if err := mergeJSONFile(v, ProjectConfigPath(projectRoot)); err != nil {
		return nil, err
	}

	v.SetEnvPrefix("BOBAI")
	v.AutomaticEnv()
	// AutomaticEnv only resolves keys viper already knows about, so bind
	// the flat resolver keys explicitly.
	for _, key := range []string{"provider", "model"} {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, projectRoot string) {
	v.SetDefault("provider", DefaultProvider)
	v.SetDefault("model", DefaultModel)

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8917)

	v.SetDefault("agent.max_iterations", 20)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", filepath.Join(projectRoot, ".bobai", "bobai.db"))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// mergeJSONFile overlays one layer onto the accumulated settings. A
// missing file is not an error; an unreadable or unparseable one is.
func mergeJSONFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat config %s: %w", path, err)
	}

	layer := viper.New()
	layer.SetConfigFile(path)
	layer.SetConfigType("json")
	if err := layer.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return v.MergeConfigMap(layer.AllSettings())
}
