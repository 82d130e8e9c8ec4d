package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nilcaream/bobai/internal/application/usecase"
	"github.com/nilcaream/bobai/internal/infrastructure/auth"
	"github.com/nilcaream/bobai/internal/infrastructure/config"
	"github.com/nilcaream/bobai/internal/infrastructure/llm"
	_ "github.com/nilcaream/bobai/internal/infrastructure/llm/openai"
	"github.com/nilcaream/bobai/internal/infrastructure/logger"
	"github.com/nilcaream/bobai/internal/infrastructure/persistence"
	"github.com/nilcaream/bobai/internal/infrastructure/prompt"
	"github.com/nilcaream/bobai/internal/infrastructure/tool"
	httpif "github.com/nilcaream/bobai/internal/interfaces/http"
)

const (
	appName    = "bobai"
	appVersion = "0.1.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "bobai is a local coding assistant server",
		Long:  "bobai runs an agentic coding assistant against one project directory and streams the conversation to a browser UI over WebSocket.",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the assistant server for a project directory",
		RunE:  runServe,
	}
	serveCmd.Flags().StringP("project", "C", ".", "project root directory")
	serveCmd.Flags().IntP("port", "p", 0, "listen port (overrides config)")
	serveCmd.Flags().StringP("model", "m", "", "model id (overrides config)")
	serveCmd.Flags().String("provider", "", "provider id (overrides config)")
	rootCmd.AddCommand(serveCmd)

	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage provider credentials",
	}
	setTokenCmd := &cobra.Command{
		Use:   "set <provider> <token>",
		Short: "Store a provider token",
		Args:  cobra.ExactArgs(2),
		RunE:  runAuthSet,
	}
	setTokenCmd.Flags().String("type", "api_key", "credential type (api_key, oauth)")
	authCmd.AddCommand(setTokenCmd)
	authCmd.AddCommand(&cobra.Command{
		Use:   "remove <provider>",
		Short: "Remove a provider token",
		Args:  cobra.ExactArgs(1),
		RunE:  runAuthRemove,
	})
	rootCmd.AddCommand(authCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", appName, appVersion)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	projectFlag, _ := cmd.Flags().GetString("project")
	projectRoot, err := filepath.Abs(projectFlag)
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}

	meta, err := config.EnsureProject(projectRoot)
	if err != nil {
		return fmt.Errorf("bootstrap project: %w", err)
	}

	cfg, err := config.Load(projectRoot)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if m, _ := cmd.Flags().GetString("model"); m != "" {
		cfg.Model = m
	}
	if p, _ := cmd.Flags().GetString("provider"); p != "" {
		cfg.Provider = p
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}

	log, err := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	log.Info("Starting bobai",
		zap.String("version", appVersion),
		zap.String("project", projectRoot),
		zap.String("project_id", meta.ID),
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
	)

	db, err := persistence.NewDBConnection(&cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	store := persistence.NewGormSessionStore(db)

	provider, err := buildProvider(cfg, log)
	if err != nil {
		return err
	}

	registry := tool.NewBuiltinRegistry(log)
	turns := usecase.NewChatTurnUseCase(
		store,
		provider,
		registry,
		projectRoot,
		cfg.Model,
		prompt.System(projectRoot),
		cfg.Agent.MaxIterations,
		log,
	)

	server := httpif.NewServer(httpif.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, turns, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	// The model/provider choice follows project config edits without a
	// restart; connections opened after a change pick up the new values.
	watcher, err := config.NewWatcher(projectRoot, log, func(updated *config.Config) {
		turns.SetModel(updated.Model)
	})
	if err != nil {
		log.Warn("Config watching disabled", zap.Error(err))
	} else {
		defer watcher.Close()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	return server.Stop(shutdownCtx)
}

// buildProvider resolves the token and endpoint for the configured
// provider id.
func buildProvider(cfg *config.Config, log *zap.Logger) (llm.Provider, error) {
	globalDir, err := config.GlobalDir()
	if err != nil {
		return nil, err
	}
	tokens := auth.NewTokenStore(globalDir)
	cred, err := tokens.Get(cfg.Provider)
	if err != nil {
		return nil, err
	}

	token := ""
	if cred != nil {
		token = cred.Token
	} else {
		log.Warn("No stored token for provider; requests will be unauthenticated",
			zap.String("provider", cfg.Provider),
			zap.String("hint", "bobai auth set "+cfg.Provider+" <token>"),
		)
	}

	baseURL := cfg.BaseURLs[cfg.Provider]
	if baseURL == "" {
		baseURL = llm.DefaultBaseURL(cfg.Provider)
	}
	if baseURL == "" {
		return nil, fmt.Errorf("provider %q has no base URL; set base_urls.%s in config", cfg.Provider, cfg.Provider)
	}

	return llm.CreateProvider(llm.ProviderConfig{
		Name:    cfg.Provider,
		BaseURL: baseURL,
		Token:   token,
	}, log)
}

func runAuthSet(cmd *cobra.Command, args []string) error {
	globalDir, err := config.GlobalDir()
	if err != nil {
		return err
	}
	credType, _ := cmd.Flags().GetString("type")
	store := auth.NewTokenStore(globalDir)
	if err := store.Save(args[0], auth.Credential{Token: args[1], Type: credType}); err != nil {
		return err
	}
	fmt.Printf("Stored token for %s in %s\n", args[0], store.Path())
	return nil
}

func runAuthRemove(cmd *cobra.Command, args []string) error {
	globalDir, err := config.GlobalDir()
	if err != nil {
		return err
	}
	store := auth.NewTokenStore(globalDir)
	if err := store.Delete(args[0]); err != nil {
		return err
	}
	fmt.Printf("Removed token for %s\n", args[0])
	return nil
}
