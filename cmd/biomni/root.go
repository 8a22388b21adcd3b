package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/NaqibAhmad/Biomni-frontend-sub000/internal/agent"
	"github.com/NaqibAhmad/Biomni-frontend-sub000/internal/config"
	"github.com/NaqibAhmad/Biomni-frontend-sub000/internal/store"
)

var (
	verbose    bool
	configPath string
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	stepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	solutionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

var rootCmd = &cobra.Command{
	Use:   "biomni",
	Short: "Stream queries to a Biomni research agent backend",
	Long: `Command-line client for the Biomni research agent.

Queries stream over a per-session WebSocket; incremental agent output
is printed as it arrives and the final solution is extracted when the
turn completes. Session metadata is kept in a local SQLite registry so
conversations can be resumed by ID.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))
		slog.SetDefault(logger)

		if err := godotenv.Load(); err != nil {
			slog.Debug("no .env file found, using environment variables")
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: ")+err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFile, "Path to YAML config file")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (store.Repository, error) {
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open session registry: %w", err)
	}
	return repo, nil
}

func closeStore(repo store.Repository) {
	if err := repo.Close(); err != nil {
		slog.Warn("failed to close session registry", "error", err)
	}
}

func agentConfig(cfg *config.Config) agent.Config {
	return agent.Config{
		BackendURL:          cfg.BackendURL,
		Tokens:              cfg.TokenSource(),
		ConnectTimeout:      cfg.ConnectTimeout,
		ReconnectAttempts:   cfg.ReconnectAttempts,
		ReconnectBackoff:    cfg.ReconnectBackoff,
		ReconnectMaxBackoff: cfg.ReconnectMaxBackoff,
		IdleTimeout:         cfg.IdleTimeout,
	}
}
